package media

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/source"
)

type mockFetcher struct {
	payload *source.MediaPayload
	err     error
	block   bool // ignore deadline-free contexts and hang until cancelled
}

func (m *mockFetcher) FetchMedia(ctx context.Context, messageID string) (*source.MediaPayload, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.payload, m.err
}

func TestResolvePersistsBlob(t *testing.T) {
	dir := t.TempDir()
	blobs, err := NewDirStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	fetcher := &mockFetcher{payload: &source.MediaPayload{
		Data:     []byte("jpeg bytes"),
		MimeType: "image/jpeg",
		Filename: "photo.jpeg",
	}}
	r := NewResolver(fetcher, blobs, time.Second, nil)

	media, ok := r.Resolve(context.Background(), &source.RawMessageEvent{ID: "m1", HasMedia: true})
	if !ok {
		t.Fatal("Resolve() returned unavailable")
	}
	if media.MimeType != "image/jpeg" || media.Size != int64(len("jpeg bytes")) {
		t.Errorf("media = %+v", media)
	}
	if !strings.HasSuffix(media.Ref, ".jpeg") {
		t.Errorf("ref = %q, want declared-filename extension", media.Ref)
	}

	data, err := os.ReadFile(media.Ref)
	if err != nil {
		t.Fatalf("blob not readable: %v", err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("blob content = %q", data)
	}
}

func TestResolveFetchFailure(t *testing.T) {
	blobs, _ := NewDirStore(t.TempDir())
	fetcher := &mockFetcher{err: errors.New("connection reset")}
	r := NewResolver(fetcher, blobs, time.Second, nil)

	media, ok := r.Resolve(context.Background(), &source.RawMessageEvent{ID: "m1", HasMedia: true})
	if ok || media != nil {
		t.Errorf("Resolve() = %+v, %v; want nil, false", media, ok)
	}
}

func TestResolveTimeout(t *testing.T) {
	blobs, _ := NewDirStore(t.TempDir())
	fetcher := &mockFetcher{block: true}
	r := NewResolver(fetcher, blobs, 50*time.Millisecond, nil)

	start := time.Now()
	_, ok := r.Resolve(context.Background(), &source.RawMessageEvent{ID: "m1", HasMedia: true})
	if ok {
		t.Error("Resolve() should be unavailable on timeout")
	}
	if time.Since(start) > time.Second {
		t.Error("Resolve() did not honor timeout")
	}
}

func TestBlobName(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		mimeType string
		want     string
	}{
		{"declared filename wins", "voice.opus", "audio/ogg", "1000-m_1.opus"},
		{"mime fallback", "", "image/png", "1000-m_1.png"},
		{"unknown mime", "", "application/x-zzz", "1000-m_1.bin"},
		{"empty everything", "", "", "1000-m_1.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := blobName(1000, "m:1", tt.filename, tt.mimeType)
			if got != tt.want {
				t.Errorf("blobName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	got := sanitize("ABC123.true_false@s.whatsapp.net:77")
	if strings.ContainsAny(got, "@:/") {
		t.Errorf("sanitize left hostile chars: %q", got)
	}
}
