package wa

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/source"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
)

// maxPendingMedia bounds the number of downloadable payloads kept in memory
// while the resolver decides whether to fetch them.
const maxPendingMedia = 1024

type pendingMedia struct {
	msg      whatsmeow.DownloadableMessage
	mime     string
	filename string
}

// mediaTracker remembers the downloadable payload of recently seen messages
// so FetchMedia can resolve a message id back to its ciphertext reference.
// Oldest entries are evicted once the bound is reached.
type mediaTracker struct {
	mu      sync.Mutex
	pending map[string]pendingMedia
	order   []string
}

func newMediaTracker() *mediaTracker {
	return &mediaTracker{pending: make(map[string]pendingMedia)}
}

func (t *mediaTracker) track(msgID string, pm pendingMedia) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[msgID]; ok {
		return
	}
	for len(t.order) >= maxPendingMedia {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.pending, oldest)
	}
	t.pending[msgID] = pm
	t.order = append(t.order, msgID)
}

func (t *mediaTracker) take(msgID string) (pendingMedia, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pm, ok := t.pending[msgID]
	return pm, ok
}

// TrackMedia registers a message's downloadable payload for later fetching.
// No-op when the message carries no media.
func (a *Adapter) TrackMedia(msgID string, msg *waE2E.Message) {
	dl, mime, filename, ok := downloadableOf(msg)
	if !ok {
		return
	}
	a.media.track(msgID, pendingMedia{msg: dl, mime: mime, filename: filename})
}

// FetchMedia downloads the media bytes for a previously tracked message.
func (a *Adapter) FetchMedia(ctx context.Context, messageID string) (*source.MediaPayload, error) {
	pm, ok := a.media.take(messageID)
	if !ok {
		return nil, fmt.Errorf("no downloadable payload for message %s", messageID)
	}
	data, err := a.client.Download(ctx, pm.msg)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	return &source.MediaPayload{
		Data:     data,
		MimeType: pm.mime,
		Filename: pm.filename,
	}, nil
}

// downloadableOf returns the downloadable part of a message along with its
// declared mime type and filename, when the message carries media.
func downloadableOf(msg *waE2E.Message) (whatsmeow.DownloadableMessage, string, string, bool) {
	if msg == nil {
		return nil, "", "", false
	}
	switch {
	case msg.GetImageMessage() != nil:
		m := msg.GetImageMessage()
		return m, m.GetMimetype(), "", true
	case msg.GetVideoMessage() != nil:
		m := msg.GetVideoMessage()
		return m, m.GetMimetype(), "", true
	case msg.GetAudioMessage() != nil:
		m := msg.GetAudioMessage()
		return m, m.GetMimetype(), "", true
	case msg.GetDocumentMessage() != nil:
		m := msg.GetDocumentMessage()
		return m, m.GetMimetype(), m.GetFileName(), true
	case msg.GetStickerMessage() != nil:
		m := msg.GetStickerMessage()
		return m, m.GetMimetype(), "", true
	default:
		return nil, "", "", false
	}
}
