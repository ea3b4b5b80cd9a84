package media

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/source"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/store"
)

// Resolver downloads a message's media from the source and persists it to
// the blob store. Failures resolve to "unavailable" (nil, false): media loss
// must never block text persistence, and source redelivery is the retry path.
type Resolver struct {
	fetcher source.MediaFetcher
	blobs   Store
	timeout time.Duration
	logger  *zap.Logger
}

// NewResolver creates a resolver with the given fetch timeout.
func NewResolver(fetcher source.MediaFetcher, blobs Store, timeout time.Duration, logger *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fetcher: fetcher,
		blobs:   blobs,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve fetches and persists media for the given message. The second
// return is false when media could not be obtained; the caller proceeds
// with a media-absent message.
func (r *Resolver) Resolve(ctx context.Context, msg *source.RawMessageEvent) (*store.Media, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := r.fetcher.FetchMedia(ctx, msg.ID)
	if err != nil {
		r.logger.Warn("media fetch failed",
			zap.String("msg_id", msg.ID),
			zap.Error(err))
		return nil, false
	}
	if payload == nil || len(payload.Data) == 0 {
		r.logger.Warn("media fetch returned no data", zap.String("msg_id", msg.ID))
		return nil, false
	}

	mimeType := payload.MimeType
	if mimeType == "" {
		mimeType = msg.DeclaredMimeType
	}
	name := blobName(time.Now().UnixMilli(), msg.ID, payload.Filename, mimeType)

	ref, err := r.blobs.Put(name, payload.Data)
	if err != nil {
		r.logger.Warn("media persist failed",
			zap.String("msg_id", msg.ID),
			zap.Error(err))
		return nil, false
	}

	return &store.Media{
		Ref:      ref,
		MimeType: mimeType,
		Size:     int64(len(payload.Data)),
	}, true
}

// blobName derives a unique blob name from the ingestion instant and message
// id, so duplicate original filenames never collide. The extension comes from
// the declared filename when present, else the mime type, else ".bin".
func blobName(unixMs int64, msgID, declaredFilename, mimeType string) string {
	ext := filepath.Ext(declaredFilename)
	if ext == "" {
		ext = extensionForMime(mimeType)
	}
	return fmt.Sprintf("%d-%s%s", unixMs, sanitize(msgID), ext)
}

func extensionForMime(mimeType string) string {
	// Prefer the conventional extension for the common WhatsApp media types;
	// mime.ExtensionsByType ordering is unstable across platforms.
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/ogg", "audio/ogg; codecs=opus":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "application/pdf":
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// sanitize keeps blob names filesystem-safe; source message ids can contain
// path-hostile characters.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
