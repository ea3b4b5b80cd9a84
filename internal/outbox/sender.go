package outbox

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/bus"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/store"
	"go.uber.org/zap"
)

// TextSender is the interface for sending text messages through the
// connected account.
type TextSender interface {
	SendText(ctx context.Context, chatID string, text string) (serverMsgID string, err error)
}

// MediaSender sends a local file as a media message with an optional caption.
// Transports that also implement it get media outbox entries routed to them;
// otherwise those entries fail with an explanatory error.
type MediaSender interface {
	SendMedia(ctx context.Context, chatID, path, mimeType, caption string) (serverMsgID string, err error)
}

// Sender drains the outbox and sends queued messages via the adapter.
type Sender struct {
	db     *store.DB
	sender TextSender
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, sender TextSender, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:     db,
		sender: sender,
		bus:    b,
		logger: logger,
	}
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		serverMsgID, err := s.send(ctx, entry)
		if err != nil {
			s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			s.publish("message.send_failed", map[string]string{
				"client_msg_id": entry.ClientMsgID,
				"error":         err.Error(),
			})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, serverMsgID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		s.recordSent(entry, serverMsgID)

		s.logger.Info("message sent", zap.String("client_msg_id", entry.ClientMsgID), zap.String("server_msg_id", serverMsgID))
		s.publish("message.send_ack", map[string]string{
			"client_msg_id": entry.ClientMsgID,
			"server_msg_id": serverMsgID,
		})
	}
}

func (s *Sender) send(ctx context.Context, entry store.OutboxEntry) (string, error) {
	if !entry.HasMedia() {
		return s.sender.SendText(ctx, entry.ChatID, entry.Body)
	}
	ms, ok := s.sender.(MediaSender)
	if !ok {
		return "", errors.New("transport does not support media sending")
	}
	return ms.SendMedia(ctx, entry.ChatID, entry.MediaPath, entry.MediaMime, entry.Body)
}

// recordSent writes the sent message into the conversation store under its
// server id. If the adapter later echoes the same message back, the unique
// msg_id index turns that delivery into a duplicate.
func (s *Sender) recordSent(entry store.OutboxEntry, serverMsgID string) {
	// Sends can target chats history sync has not stored yet; the message
	// row and the counter bump both need the chat row to exist.
	if err := s.db.EnsureChat(entry.ChatID); err != nil {
		s.logger.Error("failed to ensure chat", zap.Error(err), zap.String("chat_id", entry.ChatID))
		return
	}
	msg := &store.Message{
		MsgID:     serverMsgID,
		ChatID:    entry.ChatID,
		From:      "me",
		To:        entry.ChatID,
		Body:      entry.Body,
		Type:      "text",
		Timestamp: time.Now().UnixMilli(),
	}
	mediaDelta := 0
	if entry.HasMedia() {
		msg.Type = messageTypeForMime(entry.MediaMime)
		msg.Media = &store.Media{Ref: entry.MediaPath, MimeType: entry.MediaMime, Size: fileSize(entry.MediaPath)}
		mediaDelta = 1
	}
	if err := s.db.InsertMessage(msg); err != nil {
		if !errors.Is(err, store.ErrDuplicateMessage) {
			s.logger.Error("failed to record sent message", zap.Error(err), zap.String("server_msg_id", serverMsgID))
		}
		return
	}
	if err := s.db.IncrementChatCounters(entry.ChatID, 1, mediaDelta); err != nil {
		s.logger.Error("failed to bump chat counters", zap.Error(err), zap.String("chat_id", entry.ChatID))
	}
	s.publish("message.stored", map[string]string{
		"chat_id": entry.ChatID,
		"msg_id":  serverMsgID,
	})
}

func messageTypeForMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	default:
		return "document"
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (s *Sender) publish(kind string, payload map[string]string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
