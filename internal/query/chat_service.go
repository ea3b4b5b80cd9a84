// Package query exposes the read-side operations over the store. Services
// here never mutate ingestion state; the only writes are whole-chat deletion
// and queueing outgoing sends.
package query

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/bus"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/store"
)

// ChatService serves chat-level reads and whole-chat deletion.
type ChatService struct {
	db           *store.DB
	bus          *bus.Bus
	logger       *zap.Logger
	recentWindow time.Duration
	pageSize     int
}

// NewChatService creates a chat service. recentWindow bounds RecentChats,
// pageSize is the default message page for GetChat.
func NewChatService(db *store.DB, b *bus.Bus, recentWindow time.Duration, pageSize int, logger *zap.Logger) *ChatService {
	if recentWindow <= 0 {
		recentWindow = 24 * time.Hour
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		db:           db,
		bus:          b,
		logger:       logger,
		recentWindow: recentWindow,
		pageSize:     pageSize,
	}
}

// ChatDetail is a chat joined with its most recent messages.
type ChatDetail struct {
	Chat     store.Chat
	Messages []store.Message
}

// ListChats returns all chats sorted by recency.
func (s *ChatService) ListChats(limit, offset int) ([]store.Chat, error) {
	return s.db.ListChats(limit, offset)
}

// GroupChats returns group chats sorted by recency.
func (s *ChatService) GroupChats() ([]store.Chat, error) {
	return s.db.ListChatsByKind(true)
}

// PrivateChats returns one-on-one chats sorted by recency.
func (s *ChatService) PrivateChats() ([]store.Chat, error) {
	return s.db.ListChatsByKind(false)
}

// RecentChats returns chats updated within the trailing window.
func (s *ChatService) RecentChats() ([]store.Chat, error) {
	since := time.Now().Add(-s.recentWindow).UnixMilli()
	return s.db.RecentChats(since)
}

// GetChat returns one chat with its limit most recent messages, or nil when
// the chat does not exist. limit <= 0 uses the configured default.
func (s *ChatService) GetChat(chatID string, limit int) (*ChatDetail, error) {
	chat, err := s.db.GetChat(chatID)
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if chat == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	msgs, err := s.db.ListMessages(chatID, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return &ChatDetail{Chat: *chat, Messages: msgs}, nil
}

// DeleteChat removes the chat and all its messages as one unit. Returns
// whether anything was deleted; a missing chat is not an error.
func (s *ChatService) DeleteChat(chatID string) (bool, error) {
	existed, err := s.db.DeleteChat(chatID)
	if err != nil {
		return false, fmt.Errorf("delete chat: %w", err)
	}
	if existed {
		s.logger.Info("chat deleted", zap.String("chat_id", chatID))
		if s.bus != nil {
			s.bus.Publish(bus.Event{
				Kind:      "chat.deleted",
				Timestamp: time.Now(),
				Payload:   map[string]string{"chat_id": chatID},
			})
		}
	}
	return existed, nil
}
