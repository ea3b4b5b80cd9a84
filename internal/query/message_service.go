package query

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/bus"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/store"
)

// Media message types exposed by the media listing.
var mediaTypes = map[string]bool{
	"image":    true,
	"video":    true,
	"audio":    true,
	"document": true,
	"sticker":  true,
}

// MessageService serves message-level reads and queues outgoing sends.
type MessageService struct {
	db  *store.DB
	bus *bus.Bus
}

// NewMessageService creates a message service backed by the store.
func NewMessageService(db *store.DB, b *bus.Bus) *MessageService {
	return &MessageService{db: db, bus: b}
}

// ChatMatches is a chat annotated with only the messages that matched a search.
type ChatMatches struct {
	Chat     store.Chat
	Messages []store.Message
}

// Messages returns a chat's messages, newest first, keyset-paginated.
func (s *MessageService) Messages(chatID string, beforeTs int64, limit int) ([]store.Message, error) {
	return s.db.ListMessages(chatID, beforeTs, limit)
}

// Search performs a case-insensitive substring search over message bodies and
// groups the hits by chat, chats in recency order, each carrying only its
// matching messages.
func (s *MessageService) Search(term string) ([]ChatMatches, error) {
	msgs, err := s.db.SearchMessages(term, 0)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	byChat := make(map[string][]store.Message)
	var ids []string
	for _, m := range msgs {
		if _, seen := byChat[m.ChatID]; !seen {
			ids = append(ids, m.ChatID)
		}
		byChat[m.ChatID] = append(byChat[m.ChatID], m)
	}

	chats, err := s.db.ChatsByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("load matched chats: %w", err)
	}

	results := make([]ChatMatches, 0, len(chats))
	for _, c := range chats {
		results = append(results, ChatMatches{Chat: c, Messages: byChat[c.ChatID]})
	}
	return results, nil
}

// MediaMessages lists media-bearing messages annotated with the owning chat
// name, optionally filtered by type, capped at limit.
func (s *MessageService) MediaMessages(mediaType string, limit int) ([]store.MediaMessage, error) {
	if mediaType != "" && !mediaTypes[mediaType] {
		return nil, fmt.Errorf("invalid media type %q", mediaType)
	}
	return s.db.MediaMessages(mediaType, limit)
}

// SendText queues an outgoing text message and returns the client message id
// the send can be tracked by.
func (s *MessageService) SendText(chatID, text string) (string, error) {
	clientMsgID := uuid.New().String()
	if err := s.db.QueueOutbox(clientMsgID, chatID, text); err != nil {
		return "", fmt.Errorf("queue outbox: %w", err)
	}
	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind:      "message.queued",
			Timestamp: time.Now(),
			Payload:   map[string]string{"chat_id": chatID, "client_msg_id": clientMsgID},
		})
	}
	return clientMsgID, nil
}

// SendMedia queues an outgoing media message. The file must exist and stay in
// place until the sender picks the entry up; caption may be empty.
func (s *MessageService) SendMedia(chatID, path, mimeType, caption string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("media file: %w", err)
	}
	clientMsgID := uuid.New().String()
	if err := s.db.QueueMediaOutbox(clientMsgID, chatID, caption, path, mimeType); err != nil {
		return "", fmt.Errorf("queue outbox: %w", err)
	}
	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind:      "message.queued",
			Timestamp: time.Now(),
			Payload:   map[string]string{"chat_id": chatID, "client_msg_id": clientMsgID},
		})
	}
	return clientMsgID, nil
}
