package wa

import (
	"time"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/bus"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/source"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/status"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// MediaRegistrar keeps downloadable payloads addressable by message id so
// the media resolver can fetch them later. The Adapter implements it.
type MediaRegistrar interface {
	TrackMedia(msgID string, msg *waE2E.Message)
}

// EventHandler processes whatsmeow events, drives the state machine,
// and publishes parsed domain events on the bus. It does NOT call the
// ingestion engine directly — the engine subscribes to the bus independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	media   MediaRegistrar
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler. media may be nil when media
// downloads are not wanted.
func NewEventHandler(b *bus.Bus, machine *status.Machine, media MediaRegistrar, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{
		bus:     b,
		machine: machine,
		media:   media,
		logger:  logger,
	}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		current := h.machine.Current()
		if current == status.AuthRequired || current == status.Reconnecting {
			_ = h.machine.Transition(status.Connecting)
		}
		_ = h.machine.Transition(status.Syncing)
		h.bus.Publish(bus.Event{Kind: "sync.connected", Timestamp: time.Now()})
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		_ = h.machine.Transition(status.Reconnecting)
		h.bus.Publish(bus.Event{Kind: "sync.disconnected", Timestamp: time.Now()})
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.AuthRequired)
		h.bus.Publish(bus.Event{Kind: "session.logged_out", Timestamp: time.Now(), Payload: evt.Reason.String()})
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	if h.machine.Current() == status.Syncing {
		_ = h.machine.Transition(status.Ready)
	}

	parsed := ParseLiveMessage(evt)
	if h.media != nil && parsed.Message.HasMedia {
		h.media.TrackMedia(parsed.Message.ID, evt.Message)
	}
	h.bus.Publish(bus.Event{
		Kind:      "source.message",
		Timestamp: time.Now(),
		Payload:   parsed,
	})
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	var batch []*source.MessageEvent
	for _, conv := range data.GetConversations() {
		chatID := NormalizeJID(conv.GetID())
		chat := &source.RawChatEvent{
			ID:          chatID,
			Name:        conv.GetName(),
			IsGroup:     isGroupJID(chatID),
			UnreadCount: int(conv.GetUnreadCount()),
			Archived:    conv.GetArchived(),
			Pinned:      conv.GetPinned() > 0,
		}
		added := 0
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil {
				continue
			}
			raw := ParseHistoryMessage(conv.GetID(), wmsg)
			if raw == nil {
				continue
			}
			if h.media != nil && raw.HasMedia {
				h.media.TrackMedia(raw.ID, wmsg.GetMessage())
			}
			batch = append(batch, &source.MessageEvent{Chat: chat, Message: raw})
			added++
		}
		if added == 0 {
			// A conversation with no recoverable messages still refreshes
			// the chat's metadata.
			h.bus.Publish(bus.Event{
				Kind:      "source.chat",
				Timestamp: time.Now(),
				Payload:   chat,
			})
		}
	}

	if len(batch) > 0 {
		h.logger.Info("history sync batch", zap.Int("messages", len(batch)))
		h.bus.Publish(bus.Event{
			Kind:      "source.history_batch",
			Timestamp: time.Now(),
			Payload:   batch,
		})
	}
}

func isGroupJID(jid string) bool {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return false
	}
	return parsed.Server == types.GroupServer
}
