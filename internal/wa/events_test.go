package wa

import (
	"strconv"
	"testing"
	"time"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/bus"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/source"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/status"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// walkTo transitions the machine through the given states sequentially.
func walkTo(t *testing.T, m *status.Machine, states ...status.State) {
	t.Helper()
	for _, s := range states {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s failed: %v", s, err)
		}
	}
}

// recordingRegistrar records TrackMedia calls.
type recordingRegistrar struct {
	tracked []string
}

func (r *recordingRegistrar) TrackMedia(msgID string, _ *waE2E.Message) {
	r.tracked = append(r.tracked, msgID)
}

func TestHandleConnectedFromAuthRequired(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, nil, zap.NewNop())

	walkTo(t, m, status.AuthRequired)

	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	h.Handle(&events.Connected{})

	if m.Current() != status.Syncing {
		t.Errorf("state = %s, want SYNCING", m.Current())
	}

	select {
	case evt := <-ch:
		if evt.Kind != "sync.connected" {
			t.Errorf("event kind = %q, want sync.connected", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sync.connected event")
	}
}

func TestHandleConnectedFromReconnecting(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, nil, zap.NewNop())

	walkTo(t, m, status.Connecting, status.Syncing, status.Reconnecting)

	h.Handle(&events.Connected{})

	if m.Current() != status.Syncing {
		t.Errorf("state = %s, want SYNCING (reconnect path)", m.Current())
	}
}

func TestHandleDisconnected(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, nil, zap.NewNop())

	walkTo(t, m, status.Connecting, status.Syncing, status.Ready)

	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	h.Handle(&events.Disconnected{})

	if m.Current() != status.Reconnecting {
		t.Errorf("state = %s, want RECONNECTING", m.Current())
	}

	select {
	case evt := <-ch:
		if evt.Kind != "sync.disconnected" {
			t.Errorf("event kind = %q, want sync.disconnected", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sync.disconnected event")
	}
}

func TestHandleMessageTransitionsToReady(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, nil, zap.NewNop())

	walkTo(t, m, status.Connecting, status.Syncing)

	ch, unsub := b.Subscribe("source.", 10)
	defer unsub()

	h.Handle(&events.Message{
		Info: types.MessageInfo{
			ID:        "test1",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "c", Server: "s.whatsapp.net"},
				Sender: types.JID{User: "s", Server: "s.whatsapp.net"},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	})

	if m.Current() != status.Ready {
		t.Errorf("state = %s, want READY (first message after sync)", m.Current())
	}

	select {
	case evt := <-ch:
		if evt.Kind != "source.message" {
			t.Errorf("event kind = %q, want source.message", evt.Kind)
		}
		me, ok := evt.Payload.(*source.MessageEvent)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if me.Message.ID != "test1" || me.Message.Body != "hello" {
			t.Errorf("payload = %+v", me.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for source.message event")
	}
}

func TestHandleLoggedOut(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, nil, zap.NewNop())

	walkTo(t, m, status.Connecting, status.Syncing, status.Ready)

	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	h.Handle(&events.LoggedOut{})

	if m.Current() != status.AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", m.Current())
	}

	// Drain status_changed events to find logged_out.
	found := false
	timeout := time.After(time.Second)
drain:
	for {
		select {
		case evt := <-ch:
			if evt.Kind == "session.logged_out" {
				found = true
				break drain
			}
		case <-timeout:
			break drain
		}
	}
	if !found {
		t.Error("did not receive session.logged_out event")
	}
}

func TestHandleHistorySync(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, nil, zap.NewNop())

	walkTo(t, m, status.Connecting, status.Syncing)

	ch, unsub := b.Subscribe("source.", 10)
	defer unsub()

	msgTS := uint64(time.Now().Unix())
	h.Handle(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{
				{
					ID:   proto.String("chat@g.us"),
					Name: proto.String("Team"),
					Messages: []*waHistorySync.HistorySyncMsg{
						{
							Message: &waWeb.WebMessageInfo{
								Key: &waCommon.MessageKey{
									ID:        proto.String("hm1"),
									FromMe:    proto.Bool(false),
									RemoteJID: proto.String("chat@g.us"),
								},
								MessageTimestamp: &msgTS,
								Message:          &waE2E.Message{Conversation: proto.String("history msg")},
							},
						},
					},
				},
			},
		},
	})

	select {
	case evt := <-ch:
		if evt.Kind != "source.history_batch" {
			t.Errorf("event kind = %q, want source.history_batch", evt.Kind)
		}
		batch, ok := evt.Payload.([]*source.MessageEvent)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if len(batch) != 1 {
			t.Fatalf("batch size = %d, want 1", len(batch))
		}
		if batch[0].Chat == nil || batch[0].Chat.Name != "Team" || !batch[0].Chat.IsGroup {
			t.Errorf("chat snapshot = %+v", batch[0].Chat)
		}
		if batch[0].Message.ID != "hm1" {
			t.Errorf("message = %+v", batch[0].Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for source.history_batch event")
	}
}

func TestHandleHistorySyncChatOnlyConversation(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, nil, zap.NewNop())

	walkTo(t, m, status.Connecting, status.Syncing)

	ch, unsub := b.Subscribe("source.chat", 10)
	defer unsub()

	h.Handle(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{
				{ID: proto.String("empty@s.whatsapp.net"), Name: proto.String("Quiet")},
			},
		},
	})

	select {
	case evt := <-ch:
		chat, ok := evt.Payload.(*source.RawChatEvent)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if chat.ID != "empty@s.whatsapp.net" || chat.Name != "Quiet" {
			t.Errorf("chat = %+v", chat)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for source.chat event")
	}
}

func TestHandleHistorySyncNilData(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, nil, zap.NewNop())

	walkTo(t, m, status.Connecting, status.Syncing)

	ch, unsub := b.Subscribe("source.", 10)
	defer unsub()

	// Should not panic on nil data.
	h.Handle(&events.HistorySync{Data: nil})

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no events.
	}
}

func TestHandleMessageTracksMedia(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	reg := &recordingRegistrar{}
	h := NewEventHandler(b, m, reg, zap.NewNop())

	walkTo(t, m, status.Connecting, status.Syncing)

	h.Handle(&events.Message{
		Info: types.MessageInfo{
			ID:        "IMG1",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "c", Server: "s.whatsapp.net"},
				Sender: types.JID{User: "s", Server: "s.whatsapp.net"},
			},
		},
		Message: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Mimetype: proto.String("image/jpeg")}},
	})

	if len(reg.tracked) != 1 || reg.tracked[0] != "IMG1" {
		t.Errorf("tracked = %v, want [IMG1]", reg.tracked)
	}

	// Text messages carry nothing downloadable.
	h.Handle(&events.Message{
		Info: types.MessageInfo{
			ID:        "TXT1",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "c", Server: "s.whatsapp.net"},
				Sender: types.JID{User: "s", Server: "s.whatsapp.net"},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("no media")},
	})

	if len(reg.tracked) != 1 {
		t.Errorf("tracked = %v, text message should not register media", reg.tracked)
	}
}

func TestMediaTrackerEviction(t *testing.T) {
	tr := newMediaTracker()
	for i := 0; i < maxPendingMedia+10; i++ {
		tr.track("m"+strconv.Itoa(i), pendingMedia{mime: "image/jpeg"})
	}
	if len(tr.pending) != maxPendingMedia {
		t.Errorf("pending = %d, want %d", len(tr.pending), maxPendingMedia)
	}
	if _, ok := tr.take("m0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := tr.take("m" + strconv.Itoa(maxPendingMedia+9)); !ok {
		t.Error("newest entry should be present")
	}
}
