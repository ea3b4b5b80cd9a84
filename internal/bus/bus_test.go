package bus

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: "message.stored", Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != "message.stored" {
			t.Errorf("got kind %q, want message.stored", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("source.", 10)
	defer unsub()

	b.Publish(Event{Kind: "message.stored"})
	b.Publish(Event{Kind: "source.message"})

	select {
	case evt := <-ch:
		if evt.Kind != "source.message" {
			t.Errorf("got kind %q, want source.message", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the message event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	unsub()

	b.Publish(Event{Kind: "message.stored"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

// A drop caused by a full subscriber buffer is logged with the event kind.
func TestDropOnFullBufferIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := New()
	b.SetLogger(zap.New(core))

	_, unsub := b.Subscribe("source.", 1)
	defer unsub()

	b.Publish(Event{Kind: "source.message"})
	b.Publish(Event{Kind: "source.message"})

	entries := logs.FilterMessage("dropping event for slow subscriber").All()
	if len(entries) != 1 {
		t.Fatalf("got %d drop logs, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["kind"] != "source.message" {
		t.Errorf("logged kind = %v, want source.message", fields["kind"])
	}
}
