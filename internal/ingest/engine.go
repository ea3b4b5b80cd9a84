package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/bus"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/source"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/store"
)

// MediaResolver obtains a persisted media reference for a message, or
// reports it unavailable. Unavailability is not an error.
type MediaResolver interface {
	Resolve(ctx context.Context, msg *source.RawMessageEvent) (*store.Media, bool)
}

// Engine is the idempotent writer: each distinct message id is persisted at
// most once, and persisting it updates the owning chat's counters exactly
// once. It subscribes to "source." events on the bus and processes them.
type Engine struct {
	db       *store.DB
	resolver MediaResolver
	bus      *bus.Bus
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewEngine creates a new ingestion engine. resolver may be nil when the
// deployment has no media side channel.
func NewEngine(db *store.DB, resolver MediaResolver, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:       db,
		resolver: resolver,
		bus:      b,
		logger:   logger,
	}
}

// Start subscribes to inbound source events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("source.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case "source.chat":
		chat, ok := evt.Payload.(*source.RawChatEvent)
		if !ok {
			return
		}
		if err := e.IngestChat(chat); err != nil {
			e.logger.Error("failed to ingest chat", zap.Error(err), zap.String("chat_id", chat.ID))
		}
	case "source.message":
		msg, ok := evt.Payload.(*source.MessageEvent)
		if !ok {
			return
		}
		if _, err := e.Ingest(ctx, msg); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", msg.Message.ID))
		}
	case "source.history_batch":
		batch, ok := evt.Payload.([]*source.MessageEvent)
		if !ok {
			return
		}
		e.IngestBatch(ctx, batch)
	}
}

// IngestChat upserts a chat snapshot (merge semantics: derived counters are
// preserved by the store).
func (e *Engine) IngestChat(raw *source.RawChatEvent) error {
	if err := e.db.UpsertChat(NormalizeChat(raw)); err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	e.publish("chat.updated", map[string]string{"chat_id": raw.ID})
	return nil
}

// Ingest processes one message event. It returns the stored record, which is
// the pre-existing one when the event is a redelivery. Storage errors are
// fatal for the event and surface to the caller; media failures never do.
func (e *Engine) Ingest(ctx context.Context, evt *source.MessageEvent) (*store.Message, error) {
	raw := evt.Message
	if raw == nil {
		return nil, errors.New("ingest: event without message")
	}

	// The owning chat must exist before the message references it. A bare
	// message only guarantees existence; a full snapshot replaces fields.
	if evt.Chat != nil {
		if err := e.db.UpsertChat(NormalizeChat(evt.Chat)); err != nil {
			return nil, fmt.Errorf("upsert chat: %w", err)
		}
	} else {
		if err := e.db.EnsureChat(raw.ChatID); err != nil {
			return nil, fmt.Errorf("ensure chat: %w", err)
		}
	}

	// Fast-path dedup. This check is an optimization; the unique index on
	// msg_id is the source of truth (see the duplicate-insert branch below).
	existing, err := e.db.GetMessage(raw.ID)
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	if existing != nil {
		return e.backfillMedia(ctx, existing, raw)
	}

	msg := NormalizeMessage(raw, time.Now())

	mediaDelta := 0
	if raw.HasMedia && e.resolver != nil {
		if media, ok := e.resolver.Resolve(ctx, raw); ok {
			msg.Media = media
			mediaDelta = 1
		}
		// Unavailable media: persist the message without a reference. A
		// later redelivery may backfill it.
	}

	if err := e.db.InsertMessage(msg); err != nil {
		if errors.Is(err, store.ErrDuplicateMessage) {
			// Lost the race against a concurrent writer for the same msg_id;
			// same outcome as the fast-path hit, no counters touched here.
			winner, ferr := e.db.GetMessage(raw.ID)
			if ferr != nil {
				return nil, fmt.Errorf("find message after duplicate: %w", ferr)
			}
			if winner == nil {
				return nil, fmt.Errorf("duplicate insert for %s but no stored row", raw.ID)
			}
			return e.attachIfMissing(winner, msg.Media)
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := e.db.IncrementChatCounters(raw.ChatID, 1, mediaDelta); err != nil {
		return nil, fmt.Errorf("increment counters: %w", err)
	}

	e.publish("message.stored", map[string]string{
		"chat_id": raw.ChatID,
		"msg_id":  raw.ID,
	})
	return msg, nil
}

// backfillMedia handles redelivery of an already-stored message. Policy: a
// pure no-op, except that a media-bearing redelivery may attach the reference
// a previous delivery failed to obtain.
func (e *Engine) backfillMedia(ctx context.Context, existing *store.Message, raw *source.RawMessageEvent) (*store.Message, error) {
	if !raw.HasMedia || existing.HasMedia() || e.resolver == nil {
		e.publish("message.duplicate", map[string]string{"msg_id": raw.ID})
		return existing, nil
	}
	media, ok := e.resolver.Resolve(ctx, raw)
	if !ok {
		e.publish("message.duplicate", map[string]string{"msg_id": raw.ID})
		return existing, nil
	}
	return e.attachIfMissing(existing, media)
}

// attachIfMissing attaches media to a stored row when it has none, counting
// the media exactly once even when backfills race.
func (e *Engine) attachIfMissing(existing *store.Message, media *store.Media) (*store.Message, error) {
	if media == nil || existing.HasMedia() {
		return existing, nil
	}
	updated, err := e.db.AttachMedia(existing.MsgID, media)
	if err != nil {
		return nil, fmt.Errorf("attach media: %w", err)
	}
	if updated {
		if err := e.db.IncrementChatCounters(existing.ChatID, 0, 1); err != nil {
			return nil, fmt.Errorf("increment media counter: %w", err)
		}
		existing.Media = media
		e.publish("message.media_backfilled", map[string]string{"msg_id": existing.MsgID})
	}
	return existing, nil
}

// IngestBatch processes a history batch. Each event gets the full idempotent
// treatment; one bad event does not abort the batch.
func (e *Engine) IngestBatch(ctx context.Context, batch []*source.MessageEvent) {
	stored := 0
	for _, evt := range batch {
		if _, err := e.Ingest(ctx, evt); err != nil {
			e.logger.Error("failed to ingest batch message", zap.Error(err), zap.String("msg_id", evt.Message.ID))
			continue
		}
		stored++
	}

	if err := e.UpdateCheckpoint("last_history_batch_at", strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
		e.logger.Warn("failed to record batch checkpoint", zap.Error(err))
	}

	e.logger.Info("history batch ingested", zap.Int("messages", stored), zap.Int("batch", len(batch)))
	e.publish("sync.history_batch", map[string]int{"messages_count": stored})
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
