package ingest

import (
	"time"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/source"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/store"
)

// Message types accepted into the store; anything else normalizes to text.
var validTypes = map[string]bool{
	"text":       true,
	"image":      true,
	"video":      true,
	"audio":      true,
	"document":   true,
	"location":   true,
	"contact":    true,
	"sticker":    true,
	"chat-event": true,
}

// NormalizeChat converts a raw chat snapshot into a canonical chat record.
// Pure: no storage, no clock, no network.
func NormalizeChat(raw *source.RawChatEvent) *store.Chat {
	participants := raw.Participants
	if participants == nil {
		participants = []string{}
	}
	return &store.Chat{
		ChatID:       raw.ID,
		Name:         raw.Name,
		IsGroup:      raw.IsGroup,
		Participants: participants,
		UnreadCount:  raw.UnreadCount,
		IsArchived:   raw.Archived,
		IsPinned:     raw.Pinned,
		Description:  raw.Description,
		CreatedBy:    raw.CreatedBy,
	}
}

// NormalizeMessage converts a raw message event into a canonical message
// record. The source-native second timestamps become milliseconds; a missing
// timestamp falls back to now (the ingestion-side wall clock, passed in so
// the transform stays deterministic). Media is never set here; attaching a
// reference is the resolver's job.
func NormalizeMessage(raw *source.RawMessageEvent, now time.Time) *store.Message {
	ts := raw.TimestampSeconds * 1000
	if raw.TimestampSeconds <= 0 {
		ts = now.UnixMilli()
	}

	msgType := raw.Type
	if !validTypes[msgType] {
		msgType = "text"
	}

	m := &store.Message{
		MsgID:       raw.ID,
		ChatID:      raw.ChatID,
		From:        raw.From,
		To:          raw.To,
		SenderName:  raw.SenderName,
		Body:        raw.Body,
		Type:        msgType,
		IsForwarded: raw.IsForwarded,
		IsReply:     raw.HasQuotedMsg,
		Timestamp:   ts,
	}
	if raw.HasQuotedMsg {
		m.ReplyTo = raw.QuotedMsgID
	}
	if msgType == "location" {
		m.Location = &store.Location{
			Latitude:  raw.Latitude,
			Longitude: raw.Longitude,
			Name:      raw.LocationName,
		}
	}
	if msgType == "contact" {
		m.Contact = &store.ContactCard{
			Name:   raw.ContactName,
			Number: raw.ContactNumber,
		}
	}
	return m
}
