// Package source defines the boundary between the messaging source and the
// ingestion core. The core only ever sees these shapes; how they are produced
// (live events, history sync, replays) is the adapter's business.
package source

import "context"

// RawChatEvent is a chat snapshot as delivered by the messaging source.
type RawChatEvent struct {
	ID           string
	Name         string
	IsGroup      bool
	Participants []string
	UnreadCount  int
	Archived     bool
	Pinned       bool
	Description  string
	CreatedBy    string
}

// RawMessageEvent is a message as delivered by the messaging source.
// TimestampSeconds is the source-native unit; zero means "unknown upstream".
type RawMessageEvent struct {
	ID               string
	ChatID           string
	From             string
	To               string
	SenderName       string
	TimestampSeconds int64
	Type             string
	Body             string
	IsForwarded      bool
	HasQuotedMsg     bool
	QuotedMsgID      string
	HasMedia         bool

	// Optional structured payloads for location/contact message types.
	Latitude      float64
	Longitude     float64
	LocationName  string
	ContactName   string
	ContactNumber string

	// Hints used by the media resolver when HasMedia is set.
	DeclaredFilename string
	DeclaredMimeType string
}

// MessageEvent pairs a message with the chat snapshot it arrived with.
// Chat may be nil when the source delivers a bare message.
type MessageEvent struct {
	Chat    *RawChatEvent
	Message *RawMessageEvent
}

// MediaPayload is the result of a successful media fetch.
type MediaPayload struct {
	Data     []byte
	MimeType string
	Filename string
}

// MediaFetcher downloads media bytes for a message from the source.
// Implementations must honor ctx cancellation; a fetch that cannot complete
// returns an error rather than hanging.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, messageID string) (*MediaPayload, error)
}
