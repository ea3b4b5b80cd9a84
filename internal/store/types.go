package store

// Chat represents a synced conversation. MessageCount and MediaCount are
// derived counters owned by the ingestion engine; callers never set them
// directly, UpsertChat never overwrites them.
type Chat struct {
	ChatID       string
	Name         string
	IsGroup      bool
	Participants []string
	UnreadCount  int
	IsArchived   bool
	IsPinned     bool
	Description  string
	CreatedBy    string
	CreatedAt    int64
	MessageCount int
	MediaCount   int
	UpdatedAt    int64
}

// Media is a persisted media reference attached to a message.
type Media struct {
	Ref      string
	MimeType string
	Size     int64
}

// Location is an optional location payload on a message.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// ContactCard is an optional shared-contact payload on a message.
type ContactCard struct {
	Name   string
	Number string
}

// Message represents a stored message. MsgID is the natural idempotency key;
// rows are written once and only ever mutated to backfill a media reference.
type Message struct {
	ID          int64
	MsgID       string
	ChatID      string
	From        string
	To          string
	SenderName  string
	Body        string
	Type        string
	IsForwarded bool
	IsReply     bool
	ReplyTo     string
	Timestamp   int64
	Media       *Media
	Location    *Location
	Contact     *ContactCard
}

// HasMedia reports whether a media reference has been attached.
func (m *Message) HasMedia() bool {
	return m.Media != nil && m.Media.Ref != ""
}

// MediaMessage is a media-bearing message annotated with its chat's name.
type MediaMessage struct {
	Message
	ChatName string
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChatID       string
	Body         string
	MediaPath    string // local file to upload; empty for plain text
	MediaMime    string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}

// HasMedia reports whether the entry carries a media attachment.
func (e *OutboxEntry) HasMedia() bool {
	return e.MediaPath != ""
}
