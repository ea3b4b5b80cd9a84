package wa

import (
	"strings"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/source"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ParseLiveMessage normalizes a live whatsmeow message event into the
// boundary shape the ingestion engine consumes. Live events carry no chat
// metadata, so Chat stays nil: the engine then only asserts chat existence
// instead of replacing fields a history sync already filled in.
func ParseLiveMessage(evt *events.Message) *source.MessageEvent {
	raw := parseContent(evt.Message)
	raw.ID = evt.Info.ID
	raw.ChatID = NormalizeJID(evt.Info.Chat.String())
	raw.From = NormalizeJID(evt.Info.Sender.String())
	raw.SenderName = evt.Info.PushName
	raw.TimestampSeconds = evt.Info.Timestamp.Unix()

	return &source.MessageEvent{Message: raw}
}

// ParseHistoryMessage normalizes a single message from a history sync
// conversation. chatID is the owning conversation's JID.
func ParseHistoryMessage(chatID string, wmsg *waWeb.WebMessageInfo) *source.RawMessageEvent {
	msg := wmsg.GetMessage()
	if msg == nil {
		return nil
	}
	raw := parseContent(msg)
	raw.ID = wmsg.GetKey().GetID()
	raw.ChatID = NormalizeJID(chatID)
	raw.From = NormalizeJID(wmsg.GetKey().GetParticipant())
	raw.SenderName = wmsg.GetPushName()
	raw.TimestampSeconds = int64(wmsg.GetMessageTimestamp())
	return raw
}

// parseContent extracts body, type, media flags, and the structured
// location/contact payloads from a message's content.
func parseContent(msg *waE2E.Message) *source.RawMessageEvent {
	raw := &source.RawMessageEvent{
		Body: extractTextBody(msg),
		Type: detectMessageType(msg),
	}

	if ctx := contextInfoOf(msg); ctx != nil {
		raw.IsForwarded = ctx.GetIsForwarded()
		if id := ctx.GetStanzaID(); id != "" {
			raw.HasQuotedMsg = true
			raw.QuotedMsgID = id
		}
	}

	if loc := msg.GetLocationMessage(); loc != nil {
		raw.Latitude = loc.GetDegreesLatitude()
		raw.Longitude = loc.GetDegreesLongitude()
		raw.LocationName = loc.GetName()
	}
	if contact := msg.GetContactMessage(); contact != nil {
		raw.ContactName = contact.GetDisplayName()
		raw.ContactNumber = vcardPhone(contact.GetVcard())
	}

	if _, mime, filename, ok := downloadableOf(msg); ok {
		raw.HasMedia = true
		raw.DeclaredMimeType = mime
		raw.DeclaredFilename = filename
	}

	return raw
}

// NormalizeJID strips device and agent suffixes so that history sync and live
// messages produce the same chat id for the same contact. Unparseable input
// is returned as-is.
func NormalizeJID(jid string) string {
	if jid == "" {
		return ""
	}
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return jid
	}
	return parsed.ToNonAD().String()
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	// Media captions surface as the message body.
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}

func contextInfoOf(msg *waE2E.Message) *waE2E.ContextInfo {
	if msg == nil {
		return nil
	}
	switch {
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetContextInfo()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetContextInfo()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetContextInfo()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetContextInfo()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetContextInfo()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage().GetContextInfo()
	case msg.GetContactMessage() != nil:
		return msg.GetContactMessage().GetContextInfo()
	case msg.GetLocationMessage() != nil:
		return msg.GetLocationMessage().GetContextInfo()
	default:
		return nil
	}
}

// vcardPhone pulls the first TEL value out of a vCard blob.
func vcardPhone(vcard string) string {
	for _, line := range strings.Split(vcard, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "TEL") {
			continue
		}
		if idx := strings.LastIndex(line, ":"); idx >= 0 {
			return strings.TrimSpace(line[idx+1:])
		}
	}
	return ""
}
