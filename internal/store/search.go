package store

import (
	"database/sql"
	"strings"
)

// SearchMessages performs a case-insensitive substring match over message
// bodies, newest first. SQLite LIKE is case-insensitive for ASCII, which
// matches the search contract of the read API.
func (db *DB) SearchMessages(term string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	pattern := "%" + escapeLike(term) + "%"
	return db.queryMessages(`
		SELECT `+messageColumns+` FROM messages
		WHERE body LIKE ? ESCAPE '\'
		ORDER BY timestamp DESC
		LIMIT ?`, pattern, limit)
}

// MediaMessages returns media-bearing messages annotated with the owning
// chat's name, optionally filtered by media message type.
func (db *DB) MediaMessages(mediaType string, limit int) ([]MediaMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.id, m.msg_id, m.chat_id, m.sender, m.recipient, m.sender_name,
		       m.body, m.message_type, m.is_forwarded, m.is_reply, m.reply_to,
		       m.timestamp, m.media_ref, m.media_mime, m.media_size,
		       m.latitude, m.longitude, m.location_name, m.contact_name, m.contact_number,
		       COALESCE(c.name, '')
		FROM messages m
		LEFT JOIN chats c ON c.chat_id = m.chat_id
		WHERE m.media_ref IS NOT NULL`
	args := []any{}
	if mediaType != "" {
		q += ` AND m.message_type = ?`
		args = append(args, mediaType)
	}
	q += ` ORDER BY m.timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []MediaMessage
	for rows.Next() {
		var r MediaMessage
		var mediaRef, mediaMime, locName, ctName, ctNumber sql.NullString
		var mediaSize sql.NullInt64
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.MsgID, &r.ChatID, &r.From, &r.To,
			&r.SenderName, &r.Body, &r.Type, &r.IsForwarded, &r.IsReply,
			&r.ReplyTo, &r.Timestamp, &mediaRef, &mediaMime, &mediaSize,
			&lat, &lon, &locName, &ctName, &ctNumber, &r.ChatName); err != nil {
			return nil, err
		}
		if mediaRef.Valid {
			r.Media = &Media{Ref: mediaRef.String, MimeType: mediaMime.String, Size: mediaSize.Int64}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
