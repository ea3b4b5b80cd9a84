package store

import (
	"database/sql"
	"time"
)

const messageColumns = `id, msg_id, chat_id, sender, recipient, sender_name, body, message_type, is_forwarded, is_reply, reply_to, timestamp, media_ref, media_mime, media_size, latitude, longitude, location_name, contact_name, contact_number`

// InsertMessage stores a new message. Returns ErrDuplicateMessage when a row
// with the same msg_id already exists; the unique index is the dedup arbiter
// under concurrent writers.
func (db *DB) InsertMessage(m *Message) error {
	now := time.Now().UnixMilli()

	var mediaRef, mediaMime any
	var mediaSize any
	if m.Media != nil {
		mediaRef, mediaMime, mediaSize = m.Media.Ref, m.Media.MimeType, m.Media.Size
	}
	var lat, lon, locName any
	if m.Location != nil {
		lat, lon, locName = m.Location.Latitude, m.Location.Longitude, m.Location.Name
	}
	var ctName, ctNumber any
	if m.Contact != nil {
		ctName, ctNumber = m.Contact.Name, m.Contact.Number
	}

	res, err := db.Exec(`
		INSERT INTO messages (msg_id, chat_id, sender, recipient, sender_name, body, message_type, is_forwarded, is_reply, reply_to, timestamp, media_ref, media_mime, media_size, latitude, longitude, location_name, contact_name, contact_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MsgID, m.ChatID, m.From, m.To, m.SenderName, m.Body, m.Type,
		m.IsForwarded, m.IsReply, m.ReplyTo, m.Timestamp,
		mediaRef, mediaMime, mediaSize, lat, lon, locName, ctName, ctNumber, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateMessage
		}
		return err
	}
	m.ID, _ = res.LastInsertId()
	return nil
}

// GetMessage returns a message by msg_id, or nil if absent.
func (db *DB) GetMessage(msgID string) (*Message, error) {
	row := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE msg_id = ?`, msgID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AttachMedia backfills a media reference onto an existing message. The
// media_ref IS NULL guard makes two racing backfills attach (and therefore
// count) the media at most once. Returns whether the row was updated.
func (db *DB) AttachMedia(msgID string, media *Media) (bool, error) {
	res, err := db.Exec(`
		UPDATE messages
		SET media_ref = ?, media_mime = ?, media_size = ?
		WHERE msg_id = ? AND media_ref IS NULL`,
		media.Ref, media.MimeType, media.Size, msgID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListMessages returns messages for a chat using keyset pagination by timestamp.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	return db.queryMessages(`
		SELECT `+messageColumns+` FROM messages
		WHERE chat_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, chatID, beforeTs, limit)
}

// CountMessages returns the stored message count for a chat.
func (db *DB) CountMessages(chatID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&n)
	return n, err
}

// CountMedia returns how many of a chat's messages carry a media reference.
func (db *DB) CountMedia(chatID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ? AND media_ref IS NOT NULL`, chatID).Scan(&n)
	return n, err
}

func (db *DB) queryMessages(query string, args ...any) ([]Message, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var mediaRef, mediaMime, locName, ctName, ctNumber sql.NullString
	var mediaSize sql.NullInt64
	var lat, lon sql.NullFloat64
	if err := row.Scan(&m.ID, &m.MsgID, &m.ChatID, &m.From, &m.To,
		&m.SenderName, &m.Body, &m.Type, &m.IsForwarded, &m.IsReply,
		&m.ReplyTo, &m.Timestamp, &mediaRef, &mediaMime, &mediaSize,
		&lat, &lon, &locName, &ctName, &ctNumber); err != nil {
		return nil, err
	}
	if mediaRef.Valid {
		m.Media = &Media{Ref: mediaRef.String, MimeType: mediaMime.String, Size: mediaSize.Int64}
	}
	if lat.Valid || lon.Valid {
		m.Location = &Location{Latitude: lat.Float64, Longitude: lon.Float64, Name: locName.String}
	}
	if ctName.Valid || ctNumber.Valid {
		m.Contact = &ContactCard{Name: ctName.String, Number: ctNumber.String}
	}
	return &m, nil
}
