package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// UpsertChat inserts a chat or replaces its non-derived fields. The derived
// counters (message_count, media_count) and created_at are deliberately
// excluded from the conflict update list: an incoming chat snapshot must
// never clobber what the ingestion engine has accumulated.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO chats (chat_id, name, is_group, participants, unread_count, is_archived, is_pinned, description, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			name = excluded.name,
			is_group = excluded.is_group,
			participants = excluded.participants,
			unread_count = excluded.unread_count,
			is_archived = excluded.is_archived,
			is_pinned = excluded.is_pinned,
			description = excluded.description,
			created_by = excluded.created_by,
			updated_at = excluded.updated_at`,
		c.ChatID, c.Name, c.IsGroup, string(participants), c.UnreadCount,
		c.IsArchived, c.IsPinned, c.Description, c.CreatedBy, now, now)
	return err
}

// EnsureChat creates a placeholder chat row if none exists. Used when a
// message arrives without a chat snapshot, so the owning chat exists before
// the message references it without clobbering any previously synced fields.
func (db *DB) EnsureChat(chatID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO NOTHING`,
		chatID, now, now)
	return err
}

// IncrementChatCounters applies relative counter deltas and bumps updated_at.
// The update is a single SQL statement so concurrent message insertions for
// the same chat are both reflected; callers must never read-modify-write.
func (db *DB) IncrementChatCounters(chatID string, messageDelta, mediaDelta int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE chats
		SET message_count = message_count + ?,
		    media_count = media_count + ?,
		    updated_at = ?
		WHERE chat_id = ?`,
		messageDelta, mediaDelta, now, chatID)
	return err
}

const chatColumns = `chat_id, name, is_group, participants, unread_count, is_archived, is_pinned, description, created_by, created_at, message_count, media_count, updated_at`

// GetChat returns a single chat by id, or nil if absent.
func (db *DB) GetChat(chatID string) (*Chat, error) {
	row := db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE chat_id = ?`, chatID)
	c, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListChats returns all chats sorted by recency.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	return db.queryChats(`
		SELECT `+chatColumns+` FROM chats
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
}

// ListChatsByKind returns group or private chats sorted by recency.
func (db *DB) ListChatsByKind(isGroup bool) ([]Chat, error) {
	return db.queryChats(`
		SELECT `+chatColumns+` FROM chats
		WHERE is_group = ?
		ORDER BY updated_at DESC`, isGroup)
}

// RecentChats returns chats updated at or after the given instant (unix ms).
func (db *DB) RecentChats(since int64) ([]Chat, error) {
	return db.queryChats(`
		SELECT `+chatColumns+` FROM chats
		WHERE updated_at >= ?
		ORDER BY updated_at DESC`, since)
}

// ChatsByIDs returns the chats matching the given ids, sorted by recency.
func (db *DB) ChatsByIDs(ids []string) ([]Chat, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + chatColumns + ` FROM chats WHERE chat_id IN (?` +
		repeatPlaceholder(len(ids)-1) + `) ORDER BY updated_at DESC`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return db.queryChats(query, args...)
}

// DeleteChat removes a chat and all its messages as one transaction.
// Returns whether a chat row existed.
func (db *DB) DeleteChat(chatID string) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM chats WHERE chat_id = ?`, chatID)
	if err != nil {
		return false, fmt.Errorf("delete chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return affected > 0, nil
}

func (db *DB) queryChats(query string, args ...any) ([]Chat, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*Chat, error) {
	var c Chat
	var participants string
	if err := row.Scan(&c.ChatID, &c.Name, &c.IsGroup, &participants,
		&c.UnreadCount, &c.IsArchived, &c.IsPinned, &c.Description,
		&c.CreatedBy, &c.CreatedAt, &c.MessageCount, &c.MediaCount,
		&c.UpdatedAt); err != nil {
		return nil, err
	}
	if participants != "" {
		if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
			return nil, fmt.Errorf("decode participants for %s: %w", c.ChatID, err)
		}
	}
	return &c, nil
}

func repeatPlaceholder(n int) string {
	s := ""
	for range n {
		s += ",?"
	}
	return s
}
