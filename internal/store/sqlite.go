package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/tarschat/internal/ids"
	"github.com/eldtechnologies/tarschat/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/tarschat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/tarschat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers, which the read-then-write
	// transactions below rely on.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		image_url TEXT,
		is_online BOOLEAN NOT NULL DEFAULT 0,
		last_seen INTEGER NOT NULL DEFAULT 0,
		is_deleted BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		is_group BOOLEAN NOT NULL,
		group_name TEXT,
		dm_key TEXT UNIQUE,
		last_message_time INTEGER,
		last_message_preview TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		position INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS message_reactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL REFERENCES messages(id),
		emoji TEXT NOT NULL,
		user_id TEXT NOT NULL,
		UNIQUE (message_id, emoji, user_id)
	);

	CREATE TABLE IF NOT EXISTS typing_indicators (
		conversation_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		last_typed INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS read_receipts (
		conversation_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		last_read_time INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// withTx runs fn in a transaction. While fn runs only tx may be used; the
// pool holds a single connection.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser creates the user for in.ExternalID or updates its profile.
func (s *SQLiteStore) UpsertUser(ctx context.Context, in models.UserUpsert, now int64, markOnline bool) (*models.User, error) {
	ts := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, external_id, name, email, image_url, is_online, last_seen, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			image_url = excluded.image_url,
			is_deleted = 0,
			is_online = (users.is_online OR excluded.is_online),
			last_seen = CASE WHEN excluded.is_online THEN excluded.last_seen ELSE users.last_seen END,
			updated_at = excluded.updated_at
	`, ids.NewUUIDv7(), in.ExternalID, in.Name, in.Email, in.ImageURL, markOnline, now, ts, ts)
	if err != nil {
		return nil, err
	}
	return s.GetUserByExternalID(ctx, in.ExternalID)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetUserByExternalID retrieves a user by the identity provider's key.
func (s *SQLiteStore) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetUsersByIDs retrieves the users that exist among ids.
func (s *SQLiteStore) GetUsersByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	users := make(map[uuid.UUID]*models.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}

	placeholders, args := inClause(uuidStrings(userIDs))
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

// ListUsers lists active users other than exclude, optionally filtered by a
// case-insensitive substring of name or email.
func (s *SQLiteStore) ListUsers(ctx context.Context, exclude uuid.UUID, search string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id <> ? AND is_deleted = 0`
	args := []any{exclude.String()}
	if search != "" {
		pattern := likePattern(search)
		query += ` AND (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY LOWER(name), id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// DeactivateUser marks a user deleted by the identity provider and offline.
// It returns nil when no such user exists.
func (s *SQLiteStore) DeactivateUser(ctx context.Context, externalID string, now int64) (*models.User, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_deleted = 1, is_online = 0, updated_at = ? WHERE external_id = ?
	`, time.Now().UTC(), externalID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetUserByExternalID(ctx, externalID)
}

// SetPresence patches the online flag and last-seen timestamp.
func (s *SQLiteStore) SetPresence(ctx context.Context, id uuid.UUID, isOnline bool, now int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_online = ?, last_seen = ?, updated_at = ? WHERE id = ?
	`, isOnline, now, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DemoteStalePresence marks offline every online user last seen before
// lastSeenBefore and returns their ids.
func (s *SQLiteStore) DemoteStalePresence(ctx context.Context, lastSeenBefore, now int64) ([]uuid.UUID, error) {
	var demoted []uuid.UUID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM users WHERE is_online = 1 AND last_seen < ?`, lastSeenBefore)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			demoted = append(demoted, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users SET is_online = 0, updated_at = ? WHERE is_online = 1 AND last_seen < ?
		`, time.Now().UTC(), lastSeenBefore)
		return err
	})
	if err != nil {
		return nil, err
	}
	return demoted, nil
}

// GetOrCreateDirectConversation returns the DM between a and b, creating it
// if needed.
func (s *SQLiteStore) GetOrCreateDirectConversation(ctx context.Context, a, b uuid.UUID, now int64) (*models.Conversation, bool, error) {
	key := ids.PairKey(a, b)
	var conv *models.Conversation
	created := false

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id := ids.NewUUIDv7()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, is_group, dm_key, last_message_time, created_at)
			VALUES (?, 0, ?, ?, ?)
			ON CONFLICT (dm_key) DO NOTHING
		`, id.String(), key, now, now)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			created = true
			if err := sqliteInsertParticipants(ctx, tx, id, []uuid.UUID{a, b}); err != nil {
				return err
			}
		}

		conv, err = scanConversation(tx.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE dm_key = ?`, key))
		if err != nil {
			return err
		}
		return sqliteLoadParticipants(ctx, tx, conv)
	})
	if err != nil {
		return nil, false, err
	}
	return conv, created, nil
}

// CreateGroupConversation creates a group with the given participants.
func (s *SQLiteStore) CreateGroupConversation(ctx context.Context, name string, participants []uuid.UUID, now int64) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:              ids.NewUUIDv7(),
		Participants:    participants,
		IsGroup:         true,
		GroupName:       &name,
		LastMessageTime: &now,
		CreatedAt:       now,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, is_group, group_name, last_message_time, created_at)
			VALUES (?, 1, ?, ?, ?)
		`, conv.ID.String(), name, now, now)
		if err != nil {
			return err
		}
		return sqliteInsertParticipants(ctx, tx, conv.ID, participants)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation with its participant ids.
func (s *SQLiteStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := sqliteLoadParticipants(ctx, s.db, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversationsForUser lists the user's conversations, most recently
// active first.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.is_group, c.group_name, c.last_message_time, c.last_message_preview, c.created_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY COALESCE(c.last_message_time, c.created_at) DESC, c.id
	`, userID.String())
	if err != nil {
		return nil, err
	}

	convs := []models.Conversation{}
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[c.ID] = len(convs)
		convs = append(convs, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id FROM conversation_participants
		WHERE conversation_id IN (SELECT conversation_id FROM conversation_participants WHERE user_id = ?)
		ORDER BY conversation_id, position
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	for prows.Next() {
		var convID, memberID uuid.UUID
		if err := prows.Scan(&convID, &memberID); err != nil {
			return nil, err
		}
		if i, ok := index[convID]; ok {
			convs[i].Participants = append(convs[i].Participants, memberID)
		}
	}
	return convs, prows.Err()
}

// InsertMessage appends msg to its conversation and patches the
// conversation's last-message fields in the same transaction. An empty msg.ID
// is filled with a ULID for the final timestamp.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message, preview string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, msg.ConversationID.String()).Scan(&exists)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		var latest int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(created_at), 0) FROM messages WHERE conversation_id = ?
		`, msg.ConversationID.String()).Scan(&latest)
		if err != nil {
			return err
		}
		if latest > msg.CreatedAt {
			msg.CreatedAt = latest
		}
		if msg.ID == "" {
			msg.ID = ids.NewMessageID(time.UnixMilli(msg.CreatedAt))
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, created_at, is_deleted)
			VALUES (?, ?, ?, ?, ?, 0)
		`, msg.ID, msg.ConversationID.String(), msg.SenderID.String(), msg.Content, msg.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE conversations SET last_message_time = ?, last_message_preview = ? WHERE id = ?
		`, msg.CreatedAt, preview, msg.ConversationID.String())
		return err
	})
}

// GetMessage retrieves a message with its reactions.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	reactions, err := s.queryReactions(ctx, `
		SELECT message_id, emoji, user_id FROM message_reactions WHERE message_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	msgs := []models.Message{*msg}
	attachReactions(msgs, reactions)
	return &msgs[0], nil
}

// ListMessages returns the full history of a conversation in ascending
// (created_at, id) order, reactions included.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, id
	`, conversationID.String())
	if err != nil {
		return nil, err
	}

	msgs := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reactions, err := s.queryReactions(ctx, `
		SELECT r.message_id, r.emoji, r.user_id
		FROM message_reactions r
		JOIN messages m ON m.id = r.message_id
		WHERE m.conversation_id = ?
		ORDER BY r.seq
	`, conversationID.String())
	if err != nil {
		return nil, err
	}
	attachReactions(msgs, reactions)
	return msgs, nil
}

func (s *SQLiteStore) queryReactions(ctx context.Context, query string, args ...any) (map[string][]models.Reaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []reactionRow
	for rows.Next() {
		var r reactionRow
		if err := rows.Scan(&r.MessageID, &r.Emoji, &r.UserID); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupReactions(list), nil
}

// SoftDeleteMessage flags a message as deleted.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET is_deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleReaction flips userID's membership in the emoji's reaction set and
// reports whether the reaction is now present.
func (s *SQLiteStore) ToggleReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) (bool, error) {
	added := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, messageID).Scan(&exists)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		res, err := tx.ExecContext(ctx, `
			DELETE FROM message_reactions WHERE message_id = ? AND emoji = ? AND user_id = ?
		`, messageID, emoji, userID.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_reactions (message_id, emoji, user_id) VALUES (?, ?, ?)
		`, messageID, emoji, userID.String())
		if err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// MarkRead moves the user's read watermark to now, never backwards.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, userID uuid.UUID, now int64) (*models.ReadReceipt, error) {
	rr := &models.ReadReceipt{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO read_receipts (conversation_id, user_id, last_read_time)
			VALUES (?, ?, ?)
			ON CONFLICT (conversation_id, user_id) DO UPDATE
				SET last_read_time = MAX(read_receipts.last_read_time, excluded.last_read_time)
		`, conversationID.String(), userID.String(), now)
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			SELECT conversation_id, user_id, last_read_time FROM read_receipts
			WHERE conversation_id = ? AND user_id = ?
		`, conversationID.String(), userID.String()).Scan(&rr.ConversationID, &rr.UserID, &rr.LastReadTime)
	})
	if err != nil {
		return nil, err
	}
	return rr, nil
}

// ListReadReceipts lists every read watermark of a conversation.
func (s *SQLiteStore) ListReadReceipts(ctx context.Context, conversationID uuid.UUID) ([]models.ReadReceipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, last_read_time FROM read_receipts
		WHERE conversation_id = ?
		ORDER BY last_read_time, user_id
	`, conversationID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := []models.ReadReceipt{}
	for rows.Next() {
		var rr models.ReadReceipt
		if err := rows.Scan(&rr.ConversationID, &rr.UserID, &rr.LastReadTime); err != nil {
			return nil, err
		}
		receipts = append(receipts, rr)
	}
	return receipts, rows.Err()
}

// SetTyping refreshes the user's typing signal and drops expired signals of
// the same conversation.
func (s *SQLiteStore) SetTyping(ctx context.Context, conversationID, userID uuid.UUID, now int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM typing_indicators WHERE conversation_id = ? AND last_typed <= ?
		`, conversationID.String(), now-models.TypingWindow.Milliseconds())
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO typing_indicators (conversation_id, user_id, last_typed)
			VALUES (?, ?, ?)
			ON CONFLICT (conversation_id, user_id) DO UPDATE SET last_typed = excluded.last_typed
		`, conversationID.String(), userID.String(), now)
		return err
	})
}

// ClearTyping removes the user's typing signal if present.
func (s *SQLiteStore) ClearTyping(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM typing_indicators WHERE conversation_id = ? AND user_id = ?
	`, conversationID.String(), userID.String())
	return err
}

// ListTyping returns every stored typing signal of a conversation.
func (s *SQLiteStore) ListTyping(ctx context.Context, conversationID uuid.UUID) ([]models.TypingIndicator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, last_typed FROM typing_indicators
		WHERE conversation_id = ?
		ORDER BY last_typed, user_id
	`, conversationID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TypingIndicator
	for rows.Next() {
		var ti models.TypingIndicator
		if err := rows.Scan(&ti.ConversationID, &ti.UserID, &ti.LastTyped); err != nil {
			return nil, err
		}
		out = append(out, ti)
	}
	return out, rows.Err()
}

// Stats returns aggregate counts.
func (s *SQLiteStore) Stats(ctx context.Context) (*models.Stats, error) {
	st := &models.Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users WHERE is_deleted = 0),
			(SELECT COUNT(*) FROM users WHERE is_online = 1 AND is_deleted = 0),
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages),
			(SELECT MAX(created_at) FROM messages)
	`).Scan(&st.Users, &st.OnlineUsers, &st.Conversations, &st.Messages, &st.LastActivity)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func sqliteInsertParticipants(ctx context.Context, q sqlQuerier, conversationID uuid.UUID, participants []uuid.UUID) error {
	for i, userID := range participants {
		_, err := q.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, position) VALUES (?, ?, ?)
		`, conversationID.String(), userID.String(), i)
		if err != nil {
			return fmt.Errorf("add participant %s: %w", userID, err)
		}
	}
	return nil
}

func sqliteLoadParticipants(ctx context.Context, q sqlQuerier, conv *models.Conversation) error {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY position
	`, conv.ID.String())
	if err != nil {
		return err
	}
	defer rows.Close()

	conv.Participants = nil
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return err
		}
		conv.Participants = append(conv.Participants, id)
	}
	return rows.Err()
}

func inClause(values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}
