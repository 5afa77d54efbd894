package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/tarschat/internal/ids"
	"github.com/eldtechnologies/tarschat/internal/models"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		image_url TEXT,
		is_online BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen BIGINT NOT NULL DEFAULT 0,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		is_group BOOLEAN NOT NULL,
		group_name TEXT,
		dm_key TEXT UNIQUE,
		last_message_time BIGINT,
		last_message_preview TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_time)`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id UUID NOT NULL REFERENCES conversations(id),
		user_id UUID NOT NULL REFERENCES users(id),
		position INT NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id),
		sender_id UUID NOT NULL,
		content TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS message_reactions (
		seq BIGSERIAL PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES messages(id),
		emoji TEXT NOT NULL,
		user_id UUID NOT NULL,
		UNIQUE (message_id, emoji, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS typing_indicators (
		conversation_id UUID NOT NULL,
		user_id UUID NOT NULL,
		last_typed BIGINT NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS read_receipts (
		conversation_id UUID NOT NULL,
		user_id UUID NOT NULL,
		last_read_time BIGINT NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	)`,
}

// RunMigrations creates the schema if it does not exist.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	for _, stmt := range postgresSchema {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertUser creates the user for in.ExternalID or updates its profile.
// When markOnline is set the user is also marked online as of now.
func (s *PostgresStore) UpsertUser(ctx context.Context, in models.UserUpsert, now int64, markOnline bool) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (id, external_id, name, email, image_url, is_online, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			image_url = EXCLUDED.image_url,
			is_deleted = FALSE,
			is_online = users.is_online OR EXCLUDED.is_online,
			last_seen = CASE WHEN EXCLUDED.is_online THEN EXCLUDED.last_seen ELSE users.last_seen END,
			updated_at = NOW()
		RETURNING `+userColumns,
		ids.NewUUIDv7(), in.ExternalID, in.Name, in.Email, in.ImageURL, markOnline, now,
	))
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetUserByExternalID retrieves a user by the identity provider's key.
func (s *PostgresStore) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetUsersByIDs retrieves the users that exist among ids.
func (s *PostgresStore) GetUsersByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	users := make(map[uuid.UUID]*models.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, uuidStrings(userIDs))
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
func (s *PostgresStore) ListUsers(ctx context.Context, exclude uuid.UUID, search string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id <> $1 AND NOT is_deleted`
	args := []any{exclude}
	if search != "" {
		query += ` AND (LOWER(name) LIKE $2 ESCAPE '\' OR LOWER(email) LIKE $2 ESCAPE '\')`
		args = append(args, likePattern(search))
	}
	query += ` ORDER BY LOWER(name), id`

	rows, err := s.pool.Query(ctx, query, args...)
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
func (s *PostgresStore) DeactivateUser(ctx context.Context, externalID string, now int64) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET is_deleted = TRUE, is_online = FALSE, updated_at = NOW()
		WHERE external_id = $1
		RETURNING `+userColumns, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// SetPresence patches the online flag and last-seen timestamp.
func (s *PostgresStore) SetPresence(ctx context.Context, id uuid.UUID, isOnline bool, now int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET is_online = $2, last_seen = $3, updated_at = NOW() WHERE id = $1
	`, id, isOnline, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DemoteStalePresence marks offline every online user last seen before
// lastSeenBefore and returns their ids.
func (s *PostgresStore) DemoteStalePresence(ctx context.Context, lastSeenBefore, now int64) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE users SET is_online = FALSE, updated_at = NOW()
		WHERE is_online AND last_seen < $1
		RETURNING id
	`, lastSeenBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var demoted []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		demoted = append(demoted, id)
	}
	return demoted, rows.Err()
}

// GetOrCreateDirectConversation returns the DM between a and b, creating it
// if needed. The UNIQUE dm_key makes concurrent callers converge on one row.
func (s *PostgresStore) GetOrCreateDirectConversation(ctx context.Context, a, b uuid.UUID, now int64) (*models.Conversation, bool, error) {
	key := ids.PairKey(a, b)
	var conv *models.Conversation
	created := false

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		id := ids.NewUUIDv7()
		tag, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, is_group, dm_key, last_message_time, created_at)
			VALUES ($1, FALSE, $2, $3, $3)
			ON CONFLICT (dm_key) DO NOTHING
		`, id, key, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			created = true
			if err := pgInsertParticipants(ctx, tx, id, []uuid.UUID{a, b}); err != nil {
				return err
			}
		}

		conv, err = scanConversation(tx.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE dm_key = $1`, key))
		if err != nil {
			return err
		}
		return pgLoadParticipants(ctx, tx, conv)
	})
	if err != nil {
		return nil, false, err
	}
	return conv, created, nil
}

// CreateGroupConversation creates a group with the given participants.
func (s *PostgresStore) CreateGroupConversation(ctx context.Context, name string, participants []uuid.UUID, now int64) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:              ids.NewUUIDv7(),
		Participants:    participants,
		IsGroup:         true,
		GroupName:       &name,
		LastMessageTime: &now,
		CreatedAt:       now,
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, is_group, group_name, last_message_time, created_at)
			VALUES ($1, TRUE, $2, $3, $3)
		`, conv.ID, name, now)
		if err != nil {
			return err
		}
		return pgInsertParticipants(ctx, tx, conv.ID, participants)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation with its participant ids.
func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := pgLoadParticipants(ctx, s.pool, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversationsForUser lists the user's conversations, most recently
// active first.
func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.is_group, c.group_name, c.last_message_time, c.last_message_preview, c.created_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY COALESCE(c.last_message_time, c.created_at) DESC, c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []models.Conversation{}
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		index[c.ID] = len(convs)
		convs = append(convs, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.pool.Query(ctx, `
		SELECT conversation_id, user_id FROM conversation_participants
		WHERE conversation_id IN (SELECT conversation_id FROM conversation_participants WHERE user_id = $1)
		ORDER BY conversation_id, position
	`, userID)
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
// is filled with a ULID for the final timestamp. msg.CreatedAt
// is raised if needed so that it is not older than the conversation's newest
// message.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message, preview string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, msg.ConversationID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		var latest int64
		err = tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(created_at), 0) FROM messages WHERE conversation_id = $1
		`, msg.ConversationID).Scan(&latest)
		if err != nil {
			return err
		}
		if latest > msg.CreatedAt {
			msg.CreatedAt = latest
		}
		if msg.ID == "" {
			msg.ID = ids.NewMessageID(time.UnixMilli(msg.CreatedAt))
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, created_at, is_deleted)
			VALUES ($1, $2, $3, $4, $5, FALSE)
		`, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE conversations SET last_message_time = $2, last_message_preview = $3 WHERE id = $1
		`, msg.ConversationID, msg.CreatedAt, preview)
		return err
	})
}

// GetMessage retrieves a message with its reactions.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	reactions, err := s.queryReactions(ctx, `
		SELECT message_id, emoji, user_id FROM message_reactions WHERE message_id = $1 ORDER BY seq
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
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reactions, err := s.queryReactions(ctx, `
		SELECT r.message_id, r.emoji, r.user_id
		FROM message_reactions r
		JOIN messages m ON m.id = r.message_id
		WHERE m.conversation_id = $1
		ORDER BY r.seq
	`, conversationID)
	if err != nil {
		return nil, err
	}
	attachReactions(msgs, reactions)
	return msgs, nil
}

func (s *PostgresStore) queryReactions(ctx context.Context, query string, args ...any) (map[string][]models.Reaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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
func (s *PostgresStore) SoftDeleteMessage(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET is_deleted = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleReaction flips userID's membership in the emoji's reaction set and
// reports whether the reaction is now present. The message row is locked so
// toggles on one message apply one at a time.
func (s *PostgresStore) ToggleReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) (bool, error) {
	added := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM messages WHERE id = $1 FOR UPDATE`, messageID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM message_reactions WHERE message_id = $1 AND emoji = $2 AND user_id = $3
		`, messageID, emoji, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO message_reactions (message_id, emoji, user_id) VALUES ($1, $2, $3)
		`, messageID, emoji, userID)
		if err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// MarkRead moves the user's read watermark to now, never backwards.
func (s *PostgresStore) MarkRead(ctx context.Context, conversationID, userID uuid.UUID, now int64) (*models.ReadReceipt, error) {
	rr := &models.ReadReceipt{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO read_receipts (conversation_id, user_id, last_read_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, user_id) DO UPDATE
			SET last_read_time = GREATEST(read_receipts.last_read_time, EXCLUDED.last_read_time)
		RETURNING conversation_id, user_id, last_read_time
	`, conversationID, userID, now).Scan(&rr.ConversationID, &rr.UserID, &rr.LastReadTime)
	if err != nil {
		return nil, err
	}
	return rr, nil
}

// ListReadReceipts lists every read watermark of a conversation.
func (s *PostgresStore) ListReadReceipts(ctx context.Context, conversationID uuid.UUID) ([]models.ReadReceipt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id, user_id, last_read_time FROM read_receipts
		WHERE conversation_id = $1
		ORDER BY last_read_time, user_id
	`, conversationID)
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
func (s *PostgresStore) SetTyping(ctx context.Context, conversationID, userID uuid.UUID, now int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM typing_indicators WHERE conversation_id = $1 AND last_typed <= $2
		`, conversationID, now-models.TypingWindow.Milliseconds())
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO typing_indicators (conversation_id, user_id, last_typed)
			VALUES ($1, $2, $3)
			ON CONFLICT (conversation_id, user_id) DO UPDATE SET last_typed = EXCLUDED.last_typed
		`, conversationID, userID, now)
		return err
	})
}

// ClearTyping removes the user's typing signal if present.
func (s *PostgresStore) ClearTyping(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM typing_indicators WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	return err
}

// ListTyping returns every stored typing signal of a conversation.
func (s *PostgresStore) ListTyping(ctx context.Context, conversationID uuid.UUID) ([]models.TypingIndicator, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id, user_id, last_typed FROM typing_indicators
		WHERE conversation_id = $1
		ORDER BY last_typed, user_id
	`, conversationID)
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
func (s *PostgresStore) Stats(ctx context.Context) (*models.Stats, error) {
	st := &models.Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users WHERE NOT is_deleted),
			(SELECT COUNT(*) FROM users WHERE is_online AND NOT is_deleted),
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages),
			(SELECT MAX(created_at) FROM messages)
	`).Scan(&st.Users, &st.OnlineUsers, &st.Conversations, &st.Messages, &st.LastActivity)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func pgInsertParticipants(ctx context.Context, q pgQuerier, conversationID uuid.UUID, participants []uuid.UUID) error {
	for i, userID := range participants {
		_, err := q.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, position) VALUES ($1, $2, $3)
		`, conversationID, userID, i)
		if err != nil {
			return fmt.Errorf("add participant %s: %w", userID, err)
		}
	}
	return nil
}

func pgLoadParticipants(ctx context.Context, q pgQuerier, conv *models.Conversation) error {
	rows, err := q.Query(ctx, `
		SELECT user_id FROM conversation_participants WHERE conversation_id = $1 ORDER BY position
	`, conv.ID)
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
