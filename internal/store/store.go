package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/eldtechnologies/tarschat/internal/models"
)

// ErrNotFound is returned by mutations whose target row does not exist.
// Getters return (nil, nil) instead.
var ErrNotFound = errors.New("store: not found")

// DataStore defines the interface for persistent storage of users,
// conversations, messages and read receipts.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	TypingStore

	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	UpsertUser(ctx context.Context, in models.UserUpsert, now int64, markOnline bool) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error)
	ListUsers(ctx context.Context, exclude uuid.UUID, search string) ([]models.User, error)
	DeactivateUser(ctx context.Context, externalID string, now int64) (*models.User, error)
	SetPresence(ctx context.Context, id uuid.UUID, isOnline bool, now int64) error
	DemoteStalePresence(ctx context.Context, lastSeenBefore, now int64) ([]uuid.UUID, error)

	// Conversation operations
	GetOrCreateDirectConversation(ctx context.Context, a, b uuid.UUID, now int64) (*models.Conversation, bool, error)
	CreateGroupConversation(ctx context.Context, name string, participants []uuid.UUID, now int64) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)

	// Message operations
	InsertMessage(ctx context.Context, msg *models.Message, preview string) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
	SoftDeleteMessage(ctx context.Context, id string) error
	ToggleReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) (bool, error)

	// Read receipt operations
	MarkRead(ctx context.Context, conversationID, userID uuid.UUID, now int64) (*models.ReadReceipt, error)
	ListReadReceipts(ctx context.Context, conversationID uuid.UUID) ([]models.ReadReceipt, error)

	Stats(ctx context.Context) (*models.Stats, error)
}

// TypingStore holds ephemeral typing signals. Implementations never filter by
// age; liveness is decided by the reader.
type TypingStore interface {
	SetTyping(ctx context.Context, conversationID, userID uuid.UUID, now int64) error
	ClearTyping(ctx context.Context, conversationID, userID uuid.UUID) error
	ListTyping(ctx context.Context, conversationID uuid.UUID) ([]models.TypingIndicator, error)
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, external_id, name, email, image_url, is_online, last_seen, is_deleted, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID,
		&u.ExternalID,
		&u.Name,
		&u.Email,
		&u.ImageURL,
		&u.IsOnline,
		&u.LastSeen,
		&u.IsDeleted,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

const conversationColumns = `id, is_group, group_name, last_message_time, last_message_preview, created_at`

func scanConversation(row rowScanner) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := row.Scan(
		&c.ID,
		&c.IsGroup,
		&c.GroupName,
		&c.LastMessageTime,
		&c.LastMessagePreview,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

const messageColumns = `id, conversation_id, sender_id, content, created_at, is_deleted`

func scanMessage(row rowScanner) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.Content,
		&m.CreatedAt,
		&m.IsDeleted,
	)
	if err != nil {
		return nil, err
	}
	m.Reactions = []models.Reaction{}
	return m, nil
}

// reactionRow is one (message, emoji, user) membership, read in reaction order.
type reactionRow struct {
	MessageID string
	Emoji     string
	UserID    uuid.UUID
}

// groupReactions folds reaction rows, which must be ordered by insertion, into
// per-message reaction sets. Emoji entries keep the order of their oldest
// surviving reaction and user ids keep reaction order.
func groupReactions(rows []reactionRow) map[string][]models.Reaction {
	grouped := make(map[string][]models.Reaction)
	for _, row := range rows {
		set := grouped[row.MessageID]
		idx := -1
		for i := range set {
			if set[i].Emoji == row.Emoji {
				idx = i
				break
			}
		}
		if idx < 0 {
			set = append(set, models.Reaction{Emoji: row.Emoji})
			idx = len(set) - 1
		}
		set[idx].UserIDs = append(set[idx].UserIDs, row.UserID)
		grouped[row.MessageID] = set
	}
	return grouped
}

// attachReactions sets the reaction sets of msgs from grouped.
func attachReactions(msgs []models.Message, grouped map[string][]models.Reaction) {
	for i := range msgs {
		if set, ok := grouped[msgs[i].ID]; ok {
			msgs[i].Reactions = set
		}
	}
}

// likePattern builds a substring LIKE pattern, escaping wildcards with '\'.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(search)) + "%"
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
