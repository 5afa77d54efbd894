package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/tarschat/internal/models"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func createUser(t *testing.T, s DataStore, externalID, name string) *models.User {
	t.Helper()
	u, err := s.UpsertUser(context.Background(), models.UserUpsert{
		ExternalID: externalID,
		Profile:    models.Profile{Name: name, Email: externalID + "@example.com"},
	}, 1000, true)
	require.NoError(t, err)
	return u
}

func TestSQLiteUpsertUser(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	u := createUser(t, s, "ext_a", "Alice")
	assert.Equal(t, "Alice", u.Name)
	assert.True(t, u.IsOnline)
	assert.EqualValues(t, 1000, u.LastSeen)

	img := "https://img.example.com/a.png"
	again, err := s.UpsertUser(ctx, models.UserUpsert{
		ExternalID: "ext_a",
		Profile:    models.Profile{Name: "Alice B", Email: "alice@example.com", ImageURL: &img},
	}, 2000, false)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID, "upsert must keep the internal id")
	assert.Equal(t, "Alice B", again.Name)
	require.NotNil(t, again.ImageURL)
	assert.Equal(t, img, *again.ImageURL)
	assert.True(t, again.IsOnline, "profile refresh leaves presence alone")
	assert.EqualValues(t, 1000, again.LastSeen)

	missing, err := s.GetUserByExternalID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteDeactivateAndReactivate(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	a := createUser(t, s, "ext_a", "Alice")
	b := createUser(t, s, "ext_b", "Bob")

	gone, err := s.DeactivateUser(ctx, "ext_b", 5000)
	require.NoError(t, err)
	require.NotNil(t, gone)
	assert.True(t, gone.IsDeleted)
	assert.False(t, gone.IsOnline)

	users, err := s.ListUsers(ctx, a.ID, "")
	require.NoError(t, err)
	assert.Empty(t, users)

	none, err := s.DeactivateUser(ctx, "ext_missing", 5000)
	require.NoError(t, err)
	assert.Nil(t, none)

	back := createUser(t, s, "ext_b", "Bob")
	assert.Equal(t, b.ID, back.ID)
	assert.False(t, back.IsDeleted)
}

func TestSQLiteListUsersSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	me := createUser(t, s, "ext_me", "Me")
	createUser(t, s, "ext_c", "charlie")
	createUser(t, s, "ext_b", "Bob")
	createUser(t, s, "ext_pct", "100% Real")

	all, err := s.ListUsers(ctx, me.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "100% Real", all[0].Name)
	assert.Equal(t, "Bob", all[1].Name)
	assert.Equal(t, "charlie", all[2].Name)

	found, err := s.ListUsers(ctx, me.ID, "CHAR")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "charlie", found[0].Name)

	byEmail, err := s.ListUsers(ctx, me.ID, "ext_b@")
	require.NoError(t, err)
	require.Len(t, byEmail, 1)

	literal, err := s.ListUsers(ctx, me.ID, "%")
	require.NoError(t, err)
	require.Len(t, literal, 1, "wildcards are matched literally")
}

func TestSQLiteDirectConversationDedup(t *testing.T) { runDirectConversationDedup(t, newTestSQLite(t)) }

func runDirectConversationDedup(t *testing.T, s DataStore) {
	t.Helper()
	ctx := context.Background()
	a := createUser(t, s, "ext_a", "Alice")
	b := createUser(t, s, "ext_b", "Bob")

	first, created, err := s.GetOrCreateDirectConversation(ctx, a.ID, b.ID, 10)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, first.IsGroup)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID}, first.Participants)

	second, created, err := s.GetOrCreateDirectConversation(ctx, b.ID, a.ID, 20)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 10, second.CreatedAt)
}

func TestSQLiteDirectConversationConcurrent(t *testing.T) { runDirectConversationConcurrent(t, newTestSQLite(t)) }

func runDirectConversationConcurrent(t *testing.T, s DataStore) {
	t.Helper()
	ctx := context.Background()
	a := createUser(t, s, "ext_a", "Alice")
	b := createUser(t, s, "ext_b", "Bob")

	const n = 8
	got := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a.ID, b.ID
			if i%2 == 1 {
				x, y = y, x
			}
			conv, _, err := s.GetOrCreateDirectConversation(ctx, x, y, int64(i))
			if assert.NoError(t, err) {
				got[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, got[0], got[i])
	}
	convs, err := s.ListConversationsForUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestSQLiteInsertMessageKeepsOrder(t *testing.T) { runInsertMessageKeepsOrder(t, newTestSQLite(t)) }

func runInsertMessageKeepsOrder(t *testing.T, s DataStore) {
	t.Helper()
	ctx := context.Background()
	a := createUser(t, s, "ext_a", "Alice")
	b := createUser(t, s, "ext_b", "Bob")
	conv, _, err := s.GetOrCreateDirectConversation(ctx, a.ID, b.ID, 10)
	require.NoError(t, err)

	m1 := &models.Message{ConversationID: conv.ID, SenderID: a.ID, Content: "one", CreatedAt: 500}
	require.NoError(t, s.InsertMessage(ctx, m1, "one"))
	assert.NotEmpty(t, m1.ID)

	// A sender with a lagging clock cannot go backwards.
	m2 := &models.Message{ConversationID: conv.ID, SenderID: b.ID, Content: "two", CreatedAt: 400}
	require.NoError(t, s.InsertMessage(ctx, m2, "two"))
	assert.EqualValues(t, 500, m2.CreatedAt)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
	assert.NotNil(t, msgs[0].Reactions)

	updated, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastMessageTime)
	assert.EqualValues(t, 500, *updated.LastMessageTime)
	require.NotNil(t, updated.LastMessagePreview)
	assert.Equal(t, "two", *updated.LastMessagePreview)

	err = s.InsertMessage(ctx, &models.Message{ConversationID: uuid.New(), SenderID: a.ID, Content: "x", CreatedAt: 1}, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteToggleReaction(t *testing.T) { runToggleReaction(t, newTestSQLite(t)) }

func runToggleReaction(t *testing.T, s DataStore) {
	t.Helper()
	ctx := context.Background()
	a := createUser(t, s, "ext_a", "Alice")
	b := createUser(t, s, "ext_b", "Bob")
	conv, _, err := s.GetOrCreateDirectConversation(ctx, a.ID, b.ID, 10)
	require.NoError(t, err)
	msg := &models.Message{ConversationID: conv.ID, SenderID: a.ID, Content: "hi", CreatedAt: 100}
	require.NoError(t, s.InsertMessage(ctx, msg, "hi"))

	added, err := s.ToggleReaction(ctx, msg.ID, a.ID, "👍")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.ToggleReaction(ctx, msg.ID, b.ID, "👍")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.ToggleReaction(ctx, msg.ID, b.ID, "🎉")
	require.NoError(t, err)
	assert.True(t, added)

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 2)
	assert.Equal(t, "👍", got.Reactions[0].Emoji)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID}, got.Reactions[0].UserIDs)
	assert.Equal(t, "🎉", got.Reactions[1].Emoji)

	added, err = s.ToggleReaction(ctx, msg.ID, b.ID, "🎉")
	require.NoError(t, err)
	assert.False(t, added)

	got, err = s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 1, "an emoji with no users is dropped")

	_, err = s.ToggleReaction(ctx, "01NOPE", a.ID, "👍")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteSoftDelete(t *testing.T) { runSoftDelete(t, newTestSQLite(t)) }

func runSoftDelete(t *testing.T, s DataStore) {
	t.Helper()
	ctx := context.Background()
	a := createUser(t, s, "ext_a", "Alice")
	b := createUser(t, s, "ext_b", "Bob")
	conv, _, err := s.GetOrCreateDirectConversation(ctx, a.ID, b.ID, 10)
	require.NoError(t, err)
	msg := &models.Message{ConversationID: conv.ID, SenderID: a.ID, Content: "oops", CreatedAt: 100}
	require.NoError(t, s.InsertMessage(ctx, msg, "oops"))

	require.NoError(t, s.SoftDeleteMessage(ctx, msg.ID))
	require.NoError(t, s.SoftDeleteMessage(ctx, msg.ID))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, "oops", got.Content)

	assert.ErrorIs(t, s.SoftDeleteMessage(ctx, "missing"), ErrNotFound)
}

func TestSQLiteMarkReadMonotonic(t *testing.T) { runMarkReadMonotonic(t, newTestSQLite(t)) }

func runMarkReadMonotonic(t *testing.T, s DataStore) {
	t.Helper()
	ctx := context.Background()
	conv, user := uuid.New(), uuid.New()

	rr, err := s.MarkRead(ctx, conv, user, 2000)
	require.NoError(t, err)
	assert.EqualValues(t, 2000, rr.LastReadTime)

	rr, err = s.MarkRead(ctx, conv, user, 1500)
	require.NoError(t, err)
	assert.EqualValues(t, 2000, rr.LastReadTime)

	rr, err = s.MarkRead(ctx, conv, user, 3000)
	require.NoError(t, err)
	assert.EqualValues(t, 3000, rr.LastReadTime)

	receipts, err := s.ListReadReceipts(ctx, conv)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, user, receipts[0].UserID)
}

func TestSQLiteTyping(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	conv, a, b := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, s.SetTyping(ctx, conv, a, 1000))
	require.NoError(t, s.SetTyping(ctx, conv, a, 1500))

	list, err := s.ListTyping(ctx, conv)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.EqualValues(t, 1500, list[0].LastTyped)

	// b's write sweeps a's expired row.
	require.NoError(t, s.SetTyping(ctx, conv, b, 3500))
	list, err = s.ListTyping(ctx, conv)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b, list[0].UserID)

	require.NoError(t, s.ClearTyping(ctx, conv, b))
	require.NoError(t, s.ClearTyping(ctx, conv, b))
	list, err = s.ListTyping(ctx, conv)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLitePresence(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	a := createUser(t, s, "ext_a", "Alice")
	b := createUser(t, s, "ext_b", "Bob")

	require.NoError(t, s.SetPresence(ctx, a.ID, true, 10_000))
	assert.ErrorIs(t, s.SetPresence(ctx, uuid.New(), true, 10_000), ErrNotFound)

	demoted, err := s.DemoteStalePresence(ctx, 5000, 10_000)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID}, demoted)

	got, err := s.GetUserByID(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, got.IsOnline)
	assert.EqualValues(t, 1000, got.LastSeen)

	users, err := s.GetUsersByIDs(ctx, []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.True(t, users[a.ID].IsOnline)
}

func TestSQLiteGroupAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	a := createUser(t, s, "ext_a", "Alice")
	b := createUser(t, s, "ext_b", "Bob")
	c := createUser(t, s, "ext_c", "Carol")

	group, err := s.CreateGroupConversation(ctx, "Team", []uuid.UUID{a.ID, b.ID, c.ID}, 50)
	require.NoError(t, err)
	dm, _, err := s.GetOrCreateDirectConversation(ctx, a.ID, b.ID, 40)
	require.NoError(t, err)
	require.NoError(t, s.InsertMessage(ctx, &models.Message{ConversationID: dm.ID, SenderID: a.ID, Content: "hey", CreatedAt: 60}, "hey"))

	convs, err := s.ListConversationsForUser(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, dm.ID, convs[0].ID, "most recent activity first")
	assert.Equal(t, group.ID, convs[1].ID)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID}, convs[1].Participants)

	convs, err = s.ListConversationsForUser(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.Users)
	assert.EqualValues(t, 2, st.Conversations)
	assert.EqualValues(t, 1, st.Messages)
	require.NotNil(t, st.LastActivity)
	assert.EqualValues(t, 60, *st.LastActivity)
}

func TestSQLiteConcurrentReactions(t *testing.T) { runConcurrentReactions(t, newTestSQLite(t)) }

func runConcurrentReactions(t *testing.T, s DataStore) {
	t.Helper()
	ctx := context.Background()
	a := createUser(t, s, "ext_a", "Alice")
	b := createUser(t, s, "ext_b", "Bob")
	conv, _, err := s.GetOrCreateDirectConversation(ctx, a.ID, b.ID, 10)
	require.NoError(t, err)
	msg := &models.Message{ConversationID: conv.ID, SenderID: a.ID, Content: "vote", CreatedAt: 100}
	require.NoError(t, s.InsertMessage(ctx, msg, "vote"))

	emojis := []string{"👍", "🎉", "🔥", "👀"}
	var wg sync.WaitGroup
	for _, emoji := range emojis {
		for _, user := range []uuid.UUID{a.ID, b.ID} {
			wg.Add(1)
			go func(emoji string, user uuid.UUID) {
				defer wg.Done()
				added, err := s.ToggleReaction(ctx, msg.ID, user, emoji)
				if assert.NoError(t, err) {
					assert.True(t, added)
				}
			}(emoji, user)
		}
	}
	wg.Wait()

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, len(emojis))
	for _, r := range got.Reactions {
		assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, r.UserIDs, r.Emoji)
	}
}
