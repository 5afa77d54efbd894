package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/eldtechnologies/tarschat/internal/api/middleware"
	"github.com/eldtechnologies/tarschat/internal/chat"
	"github.com/eldtechnologies/tarschat/internal/handlers"
	"github.com/eldtechnologies/tarschat/internal/models"
	"github.com/eldtechnologies/tarschat/internal/realtime"
	"github.com/eldtechnologies/tarschat/internal/store"
)

const (
	testJWTSecret = "router-test-secret"
	webhookKey    = "MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *store.SQLiteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ds, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	hub := realtime.NewHub(zerolog.Nop())
	go hub.Run(ctx)
	svc := chat.NewService(ds, chat.WithPublisher(hub))

	wh, err := svix.NewWebhook("whsec_" + base64.StdEncoding.EncodeToString([]byte(webhookKey)))
	require.NoError(t, err)

	auth, err := middleware.NewAuthMiddleware(middleware.AuthConfig{Secret: testJWTSecret})
	require.NoError(t, err)

	h := handlers.NewHandler(handlers.Config{
		Service:   svc,
		Store:     ds,
		StoreName: "sqlite",
		Hub:       hub,
		Webhook:   wh,
		Logger:    zerolog.Nop(),
	})
	return &testServer{
		t:      t,
		router: NewRouter(RouterConfig{Logger: zerolog.Nop(), Handler: h, Auth: auth}),
		store:  ds,
	}
}

func token(t *testing.T, subject, name string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"name":  name,
		"email": subject + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *testServer) register(subject, name string) (string, models.User) {
	s.t.Helper()
	tok := token(s.t, subject, name)
	rec := s.do(http.MethodPost, "/users/me", tok, nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var u models.User
	decode(s.t, rec, &u)
	return tok, u
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body handlers.ErrorResponse
	decode(t, rec, &body)
	return body.Code
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/users/me", token(t, "ghost", "Ghost"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "user_not_found", errorCode(t, rec))
}

func TestUserRoutes(t *testing.T) {
	s := newTestServer(t)
	aliceTok, alice := s.register("alice", "Alice")
	_, bob := s.register("bob", "Bob")
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, "alice@example.com", alice.Email)
	assert.True(t, alice.IsOnline)

	// Body fields override the token's claims.
	rec := s.do(http.MethodPost, "/users/me", aliceTok, map[string]string{"name": "Alice L."})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.User
	decode(t, rec, &updated)
	assert.Equal(t, alice.ID, updated.ID)
	assert.Equal(t, "Alice L.", updated.Name)

	rec = s.do(http.MethodPost, "/users/me", aliceTok, map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/users?search=BO", aliceTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list handlers.UserListResponse
	decode(t, rec, &list)
	require.Len(t, list.Users, 1)
	assert.Equal(t, bob.ID, list.Users[0].ID)

	rec = s.do(http.MethodGet, "/users/"+bob.ID.String(), aliceTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/users/not-a-uuid", aliceTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/presence", aliceTok, map[string]bool{"is_online": false})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, "/users/me", aliceTok, nil)
	var me models.User
	decode(t, rec, &me)
	assert.False(t, me.IsOnline)

	rec = s.do(http.MethodPut, "/presence", aliceTok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationAndMessageRoutes(t *testing.T) {
	s := newTestServer(t)
	aliceTok, alice := s.register("alice", "Alice")
	bobTok, bob := s.register("bob", "Bob")
	carolTok, _ := s.register("carol", "Carol")

	rec := s.do(http.MethodPost, "/conversations/direct", aliceTok, map[string]string{"user_id": bob.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var dm handlers.ConversationResponse
	decode(t, rec, &dm)

	rec = s.do(http.MethodPost, "/conversations/direct", bobTok, map[string]string{"user_id": alice.ID.String()})
	var again handlers.ConversationResponse
	decode(t, rec, &again)
	assert.Equal(t, dm.ID, again.ID)

	rec = s.do(http.MethodPost, "/conversations/direct", aliceTok, map[string]string{"user_id": alice.ID.String()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	convPath := "/conversations/" + dm.ID.String()
	rec = s.do(http.MethodGet, convPath, carolTok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, convPath, aliceTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.ConversationView
	decode(t, rec, &view)
	assert.Len(t, view.Members, 2)
	assert.Equal(t, alice.ID, view.Me.ID)

	rec = s.do(http.MethodPost, convPath+"/messages", aliceTok, map[string]string{"content": "  hello bob  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sent models.Message
	decode(t, rec, &sent)
	assert.Equal(t, "hello bob", sent.Content)

	rec = s.do(http.MethodPost, convPath+"/messages", aliceTok, map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, convPath+"/messages", carolTok, map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	msgPath := "/messages/" + sent.ID
	rec = s.do(http.MethodPost, msgPath+"/reactions", bobTok, map[string]string{"emoji": "👍"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reaction handlers.ReactionResponse
	decode(t, rec, &reaction)
	assert.True(t, reaction.Active)
	require.Len(t, reaction.Reactions, 1)
	assert.Equal(t, "👍", reaction.Reactions[0].Emoji)

	rec = s.do(http.MethodDelete, msgPath, bobTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_owner", errorCode(t, rec))
	rec = s.do(http.MethodDelete, msgPath, aliceTok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodDelete, msgPath, aliceTok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, convPath+"/messages", bobTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history handlers.MessageListResponse
	decode(t, rec, &history)
	require.Len(t, history.Messages, 1)
	assert.True(t, history.Messages[0].IsDeleted)
	assert.Empty(t, history.Messages[0].Content)
	require.NotNil(t, history.Messages[0].Sender)
	assert.Equal(t, "Alice", history.Messages[0].Sender.Name)

	rec = s.do(http.MethodPut, convPath+"/typing", bobTok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, convPath+"/typing", aliceTok, nil)
	var typing handlers.TypingResponse
	decode(t, rec, &typing)
	require.Len(t, typing.Users, 1)
	assert.Equal(t, bob.ID, typing.Users[0].ID)
	rec = s.do(http.MethodDelete, convPath+"/typing", bobTok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodPost, convPath+"/read", bobTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, convPath+"/read", aliceTok, nil)
	var receipts handlers.ReceiptListResponse
	decode(t, rec, &receipts)
	require.Len(t, receipts.Receipts, 1)
	assert.Equal(t, bob.ID, receipts.Receipts[0].UserID)

	rec = s.do(http.MethodGet, "/conversations", aliceTok, nil)
	var convs handlers.ConversationListResponse
	decode(t, rec, &convs)
	require.Len(t, convs.Conversations, 1)
	require.NotNil(t, convs.Conversations[0].LastMessagePreview)
	assert.Equal(t, "hello bob", *convs.Conversations[0].LastMessagePreview)
}

func TestGroupRoute(t *testing.T) {
	s := newTestServer(t)
	aliceTok, alice := s.register("alice", "Alice")
	_, bob := s.register("bob", "Bob")
	_, carol := s.register("carol", "Carol")

	rec := s.do(http.MethodPost, "/conversations/group", aliceTok, map[string]interface{}{
		"name":       "Team",
		"member_ids": []string{bob.ID.String(), carol.ID.String(), bob.ID.String()},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created handlers.ConversationResponse
	decode(t, rec, &created)

	rec = s.do(http.MethodGet, "/conversations/"+created.ID.String(), aliceTok, nil)
	var view models.ConversationView
	decode(t, rec, &view)
	assert.True(t, view.IsGroup)
	require.NotNil(t, view.GroupName)
	assert.Equal(t, "Team", *view.GroupName)
	require.Len(t, view.Participants, 3)
	assert.Equal(t, alice.ID, view.Participants[0])

	rec = s.do(http.MethodPost, "/conversations/group", aliceTok, map[string]interface{}{
		"name":       "Ghosts",
		"member_ids": []string{"0190c0de-0000-7000-8000-000000000000"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func signWebhook(t *testing.T, id string, ts time.Time, payload []byte) http.Header {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(webhookKey))
	fmt.Fprintf(mac, "%s.%d.%s", id, ts.Unix(), payload)
	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", strconv.FormatInt(ts.Unix(), 10))
	h.Set("svix-signature", "v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return h
}

func (s *testServer) webhook(id string, payload []byte, headers http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(payload))
	req.Header = headers
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestIdentityWebhook(t *testing.T) {
	s := newTestServer(t)

	created := []byte(`{"type":"user.created","data":{"id":"user_42","first_name":"Grace","last_name":"Hopper",` +
		`"primary_email_address_id":"idn_2","email_addresses":[{"id":"idn_1","email_address":"old@example.com"},` +
		`{"id":"idn_2","email_address":"grace@example.com"}],"image_url":"https://img.example/g.png"}}`)
	rec := s.webhook("msg_1", created, signWebhook(t, "msg_1", time.Now(), created))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	u, err := s.store.GetUserByExternalID(context.Background(), "user_42")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Grace Hopper", u.Name)
	assert.Equal(t, "grace@example.com", u.Email)
	assert.False(t, u.IsOnline)

	tok := token(t, "user_42", "Grace")
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/users/me", tok, nil).Code)

	deleted := []byte(`{"type":"user.deleted","data":{"id":"user_42","deleted":true}}`)
	rec = s.webhook("msg_2", deleted, signWebhook(t, "msg_2", time.Now(), deleted))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/users/me", tok, nil).Code)

	// Replaying the delete is harmless.
	rec = s.webhook("msg_2", deleted, signWebhook(t, "msg_2", time.Now(), deleted))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	forged := signWebhook(t, "msg_3", time.Now(), []byte(`{"type":"user.deleted","data":{"id":"other"}}`))
	rec = s.webhook("msg_3", created, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	stale := signWebhook(t, "msg_4", time.Now().Add(-time.Hour), created)
	rec = s.webhook("msg_4", created, stale)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityWebhookBodyLimit(t *testing.T) {
	s := newTestServer(t)

	notes := strings.Repeat("n", 32*1024)
	updated := []byte(`{"type":"user.updated","data":{"id":"user_77","first_name":"Alan","last_name":"Turing",` +
		`"public_metadata":{"notes":"` + notes + `"}}}`)
	require.Greater(t, len(updated), maxBodyBytes)

	rec := s.webhook("msg_big", updated, signWebhook(t, "msg_big", time.Now(), updated))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	u, err := s.store.GetUserByExternalID(context.Background(), "user_77")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Alan Turing", u.Name)

	// Other routes keep the small limit.
	tok := token(t, "user_77", "Alan")
	rec = s.do(http.MethodPost, "/users/me", tok, map[string]string{"name": strings.Repeat("a", maxBodyBytes)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestOperationalRoutes(t *testing.T) {
	s := newTestServer(t)
	aliceTok, _ := s.register("alice", "Alice")
	_, bob := s.register("bob", "Bob")
	rec := s.do(http.MethodPost, "/conversations/direct", aliceTok, map[string]string{"user_id": bob.ID.String()})
	var dm handlers.ConversationResponse
	decode(t, rec, &dm)
	s.do(http.MethodPost, "/conversations/"+dm.ID.String()+"/messages", aliceTok, map[string]string{"content": "hi"})

	rec = s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health handlers.HealthResponse
	decode(t, rec, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "pass", health.Checks["sqlite"].Status)

	rec = s.do(http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats handlers.StatsResponse
	decode(t, rec, &stats)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.TotalConversations)
	assert.Equal(t, int64(1), stats.TotalMessages)
	assert.NotEqual(t, "no activity yet", stats.LastActivity)

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tarschat_http_requests_total")

	rec = s.do(http.MethodGet, "/api", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebsocketReceivesConversationEvents(t *testing.T) {
	s := newTestServer(t)
	aliceTok, _ := s.register("alice", "Alice")
	bobTok, bob := s.register("bob", "Bob")
	rec := s.do(http.MethodPost, "/conversations/direct", aliceTok, map[string]string{"user_id": bob.ID.String()})
	var dm handlers.ConversationResponse
	decode(t, rec, &dm)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + bobTok
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(realtime.Frame{Type: realtime.FrameSubscribe, ConversationID: dm.ID}))

	s.do(http.MethodPost, "/conversations/"+dm.ID.String()+"/messages", aliceTok, map[string]string{"content": "ping"})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev models.Event
		require.NoError(t, ws.ReadJSON(&ev))
		if ev.Type == models.EventMessageCreated {
			require.NotNil(t, ev.ConversationID)
			assert.Equal(t, dm.ID, *ev.ConversationID)
			assert.NotEmpty(t, ev.MessageID)
			return
		}
	}
}
