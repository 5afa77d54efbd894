package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/tarschat/internal/models"
)

const testSecret = "test-secret"

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func identityEcho(got **models.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = GetIdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAuthHS256(t *testing.T) {
	auth, err := NewAuthMiddleware(AuthConfig{Secret: testSecret, Issuer: "https://id.example"})
	require.NoError(t, err)

	var got *models.Identity
	h := auth.RequireAuth(identityEcho(&got))

	token := signHS256(t, jwt.MapClaims{
		"sub":     "user_1",
		"name":    "Ada",
		"email":   "ada@example.com",
		"picture": "https://img.example/ada.png",
		"iss":     "https://id.example",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "user_1", got.Subject)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, "https://img.example/ada.png", got.ImageURL)
}

func TestRequireAuthRejects(t *testing.T) {
	auth, err := NewAuthMiddleware(AuthConfig{Secret: testSecret, Issuer: "https://id.example"})
	require.NoError(t, err)

	var got *models.Identity
	h := auth.RequireAuth(identityEcho(&got))

	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x", "iss": "https://id.example"}).
		SignedString([]byte("other"))
	require.NoError(t, err)

	cases := map[string]string{
		"missing":    "",
		"garbage":    "Bearer not-a-token",
		"wrong key":  "Bearer " + otherKey,
		"expired":    "Bearer " + signHS256(t, jwt.MapClaims{"sub": "x", "iss": "https://id.example", "exp": time.Now().Add(-time.Minute).Unix()}),
		"bad issuer": "Bearer " + signHS256(t, jwt.MapClaims{"sub": "x", "iss": "https://evil.example"}),
		"no subject": "Bearer " + signHS256(t, jwt.MapClaims{"iss": "https://id.example"}),
		"basic auth": "Basic dXNlcjpwYXNz",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"unauthenticated"`)
		})
	}
}

func TestRequireAuthQueryTokenOnlyForWebsocket(t *testing.T) {
	auth, err := NewAuthMiddleware(AuthConfig{Secret: testSecret})
	require.NoError(t, err)

	var got *models.Identity
	h := auth.RequireAuth(identityEcho(&got))
	token := signHS256(t, jwt.MapClaims{"sub": "user_ws"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user_ws", got.Subject)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/me?token="+token, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	auth, err := NewAuthMiddleware(AuthConfig{PublicKeyPEM: string(pemKey), Secret: testSecret})
	require.NoError(t, err)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "rsa_user"}).SignedString(key)
	require.NoError(t, err)
	identity, err := auth.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "rsa_user", identity.Subject)

	// An HS256 token signed with the configured secret must not pass once a
	// public key is set.
	_, err = auth.Verify(signHS256(t, jwt.MapClaims{"sub": "rsa_user"}))
	assert.Error(t, err)
}

func TestNewAuthMiddlewareNeedsKey(t *testing.T) {
	_, err := NewAuthMiddleware(AuthConfig{})
	assert.Error(t, err)

	_, err = NewAuthMiddleware(AuthConfig{PublicKeyPEM: "not pem"})
	assert.Error(t, err)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Real-IP", ip)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterInMemory(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{}).WithLimits([]RateLimit{
		{"POST", "/conversations/group", 2, time.Hour, ipKey},
	})
	h := rl.Middleware(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "POST", "/conversations/group", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "POST", "/conversations/group", "10.0.0.1").Code)

	rec := hit(h, "POST", "/conversations/group", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"rate_limited"`)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Separate key and unmatched routes are unaffected.
	assert.Equal(t, http.StatusOK, hit(h, "POST", "/conversations/group", "10.0.0.2").Code)
	assert.Equal(t, http.StatusOK, hit(h, "GET", "/conversations", "10.0.0.1").Code)
}

func TestRateLimiterRedisAndAutoBlock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rl := NewRateLimiter(client, zerolog.Nop(), RateLimiterConfig{AutoBlockEnabled: true}).WithLimits([]RateLimit{
		{"GET", "/users", 1, time.Hour, ipKey},
	})
	h := rl.Middleware(okHandler())

	rec := hit(h, "GET", "/users", "192.0.2.7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "GET", "/users", "192.0.2.7").Code)
	}
	assert.True(t, mr.Exists("blocked:ip:192.0.2.7"))
	assert.Equal(t, http.StatusForbidden, hit(h, "GET", "/health", "192.0.2.7").Code)
}

func TestRateLimiterWhitelist(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{Whitelist: []string{"10.1.0.0/16", "203.0.113.9", "bad/cidr"}}).
		WithLimits([]RateLimit{{"GET", "/users", 1, time.Hour, ipKey}})
	h := rl.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "GET", "/users", "10.1.2.3").Code)
		assert.Equal(t, http.StatusOK, hit(h, "GET", "/users", "203.0.113.9").Code)
	}
}

func TestCallerKeySeparatesTokens(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/users", nil)
	a.Header.Set("Authorization", "Bearer token-a")
	b := httptest.NewRequest(http.MethodGet, "/users", nil)
	b.Header.Set("Authorization", "Bearer token-b")
	anon := httptest.NewRequest(http.MethodGet, "/users", nil)

	assert.NotEqual(t, callerKey(a), callerKey(b))
	assert.True(t, strings.HasPrefix(callerKey(a), "ratelimit:token:"))
	assert.True(t, strings.HasPrefix(callerKey(anon), "ratelimit:ip:"))
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:4242"
	assert.Equal(t, "198.51.100.1", RealIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", RealIP(req))

	req.Header.Set("Fly-Client-IP", "203.0.113.99")
	assert.Equal(t, "203.0.113.99", RealIP(req))
}

func TestValidateRequest(t *testing.T) {
	h := ValidateRequest(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/conversations/direct", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users?search=<script>", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/conversations/direct", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeadersAndBodyLimit(t *testing.T) {
	h := SecurityHeaders(MaxBodySize(8)(okHandler()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'none'", rec.Header().Get("Content-Security-Policy"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"content":"too long"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMaxBodySizeOverride(t *testing.T) {
	h := MaxBodySize(8, BodyLimit{Prefix: "/webhooks/", MaxBytes: 64})(okHandler())
	body := `{"type":"user.updated"}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/identity", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/me", strings.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	big := strings.NewReader(`{"notes":"` + strings.Repeat("x", 64) + `"}`)
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/identity", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLimiterPoolEvictsIdleBuckets(t *testing.T) {
	p := newLimiterPool()
	t0 := time.Unix(1_700_000_000, 0)

	allowed, _, _ := p.allowAt("a", 2, time.Minute, t0)
	assert.True(t, allowed)
	allowed, _, _ = p.allowAt("b", 2, time.Hour, t0.Add(30*time.Second))
	assert.True(t, allowed)
	assert.Equal(t, 2, p.size())

	// Two minutes later "a" has been idle past its window, "b" has not.
	allowed, _, _ = p.allowAt("c", 2, time.Minute, t0.Add(2*time.Minute))
	assert.True(t, allowed)
	assert.Equal(t, 2, p.size())
	_, ok := p.m["a"]
	assert.False(t, ok)

	// A bucket in use keeps its state.
	allowed, _, _ = p.allowAt("b", 2, time.Hour, t0.Add(2*time.Minute))
	assert.True(t, allowed)
	allowed, _, _ = p.allowAt("b", 2, time.Hour, t0.Add(2*time.Minute))
	assert.False(t, allowed)
}
