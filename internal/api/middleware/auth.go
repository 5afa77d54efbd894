package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"

	"github.com/eldtechnologies/tarschat/internal/models"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// AuthConfig selects how bearer tokens are verified. PublicKeyPEM (RS256)
// takes precedence over Secret (HS256).
type AuthConfig struct {
	Secret       string
	PublicKeyPEM string
	Issuer       string
}

// AuthMiddleware verifies JWTs issued by the identity provider.
type AuthMiddleware struct {
	secret []byte
	pubKey *rsa.PublicKey
	issuer string
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(cfg AuthConfig) (*AuthMiddleware, error) {
	m := &AuthMiddleware{issuer: cfg.Issuer}
	switch {
	case cfg.PublicKeyPEM != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		m.pubKey = key
	case cfg.Secret != "":
		m.secret = []byte(cfg.Secret)
	default:
		return nil, errors.New("no jwt secret or public key configured")
	}
	return m, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's identity in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" && r.URL.Path == "/ws" {
			raw = r.URL.Query().Get("token")
		}
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token", "unauthenticated")
			return
		}

		identity, err := m.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token", "unauthenticated")
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify checks the token signature, expiry and issuer and returns the
// identity it carries.
func (m *AuthMiddleware) Verify(raw string) (*models.Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if m.pubKey != nil {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.pubKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token not valid")
	}
	if m.issuer != "" && !claims.VerifyIssuer(m.issuer, true) {
		return nil, errors.New("unexpected issuer")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("token has no subject")
	}
	identity := &models.Identity{Subject: sub}
	identity.Name, _ = claims["name"].(string)
	identity.Email, _ = claims["email"].(string)
	identity.ImageURL, _ = claims["picture"].(string)
	return identity, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// GetIdentityFromContext retrieves the verified caller identity from the
// request context.
func GetIdentityFromContext(ctx context.Context) *models.Identity {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}
