package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/eldtechnologies/tarschat/internal/models"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	maxNameLength = 100
	defaultName   = "Unknown"
)

// ResolveCurrentUser maps a verified identity to its user record.
func (s *Service) ResolveCurrentUser(ctx context.Context, identity *models.Identity) (*models.User, error) {
	if identity == nil || identity.Subject == "" {
		return nil, ErrUnauthenticated
	}
	u, err := s.store.GetUserByExternalID(ctx, identity.Subject)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if u == nil || u.IsDeleted {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// UpsertUser creates or refreshes the caller's user record from profile and
// marks it online.
func (s *Service) UpsertUser(ctx context.Context, identity *models.Identity, profile models.Profile) (*models.User, error) {
	if identity == nil || identity.Subject == "" {
		return nil, ErrUnauthenticated
	}
	in, err := normalizeProfile(identity.Subject, profile)
	if err != nil {
		return nil, err
	}

	u, err := s.store.UpsertUser(ctx, in, s.nowMillis(), true)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	s.publishPresence(ctx, u.ID)
	return u, nil
}

// ApplyIdentityEvent applies a change pushed by the identity provider.
// Applying the same event twice has the same effect as applying it once.
func (s *Service) ApplyIdentityEvent(ctx context.Context, ev models.IdentityEvent) error {
	if ev.ExternalID == "" {
		return fmt.Errorf("%w: identity event without user id", ErrInvalidArgument)
	}

	switch ev.Type {
	case models.IdentityUserCreated, models.IdentityUserUpdated:
		in, err := normalizeProfile(ev.ExternalID, ev.Profile)
		if err != nil {
			return err
		}
		if _, err := s.store.UpsertUser(ctx, in, s.nowMillis(), false); err != nil {
			return fmt.Errorf("apply %s: %w", ev.Type, err)
		}
	case models.IdentityUserDeleted:
		u, err := s.store.DeactivateUser(ctx, ev.ExternalID, s.nowMillis())
		if err != nil {
			return fmt.Errorf("apply %s: %w", ev.Type, err)
		}
		if u != nil {
			s.logger.Info().Str("user_id", u.ID.String()).Msg("user deactivated by identity provider")
			s.publishPresence(ctx, u.ID)
		}
	default:
		s.logger.Debug().Str("type", ev.Type).Msg("ignoring identity event")
	}
	return nil
}

// ListUsers lists every other active user, optionally filtered by search.
func (s *Service) ListUsers(ctx context.Context, me *models.User, search string) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx, me.ID, strings.TrimSpace(search))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetUser returns an active user's public record.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil || u.IsDeleted {
		return nil, ErrNotFound
	}
	return u, nil
}

func normalizeProfile(externalID string, p models.Profile) (models.UserUpsert, error) {
	email := strings.TrimSpace(p.Email)
	if !isValidEmail(email) {
		return models.UserUpsert{}, fmt.Errorf("%w: invalid email format", ErrInvalidArgument)
	}

	var image *string
	if p.ImageURL != nil {
		if trimmed := strings.TrimSpace(*p.ImageURL); trimmed != "" {
			image = &trimmed
		}
	}

	return models.UserUpsert{
		ExternalID: externalID,
		Profile: models.Profile{
			Name:     sanitizeName(p.Name),
			Email:    email,
			ImageURL: image,
		},
	}, nil
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if utf8.RuneCountInString(name) > maxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:maxNameLength]))
	}
	if name == "" {
		return defaultName
	}
	return name
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if email == "" {
		return true // Empty is valid (optional field)
	}
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
