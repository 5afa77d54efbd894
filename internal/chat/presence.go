package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/tarschat/internal/metrics"
	"github.com/eldtechnologies/tarschat/internal/models"
)

// SetPresence records the caller as online or offline as of now. The last
// write wins.
func (s *Service) SetPresence(ctx context.Context, me *models.User, isOnline bool) error {
	if err := s.store.SetPresence(ctx, me.ID, isOnline, s.nowMillis()); err != nil {
		return fmt.Errorf("set presence: %w", storeErr(err))
	}
	s.publishPresence(ctx, me.ID)
	return nil
}

// DemoteStalePresence marks offline every online user not seen within
// staleAfter and returns how many were demoted.
func (s *Service) DemoteStalePresence(ctx context.Context, staleAfter time.Duration) (int, error) {
	now := s.nowMillis()
	demoted, err := s.store.DemoteStalePresence(ctx, now-staleAfter.Milliseconds(), now)
	if err != nil {
		return 0, fmt.Errorf("demote presence: %w", err)
	}
	for _, id := range demoted {
		s.publishPresence(ctx, id)
	}
	if len(demoted) > 0 {
		metrics.PresenceDemotions.Add(float64(len(demoted)))
		s.logger.Info().Int("users", len(demoted)).Msg("demoted stale presence")
	}
	return len(demoted), nil
}

func (s *Service) publishPresence(ctx context.Context, userID uuid.UUID) {
	s.publish(ctx, models.Event{
		Type:   models.EventPresenceChanged,
		Topics: []string{models.PresenceTopic, models.UserTopic(userID)},
		UserID: &userID,
	})
}
