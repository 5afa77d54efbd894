package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// PresenceSweeper periodically demotes users whose heartbeats stopped.
type PresenceSweeper struct {
	svc        *Service
	cron       string
	staleAfter time.Duration
}

// NewPresenceSweeper validates cronExpr and returns a sweeper that demotes
// users not seen within staleAfter at every tick.
func NewPresenceSweeper(svc *Service, cronExpr string, staleAfter time.Duration) (*PresenceSweeper, error) {
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid presence sweep cron expression: %q", cronExpr)
	}
	if staleAfter <= 0 {
		return nil, fmt.Errorf("presence stale window must be positive, got %s", staleAfter)
	}
	return &PresenceSweeper{svc: svc, cron: cronExpr, staleAfter: staleAfter}, nil
}

// Run sleeps until each cron tick and sweeps, until ctx is cancelled.
func (p *PresenceSweeper) Run(ctx context.Context) {
	log := p.svc.logger.With().Str("component", "presence_sweeper").Logger()
	log.Info().Str("cron", p.cron).Dur("stale_after", p.staleAfter).Msg("presence sweeper started")

	for {
		next, err := gronx.NextTickAfter(p.cron, time.Now().UTC(), false)
		wait := 30 * time.Second
		if err != nil {
			log.Error().Err(err).Msg("next tick failed")
		} else {
			wait = time.Until(next)
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("presence sweeper stopping")
			return
		case <-time.After(wait):
		}

		if err != nil {
			continue
		}
		if _, err := p.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("presence sweep failed")
		}
	}
}

// Sweep runs one demotion pass.
func (p *PresenceSweeper) Sweep(ctx context.Context) (int, error) {
	return p.svc.DemoteStalePresence(ctx, p.staleAfter)
}
