// Package sweeper expires stale, unclaimed listings.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/execution-hub/dealflow/internal/application/dispatcher"
	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/metrics"
)

// Settings controls what a sweep selects and how often it runs.
type Settings struct {
	Threshold    time.Duration
	Interval     time.Duration
	InitialDelay time.Duration
	BatchSize    int
}

// Sweeper moves listings that stayed unclaimed past the threshold to Expired.
type Sweeper struct {
	deals    deal.Repository
	notify   *dispatcher.Dispatcher
	settings Settings
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func New(deals deal.Repository, notify *dispatcher.Dispatcher, settings Settings, m *metrics.Metrics, logger zerolog.Logger) *Sweeper {
	if settings.Threshold <= 0 {
		settings.Threshold = 24 * time.Hour
	}
	if settings.Interval <= 0 {
		settings.Interval = 10 * time.Minute
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = 100
	}
	return &Sweeper{
		deals:    deals,
		notify:   notify,
		settings: settings,
		metrics:  m,
		logger:   logger.With().Str("service", "sweeper").Logger(),
	}
}

// RunOnce expires one batch and reports how many deals it expired. A failure
// on one record is logged and the batch continues.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	candidates, err := s.deals.Query(ctx, deal.ExpiryCandidates(s.settings.Threshold, s.settings.BatchSize))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, d := range candidates {
		if ctx.Err() != nil {
			break
		}
		log := s.logger.With().Str("deal_id", d.ID).Str("status", string(d.Status)).Logger()
		if !d.CanTransitionTo(deal.StatusExpired) || d.ClaimChannelID != "" {
			continue
		}
		updated, err := s.deals.Update(ctx, d.ID, deal.NewPatch().
			Set(deal.FieldStatus, deal.StatusExpired).
			IfVersion(d.Version))
		if errors.Is(err, deal.ErrConflict) {
			log.Debug().Msg("deal changed since query, skipping")
			continue
		}
		if err != nil {
			log.Warn().Err(err).Msg("failed to expire deal")
			continue
		}
		expired++
		log.Info().Msg("deal expired")
		s.notify.MarkListingExpired(ctx, updated)
	}

	s.metrics.Expired(expired)
	if expired > 0 || len(candidates) > 0 {
		s.logger.Info().Int("candidates", len(candidates)).Int("expired", expired).Msg("sweep finished")
	}
	return expired, nil
}

// Start runs sweeps until ctx is done: once after the initial delay, then on
// every interval.
func (s *Sweeper) Start(ctx context.Context) {
	timer := time.NewTimer(s.settings.InitialDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	s.sweep(ctx)

	ticker := time.NewTicker(s.settings.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("sweep failed")
	}
}
