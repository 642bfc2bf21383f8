package application

import (
	"context"
	"errors"
	"fmt"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	"github.com/rs/zerolog"
	"github.com/robfig/cron"
)

// Scheduler periodically enqueues full syncs for every shop with sync enabled
type Scheduler struct {
	jobs   *JobService
	shops  ports.ShopRepository
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewScheduler creates a scheduler for a cron spec such as "@every 1h" or "0 0 * * * *"
func NewScheduler(spec string, jobs *JobService, shops ports.ShopRepository, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		jobs:   jobs,
		shops:  shops,
		cron:   cron.New(),
		logger: logger,
	}
	if err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("failed to parse sync schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Sync scheduler started")
}

// Stop halts future ticks; a tick already running is not interrupted
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) tick() {
	if _, err := s.EnqueueAll(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled sync failed")
	}
}

// EnqueueAll enqueues a scheduled sync for each enabled shop and returns how many were enqueued.
// Shops that already have an active job are skipped.
func (s *Scheduler) EnqueueAll(ctx context.Context) (int, error) {
	shops, err := s.shops.ListShops(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list shops: %w", err)
	}

	enqueued := 0
	for _, shop := range shops {
		if !shop.SyncEnabled || !shop.DAMConfigured() {
			continue
		}
		_, err := s.jobs.Enqueue(ctx, shop.ID, domain.TriggerScheduled)
		switch {
		case err == nil:
			enqueued++
		case errors.Is(err, domain.ErrConflict):
			s.logger.Debug().Str("shopId", shop.ID).Msg("Sync already active, skipping scheduled run")
		default:
			s.logger.Warn().Err(err).Str("shopId", shop.ID).Msg("Failed to enqueue scheduled sync")
		}
	}
	return enqueued, nil
}
