package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// BatchConfig tunes full catalog syncs
type BatchConfig struct {
	PageSize         int
	Concurrency      int // Max in-flight asset syncs within a page
	RateLimitRetries int // Page fetch attempts after a 429 before the run fails
	Backoff          BackoffConfig
}

// DefaultBatchConfig returns the batch settings used when none are configured
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		PageSize:         50,
		Concurrency:      4,
		RateLimitRetries: 5,
		Backoff:          DefaultBackoff(),
	}
}

// BatchResult aggregates a full sync run
type BatchResult struct {
	Processed int                 `json:"processed"`
	Created   int                 `json:"created"`
	Updated   int                 `json:"updated"`
	Skipped   int                 `json:"skipped"`
	Errors    []domain.AssetError `json:"errors"`
	Cancelled bool                `json:"cancelled"`
}

// Counts returns the result in job count form
func (r *BatchResult) Counts() domain.SyncCounts {
	return domain.SyncCounts{
		Processed: r.Processed,
		Created:   r.Created,
		Updated:   r.Updated,
		Skipped:   r.Skipped,
	}
}

func (r *BatchResult) add(res SyncResult) {
	r.Processed++
	switch {
	case res.Error != nil:
		r.Errors = append(r.Errors, domain.AssetError{
			AssetID: res.AssetID,
			Message: res.Error.Message,
			Reason:  res.Error.Reason,
		})
	case res.Created:
		r.Created++
	case res.Updated:
		r.Updated++
	case res.Skipped:
		r.Skipped++
	}
}

// CancelProbe reports whether a run has been cancelled and should stop issuing work
type CancelProbe func(ctx context.Context) bool

// BatchSyncService reconciles a shop's whole filtered DAM catalog
type BatchSyncService struct {
	executor *AssetSyncService
	observer ports.Observability
	config   BatchConfig
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewBatchSyncService creates a new batch sync service
func NewBatchSyncService(executor *AssetSyncService, observer ports.Observability, config BatchConfig, logger zerolog.Logger) *BatchSyncService {
	defaults := DefaultBatchConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.RateLimitRetries < 0 {
		config.RateLimitRetries = 0
	}
	return &BatchSyncService{
		executor: executor,
		observer: observer,
		config:   config,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// SyncAll syncs every asset in the shop's filtered catalog
func (s *BatchSyncService) SyncAll(ctx context.Context, shopID string) (*BatchResult, error) {
	return s.Run(ctx, shopID, "", nil)
}

// Run syncs the catalog on behalf of a job, polling cancelled between pages and items.
// A partial result is returned alongside any run-level error.
func (s *BatchSyncService) Run(ctx context.Context, shopID string, jobID string, cancelled CancelProbe) (*BatchResult, error) {
	result := &BatchResult{Errors: []domain.AssetError{}}
	started := time.Now()

	session, err := s.executor.OpenSession(ctx, shopID, jobID)
	if err != nil {
		return result, err
	}

	log := s.logger.With().Str("shopId", shopID).Str("jobId", jobID).Logger()
	filter := ports.AssetFilter{Tags: session.Shop.SyncTags}
	rateLimitStreak := 0

	for page := 1; ; page++ {
		if s.stopRequested(ctx, cancelled) {
			result.Cancelled = true
			break
		}

		assets, err := s.fetchPage(ctx, session, filter, page)
		if err != nil {
			s.finish(ctx, session, result, started)
			return result, err
		}

		for _, rejected := range assets.Rejected {
			log.Warn().Int("page", page).Int("position", rejected.Position).Msg(rejected.Message)
			result.Processed++
			result.Errors = append(result.Errors, domain.AssetError{
				Message: rejected.Message,
				Reason:  domain.ReasonValidation,
			})
		}

		pageRateLimited := s.processPage(ctx, session, assets.Items, cancelled, result)
		log.Debug().Int("page", page).Int("items", assets.Size()).Int("processed", result.Processed).Msg("Processed catalog page")

		// The DAM's raw page size decides the end; rejected entries still count toward it
		if result.Cancelled || assets.Size() < s.config.PageSize {
			break
		}

		if pageRateLimited {
			rateLimitStreak++
			delay := BackoffDelay(rateLimitStreak, s.config.Backoff)
			log.Warn().Dur("delay", delay).Int("streak", rateLimitStreak).Msg("Rate limited during page, backing off")
			if err := s.sleep(ctx, delay); err != nil {
				s.finish(ctx, session, result, started)
				return result, err
			}
		} else {
			rateLimitStreak = 0
		}
	}

	if result.Cancelled {
		log.Info().Int("processed", result.Processed).Msg("Batch sync stopped after cancellation")
	}
	s.finish(ctx, session, result, started)
	return result, nil
}

func (s *BatchSyncService) finish(ctx context.Context, session *SyncSession, result *BatchResult, started time.Time) {
	s.observer.RecordSyncResult(ctx, session.Shop.ID, session.JobID, "batch", result.Counts(), len(result.Errors), time.Since(started))
}

func (s *BatchSyncService) stopRequested(ctx context.Context, cancelled CancelProbe) bool {
	if ctx.Err() != nil {
		return true
	}
	return cancelled != nil && cancelled(ctx)
}

// fetchPage lists one catalog page, backing off on rate limits
func (s *BatchSyncService) fetchPage(ctx context.Context, session *SyncSession, filter ports.AssetFilter, page int) (*ports.AssetPage, error) {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		assets, err := session.DAM.ListAssets(ctx, filter, page, s.config.PageSize)
		s.observer.RecordAPICall(ctx, session.Shop.ID, session.JobID, "dam", "list_assets", time.Since(start), err)
		if err == nil {
			if assets == nil {
				assets = &ports.AssetPage{}
			}
			return assets, nil
		}

		if ClassifyFailure(err) != domain.ReasonRateLimited || attempt > s.config.RateLimitRetries {
			return nil, fmt.Errorf("failed to list assets page %d: %w: %v", page, domain.ErrSourceFetch, err)
		}

		s.observer.RecordRateLimitHit(ctx, session.Shop.ID, session.JobID, "dam")
		delay := BackoffDelay(attempt, s.config.Backoff)
		s.logger.Warn().
			Str("shopId", session.Shop.ID).
			Int("page", page).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("DAM rate limit hit while listing assets, backing off")
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// processPage syncs one page with bounded concurrency and reports whether any item was rate limited.
// Cancellation is re-checked once a worker slot is free so no new call starts after it is observed.
func (s *BatchSyncService) processPage(ctx context.Context, session *SyncSession, items []domain.Asset, cancelled CancelProbe, result *BatchResult) bool {
	results := make([]SyncResult, len(items))
	ran := make([]bool, len(items))
	var stopped atomic.Bool

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for i := range items {
		if stopped.Load() || s.stopRequested(ctx, cancelled) {
			stopped.Store(true)
			break
		}
		asset := items[i]
		idx := i
		g.Go(func() error {
			if stopped.Load() || s.stopRequested(ctx, cancelled) {
				stopped.Store(true)
				return nil
			}
			results[idx] = s.executor.ApplyAsset(ctx, session, &asset)
			ran[idx] = true
			return nil
		})
	}
	_ = g.Wait()

	if stopped.Load() {
		result.Cancelled = true
	}

	rateLimited := false
	for i, res := range results {
		if !ran[i] {
			continue
		}
		if res.Error != nil && res.Error.Reason == domain.ReasonRateLimited {
			rateLimited = true
			s.observer.RecordRateLimitHit(ctx, session.Shop.ID, session.JobID, "shopify")
		}
		result.add(res)
	}
	return rateLimited
}
