package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"archie-core-dam-sync/internal/domain"

	"github.com/rs/zerolog"
)

// WorkerConfig tunes the job polling loop
type WorkerConfig struct {
	Interval           time.Duration // Base polling interval
	Burst              int           // Max jobs claimed per tick
	IdleDelay          time.Duration // Extra sleep when no job was claimed
	CancelPollInterval time.Duration // Minimum gap between job status reads during a run
	MetricRetention    time.Duration
	PruneInterval      time.Duration
	AlertWindow        time.Duration // Window evaluated for alerts after each run, 0 disables
}

// DefaultWorkerConfig returns the worker settings used when none are configured
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:           2 * time.Second,
		Burst:              1,
		IdleDelay:          3 * time.Second,
		CancelPollInterval: time.Second,
		MetricRetention:    30 * 24 * time.Hour,
		PruneInterval:      time.Hour,
		AlertWindow:        time.Hour,
	}
}

// Worker claims pending sync jobs and runs them to completion
type Worker struct {
	jobs      *JobService
	batch     *BatchSyncService
	collector *ObservabilityService
	config    WorkerConfig
	logger    zerolog.Logger
	lastPrune time.Time
}

// NewWorker creates a new job worker. collector may be nil to skip pruning and alerts.
func NewWorker(jobs *JobService, batch *BatchSyncService, collector *ObservabilityService, config WorkerConfig, logger zerolog.Logger) *Worker {
	defaults := DefaultWorkerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.IdleDelay <= 0 {
		config.IdleDelay = defaults.IdleDelay
	}
	if config.PruneInterval <= 0 {
		config.PruneInterval = defaults.PruneInterval
	}
	return &Worker{
		jobs:      jobs,
		batch:     batch,
		collector: collector,
		config:    config,
		logger:    logger,
	}
}

// Run polls for work until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", w.config.Interval).Int("burst", w.config.Burst).Msg("Sync worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Sync worker stopping")
			return

		case <-ticker.C:
			w.maybePrune(ctx)

			processedAny := false
			for i := 0; i < w.config.Burst; i++ {
				claimed, err := w.ProcessOnce(ctx)
				if err != nil {
					w.logger.Error().Err(err).Msg("Sync worker iteration failed")
					continue
				}
				if !claimed {
					break
				}
				processedAny = true
			}

			if !processedAny {
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.config.IdleDelay):
				}
			}
		}
	}
}

// ProcessOnce claims and runs at most one job. It reports whether a job was claimed.
func (w *Worker) ProcessOnce(ctx context.Context) (bool, error) {
	job, err := w.jobs.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := w.logger.With().Str("shopId", job.ShopID).Str("jobId", job.ID).Logger()
	probe := newCancelProbe(w.jobs, job.ID, w.config.CancelPollInterval)

	result, runErr := w.batch.Run(ctx, job.ShopID, job.ID, probe.Cancelled)
	outcome := domain.JobOutcome{Errors: []domain.AssetError{}}
	if result != nil {
		outcome.Counts = result.Counts()
		outcome.Errors = result.Errors
	}

	// Shutdown interrupts the run; the job still has to reach a terminal state
	reportCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		reportCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if runErr == nil {
			runErr = ctx.Err()
		}
	}

	if runErr != nil {
		outcome.Failure = runErr.Error()
		err = w.jobs.Fail(reportCtx, job.ID, outcome)
	} else {
		err = w.jobs.Complete(reportCtx, job.ID, outcome)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			log.Info().Int("processed", outcome.Counts.Processed).Msg("Sync job was cancelled during the run")
		} else {
			return true, err
		}
	}

	if w.collector != nil && w.config.AlertWindow > 0 {
		if _, err := w.collector.CheckAlerts(reportCtx, job.ShopID, w.config.AlertWindow); err != nil {
			log.Warn().Err(err).Msg("Failed to evaluate sync alerts")
		}
	}
	return true, nil
}

func (w *Worker) maybePrune(ctx context.Context) {
	if w.collector == nil || w.config.MetricRetention <= 0 {
		return
	}
	now := time.Now()
	if !w.lastPrune.IsZero() && now.Sub(w.lastPrune) < w.config.PruneInterval {
		return
	}
	w.lastPrune = now
	if _, err := w.collector.Prune(ctx, w.config.MetricRetention); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to prune metrics")
	}
}

// cancelProbe reads the job status at most once per interval.
// It is shared by every asset worker of a run.
type cancelProbe struct {
	jobs     *JobService
	jobID    string
	interval time.Duration

	mu        sync.Mutex
	checked   time.Time
	cancelled bool
}

func newCancelProbe(jobs *JobService, jobID string, interval time.Duration) *cancelProbe {
	return &cancelProbe{jobs: jobs, jobID: jobID, interval: interval}
}

// Cancelled satisfies CancelProbe
func (p *cancelProbe) Cancelled(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled {
		return true
	}
	if !p.checked.IsZero() && time.Since(p.checked) < p.interval {
		return false
	}
	p.checked = time.Now()
	p.cancelled = p.jobs.IsCancelled(ctx, p.jobID)
	return p.cancelled
}
