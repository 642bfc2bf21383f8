package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	"github.com/rs/zerolog"
)

// JobService owns the sync job state machine:
//
//	pending -> running -> completed | failed
//	pending | running -> cancelled
//
// Terminal states never change. At most one job per shop is pending or running.
type JobService struct {
	jobs      ports.SyncJobRepository
	shops     ports.ShopRepository
	publisher ports.EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewJobService creates a new job lifecycle service. publisher may be nil.
func NewJobService(jobs ports.SyncJobRepository, shops ports.ShopRepository, publisher ports.EventPublisher, logger zerolog.Logger) *JobService {
	return &JobService{
		jobs:      jobs,
		shops:     shops,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Enqueue creates a pending full sync job for a shop.
// It fails with domain.ErrConflict while another job for the shop is pending or running.
func (s *JobService) Enqueue(ctx context.Context, shopID string, trigger domain.SyncTrigger) (*domain.SyncJob, error) {
	shop, err := s.shops.GetShop(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	if shop == nil {
		return nil, fmt.Errorf("shop %s: %w", shopID, domain.ErrNotFound)
	}
	if !shop.DAMConfigured() {
		return nil, fmt.Errorf("shop %s has no DAM connection: %w", shopID, domain.ErrConfiguration)
	}
	if trigger == "" {
		trigger = domain.TriggerManual
	}

	job := &domain.SyncJob{
		ShopID:    shopID,
		Status:    domain.SyncJobPending,
		Trigger:   trigger,
		CreatedAt: s.now().UTC(),
		Errors:    []domain.AssetError{},
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("a sync job is already pending or running for shop %s: %w", shopID, domain.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}

	s.logger.Info().Str("shopId", shopID).Str("jobId", job.ID).Str("trigger", string(trigger)).Msg("Sync job enqueued")
	s.publish(job)
	return job, nil
}

// ClaimNext atomically moves the oldest pending job to running. It returns nil when nothing is pending.
func (s *JobService) ClaimNext(ctx context.Context) (*domain.SyncJob, error) {
	job, err := s.jobs.ClaimNextPending(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to claim sync job: %w", err)
	}
	if job == nil {
		return nil, nil
	}
	s.logger.Info().Str("shopId", job.ShopID).Str("jobId", job.ID).Msg("Sync job claimed")
	s.publish(job)
	return job, nil
}

// Cancel moves a pending or running job to cancelled
func (s *JobService) Cancel(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	ok, err := s.jobs.TransitionJob(ctx, jobID,
		[]domain.SyncJobStatus{domain.SyncJobPending, domain.SyncJobRunning},
		domain.SyncJobCancelled, s.now().UTC(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel sync job: %w", err)
	}
	if !ok {
		return nil, s.transitionError(ctx, jobID, domain.SyncJobCancelled)
	}

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("shopId", job.ShopID).Str("jobId", jobID).Msg("Sync job cancelled")
	s.publish(job)
	return job, nil
}

// Complete records a successful run
func (s *JobService) Complete(ctx context.Context, jobID string, outcome domain.JobOutcome) error {
	return s.finish(ctx, jobID, domain.SyncJobCompleted, outcome)
}

// Fail records a run that could not finish
func (s *JobService) Fail(ctx context.Context, jobID string, outcome domain.JobOutcome) error {
	return s.finish(ctx, jobID, domain.SyncJobFailed, outcome)
}

func (s *JobService) finish(ctx context.Context, jobID string, to domain.SyncJobStatus, outcome domain.JobOutcome) error {
	now := s.now().UTC()
	ok, err := s.jobs.TransitionJob(ctx, jobID, []domain.SyncJobStatus{domain.SyncJobRunning}, to, now, &outcome)
	if err != nil {
		return fmt.Errorf("failed to finish sync job: %w", err)
	}
	if !ok {
		// A cancelled run keeps its status but still records how far it got
		if _, cerr := s.jobs.TransitionJob(ctx, jobID, []domain.SyncJobStatus{domain.SyncJobCancelled}, domain.SyncJobCancelled, now, &outcome); cerr != nil {
			s.logger.Warn().Err(cerr).Str("jobId", jobID).Msg("Failed to record counts on cancelled job")
		}
		return s.transitionError(ctx, jobID, to)
	}

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("shopId", job.ShopID).
		Str("jobId", jobID).
		Str("status", string(to)).
		Int("processed", outcome.Counts.Processed).
		Int("errors", len(outcome.Errors)).
		Msg("Sync job finished")
	s.publish(job)
	return nil
}

// Get returns a job or domain.ErrNotFound
func (s *JobService) Get(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("sync job %s: %w", jobID, domain.ErrNotFound)
	}
	return job, nil
}

// List returns a shop's most recent jobs, newest first
func (s *JobService) List(ctx context.Context, shopID string, limit int) ([]*domain.SyncJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	jobs, err := s.jobs.ListJobs(ctx, shopID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	return jobs, nil
}

// IsCancelled reports whether a job has been cancelled. Lookup errors count as not cancelled.
func (s *JobService) IsCancelled(ctx context.Context, jobID string) bool {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		s.logger.Warn().Err(err).Str("jobId", jobID).Msg("Failed to poll sync job status")
		return false
	}
	return job != nil && job.Status == domain.SyncJobCancelled
}

func (s *JobService) transitionError(ctx context.Context, jobID string, to domain.SyncJobStatus) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get sync job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("sync job %s: %w", jobID, domain.ErrNotFound)
	}
	return fmt.Errorf("sync job %s cannot move from %s to %s: %w", jobID, job.Status, to, domain.ErrInvalidStateTransition)
}

func (s *JobService) publish(job *domain.SyncJob) {
	if s.publisher == nil {
		return
	}
	counts := job.Counts
	s.publisher.Publish(&domain.SyncEvent{
		Type:     domain.EventJobStatus,
		ShopID:   job.ShopID,
		JobID:    job.ID,
		Status:   string(job.Status),
		Counts:   &counts,
		Occurred: s.now().UTC(),
	})
}
