package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	"github.com/rs/zerolog"
)

// RetryRequest selects failed assets to re-drive. Exactly one of JobID or AssetIDs must be set.
type RetryRequest struct {
	JobID         string   `json:"jobId,omitempty"`
	AssetIDs      []string `json:"assetIds,omitempty"`
	OnlyTransient bool     `json:"onlyTransient"`
}

// RetryResult tallies a retry run
type RetryResult struct {
	Processed  int                 `json:"processed"`
	Successful int                 `json:"successful"`
	Failed     int                 `json:"failed"`
	Skipped    int                 `json:"skipped"`
	Created    int                 `json:"created"`
	Updated    int                 `json:"updated"`
	Errors     []domain.AssetError `json:"errors"`
}

type retryCandidate struct {
	assetID string
	reason  domain.FailureReason
}

// RetryService re-drives previously failed asset syncs
type RetryService struct {
	executor *AssetSyncService
	jobs     ports.SyncJobRepository
	observer ports.Observability
	logger   zerolog.Logger
}

// NewRetryService creates a new retry service
func NewRetryService(executor *AssetSyncService, jobs ports.SyncJobRepository, observer ports.Observability, logger zerolog.Logger) *RetryService {
	return &RetryService{
		executor: executor,
		jobs:     jobs,
		observer: observer,
		logger:   logger,
	}
}

// Retry re-syncs the failed assets of a job, or an explicit list of assets
func (s *RetryService) Retry(ctx context.Context, shopID string, req RetryRequest) (*RetryResult, error) {
	assetIDs := dedupe(req.AssetIDs)
	hasJob := strings.TrimSpace(req.JobID) != ""
	if hasJob == (len(assetIDs) > 0) {
		return nil, fmt.Errorf("exactly one of jobId or a non-empty assetIds must be provided: %w", domain.ErrInvalidArgument)
	}

	var candidates []retryCandidate
	if hasJob {
		job, err := s.jobs.GetJob(ctx, req.JobID)
		if err != nil {
			return nil, fmt.Errorf("failed to get sync job: %w", err)
		}
		if job == nil || job.ShopID != shopID {
			return nil, fmt.Errorf("sync job %s: %w", req.JobID, domain.ErrNotFound)
		}
		candidates = failedAssets(job)
	} else {
		for _, id := range assetIDs {
			candidates = append(candidates, retryCandidate{assetID: id, reason: domain.ReasonUnknown})
		}
	}

	result := &RetryResult{Errors: []domain.AssetError{}}
	if len(candidates) == 0 {
		return result, nil
	}

	session, err := s.executor.OpenSession(ctx, shopID, req.JobID)
	if err != nil {
		return nil, err
	}

	log := s.logger.With().Str("shopId", shopID).Str("jobId", req.JobID).Logger()
	started := time.Now()
	for _, c := range candidates {
		if req.OnlyTransient && !c.reason.Transient() {
			log.Debug().Str("assetId", c.assetID).Str("reason", string(c.reason)).Msg("Skipping permanently failed asset")
			result.Skipped++
			continue
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		res := s.executor.SyncAssetInSession(ctx, session, c.assetID)
		result.Processed++
		switch {
		case res.Error != nil:
			result.Failed++
			result.Errors = append(result.Errors, domain.AssetError{
				AssetID: c.assetID,
				Message: res.Error.Message,
				Reason:  res.Error.Reason,
			})
		default:
			result.Successful++
			if res.Created {
				result.Created++
			}
			if res.Updated {
				result.Updated++
			}
		}
	}

	s.observer.RecordSyncResult(ctx, shopID, req.JobID, "retry", domain.SyncCounts{
		Processed: result.Processed,
		Created:   result.Created,
		Updated:   result.Updated,
	}, result.Failed, time.Since(started))

	log.Info().
		Int("processed", result.Processed).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("Retry completed")
	return result, nil
}

// failedAssets lists a job's failed assets once each, classifying legacy entries by message
func failedAssets(job *domain.SyncJob) []retryCandidate {
	seen := make(map[string]bool, len(job.Errors))
	out := make([]retryCandidate, 0, len(job.Errors))
	for _, e := range job.Errors {
		if e.AssetID == "" || seen[e.AssetID] {
			continue
		}
		seen[e.AssetID] = true
		reason := e.Reason
		if reason == "" {
			reason = ClassifyMessage(e.Message)
		}
		out = append(out, retryCandidate{assetID: e.AssetID, reason: reason})
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
