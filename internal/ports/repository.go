package ports

import (
	"context"
	"time"

	"archie-core-dam-sync/internal/domain"
)

// ShopRepository defines the interface for shop persistence
type ShopRepository interface {
	SaveShop(ctx context.Context, shop *domain.Shop) error
	GetShop(ctx context.Context, shopID string) (*domain.Shop, error)
	ListShops(ctx context.Context) ([]*domain.Shop, error)
}

// SyncJobRepository defines the interface for sync job persistence.
// Every status change is a single conditional update so that several workers can share one store.
type SyncJobRepository interface {
	// CreateJob inserts a pending job, failing with domain.ErrConflict if the shop already has an active job
	CreateJob(ctx context.Context, job *domain.SyncJob) error
	GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error)
	ListJobs(ctx context.Context, shopID string, limit int) ([]*domain.SyncJob, error)

	// ClaimNextPending moves the oldest pending job to running and returns it, or nil when none is pending
	ClaimNextPending(ctx context.Context, startedAt time.Time) (*domain.SyncJob, error)

	// TransitionJob moves a job to status only if its current status is one of from.
	// It returns false when no job matched the condition.
	TransitionJob(ctx context.Context, jobID string, from []domain.SyncJobStatus, to domain.SyncJobStatus, at time.Time, outcome *domain.JobOutcome) (bool, error)
}

// WebhookEventRepository defines the interface for the webhook audit trail
type WebhookEventRepository interface {
	CreateEvent(ctx context.Context, event *domain.WebhookEvent) error
	UpdateEventOutcome(ctx context.Context, eventID string, status domain.WebhookEventStatus, errMsg string, note string, processedAt time.Time) error
	ListEvents(ctx context.Context, shopID string, limit int) ([]*domain.WebhookEvent, error)
}

// WebhookSubscriptionRepository defines the interface for webhook subscription persistence
type WebhookSubscriptionRepository interface {
	SaveSubscription(ctx context.Context, subscription *domain.WebhookSubscription) error
	GetActiveSubscription(ctx context.Context, shopID string) (*domain.WebhookSubscription, error)
	DeactivateSubscriptions(ctx context.Context, shopID string, at time.Time) (int, error)
}

// MetricRepository defines the interface for metric persistence
type MetricRepository interface {
	InsertMetric(ctx context.Context, metric *domain.MetricRecord) error
	ListMetricsSince(ctx context.Context, shopID string, since time.Time) ([]*domain.MetricRecord, error)
	DeleteMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
