package ports

import (
	"context"
	"time"

	"archie-core-dam-sync/internal/domain"
)

// Observability is the metric sink injected into every sync component.
// Implementations must never block or fail the caller.
type Observability interface {
	RecordAPICall(ctx context.Context, shopID, jobID, service, operation string, duration time.Duration, err error)
	RecordRateLimitHit(ctx context.Context, shopID, jobID, service string)
	RecordSyncResult(ctx context.Context, shopID, jobID, source string, counts domain.SyncCounts, errorCount int, duration time.Duration)
}

// AlertSink receives threshold alerts
type AlertSink interface {
	Send(ctx context.Context, alert domain.Alert) error
}

// AssetLocker serialises work on a single asset across processes
type AssetLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration, wait time.Duration) (release func(context.Context), err error)
}

// EventPublisher fans sync events out to live subscribers without blocking
type EventPublisher interface {
	Publish(event *domain.SyncEvent)
}
