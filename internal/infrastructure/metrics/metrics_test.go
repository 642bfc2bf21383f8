package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"archie-core-dam-sync/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	apiCalls   int
	rateLimits int
	results    int
}

func (r *recordingObserver) RecordAPICall(ctx context.Context, shopID, jobID, service, operation string, duration time.Duration, err error) {
	r.apiCalls++
}

func (r *recordingObserver) RecordRateLimitHit(ctx context.Context, shopID, jobID, service string) {
	r.rateLimits++
}

func (r *recordingObserver) RecordSyncResult(ctx context.Context, shopID, jobID, source string, counts domain.SyncCounts, errorCount int, duration time.Duration) {
	r.results++
}

type recordingPublisher struct {
	events []*domain.SyncEvent
}

func (r *recordingPublisher) Publish(event *domain.SyncEvent) {
	r.events = append(r.events, event)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserverCountsAndForwards(t *testing.T) {
	next := &recordingObserver{}
	o := NewObserver(next)
	ctx := context.Background()

	failed := APICallsTotal.WithLabelValues("dam", "get_asset_test", "error")
	before := counterValue(t, failed)

	o.RecordAPICall(ctx, "shop", "", "dam", "get_asset_test", 10*time.Millisecond, errors.New("boom"))
	o.RecordRateLimitHit(ctx, "shop", "", "dam")
	o.RecordSyncResult(ctx, "shop", "job", "batch", domain.SyncCounts{Processed: 3, Created: 2, Skipped: 1}, 0, time.Second)

	assert.Equal(t, before+1, counterValue(t, failed))
	assert.Equal(t, 1, next.apiCalls)
	assert.Equal(t, 1, next.rateLimits)
	assert.Equal(t, 1, next.results)
}

func TestObserverWithoutNext(t *testing.T) {
	o := NewObserver(nil)
	assert.NotPanics(t, func() {
		o.RecordRateLimitHit(context.Background(), "shop", "", "shopify")
	})
}

func TestEventCounterForwards(t *testing.T) {
	next := &recordingPublisher{}
	c := NewEventCounter(next)

	cancelled := JobTransitionsTotal.WithLabelValues("cancelled")
	before := counterValue(t, cancelled)

	c.Publish(&domain.SyncEvent{Type: domain.EventJobStatus, Status: "cancelled"})
	c.Publish(&domain.SyncEvent{Type: domain.EventAlert, Alert: &domain.Alert{Kind: "low_throughput", Severity: domain.AlertWarning}})

	assert.Equal(t, before+1, counterValue(t, cancelled))
	assert.Len(t, next.events, 2)
}
