package application

import (
	"context"
	"testing"
	"time"

	"archie-core-dam-sync/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(h *harness, config WorkerConfig) (*Worker, *JobService, *ObservabilityService) {
	jobs := NewJobService(h.store, h.store, nil, zerolog.Nop())
	batch, _ := h.batch(BatchConfig{PageSize: 2, Concurrency: 1})
	collector := NewObservabilityService(h.store, nil, DefaultAlertThresholds(), zerolog.Nop())
	return NewWorker(jobs, batch, collector, config, zerolog.Nop()), jobs, collector
}

func TestProcessOnceCompletesJob(t *testing.T) {
	h := newHarness(t, fiveAssets()...)
	h.files.failAssets["a4"] = &reasonError{reason: domain.ReasonNetwork, msg: "connection reset"}
	worker, jobs, _ := newTestWorker(h, DefaultWorkerConfig())
	ctx := context.Background()

	job, err := jobs.Enqueue(ctx, "shop-1", domain.TriggerManual)
	require.NoError(t, err)

	claimed, err := worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)

	done, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncJobCompleted, done.Status)
	assert.Equal(t, 5, done.Counts.Processed)
	assert.Equal(t, 4, done.Counts.Created)
	require.Len(t, done.Errors, 1)
	assert.Equal(t, "a4", done.Errors[0].AssetID)
	assert.Equal(t, domain.ReasonNetwork, done.Errors[0].Reason)

	claimed, err = worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestProcessOnceFailsJobOnRunError(t *testing.T) {
	h := newHarness(t, fiveAssets()...)
	h.dam.listErrs = []error{&reasonError{reason: domain.ReasonValidation, msg: "400 bad filter"}}
	worker, jobs, _ := newTestWorker(h, DefaultWorkerConfig())
	ctx := context.Background()

	job, err := jobs.Enqueue(ctx, "shop-1", domain.TriggerManual)
	require.NoError(t, err)
	_, err = worker.ProcessOnce(ctx)
	require.NoError(t, err)

	failed, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncJobFailed, failed.Status)
	assert.Contains(t, failed.Failure, "400 bad filter")
}

func TestProcessOnceHonoursCancellation(t *testing.T) {
	h := newHarness(t, fiveAssets()...)
	config := DefaultWorkerConfig()
	config.CancelPollInterval = 0
	worker, jobs, _ := newTestWorker(h, config)
	ctx := context.Background()

	job, err := jobs.Enqueue(ctx, "shop-1", domain.TriggerManual)
	require.NoError(t, err)
	h.dam.onList = func() {
		_, _ = jobs.Cancel(ctx, job.ID)
	}

	claimed, err := worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncJobCancelled, got.Status)
	assert.Zero(t, got.Counts.Processed)
	creates, _ := h.files.counts()
	assert.Zero(t, creates)
}

func TestWorkerRunStopsWithContext(t *testing.T) {
	h := newHarness(t, fiveAssets()...)
	worker, jobs, _ := newTestWorker(h, WorkerConfig{Interval: 5 * time.Millisecond, IdleDelay: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	job, err := jobs.Enqueue(context.Background(), "shop-1", domain.TriggerManual)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := jobs.Get(context.Background(), job.ID)
		return err == nil && got.Status == domain.SyncJobCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestMaybePruneRunsOncePerInterval(t *testing.T) {
	h := newHarness(t)
	worker, _, collector := newTestWorker(h, WorkerConfig{MetricRetention: time.Hour, PruneInterval: time.Hour})
	ctx := context.Background()

	old := time.Now().UTC().Add(-2 * time.Hour)
	collector.Record(ctx, &domain.MetricRecord{ShopID: "shop-1", Type: domain.MetricRateLimit, RecordedAt: old})
	worker.maybePrune(ctx)

	collector.Record(ctx, &domain.MetricRecord{ShopID: "shop-1", Type: domain.MetricRateLimit, RecordedAt: old})
	worker.maybePrune(ctx)

	records, err := h.store.ListMetricsSince(ctx, "shop-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, records, 1, "second prune within the interval is skipped")
}
