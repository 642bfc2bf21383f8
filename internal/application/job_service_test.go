package application

import (
	"context"
	"sync"
	"testing"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/infrastructure/repository/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJobService(t *testing.T) (*JobService, *memory.Store, *recordingPublisher) {
	t.Helper()
	store := memory.NewStore()
	seedShop(t, store, "shop-1")
	pub := &recordingPublisher{}
	return NewJobService(store, store, pub, zerolog.Nop()), store, pub
}

func TestEnqueueAllowsOneActiveJobPerShop(t *testing.T) {
	svc, _, _ := newJobService(t)
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, "shop-1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncJobPending, job.Status)
	assert.Equal(t, domain.TriggerManual, job.Trigger)

	_, err = svc.Enqueue(ctx, "shop-1", domain.TriggerScheduled)
	assert.ErrorIs(t, err, domain.ErrConflict)

	claimed, err := svc.ClaimNext(ctx)
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, "shop-1", domain.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrConflict, "running job still blocks")

	require.NoError(t, svc.Complete(ctx, claimed.ID, domain.JobOutcome{}))
	_, err = svc.Enqueue(ctx, "shop-1", domain.TriggerManual)
	assert.NoError(t, err, "terminal job frees the shop")
}

func TestConcurrentEnqueueCreatesOneJob(t *testing.T) {
	svc, store, _ := newJobService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Enqueue(ctx, "shop-1", domain.TriggerManual); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	jobs, err := store.ListJobs(ctx, "shop-1", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestEnqueueRequiresConfiguredShop(t *testing.T) {
	svc, store, _ := newJobService(t)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, "missing", domain.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.SaveShop(ctx, &domain.Shop{ID: "bare", Domain: "bare.myshopify.com"}))
	_, err = svc.Enqueue(ctx, "bare", domain.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestJobLifecycle(t *testing.T) {
	svc, _, pub := newJobService(t)
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, "shop-1", domain.TriggerManual)
	require.NoError(t, err)

	claimed, err := svc.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, domain.SyncJobRunning, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)

	none, err := svc.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	outcome := domain.JobOutcome{
		Counts: domain.SyncCounts{Processed: 5, Created: 4},
		Errors: []domain.AssetError{{AssetID: "a3", Message: "boom", Reason: domain.ReasonNetwork}},
	}
	require.NoError(t, svc.Complete(ctx, job.ID, outcome))

	done, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncJobCompleted, done.Status)
	assert.Equal(t, 5, done.Counts.Processed)
	assert.Len(t, done.Errors, 1)
	assert.NotNil(t, done.CompletedAt)

	assert.Equal(t, []string{"pending", "running", "completed"}, pub.statuses())
}

func TestTerminalJobsNeverChange(t *testing.T) {
	svc, _, _ := newJobService(t)
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, "shop-1", domain.TriggerManual)
	require.NoError(t, err)
	_, err = svc.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Fail(ctx, job.ID, domain.JobOutcome{Failure: "DAM down"}))

	_, err = svc.Cancel(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.ErrorIs(t, svc.Complete(ctx, job.ID, domain.JobOutcome{}), domain.ErrInvalidStateTransition)

	got, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncJobFailed, got.Status)
	assert.Equal(t, "DAM down", got.Failure)
}

func TestCancelPendingAndRunning(t *testing.T) {
	svc, _, _ := newJobService(t)
	ctx := context.Background()

	pending, err := svc.Enqueue(ctx, "shop-1", domain.TriggerManual)
	require.NoError(t, err)
	cancelled, err := svc.Cancel(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncJobCancelled, cancelled.Status)
	assert.True(t, svc.IsCancelled(ctx, pending.ID))

	running, err := svc.Enqueue(ctx, "shop-1", domain.TriggerManual)
	require.NoError(t, err)
	_, err = svc.ClaimNext(ctx)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, running.ID)
	require.NoError(t, err)

	// The worker's late report keeps the cancelled status but records progress
	err = svc.Complete(ctx, running.ID, domain.JobOutcome{Counts: domain.SyncCounts{Processed: 2}})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	got, err := svc.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncJobCancelled, got.Status)
	assert.Equal(t, 2, got.Counts.Processed)

	_, err = svc.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListJobsClampsLimit(t *testing.T) {
	svc, _, _ := newJobService(t)
	ctx := context.Background()
	job, err := svc.Enqueue(ctx, "shop-1", domain.TriggerManual)
	require.NoError(t, err)

	jobs, err := svc.List(ctx, "shop-1", -1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}
