package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"archie-core-dam-sync/internal/domain"

	"github.com/google/uuid"
)

// Store is an in-memory implementation of every repository port.
// All mutations happen under one lock, so conditional updates are atomic.
type Store struct {
	mu            sync.RWMutex
	shops         map[string]domain.Shop
	jobs          map[string]domain.SyncJob
	events        map[string]domain.WebhookEvent
	subscriptions map[string]domain.WebhookSubscription
	metrics       []domain.MetricRecord
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		shops:         make(map[string]domain.Shop),
		jobs:          make(map[string]domain.SyncJob),
		events:        make(map[string]domain.WebhookEvent),
		subscriptions: make(map[string]domain.WebhookSubscription),
	}
}

// SaveShop saves or updates a shop
func (s *Store) SaveShop(ctx context.Context, shop *domain.Shop) error {
	now := time.Now().UTC()
	if shop.ID == "" {
		shop.ID = uuid.NewString()
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = now
	}
	shop.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	c := *shop
	c.SyncTags = slices.Clone(shop.SyncTags)
	s.shops[shop.ID] = c
	return nil
}

// GetShop returns a shop, or nil when it does not exist
func (s *Store) GetShop(ctx context.Context, shopID string) (*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shop, ok := s.shops[shopID]
	if !ok {
		return nil, nil
	}
	shop.SyncTags = slices.Clone(shop.SyncTags)
	return &shop, nil
}

// ListShops returns all shops ordered by id
func (s *Store) ListShops(ctx context.Context) ([]*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Shop, 0, len(s.shops))
	for _, shop := range s.shops {
		shop.SyncTags = slices.Clone(shop.SyncTags)
		out = append(out, &shop)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateJob inserts a job, failing with domain.ErrConflict if the shop already has an active one
func (s *Store) CreateJob(ctx context.Context, job *domain.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.ShopID == job.ShopID && existing.Status.IsActive() {
			return domain.ErrConflict
		}
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	s.jobs[job.ID] = copyJob(*job)
	return nil
}

// GetJob returns a job, or nil when it does not exist
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	c := copyJob(job)
	return &c, nil
}

// ListJobs returns a shop's most recent jobs, newest first
func (s *Store) ListJobs(ctx context.Context, shopID string, limit int) ([]*domain.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.SyncJob
	for _, job := range s.jobs {
		if job.ShopID == shopID {
			c := copyJob(job)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimNextPending moves the oldest pending job to running
func (s *Store) ClaimNextPending(ctx context.Context, startedAt time.Time) (*domain.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *domain.SyncJob
	for id := range s.jobs {
		job := s.jobs[id]
		if job.Status != domain.SyncJobPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = &job
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = domain.SyncJobRunning
	oldest.StartedAt = &startedAt
	s.jobs[oldest.ID] = copyJob(*oldest)
	c := copyJob(*oldest)
	return &c, nil
}

// TransitionJob changes a job's status only if its current status is one of from
func (s *Store) TransitionJob(ctx context.Context, jobID string, from []domain.SyncJobStatus, to domain.SyncJobStatus, at time.Time, outcome *domain.JobOutcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || !slices.Contains(from, job.Status) {
		return false, nil
	}
	job.Status = to
	if to.IsTerminal() && job.CompletedAt == nil {
		job.CompletedAt = &at
	}
	if outcome != nil {
		job.Counts = outcome.Counts
		job.Errors = slices.Clone(outcome.Errors)
		job.Failure = outcome.Failure
	}
	s.jobs[jobID] = job
	return true, nil
}

// CreateEvent appends a webhook event
func (s *Store) CreateEvent(ctx context.Context, event *domain.WebhookEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *event
	c.Payload = slices.Clone(event.Payload)
	s.events[event.ID] = c
	return nil
}

// UpdateEventOutcome records the final status of a webhook event
func (s *Store) UpdateEventOutcome(ctx context.Context, eventID string, status domain.WebhookEventStatus, errMsg string, note string, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return domain.ErrNotFound
	}
	event.Status = status
	event.Error = errMsg
	event.Note = note
	event.ProcessedAt = &processedAt
	s.events[eventID] = event
	return nil
}

// ListEvents returns a shop's most recent webhook events, newest first
func (s *Store) ListEvents(ctx context.Context, shopID string, limit int) ([]*domain.WebhookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.WebhookEvent
	for _, event := range s.events {
		if event.ShopID == shopID {
			e := event
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveSubscription saves or updates a webhook subscription
func (s *Store) SaveSubscription(ctx context.Context, subscription *domain.WebhookSubscription) error {
	if subscription.ID == "" {
		subscription.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[subscription.ID] = *subscription
	return nil
}

// GetActiveSubscription returns the shop's active subscription, or nil
func (s *Store) GetActiveSubscription(ctx context.Context, shopID string) (*domain.WebhookSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subscriptions {
		if sub.ShopID == shopID && sub.Active {
			return &sub, nil
		}
	}
	return nil, nil
}

// DeactivateSubscriptions marks every active subscription of a shop inactive
func (s *Store) DeactivateSubscriptions(ctx context.Context, shopID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sub := range s.subscriptions {
		if sub.ShopID != shopID || !sub.Active {
			continue
		}
		sub.Active = false
		sub.UpdatedAt = at
		sub.DeactivatedAt = &at
		s.subscriptions[id] = sub
		n++
	}
	return n, nil
}

// InsertMetric appends a metric record
func (s *Store) InsertMetric(ctx context.Context, metric *domain.MetricRecord) error {
	if metric.ID == "" {
		metric.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, *metric)
	return nil
}

// ListMetricsSince returns a shop's metrics recorded at or after since, oldest first
func (s *Store) ListMetricsSince(ctx context.Context, shopID string, since time.Time) ([]*domain.MetricRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.MetricRecord
	for _, m := range s.metrics {
		if m.ShopID == shopID && !m.RecordedAt.Before(since) {
			r := m
			out = append(out, &r)
		}
	}
	return out, nil
}

// DeleteMetricsBefore removes metrics recorded before cutoff
func (s *Store) DeleteMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.metrics[:0]
	var deleted int64
	for _, m := range s.metrics {
		if m.RecordedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.metrics = kept
	return deleted, nil
}

func copyJob(job domain.SyncJob) domain.SyncJob {
	job.Errors = slices.Clone(job.Errors)
	if job.Errors == nil {
		job.Errors = []domain.AssetError{}
	}
	return job
}
