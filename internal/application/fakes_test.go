package application

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/infrastructure/repository/memory"
	"archie-core-dam-sync/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// reasonError is an adapter error that knows its failure class
type reasonError struct {
	reason domain.FailureReason
	msg    string
}

func (e *reasonError) Error() string { return e.msg }
func (e *reasonError) FailureReason() domain.FailureReason { return e.reason }

func rateLimited() error {
	return &reasonError{reason: domain.ReasonRateLimited, msg: "status 429: too many requests"}
}

type fakeDAM struct {
	mu        sync.Mutex
	assets    []domain.Asset
	getErr    map[string]error
	listErrs  []error
	listCalls int
	getCalls  int
	onList    func()
}

func (d *fakeDAM) ForShop(shop *domain.Shop) (ports.DAMClient, error) { return d, nil }

func (d *fakeDAM) ListAssets(ctx context.Context, filter ports.AssetFilter, page int, limit int) (*ports.AssetPage, error) {
	d.mu.Lock()
	d.listCalls++
	hook := d.onList
	if len(d.listErrs) > 0 {
		err := d.listErrs[0]
		d.listErrs = d.listErrs[1:]
		d.mu.Unlock()
		return nil, err
	}
	var matched []domain.Asset
	for _, a := range d.assets {
		if len(filter.Tags) == 0 || slices.ContainsFunc(a.Tags, func(t string) bool { return slices.Contains(filter.Tags, t) }) {
			matched = append(matched, a)
		}
	}
	d.mu.Unlock()
	if hook != nil {
		hook()
	}

	start := (page - 1) * limit
	if start >= len(matched) {
		return &ports.AssetPage{Total: len(matched)}, nil
	}
	end := min(start+limit, len(matched))
	out := &ports.AssetPage{Fetched: end - start, Total: len(matched)}
	for i, a := range matched[start:end] {
		if a.ID == "" {
			out.Rejected = append(out.Rejected, ports.RejectedItem{Position: start + i, Message: "media has no id"})
			continue
		}
		out.Items = append(out.Items, a)
	}
	return out, nil
}

func (d *fakeDAM) GetAsset(ctx context.Context, assetID string) (*domain.Asset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getCalls++
	if err := d.getErr[assetID]; err != nil {
		return nil, err
	}
	for _, a := range d.assets {
		if a.ID == assetID {
			c := a
			return &c, nil
		}
	}
	return nil, nil
}

func (d *fakeDAM) gets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getCalls
}

type fakeFiles struct {
	mu         sync.Mutex
	byAsset    map[string]*domain.ManagedFile
	failAssets map[string]error
	creates    int
	updates    int
	delay      time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{byAsset: map[string]*domain.ManagedFile{}, failAssets: map[string]error{}}
}

func (f *fakeFiles) ForShop(shop *domain.Shop) (ports.FileStore, error) { return f, nil }

func (f *fakeFiles) FindManagedFile(ctx context.Context, assetID string) (*domain.ManagedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byAsset[assetID], nil
}

func (f *fakeFiles) enter() func() {
	n := f.inFlight.Add(1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeFiles) CreateManagedFile(ctx context.Context, content domain.FileContent, metadata map[string]string) (*domain.ManagedFile, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	assetID := metadata[MetaAssetID]
	if err := f.failAssets[assetID]; err != nil {
		return nil, err
	}
	f.creates++
	file := &domain.ManagedFile{ID: "gid://shopify/MediaImage/" + assetID, URL: content.SourceURL, Metadata: metadata}
	f.byAsset[assetID] = file
	return file, nil
}

func (f *fakeFiles) UpdateManagedFile(ctx context.Context, fileID string, content *domain.FileContent, metadata map[string]string) (*domain.ManagedFile, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	assetID := metadata[MetaAssetID]
	if err := f.failAssets[assetID]; err != nil {
		return nil, err
	}
	f.updates++
	file := &domain.ManagedFile{ID: fileID, Metadata: metadata}
	f.byAsset[assetID] = file
	return file, nil
}

func (f *fakeFiles) counts() (creates, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates
}

type recordingObserver struct {
	mu            sync.Mutex
	apiCalls      []string
	rateLimitHits map[string]int
	results       []domain.SyncCounts
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{rateLimitHits: map[string]int{}}
}

func (o *recordingObserver) RecordAPICall(ctx context.Context, shopID, jobID, service, operation string, duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.apiCalls = append(o.apiCalls, service+"."+operation)
}

func (o *recordingObserver) RecordRateLimitHit(ctx context.Context, shopID, jobID, service string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rateLimitHits[service]++
}

func (o *recordingObserver) RecordSyncResult(ctx context.Context, shopID, jobID, source string, counts domain.SyncCounts, errorCount int, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, counts)
}

type fakeLocker struct {
	err      error
	acquired []string
	released int
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration, wait time.Duration) (func(context.Context), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func(context.Context) { l.released++ }, nil
}

type failingMetrics struct{}

var errStorageDown = errors.New("storage down")

func (failingMetrics) InsertMetric(ctx context.Context, metric *domain.MetricRecord) error {
	return errStorageDown
}

func (failingMetrics) ListMetricsSince(ctx context.Context, shopID string, since time.Time) ([]*domain.MetricRecord, error) {
	return nil, errStorageDown
}

func (failingMetrics) DeleteMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errStorageDown
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (s *recordingSink) Send(ctx context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SyncEvent
}

func (p *recordingPublisher) Publish(event *domain.SyncEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
}

func (p *recordingPublisher) statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Status)
	}
	return out
}

func asset(id string, version int64, tags ...string) domain.Asset {
	return domain.Asset{
		ID:          id,
		Name:        id + ".jpg",
		Permalink:   "https://dam.example/m/" + id,
		OriginalURL: "https://dam.example/files/" + id + ".jpg",
		MimeType:    "image/jpeg",
		Tags:        tags,
		Version:     version,
	}
}

func seedShop(t *testing.T, store *memory.Store, id string, tags ...string) *domain.Shop {
	t.Helper()
	shop := &domain.Shop{
		ID:          id,
		Domain:      id + ".myshopify.com",
		AccessToken: "shpat_test",
		DAM:         domain.DAMConfig{BaseURL: "https://dam.example", APIToken: "dam-token", WebhookSecret: "secret"},
		SyncTags:    tags,
		SyncEnabled: true,
	}
	require.NoError(t, store.SaveShop(context.Background(), shop))
	return shop
}

type harness struct {
	store    *memory.Store
	dam      *fakeDAM
	files    *fakeFiles
	observer *recordingObserver
	executor *AssetSyncService
}

func newHarness(t *testing.T, assets ...domain.Asset) *harness {
	t.Helper()
	h := &harness{
		store:    memory.NewStore(),
		dam:      &fakeDAM{assets: assets, getErr: map[string]error{}},
		files:    newFakeFiles(),
		observer: newRecordingObserver(),
	}
	seedShop(t, h.store, "shop-1")
	h.executor = NewAssetSyncService(h.store, h.dam, h.files, h.observer, nil, zerolog.Nop())
	return h
}

func (h *harness) batch(config BatchConfig) (*BatchSyncService, *[]time.Duration) {
	svc := NewBatchSyncService(h.executor, h.observer, config, zerolog.Nop())
	var sleeps []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return svc, &sleeps
}
