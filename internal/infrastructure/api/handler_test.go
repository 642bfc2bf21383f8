package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"archie-core-dam-sync/internal/application"
	"archie-core-dam-sync/internal/application/webhook_handlers"
	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/infrastructure/dam"
	"archie-core-dam-sync/internal/infrastructure/pubsub"
	"archie-core-dam-sync/internal/infrastructure/repository/memory"
	"archie-core-dam-sync/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

type stubDAM struct {
	assets map[string]domain.Asset
}

func (d *stubDAM) ForShop(shop *domain.Shop) (ports.DAMClient, error) { return d, nil }

func (d *stubDAM) ListAssets(ctx context.Context, filter ports.AssetFilter, page int, limit int) (*ports.AssetPage, error) {
	return &ports.AssetPage{}, nil
}

func (d *stubDAM) GetAsset(ctx context.Context, assetID string) (*domain.Asset, error) {
	a, ok := d.assets[assetID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

type stubFiles struct {
	mu    sync.Mutex
	files map[string]*domain.ManagedFile
}

func (f *stubFiles) ForShop(shop *domain.Shop) (ports.FileStore, error) { return f, nil }

func (f *stubFiles) FindManagedFile(ctx context.Context, assetID string) (*domain.ManagedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[assetID], nil
}

func (f *stubFiles) CreateManagedFile(ctx context.Context, content domain.FileContent, metadata map[string]string) (*domain.ManagedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file := &domain.ManagedFile{ID: "file-" + metadata[application.MetaAssetID], URL: content.SourceURL, Metadata: metadata}
	f.files[metadata[application.MetaAssetID]] = file
	return file, nil
}

func (f *stubFiles) UpdateManagedFile(ctx context.Context, fileID string, content *domain.FileContent, metadata map[string]string) (*domain.ManagedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file := &domain.ManagedFile{ID: fileID, Metadata: metadata}
	f.files[metadata[application.MetaAssetID]] = file
	return file, nil
}

type testEnv struct {
	store  *memory.Store
	jobs   *application.JobService
	events *pubsub.SyncEventPubSub
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	ctx := context.Background()

	store := memory.NewStore()
	require.NoError(t, store.SaveShop(ctx, &domain.Shop{
		ID:          "shop-1",
		Domain:      "shop-1.myshopify.com",
		AccessToken: "token",
		DAM:         domain.DAMConfig{BaseURL: "https://dam.example", APIToken: "dam-token", WebhookSecret: testSecret},
		SyncEnabled: true,
	}))

	damStub := &stubDAM{assets: map[string]domain.Asset{
		"a1": {ID: "a1", Name: "hero.jpg", OriginalURL: "https://dam.example/hero.jpg", Tags: []string{"web"}, Version: 3},
	}}
	files := &stubFiles{files: map[string]*domain.ManagedFile{}}

	events := pubsub.NewSyncEventPubSub(logger)
	observability := application.NewObservabilityService(store, nil, application.DefaultAlertThresholds(), logger)
	executor := application.NewAssetSyncService(store, damStub, files, observability, nil, logger)

	dispatcher := application.NewWebhookDispatcher(logger)
	dispatcher.RegisterHandler(webhook_handlers.NewAssetTaggedHandler(executor, logger))

	webhooks := application.NewWebhookService(store, store, store, dispatcher, dam.NewHMACVerifier(), events, true, logger)
	jobs := application.NewJobService(store, store, events, logger)
	retries := application.NewRetryService(executor, store, observability, logger)

	h := NewHandler(application.NewShopService(store, logger), webhooks, jobs, retries, observability, events, "http://sync.example", time.Hour, logger)
	r := chi.NewRouter()
	h.Routes(r)

	return &testEnv{store: store, jobs: jobs, events: events, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWebhookSignedTagEventCreatesFile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/shops/shop-1/webhook-subscription", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://sync.example/webhooks/dam/shop-1", decodeBody(t, rec)["callback_url"])

	body := `{"eventType":"asset.tagged","assetId":"a1"}`
	rec = env.do(t, http.MethodPost, "/webhooks/dam/shop-1", body, map[string]string{
		"X-DAM-Signature": dam.SignHex(testSecret, []byte(body)),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(1), out["created"])

	events, err := env.store.ListEvents(context.Background(), "shop-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.WebhookEventSuccess, events[0].Status)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/shops/shop-1/webhook-subscription", "", nil)

	rec := env.do(t, http.MethodPost, "/webhooks/dam/shop-1", `{"eventType":"asset.tagged","assetId":"a1"}`, map[string]string{
		"X-DAM-Signature": "deadbeef",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestWebhookMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/webhooks/dam/shop-1", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueConflictAndCancel(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/shops/shop-1/sync", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID, _ := decodeBody(t, rec)["id"].(string)
	require.NotEmpty(t, jobID)

	rec = env.do(t, http.MethodPost, "/api/shops/shop-1/sync", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/jobs/"+jobID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decodeBody(t, rec)["status"])

	rec = env.do(t, http.MethodPost, "/api/jobs/"+jobID+"/cancel", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])

	rec = env.do(t, http.MethodPost, "/api/jobs/"+jobID+"/cancel", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/shops/shop-1/jobs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestSaveShopKeepsSecretsOutOfResponses(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/shops/shop-2", `{"domain":"shop-2.myshopify.com","damBaseUrl":"https://dam.example/","damApiToken":"tok","syncTags":["web","web"]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "tok")

	rec = env.do(t, http.MethodGet, "/api/shops/shop-2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, []any{"web"}, out["sync_tags"])
	assert.Equal(t, "https://dam.example", out["dam"].(map[string]any)["base_url"])

	rec = env.do(t, http.MethodPut, "/api/shops/shop-3", `{"damBaseUrl":"ftp://x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueUnknownShop(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/shops/nope/sync", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/jobs/missing/cancel", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetryRequiresExactlyOneSelector(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/shops/shop-1/retry", `{"onlyTransient":true}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/shops/shop-1/retry", `{"jobId":"j","assetIds":["a1"]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/shops/shop-1/retry", `{"assetIds":["a1"]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, float64(1), out["successful"])
	assert.Equal(t, float64(1), out["created"])
}

func TestSummaryAndAlerts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/shops/shop-1/metrics/summary?window=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/shops/shop-1/metrics/summary?window=30m", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/shops/shop-1/alerts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestDeactivateSubscription(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/shops/shop-1/webhook-subscription", `{"callbackUrl":"https://hooks.example/a"}`, nil)

	rec := env.do(t, http.MethodDelete, "/api/shops/shop-1/webhook-subscription", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	sub, err := env.store.GetActiveSubscription(context.Background(), "shop-1")
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestEventStreamDeliversJobStatus(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/shops/shop-1/events?types=job.status", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	_, err = env.jobs.Enqueue(context.Background(), "shop-1", domain.TriggerManual)
	require.NoError(t, err)

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	var event domain.SyncEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &event))
	assert.Equal(t, domain.EventJobStatus, event.Type)
	assert.Equal(t, "pending", event.Status)
}
