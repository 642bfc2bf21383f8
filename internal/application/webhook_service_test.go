package application

import (
	"context"
	"net/http"
	"testing"
	"time"

	"archie-core-dam-sync/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticVerifier struct{}

func (staticVerifier) Verify(secret string, body []byte, signature string) error {
	if signature != "good" {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// tagHandler mirrors the production tag handler without importing it
type tagHandler struct {
	executor *AssetSyncService
	calls    int
}

func (h *tagHandler) CanHandle(eventType string) bool { return eventType == "asset.tagged" }

func (h *tagHandler) Handle(ctx context.Context, n *WebhookNotification) (*SyncResult, error) {
	h.calls++
	res := h.executor.SyncAsset(ctx, n.ShopID, n.AssetID)
	return &res, nil
}

type webhookHarness struct {
	*harness
	handler *tagHandler
	pub     *recordingPublisher
	svc     *WebhookService
}

func newWebhookHarness(t *testing.T, assets ...domain.Asset) *webhookHarness {
	t.Helper()
	h := newHarness(t, assets...)
	handler := &tagHandler{executor: h.executor}
	dispatcher := NewWebhookDispatcher(zerolog.Nop())
	dispatcher.RegisterHandler(handler)
	pub := &recordingPublisher{}
	svc := NewWebhookService(h.store, h.store, h.store, dispatcher, staticVerifier{}, pub, true, zerolog.Nop())

	_, err := svc.Activate(context.Background(), "shop-1", "https://sync.example/webhooks/dam/shop-1")
	require.NoError(t, err)
	return &webhookHarness{harness: h, handler: handler, pub: pub, svc: svc}
}

func signed(sig string) http.Header {
	h := http.Header{}
	if sig != "" {
		h.Set("X-DAM-Signature", sig)
	}
	return h
}

func (w *webhookHarness) events(t *testing.T) []*domain.WebhookEvent {
	t.Helper()
	events, err := w.store.ListEvents(context.Background(), "shop-1", 50)
	require.NoError(t, err)
	return events
}

func TestHandleWebhookUpdatesTaggedAsset(t *testing.T) {
	w := newWebhookHarness(t, asset("a1", 1))
	ctx := context.Background()
	require.True(t, w.executor.SyncAsset(ctx, "shop-1", "a1").Created)
	w.dam.assets[0] = asset("a1", 2, "web")

	out := w.svc.HandleWebhook(ctx, []byte(`{"eventType":"asset.tagged","data":{"id":"a1"}}`), signed("good"), "shop-1")
	assert.Equal(t, http.StatusOK, out.Status)
	assert.True(t, out.Body.Success)
	assert.Equal(t, 1, out.Body.Updated)
	assert.NotEmpty(t, out.Body.EventID)

	events := w.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, domain.WebhookEventSuccess, events[0].Status)
	assert.Equal(t, "a1", events[0].AssetID)
	assert.NotNil(t, events[0].ProcessedAt)
	assert.Equal(t, []string{"updated"}, w.pub.statuses())
}

func TestHandleWebhookDecisionTable(t *testing.T) {
	tests := []struct {
		name       string
		shopID     string
		body       string
		sig        string
		deactivate bool
		wantStatus int
		wantOK     bool
		wantCalls  int
		wantEvents int
		wantLogged domain.WebhookEventStatus
	}{
		{name: "malformed JSON", shopID: "shop-1", body: `{"eventType":`, sig: "good", wantStatus: 400},
		{name: "unknown shop", shopID: "nope", body: `{"eventType":"asset.tagged","assetId":"a1"}`, sig: "good", wantStatus: 400},
		{name: "inactive subscription", shopID: "shop-1", body: `{"eventType":"asset.tagged","assetId":"a1"}`, sig: "good", deactivate: true, wantStatus: 200, wantEvents: 1, wantLogged: domain.WebhookEventFailed},
		{name: "invalid signature", shopID: "shop-1", body: `{"eventType":"asset.tagged","assetId":"a1"}`, sig: "bad", wantStatus: 401},
		{name: "missing signature is processed", shopID: "shop-1", body: `{"eventType":"asset.tagged","assetId":"a1"}`, wantStatus: 200, wantOK: true, wantCalls: 1, wantEvents: 1, wantLogged: domain.WebhookEventSuccess},
		{name: "missing asset id", shopID: "shop-1", body: `{"eventType":"asset.tagged"}`, sig: "good", wantStatus: 400, wantEvents: 1, wantLogged: domain.WebhookEventFailed},
		{name: "untracked event type", shopID: "shop-1", body: `{"eventType":"asset.viewed","assetId":"a1"}`, sig: "good", wantStatus: 200, wantOK: true, wantEvents: 1, wantLogged: domain.WebhookEventSuccess},
		{name: "executor failure", shopID: "shop-1", body: `{"eventType":"asset.tagged","assetId":"missing"}`, sig: "good", wantStatus: 200, wantCalls: 1, wantEvents: 1, wantLogged: domain.WebhookEventFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWebhookHarness(t, asset("a1", 1))
			ctx := context.Background()
			if tt.deactivate {
				require.NoError(t, w.svc.Deactivate(ctx, "shop-1"))
			}

			out := w.svc.HandleWebhook(ctx, []byte(tt.body), signed(tt.sig), tt.shopID)
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.wantOK, out.Body.Success)
			assert.Equal(t, tt.wantCalls, w.handler.calls)

			events := w.events(t)
			require.Len(t, events, tt.wantEvents)
			if tt.wantEvents > 0 {
				assert.Equal(t, tt.wantLogged, events[0].Status)
			}
		})
	}
}

func TestHandleWebhookSkipsVerificationWhenDisabled(t *testing.T) {
	h := newHarness(t, asset("a1", 1))
	dispatcher := NewWebhookDispatcher(zerolog.Nop())
	dispatcher.RegisterHandler(&tagHandler{executor: h.executor})
	svc := NewWebhookService(h.store, h.store, h.store, dispatcher, staticVerifier{}, nil, false, zerolog.Nop())
	_, err := svc.Activate(context.Background(), "shop-1", "https://sync.example/hook")
	require.NoError(t, err)

	out := svc.HandleWebhook(context.Background(), []byte(`{"eventType":"asset.tagged","assetId":"a1"}`), signed("bad"), "shop-1")
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, 1, out.Body.Created)
}

func TestActivateIsIdempotentAndReplacesCallback(t *testing.T) {
	h := newHarness(t)
	svc := NewWebhookService(h.store, h.store, h.store, NewWebhookDispatcher(zerolog.Nop()), staticVerifier{}, nil, true, zerolog.Nop())
	ctx := context.Background()

	first, err := svc.Activate(ctx, "shop-1", "https://a.example/hook")
	require.NoError(t, err)
	again, err := svc.Activate(ctx, "shop-1", "https://a.example/hook")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	moved, err := svc.Activate(ctx, "shop-1", "https://b.example/hook")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, moved.ID)

	active, err := h.store.GetActiveSubscription(ctx, "shop-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "https://b.example/hook", active.CallbackURL)

	_, err = svc.Activate(ctx, "missing", "https://a.example/hook")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListEventsNewestFirst(t *testing.T) {
	w := newWebhookHarness(t, asset("a1", 1))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	w.svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	w.svc.HandleWebhook(ctx, []byte(`{"eventType":"asset.viewed","assetId":"first"}`), signed("good"), "shop-1")
	w.svc.HandleWebhook(ctx, []byte(`{"eventType":"asset.viewed","assetId":"second"}`), signed("good"), "shop-1")

	events, err := w.svc.ListEvents(ctx, "shop-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[0].AssetID)
}
