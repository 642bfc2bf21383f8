package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"archie-core-dam-sync/internal/application"
	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/infrastructure/pubsub"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxWebhookBody caps inbound notification payloads
const maxWebhookBody = 1 << 20

// Handler exposes the sync engine over HTTP
type Handler struct {
	shops         *application.ShopService
	webhooks      *application.WebhookService
	jobs          *application.JobService
	retries       *application.RetryService
	observability *application.ObservabilityService
	events        *pubsub.SyncEventPubSub
	appURL        string
	alertWindow   time.Duration
	heartbeat     time.Duration
	logger        zerolog.Logger
}

// NewHandler creates the HTTP adapter. appURL is the public base used to build webhook callback URLs.
func NewHandler(
	shops *application.ShopService,
	webhooks *application.WebhookService,
	jobs *application.JobService,
	retries *application.RetryService,
	observability *application.ObservabilityService,
	events *pubsub.SyncEventPubSub,
	appURL string,
	alertWindow time.Duration,
	logger zerolog.Logger,
) *Handler {
	if alertWindow <= 0 {
		alertWindow = time.Hour
	}
	return &Handler{
		shops:         shops,
		webhooks:      webhooks,
		jobs:          jobs,
		retries:       retries,
		observability: observability,
		events:        events,
		appURL:        strings.TrimRight(appURL, "/"),
		alertWindow:   alertWindow,
		heartbeat:     25 * time.Second,
		logger:        logger,
	}
}

// Routes mounts every endpoint on r
func (h *Handler) Routes(r chi.Router) {
	// Webhook endpoint: POST /webhooks/dam/{shopId}
	r.Post("/webhooks/dam/{shopId}", h.handleWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Route("/shops/{shopId}", func(r chi.Router) {
			r.Put("/", h.handleSaveShop)
			r.Get("/", h.handleGetShop)
			r.Post("/sync", h.handleEnqueue)
			r.Get("/jobs", h.handleListJobs)
			r.Post("/retry", h.handleRetry)
			r.Post("/webhook-subscription", h.handleActivate)
			r.Delete("/webhook-subscription", h.handleDeactivate)
			r.Get("/webhook-events", h.handleListWebhookEvents)
			r.Get("/metrics/summary", h.handleSummary)
			r.Get("/alerts", h.handleAlerts)
			r.Get("/events", h.handleEvents)
		})
		r.Get("/jobs/{jobId}", h.handleGetJob)
		r.Post("/jobs/{jobId}/cancel", h.handleCancelJob)
	})
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopId")

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn().Err(err).Str("shopId", shopID).Msg("Failed to read webhook payload")
		writeJSON(w, http.StatusBadRequest, application.WebhookResponse{Success: false, Message: "Failed to read request body"})
		return
	}
	defer r.Body.Close()

	outcome := h.webhooks.HandleWebhook(r.Context(), payload, r.Header, shopID)
	writeJSON(w, outcome.Status, outcome.Body)
}

func (h *Handler) handleSaveShop(w http.ResponseWriter, r *http.Request) {
	var in application.ShopInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shop, err := h.shops.Connect(r.Context(), chi.URLParam(r, "shopId"), in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (h *Handler) handleGetShop(w http.ResponseWriter, r *http.Request) {
	shop, err := h.shops.Get(r.Context(), chi.URLParam(r, "shopId"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

type enqueueRequest struct {
	Trigger domain.SyncTrigger `json:"trigger"`
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Trigger != "" && req.Trigger != domain.TriggerManual && req.Trigger != domain.TriggerScheduled {
		writeError(w, http.StatusBadRequest, "trigger must be manual or scheduled")
		return
	}

	job, err := h.jobs.Enqueue(r.Context(), chi.URLParam(r, "shopId"), req.Trigger)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs, err := h.jobs.List(r.Context(), chi.URLParam(r, "shopId"), limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(jobs),
		"items": jobs,
	})
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Cancel(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req application.RetryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.retries.Retry(r.Context(), chi.URLParam(r, "shopId"), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type activateRequest struct {
	CallbackURL string `json:"callbackUrl"`
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopId")

	var req activateRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.CallbackURL == "" {
		req.CallbackURL = h.appURL + "/webhooks/dam/" + shopID
	}

	sub, err := h.webhooks.Activate(r.Context(), shopID, req.CallbackURL)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.webhooks.Deactivate(r.Context(), chi.URLParam(r, "shopId")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListWebhookEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.webhooks.ListEvents(r.Context(), chi.URLParam(r, "shopId"), limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(events),
		"items": events,
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	window, err := queryDuration(r, "window", h.alertWindow)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := h.observability.Summary(r.Context(), chi.URLParam(r, "shopId"), window)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	window, err := queryDuration(r, "window", h.alertWindow)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	alerts, err := h.observability.EvaluateAlerts(r.Context(), chi.URLParam(r, "shopId"), window)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(alerts),
		"items": alerts,
	})
}
