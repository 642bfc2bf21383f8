package application

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	"github.com/rs/zerolog"
)

// SignatureHeaders are checked in order for the DAM webhook signature
var SignatureHeaders = []string{"X-DAM-Signature", "X-Webhook-Signature", "X-Hub-Signature-256"}

// WebhookResponse is the JSON body returned to the DAM
type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	EventID string `json:"eventId,omitempty"`
	Created int    `json:"created,omitempty"`
	Updated int    `json:"updated,omitempty"`
	Skipped int    `json:"skipped,omitempty"`
}

// HTTPOutcome is a transport-independent webhook response
type HTTPOutcome struct {
	Status int
	Body   WebhookResponse
}

// WebhookService ingests DAM change notifications
type WebhookService struct {
	shops            ports.ShopRepository
	subscriptions    ports.WebhookSubscriptionRepository
	events           ports.WebhookEventRepository
	dispatcher       *WebhookDispatcher
	verifier         ports.SignatureVerifier
	publisher        ports.EventPublisher
	verifySignatures bool
	logger           zerolog.Logger
	now              func() time.Time
}

// NewWebhookService creates a new webhook ingestion service. publisher may be nil.
func NewWebhookService(
	shops ports.ShopRepository,
	subscriptions ports.WebhookSubscriptionRepository,
	events ports.WebhookEventRepository,
	dispatcher *WebhookDispatcher,
	verifier ports.SignatureVerifier,
	publisher ports.EventPublisher,
	verifySignatures bool,
	logger zerolog.Logger,
) *WebhookService {
	return &WebhookService{
		shops:            shops,
		subscriptions:    subscriptions,
		events:           events,
		dispatcher:       dispatcher,
		verifier:         verifier,
		publisher:        publisher,
		verifySignatures: verifySignatures,
		logger:           logger,
		now:              time.Now,
	}
}

// HandleWebhook validates, logs and dispatches one notification.
// Only malformed payloads, unknown shops, missing asset ids and bad signatures get a non-200 status.
func (s *WebhookService) HandleWebhook(ctx context.Context, rawBody []byte, headers http.Header, shopID string) HTTPOutcome {
	log := s.logger.With().Str("shopId", shopID).Logger()

	var payload map[string]any
	if err := json.Unmarshal(rawBody, &payload); err != nil || payload == nil {
		log.Warn().Err(err).Msg("Rejecting malformed webhook payload")
		return reject(http.StatusBadRequest, "Invalid JSON payload")
	}
	eventType := extractString(payload, "eventType", "event_type", "type", "event")
	assetID := extractAssetID(payload)
	log = log.With().Str("eventType", eventType).Str("assetId", assetID).Logger()

	shop, err := s.shops.GetShop(ctx, shopID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get shop for webhook")
		return reject(http.StatusBadRequest, "Shop could not be resolved")
	}
	if shop == nil || !shop.DAMConfigured() {
		log.Warn().Msg("Webhook for unknown or unconfigured shop")
		return reject(http.StatusBadRequest, "Shop not found or DAM not configured")
	}

	sub, err := s.subscriptions.GetActiveSubscription(ctx, shopID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get webhook subscription")
	}
	if sub == nil {
		log.Warn().Msg("Webhook received without an active subscription")
		s.logRejected(ctx, shopID, eventType, assetID, rawBody)
		return HTTPOutcome{
			Status: http.StatusOK,
			Body:   WebhookResponse{Success: false, Message: "Webhook subscription is not active"},
		}
	}

	if s.verifySignatures && shop.DAM.WebhookSecret != "" {
		signature := signatureFrom(headers)
		if signature == "" {
			log.Warn().Msg("Webhook signature header missing, processing anyway")
		} else if err := s.verifier.Verify(shop.DAM.WebhookSecret, rawBody, signature); err != nil {
			log.Warn().Err(err).Msg("Webhook signature verification failed")
			return reject(http.StatusUnauthorized, "Invalid signature")
		}
	}

	event := &domain.WebhookEvent{
		ShopID:    shopID,
		EventType: eventType,
		AssetID:   assetID,
		Status:    domain.WebhookEventSuccess,
		Payload:   rawBody,
		CreatedAt: s.now().UTC(),
	}
	if err := s.events.CreateEvent(ctx, event); err != nil {
		// Continue processing even if logging fails
		log.Error().Err(err).Msg("Failed to log webhook event")
	}

	handler := s.dispatcher.HandlerFor(eventType)
	if handler == nil {
		note := fmt.Sprintf("event type %q does not trigger a sync", eventType)
		s.finishEvent(ctx, event, domain.WebhookEventSuccess, "", note)
		log.Info().Msg("Ignoring webhook event type")
		return HTTPOutcome{
			Status: http.StatusOK,
			Body:   WebhookResponse{Success: true, Message: note, EventID: event.ID},
		}
	}

	if assetID == "" {
		s.finishEvent(ctx, event, domain.WebhookEventFailed, "missing asset identifier", "")
		log.Warn().Msg("Webhook payload has no asset identifier")
		return HTTPOutcome{
			Status: http.StatusBadRequest,
			Body:   WebhookResponse{Success: false, Message: "Missing asset identifier", EventID: event.ID},
		}
	}

	result, err := handler.Handle(ctx, &WebhookNotification{
		EventID:   event.ID,
		ShopID:    shopID,
		EventType: eventType,
		AssetID:   assetID,
		Payload:   rawBody,
	})
	if err == nil && result != nil && result.Error != nil {
		err = result.Error
	}
	if err != nil {
		s.finishEvent(ctx, event, domain.WebhookEventFailed, err.Error(), "")
		s.publishAsset(shopID, assetID, "failed")
		log.Warn().Err(err).Msg("Webhook asset sync failed")
		return HTTPOutcome{
			Status: http.StatusOK,
			Body:   WebhookResponse{Success: false, Message: err.Error(), EventID: event.ID},
		}
	}

	body := WebhookResponse{Success: true, EventID: event.ID}
	status := "skipped"
	if result != nil {
		switch {
		case result.Created:
			body.Created, status = 1, "created"
		case result.Updated:
			body.Updated, status = 1, "updated"
		case result.Skipped:
			body.Skipped = 1
		}
	}
	body.Message = "Asset " + status
	s.finishEvent(ctx, event, domain.WebhookEventSuccess, "", "")
	s.publishAsset(shopID, assetID, status)
	log.Info().Str("result", status).Msg("Webhook processed")
	return HTTPOutcome{Status: http.StatusOK, Body: body}
}

// Activate creates or re-activates the shop's webhook subscription
func (s *WebhookService) Activate(ctx context.Context, shopID string, callbackURL string) (*domain.WebhookSubscription, error) {
	shop, err := s.shops.GetShop(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	if shop == nil {
		return nil, fmt.Errorf("shop %s: %w", shopID, domain.ErrNotFound)
	}

	existing, err := s.subscriptions.GetActiveSubscription(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook subscription: %w", err)
	}
	if existing != nil && existing.CallbackURL == callbackURL {
		return existing, nil
	}
	if existing != nil {
		if _, err := s.subscriptions.DeactivateSubscriptions(ctx, shopID, s.now().UTC()); err != nil {
			return nil, fmt.Errorf("failed to deactivate previous subscription: %w", err)
		}
	}

	now := s.now().UTC()
	sub := &domain.WebhookSubscription{
		ShopID:      shopID,
		CallbackURL: callbackURL,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.subscriptions.SaveSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save webhook subscription: %w", err)
	}
	s.logger.Info().Str("shopId", shopID).Str("callbackUrl", callbackURL).Msg("Webhook subscription activated")
	return sub, nil
}

// Deactivate turns off the shop's webhook subscriptions, keeping them for history
func (s *WebhookService) Deactivate(ctx context.Context, shopID string) error {
	n, err := s.subscriptions.DeactivateSubscriptions(ctx, shopID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate webhook subscriptions: %w", err)
	}
	s.logger.Info().Str("shopId", shopID).Int("deactivated", n).Msg("Webhook subscriptions deactivated")
	return nil
}

// ListEvents returns a shop's most recent webhook events
func (s *WebhookService) ListEvents(ctx context.Context, shopID string, limit int) ([]*domain.WebhookEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	events, err := s.events.ListEvents(ctx, shopID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	return events, nil
}

func (s *WebhookService) logRejected(ctx context.Context, shopID, eventType, assetID string, rawBody []byte) {
	now := s.now().UTC()
	event := &domain.WebhookEvent{
		ShopID:      shopID,
		EventType:   eventType,
		AssetID:     assetID,
		Status:      domain.WebhookEventFailed,
		Payload:     rawBody,
		Error:       "subscription inactive",
		CreatedAt:   now,
		ProcessedAt: &now,
	}
	if err := s.events.CreateEvent(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("shopId", shopID).Msg("Failed to log rejected webhook event")
	}
}

func (s *WebhookService) finishEvent(ctx context.Context, event *domain.WebhookEvent, status domain.WebhookEventStatus, errMsg string, note string) {
	if event.ID == "" {
		return
	}
	if err := s.events.UpdateEventOutcome(ctx, event.ID, status, errMsg, note, s.now().UTC()); err != nil {
		s.logger.Error().Err(err).Str("eventId", event.ID).Msg("Failed to update webhook event outcome")
	}
}

func (s *WebhookService) publishAsset(shopID, assetID, status string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(&domain.SyncEvent{
		Type:     domain.EventWebhookAsset,
		ShopID:   shopID,
		AssetID:  assetID,
		Status:   status,
		Occurred: s.now().UTC(),
	})
}

func reject(status int, message string) HTTPOutcome {
	return HTTPOutcome{Status: status, Body: WebhookResponse{Success: false, Message: message}}
}

func signatureFrom(headers http.Header) string {
	for _, h := range SignatureHeaders {
		if v := strings.TrimSpace(headers.Get(h)); v != "" {
			return v
		}
	}
	return ""
}

// extractAssetID finds the asset id at the top level or inside a data/asset/media object
func extractAssetID(payload map[string]any) string {
	if id := extractString(payload, "assetId", "asset_id", "mediaId", "media_id"); id != "" {
		return id
	}
	for _, key := range []string{"data", "asset", "media"} {
		if nested, ok := payload[key].(map[string]any); ok {
			if id := extractString(nested, "assetId", "asset_id", "mediaId", "media_id", "id"); id != "" {
				return id
			}
		}
	}
	return ""
}

func extractString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}
