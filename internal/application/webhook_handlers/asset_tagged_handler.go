package webhook_handlers

import (
	"context"
	"strings"

	"archie-core-dam-sync/internal/application"
	"github.com/rs/zerolog"
)

// AssetSyncer re-syncs one asset from the DAM
type AssetSyncer interface {
	SyncAsset(ctx context.Context, shopID string, assetID string) application.SyncResult
}

// AssetTaggedHandler handles DAM tag events by re-syncing the tagged asset
type AssetTaggedHandler struct {
	syncer AssetSyncer
	logger zerolog.Logger
}

// NewAssetTaggedHandler creates a new asset tag webhook handler
func NewAssetTaggedHandler(syncer AssetSyncer, logger zerolog.Logger) *AssetTaggedHandler {
	return &AssetTaggedHandler{
		syncer: syncer,
		logger: logger,
	}
}

// CanHandle returns true if this handler can process the given event type
func (h *AssetTaggedHandler) CanHandle(eventType string) bool {
	switch normalizeEventType(eventType) {
	case "asset.tagged", "media.tagged", "asset.tag.added", "media.tag.added":
		return true
	}
	return false
}

// Handle processes a tag event. Sync failures are reported on the result.
func (h *AssetTaggedHandler) Handle(ctx context.Context, notification *application.WebhookNotification) (*application.SyncResult, error) {
	h.logger.Info().
		Str("shopId", notification.ShopID).
		Str("assetId", notification.AssetID).
		Str("eventType", notification.EventType).
		Msg("Processing asset tag webhook event")

	result := h.syncer.SyncAsset(ctx, notification.ShopID, notification.AssetID)
	return &result, nil
}

func normalizeEventType(eventType string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(eventType)), "_", ".")
}
