package application

import (
	"context"

	"github.com/rs/zerolog"
)

// WebhookNotification is a parsed inbound DAM notification
type WebhookNotification struct {
	EventID   string
	ShopID    string
	EventType string
	AssetID   string
	Payload   []byte
}

// WebhookHandler processes the notification types it claims
type WebhookHandler interface {
	CanHandle(eventType string) bool
	Handle(ctx context.Context, notification *WebhookNotification) (*SyncResult, error)
}

// WebhookDispatcher routes notifications to registered handlers
type WebhookDispatcher struct {
	handlers []WebhookHandler
	logger   zerolog.Logger
}

// NewWebhookDispatcher creates an empty dispatcher
func NewWebhookDispatcher(logger zerolog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{logger: logger}
}

// RegisterHandler adds a handler; earlier registrations win on overlap
func (d *WebhookDispatcher) RegisterHandler(handler WebhookHandler) {
	d.handlers = append(d.handlers, handler)
}

// HandlerFor returns the handler for an event type, or nil when the type is not acted on
func (d *WebhookDispatcher) HandlerFor(eventType string) WebhookHandler {
	for _, h := range d.handlers {
		if h.CanHandle(eventType) {
			return h
		}
	}
	return nil
}
