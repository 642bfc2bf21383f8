package domain

import "time"

// WebhookEventStatus is the outcome of processing an inbound notification
type WebhookEventStatus string

const (
	WebhookEventSuccess WebhookEventStatus = "success"
	WebhookEventFailed  WebhookEventStatus = "failed"
)

// WebhookEvent is the append-only audit record of one inbound DAM notification
type WebhookEvent struct {
	ID          string             `json:"id"`
	ShopID      string             `json:"shop_id"`
	EventType   string             `json:"event_type"`
	AssetID     string             `json:"asset_id,omitempty"`
	Status      WebhookEventStatus `json:"status"`
	Payload     []byte             `json:"-"`
	Error       string             `json:"error,omitempty"`
	Note        string             `json:"note,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
}

// WebhookSubscription is the registration of a shop's inbound DAM channel
type WebhookSubscription struct {
	ID            string     `json:"id"`
	ShopID        string     `json:"shop_id"`
	CallbackURL   string     `json:"callback_url"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}
