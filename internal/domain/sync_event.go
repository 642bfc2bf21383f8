package domain

import "time"

// SyncEventType names a published sync event
type SyncEventType string

const (
	EventJobStatus    SyncEventType = "job.status"
	EventWebhookAsset SyncEventType = "webhook.asset"
	EventAlert        SyncEventType = "alert"
)

// SyncEvent is a notification fanned out to live subscribers
type SyncEvent struct {
	Type     SyncEventType `json:"type"`
	ShopID   string        `json:"shop_id"`
	JobID    string        `json:"job_id,omitempty"`
	AssetID  string        `json:"asset_id,omitempty"`
	Status   string        `json:"status,omitempty"`
	Counts   *SyncCounts   `json:"counts,omitempty"`
	Alert    *Alert        `json:"alert,omitempty"`
	Occurred time.Time     `json:"occurred"`
}
