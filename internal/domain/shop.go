package domain

import "time"

// Shop represents a connected commerce shop and its DAM connection settings
type Shop struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	AccessToken string    `json:"-"` // Shopify Admin API token
	DAM         DAMConfig `json:"dam"`
	SyncTags    []string  `json:"sync_tags"` // Only DAM assets carrying one of these tags are mirrored
	SyncEnabled bool      `json:"sync_enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DAMConfig holds the credentials used to reach a shop's DAM tenant
type DAMConfig struct {
	BaseURL       string `json:"base_url"`
	APIToken      string `json:"-"`
	WebhookSecret string `json:"-"`
}

// DAMConfigured reports whether the shop has enough DAM settings to sync
func (s *Shop) DAMConfigured() bool {
	return s != nil && s.DAM.BaseURL != "" && s.DAM.APIToken != ""
}
