package entity

import (
	"time"

	"archie-core-dam-sync/internal/domain"
)

// MongoShopDoc represents a shop in MongoDB
type MongoShopDoc struct {
	ID          string      `bson:"_id"`
	Domain      string      `bson:"domain"`
	AccessToken string      `bson:"accessToken"`
	DAM         MongoDAMDoc `bson:"dam"`
	SyncTags    []string    `bson:"syncTags"`
	SyncEnabled bool        `bson:"syncEnabled"`
	CreatedAt   time.Time   `bson:"createdAt"`
	UpdatedAt   time.Time   `bson:"updatedAt"`
}

// MongoDAMDoc holds a shop's DAM connection settings
type MongoDAMDoc struct {
	BaseURL       string `bson:"baseUrl"`
	APIToken      string `bson:"apiToken"`
	WebhookSecret string `bson:"webhookSecret"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoShopDoc) ToDomain() *domain.Shop {
	return &domain.Shop{
		ID:          d.ID,
		Domain:      d.Domain,
		AccessToken: d.AccessToken,
		DAM: domain.DAMConfig{
			BaseURL:       d.DAM.BaseURL,
			APIToken:      d.DAM.APIToken,
			WebhookSecret: d.DAM.WebhookSecret,
		},
		SyncTags:    d.SyncTags,
		SyncEnabled: d.SyncEnabled,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoShopDocFromDomain converts a domain entity to a MongoDB document
func MongoShopDocFromDomain(shop *domain.Shop) *MongoShopDoc {
	return &MongoShopDoc{
		ID:          shop.ID,
		Domain:      shop.Domain,
		AccessToken: shop.AccessToken,
		DAM: MongoDAMDoc{
			BaseURL:       shop.DAM.BaseURL,
			APIToken:      shop.DAM.APIToken,
			WebhookSecret: shop.DAM.WebhookSecret,
		},
		SyncTags:    shop.SyncTags,
		SyncEnabled: shop.SyncEnabled,
		CreatedAt:   shop.CreatedAt,
		UpdatedAt:   shop.UpdatedAt,
	}
}
