package entity

import (
	"time"

	"archie-core-dam-sync/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoWebhookEventDoc represents a webhook audit record in MongoDB
type MongoWebhookEventDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	ShopID      string             `bson:"shopId"`
	EventType   string             `bson:"eventType"`
	AssetID     string             `bson:"assetId,omitempty"`
	Status      string             `bson:"status"`
	Payload     string             `bson:"payload"`
	Error       string             `bson:"error,omitempty"`
	Note        string             `bson:"note,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt"`
	ProcessedAt *time.Time         `bson:"processedAt,omitempty"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoWebhookEventDoc) ToDomain() *domain.WebhookEvent {
	return &domain.WebhookEvent{
		ID:          d.ID.Hex(),
		ShopID:      d.ShopID,
		EventType:   d.EventType,
		AssetID:     d.AssetID,
		Status:      domain.WebhookEventStatus(d.Status),
		Payload:     []byte(d.Payload),
		Error:       d.Error,
		Note:        d.Note,
		CreatedAt:   d.CreatedAt,
		ProcessedAt: d.ProcessedAt,
	}
}

// MongoWebhookEventDocFromDomain converts a domain entity to a MongoDB document
func MongoWebhookEventDocFromDomain(event *domain.WebhookEvent) *MongoWebhookEventDoc {
	doc := &MongoWebhookEventDoc{
		ShopID:      event.ShopID,
		EventType:   event.EventType,
		AssetID:     event.AssetID,
		Status:      string(event.Status),
		Payload:     string(event.Payload),
		Error:       event.Error,
		Note:        event.Note,
		CreatedAt:   event.CreatedAt,
		ProcessedAt: event.ProcessedAt,
	}
	if event.ID != "" {
		if objID, err := primitive.ObjectIDFromHex(event.ID); err == nil {
			doc.ID = objID
		}
	}
	return doc
}

// MongoWebhookSubscriptionDoc represents a webhook subscription in MongoDB
type MongoWebhookSubscriptionDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	ShopID        string             `bson:"shopId"`
	CallbackURL   string             `bson:"callbackUrl"`
	Active        bool               `bson:"active"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
	DeactivatedAt *time.Time         `bson:"deactivatedAt,omitempty"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoWebhookSubscriptionDoc) ToDomain() *domain.WebhookSubscription {
	return &domain.WebhookSubscription{
		ID:            d.ID.Hex(),
		ShopID:        d.ShopID,
		CallbackURL:   d.CallbackURL,
		Active:        d.Active,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		DeactivatedAt: d.DeactivatedAt,
	}
}

// MongoWebhookSubscriptionDocFromDomain converts a domain entity to a MongoDB document
func MongoWebhookSubscriptionDocFromDomain(sub *domain.WebhookSubscription) *MongoWebhookSubscriptionDoc {
	doc := &MongoWebhookSubscriptionDoc{
		ShopID:        sub.ShopID,
		CallbackURL:   sub.CallbackURL,
		Active:        sub.Active,
		CreatedAt:     sub.CreatedAt,
		UpdatedAt:     sub.UpdatedAt,
		DeactivatedAt: sub.DeactivatedAt,
	}
	if sub.ID != "" {
		if objID, err := primitive.ObjectIDFromHex(sub.ID); err == nil {
			doc.ID = objID
		}
	}
	return doc
}
