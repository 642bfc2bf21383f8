package repository

import (
	"context"
	"fmt"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/infrastructure/repository/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWebhookSubscriptionRepository implements WebhookSubscriptionRepository using MongoDB
type MongoWebhookSubscriptionRepository struct {
	collection *mongo.Collection
}

// NewMongoWebhookSubscriptionRepository creates a new MongoDB webhook subscription repository
func NewMongoWebhookSubscriptionRepository(db *mongo.Database) *MongoWebhookSubscriptionRepository {
	return &MongoWebhookSubscriptionRepository{
		collection: db.Collection(WebhookSubscriptionsCollection),
	}
}

// SaveSubscription saves or updates a subscription
func (r *MongoWebhookSubscriptionRepository) SaveSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	doc := entity.MongoWebhookSubscriptionDocFromDomain(sub)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save webhook subscription: %w", err)
	}

	sub.ID = doc.ID.Hex()
	return nil
}

// GetActiveSubscription retrieves the shop's active subscription
func (r *MongoWebhookSubscriptionRepository) GetActiveSubscription(ctx context.Context, shopID string) (*domain.WebhookSubscription, error) {
	var doc entity.MongoWebhookSubscriptionDoc
	filter := bson.M{"shopId": shopID, "active": true}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook subscription: %w", err)
	}

	return doc.ToDomain(), nil
}

// DeactivateSubscriptions marks the shop's active subscriptions inactive
func (r *MongoWebhookSubscriptionRepository) DeactivateSubscriptions(ctx context.Context, shopID string, at time.Time) (int, error) {
	filter := bson.M{"shopId": shopID, "active": true}
	update := bson.M{"$set": bson.M{
		"active":        false,
		"updatedAt":     at,
		"deactivatedAt": at,
	}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate webhook subscriptions: %w", err)
	}
	return int(result.ModifiedCount), nil
}
