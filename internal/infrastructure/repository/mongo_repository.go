package repository

import (
	"context"
	"fmt"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/infrastructure/repository/entity"
	"archie-core-dam-sync/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ ports.ShopRepository                = (*MongoRepository)(nil)
	_ ports.WebhookEventRepository        = (*MongoRepository)(nil)
	_ ports.SyncJobRepository             = (*MongoSyncJobRepository)(nil)
	_ ports.WebhookSubscriptionRepository = (*MongoWebhookSubscriptionRepository)(nil)
	_ ports.MetricRepository              = (*MongoMetricRepository)(nil)
)

// Collection names
const (
	ShopsCollection                = "shops"
	SyncJobsCollection             = "sync_jobs"
	WebhookEventsCollection        = "webhook_events"
	WebhookSubscriptionsCollection = "webhook_subscriptions"
	MetricsCollection              = "metrics"
)

// EnsureIndexes creates the indexes the repositories rely on.
// The sparse unique activeShopId index enforces one active sync job per shop.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		SyncJobsCollection: {
			{
				Keys:    bson.D{{Key: "activeShopId", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "shopId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		WebhookEventsCollection: {
			{Keys: bson.D{{Key: "shopId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		WebhookSubscriptionsCollection: {
			{Keys: bson.D{{Key: "shopId", Value: 1}, {Key: "active", Value: 1}}},
		},
		MetricsCollection: {
			{Keys: bson.D{{Key: "shopId", Value: 1}, {Key: "recordedAt", Value: 1}}},
			{Keys: bson.D{{Key: "recordedAt", Value: 1}}},
		},
	}
	for collection, models := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}

// MongoRepository implements ShopRepository and WebhookEventRepository using MongoDB
type MongoRepository struct {
	shopsCollection    *mongo.Collection
	webhooksCollection *mongo.Collection
}

// NewMongoRepository creates a new MongoDB repository
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		shopsCollection:    db.Collection(ShopsCollection),
		webhooksCollection: db.Collection(WebhookEventsCollection),
	}
}

// SaveShop saves or updates a shop
func (r *MongoRepository) SaveShop(ctx context.Context, shop *domain.Shop) error {
	if shop.ID == "" {
		shop.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now().UTC()
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = now
	}
	shop.UpdatedAt = now
	doc := entity.MongoShopDocFromDomain(shop)

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"_id": shop.ID}

	_, err := r.shopsCollection.ReplaceOne(ctx, filter, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save shop: %w", err)
	}

	return nil
}

// GetShop retrieves a shop by id
func (r *MongoRepository) GetShop(ctx context.Context, shopID string) (*domain.Shop, error) {
	var doc entity.MongoShopDoc
	filter := bson.M{"_id": shopID}

	err := r.shopsCollection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}

	return doc.ToDomain(), nil
}

// ListShops retrieves all shops
func (r *MongoRepository) ListShops(ctx context.Context) ([]*domain.Shop, error) {
	cursor, err := r.shopsCollection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	defer cursor.Close(ctx)

	var shops []*domain.Shop
	for cursor.Next(ctx) {
		var doc entity.MongoShopDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode shop: %w", err)
		}
		shops = append(shops, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return shops, nil
}

// CreateEvent logs a webhook event
func (r *MongoRepository) CreateEvent(ctx context.Context, event *domain.WebhookEvent) error {
	doc := entity.MongoWebhookEventDocFromDomain(event)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	_, err := r.webhooksCollection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to log webhook: %w", err)
	}

	event.ID = doc.ID.Hex()
	event.CreatedAt = doc.CreatedAt
	return nil
}

// UpdateEventOutcome records the final status of a webhook event
func (r *MongoRepository) UpdateEventOutcome(ctx context.Context, eventID string, status domain.WebhookEventStatus, errMsg string, note string, processedAt time.Time) error {
	objID, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return fmt.Errorf("invalid webhook event id %q: %w", eventID, domain.ErrNotFound)
	}

	update := bson.M{"$set": bson.M{
		"status":      string(status),
		"error":       errMsg,
		"note":        note,
		"processedAt": processedAt,
	}}
	result, err := r.webhooksCollection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to update webhook event: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("webhook event %s: %w", eventID, domain.ErrNotFound)
	}
	return nil
}

// ListEvents retrieves a shop's most recent webhook events
func (r *MongoRepository) ListEvents(ctx context.Context, shopID string, limit int) ([]*domain.WebhookEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.webhooksCollection.Find(ctx, bson.M{"shopId": shopID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*domain.WebhookEvent
	for cursor.Next(ctx) {
		var doc entity.MongoWebhookEventDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode webhook event: %w", err)
		}
		events = append(events, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return events, nil
}
