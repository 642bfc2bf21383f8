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

// MongoMetricRepository implements MetricRepository using MongoDB
type MongoMetricRepository struct {
	collection *mongo.Collection
}

// NewMongoMetricRepository creates a new MongoDB metric repository
func NewMongoMetricRepository(db *mongo.Database) *MongoMetricRepository {
	return &MongoMetricRepository{
		collection: db.Collection(MetricsCollection),
	}
}

// InsertMetric appends a metric record
func (r *MongoMetricRepository) InsertMetric(ctx context.Context, metric *domain.MetricRecord) error {
	doc := entity.MongoMetricDocFromDomain(metric)
	doc.ID = primitive.NewObjectID()
	if doc.RecordedAt.IsZero() {
		doc.RecordedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert metric: %w", err)
	}

	metric.ID = doc.ID.Hex()
	return nil
}

// ListMetricsSince retrieves a shop's metrics recorded at or after since
func (r *MongoMetricRepository) ListMetricsSince(ctx context.Context, shopID string, since time.Time) ([]*domain.MetricRecord, error) {
	filter := bson.M{"shopId": shopID, "recordedAt": bson.M{"$gte": since}}
	opts := options.Find().SetSort(bson.D{{Key: "recordedAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer cursor.Close(ctx)

	var metrics []*domain.MetricRecord
	for cursor.Next(ctx) {
		var doc entity.MongoMetricDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode metric: %w", err)
		}
		metrics = append(metrics, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return metrics, nil
}

// DeleteMetricsBefore removes metrics recorded before cutoff
func (r *MongoMetricRepository) DeleteMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"recordedAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete metrics: %w", err)
	}
	return result.DeletedCount, nil
}
