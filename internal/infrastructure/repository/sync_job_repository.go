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

// MongoSyncJobRepository implements SyncJobRepository using MongoDB.
// Status changes are single conditional updates so several workers can share the collection.
type MongoSyncJobRepository struct {
	collection *mongo.Collection
}

// NewMongoSyncJobRepository creates a new MongoDB sync job repository
func NewMongoSyncJobRepository(db *mongo.Database) *MongoSyncJobRepository {
	return &MongoSyncJobRepository{
		collection: db.Collection(SyncJobsCollection),
	}
}

// CreateJob inserts a job. The activeShopId unique index turns a second active job into domain.ErrConflict.
func (r *MongoSyncJobRepository) CreateJob(ctx context.Context, job *domain.SyncJob) error {
	doc := entity.MongoSyncJobDocFromDomain(job)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}

	job.ID = doc.ID.Hex()
	return nil
}

// GetJob retrieves a job by id
func (r *MongoSyncJobRepository) GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	objID, err := primitive.ObjectIDFromHex(jobID)
	if err != nil {
		return nil, nil
	}

	var doc entity.MongoSyncJobDoc
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}

	return doc.ToDomain(), nil
}

// ListJobs retrieves a shop's most recent jobs
func (r *MongoSyncJobRepository) ListJobs(ctx context.Context, shopID string, limit int) ([]*domain.SyncJob, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"shopId": shopID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var jobs []*domain.SyncJob
	for cursor.Next(ctx) {
		var doc entity.MongoSyncJobDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode sync job: %w", err)
		}
		jobs = append(jobs, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return jobs, nil
}

// ClaimNextPending moves the oldest pending job to running in one atomic update
func (r *MongoSyncJobRepository) ClaimNextPending(ctx context.Context, startedAt time.Time) (*domain.SyncJob, error) {
	filter := bson.M{"status": string(domain.SyncJobPending)}
	update := bson.M{"$set": bson.M{
		"status":    string(domain.SyncJobRunning),
		"startedAt": startedAt,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetReturnDocument(options.After)

	var doc entity.MongoSyncJobDoc
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim sync job: %w", err)
	}

	return doc.ToDomain(), nil
}

// TransitionJob changes a job's status only if its current status is one of from.
// Terminal states release the shop's active slot and keep the first completion time.
func (r *MongoSyncJobRepository) TransitionJob(ctx context.Context, jobID string, from []domain.SyncJobStatus, to domain.SyncJobStatus, at time.Time, outcome *domain.JobOutcome) (bool, error) {
	objID, err := primitive.ObjectIDFromHex(jobID)
	if err != nil {
		return false, nil
	}

	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}
	filter := bson.M{"_id": objID, "status": bson.M{"$in": statuses}}

	set := bson.M{"status": string(to)}
	if outcome != nil {
		set["counts"] = entity.MongoSyncCountsDocFromDomain(outcome.Counts)
		set["errors"] = entity.MongoAssetErrorDocsFromDomain(outcome.Errors)
		set["failure"] = outcome.Failure
	}
	update := bson.M{"$set": set}
	if to.IsTerminal() {
		update["$unset"] = bson.M{"activeShopId": ""}
		update["$min"] = bson.M{"completedAt": at}
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update sync job status: %w", err)
	}
	return result.MatchedCount == 1, nil
}
