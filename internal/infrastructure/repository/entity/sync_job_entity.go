package entity

import (
	"time"

	"archie-core-dam-sync/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoSyncJobDoc represents a sync job in MongoDB.
// ActiveShopID is set only while the job is pending or running; a sparse unique
// index on it allows one active job per shop.
type MongoSyncJobDoc struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty"`
	ShopID       string               `bson:"shopId"`
	ActiveShopID string               `bson:"activeShopId,omitempty"`
	Status       string               `bson:"status"`
	Trigger      string               `bson:"trigger"`
	CreatedAt    time.Time            `bson:"createdAt"`
	StartedAt    *time.Time           `bson:"startedAt,omitempty"`
	CompletedAt  *time.Time           `bson:"completedAt,omitempty"`
	Counts       MongoSyncCountsDoc   `bson:"counts"`
	Errors       []MongoAssetErrorDoc `bson:"errors"`
	Failure      string               `bson:"failure,omitempty"`
}

// MongoSyncCountsDoc holds per-asset outcome counts
type MongoSyncCountsDoc struct {
	Processed int `bson:"processed"`
	Created   int `bson:"created"`
	Updated   int `bson:"updated"`
	Skipped   int `bson:"skipped"`
}

// MongoAssetErrorDoc is one failed asset of a run
type MongoAssetErrorDoc struct {
	AssetID string `bson:"assetId"`
	Message string `bson:"message"`
	Reason  string `bson:"reason,omitempty"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoSyncJobDoc) ToDomain() *domain.SyncJob {
	job := &domain.SyncJob{
		ID:          d.ID.Hex(),
		ShopID:      d.ShopID,
		Status:      domain.SyncJobStatus(d.Status),
		Trigger:     domain.SyncTrigger(d.Trigger),
		CreatedAt:   d.CreatedAt,
		StartedAt:   d.StartedAt,
		CompletedAt: d.CompletedAt,
		Counts: domain.SyncCounts{
			Processed: d.Counts.Processed,
			Created:   d.Counts.Created,
			Updated:   d.Counts.Updated,
			Skipped:   d.Counts.Skipped,
		},
		Errors:  make([]domain.AssetError, 0, len(d.Errors)),
		Failure: d.Failure,
	}
	for _, e := range d.Errors {
		job.Errors = append(job.Errors, domain.AssetError{
			AssetID: e.AssetID,
			Message: e.Message,
			Reason:  domain.FailureReason(e.Reason),
		})
	}
	return job
}

// MongoSyncJobDocFromDomain converts a domain entity to a MongoDB document
func MongoSyncJobDocFromDomain(job *domain.SyncJob) *MongoSyncJobDoc {
	doc := &MongoSyncJobDoc{
		ShopID:      job.ShopID,
		Status:      string(job.Status),
		Trigger:     string(job.Trigger),
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Counts:      MongoSyncCountsDocFromDomain(job.Counts),
		Errors:      MongoAssetErrorDocsFromDomain(job.Errors),
		Failure:     job.Failure,
	}
	if job.Status.IsActive() {
		doc.ActiveShopID = job.ShopID
	}
	if job.ID != "" {
		if objID, err := primitive.ObjectIDFromHex(job.ID); err == nil {
			doc.ID = objID
		}
	}
	return doc
}

// MongoSyncCountsDocFromDomain converts run counts
func MongoSyncCountsDocFromDomain(c domain.SyncCounts) MongoSyncCountsDoc {
	return MongoSyncCountsDoc{
		Processed: c.Processed,
		Created:   c.Created,
		Updated:   c.Updated,
		Skipped:   c.Skipped,
	}
}

// MongoAssetErrorDocsFromDomain converts per-asset errors, never returning nil
func MongoAssetErrorDocsFromDomain(errs []domain.AssetError) []MongoAssetErrorDoc {
	docs := make([]MongoAssetErrorDoc, 0, len(errs))
	for _, e := range errs {
		docs = append(docs, MongoAssetErrorDoc{
			AssetID: e.AssetID,
			Message: e.Message,
			Reason:  string(e.Reason),
		})
	}
	return docs
}
