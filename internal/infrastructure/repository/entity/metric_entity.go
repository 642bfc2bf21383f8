package entity

import (
	"time"

	"archie-core-dam-sync/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoMetricDoc represents a metric record in MongoDB
type MongoMetricDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	ShopID     string             `bson:"shopId"`
	SyncJobID  string             `bson:"syncJobId,omitempty"`
	Type       string             `bson:"metricType"`
	Name       string             `bson:"metricName"`
	Value      float64            `bson:"value"`
	Metadata   map[string]any     `bson:"metadata,omitempty"`
	RecordedAt time.Time          `bson:"recordedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoMetricDoc) ToDomain() *domain.MetricRecord {
	return &domain.MetricRecord{
		ID:         d.ID.Hex(),
		ShopID:     d.ShopID,
		SyncJobID:  d.SyncJobID,
		Type:       domain.MetricType(d.Type),
		Name:       d.Name,
		Value:      d.Value,
		Metadata:   d.Metadata,
		RecordedAt: d.RecordedAt,
	}
}

// MongoMetricDocFromDomain converts a domain entity to a MongoDB document
func MongoMetricDocFromDomain(m *domain.MetricRecord) *MongoMetricDoc {
	return &MongoMetricDoc{
		ShopID:     m.ShopID,
		SyncJobID:  m.SyncJobID,
		Type:       string(m.Type),
		Name:       m.Name,
		Value:      m.Value,
		Metadata:   m.Metadata,
		RecordedAt: m.RecordedAt,
	}
}
