package domain

import "time"

// SyncJobStatus is the lifecycle state of a full sync job
type SyncJobStatus string

const (
	SyncJobPending   SyncJobStatus = "pending"
	SyncJobRunning   SyncJobStatus = "running"
	SyncJobCompleted SyncJobStatus = "completed"
	SyncJobFailed    SyncJobStatus = "failed"
	SyncJobCancelled SyncJobStatus = "cancelled"
)

// IsActive reports whether the status blocks another job for the same shop
func (s SyncJobStatus) IsActive() bool {
	return s == SyncJobPending || s == SyncJobRunning
}

// IsTerminal reports whether the status can no longer change
func (s SyncJobStatus) IsTerminal() bool {
	return s == SyncJobCompleted || s == SyncJobFailed || s == SyncJobCancelled
}

// SyncTrigger records what created a job
type SyncTrigger string

const (
	TriggerManual    SyncTrigger = "manual"
	TriggerScheduled SyncTrigger = "scheduled"
)

// SyncCounts aggregates per-asset outcomes of a run
type SyncCounts struct {
	Processed int `json:"processed" bson:"processed"`
	Created   int `json:"created" bson:"created"`
	Updated   int `json:"updated" bson:"updated"`
	Skipped   int `json:"skipped" bson:"skipped"`
}

// AssetError is one failed asset recorded against a run
type AssetError struct {
	AssetID string        `json:"asset_id" bson:"asset_id"`
	Message string        `json:"message" bson:"message"`
	Reason  FailureReason `json:"reason,omitempty" bson:"reason,omitempty"`
}

// SyncJob is a persisted full sync run
type SyncJob struct {
	ID          string        `json:"id"`
	ShopID      string        `json:"shop_id"`
	Status      SyncJobStatus `json:"status"`
	Trigger     SyncTrigger   `json:"trigger"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Counts      SyncCounts    `json:"counts"`
	Errors      []AssetError  `json:"errors"`
	Failure     string        `json:"failure,omitempty"` // Run-level error when the job itself failed
}

// JobOutcome is what a worker reports when a run finishes
type JobOutcome struct {
	Counts  SyncCounts
	Errors  []AssetError
	Failure string
}
