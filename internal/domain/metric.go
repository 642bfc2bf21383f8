package domain

import "time"

// MetricType groups metric records for alert evaluation
type MetricType string

const (
	MetricAPICall    MetricType = "api_call"
	MetricSync       MetricType = "sync"
	MetricError      MetricType = "error"
	MetricRateLimit  MetricType = "rate_limit"
	MetricThroughput MetricType = "throughput"
)

// MetricRecord is a single write-only operational measurement
type MetricRecord struct {
	ID         string         `json:"id"`
	ShopID     string         `json:"shop_id"`
	SyncJobID  string         `json:"sync_job_id,omitempty"`
	Type       MetricType     `json:"metric_type"`
	Name       string         `json:"metric_name"`
	Value      float64        `json:"value"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// AlertSeverity ranks alerts
type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is raised when recent metrics breach a threshold
type Alert struct {
	Kind     string        `json:"kind"`
	Severity AlertSeverity `json:"severity"`
	Message  string        `json:"message"`
	ShopID   string        `json:"shop_id"`
	JobID    string        `json:"job_id,omitempty"`
	RaisedAt time.Time     `json:"raised_at"`
}
