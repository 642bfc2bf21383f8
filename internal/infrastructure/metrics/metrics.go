// Package metrics provides Prometheus metrics for the DAM sync service.
package metrics

import (
	"context"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APICallsTotal tracks outbound DAM and Shopify calls by outcome
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dam_sync",
			Subsystem: "api",
			Name:      "calls_total",
			Help:      "Total number of outbound API calls by service, operation and outcome",
		},
		[]string{"service", "operation", "outcome"},
	)

	// APICallDuration tracks outbound call latency in seconds
	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dam_sync",
			Subsystem: "api",
			Name:      "call_duration_seconds",
			Help:      "Duration of outbound API calls in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "operation"},
	)

	// RateLimitHitsTotal tracks rate-limit responses
	RateLimitHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dam_sync",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Total number of rate-limit responses by service",
		},
		[]string{"service"},
	)

	// AssetsTotal tracks per-asset outcomes of batch and retry runs
	AssetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dam_sync",
			Subsystem: "sync",
			Name:      "assets_total",
			Help:      "Total number of assets processed by source and result",
		},
		[]string{"source", "result"},
	)

	// RunDuration tracks batch and retry run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dam_sync",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"source"},
	)

	// JobTransitionsTotal tracks job status changes
	JobTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dam_sync",
			Subsystem: "jobs",
			Name:      "transitions_total",
			Help:      "Total number of sync job status transitions by resulting status",
		},
		[]string{"status"},
	)

	// WebhookAssetsTotal tracks webhook-driven asset syncs by result
	WebhookAssetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dam_sync",
			Subsystem: "webhook",
			Name:      "assets_total",
			Help:      "Total number of webhook-driven asset syncs by result",
		},
		[]string{"result"},
	)

	// AlertsTotal tracks raised alerts
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dam_sync",
			Subsystem: "alerts",
			Name:      "raised_total",
			Help:      "Total number of threshold alerts by kind and severity",
		},
		[]string{"kind", "severity"},
	)
)

// Observer exports observability calls as Prometheus metrics before passing them on
type Observer struct {
	next ports.Observability
}

// NewObserver wraps next, which may be nil
func NewObserver(next ports.Observability) *Observer {
	return &Observer{next: next}
}

// RecordAPICall counts one outbound call
func (o *Observer) RecordAPICall(ctx context.Context, shopID, jobID, service, operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	APICallsTotal.WithLabelValues(service, operation, outcome).Inc()
	APICallDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
	if o.next != nil {
		o.next.RecordAPICall(ctx, shopID, jobID, service, operation, duration, err)
	}
}

// RecordRateLimitHit counts one rate-limit response
func (o *Observer) RecordRateLimitHit(ctx context.Context, shopID, jobID, service string) {
	RateLimitHitsTotal.WithLabelValues(service).Inc()
	if o.next != nil {
		o.next.RecordRateLimitHit(ctx, shopID, jobID, service)
	}
}

// RecordSyncResult counts a run's asset outcomes
func (o *Observer) RecordSyncResult(ctx context.Context, shopID, jobID, source string, counts domain.SyncCounts, errorCount int, duration time.Duration) {
	AssetsTotal.WithLabelValues(source, "created").Add(float64(counts.Created))
	AssetsTotal.WithLabelValues(source, "updated").Add(float64(counts.Updated))
	AssetsTotal.WithLabelValues(source, "skipped").Add(float64(counts.Skipped))
	AssetsTotal.WithLabelValues(source, "failed").Add(float64(errorCount))
	RunDuration.WithLabelValues(source).Observe(duration.Seconds())
	if o.next != nil {
		o.next.RecordSyncResult(ctx, shopID, jobID, source, counts, errorCount, duration)
	}
}

// EventCounter counts sync events before passing them on
type EventCounter struct {
	next ports.EventPublisher
}

// NewEventCounter wraps next, which may be nil
func NewEventCounter(next ports.EventPublisher) *EventCounter {
	return &EventCounter{next: next}
}

// Publish counts the event by type
func (c *EventCounter) Publish(event *domain.SyncEvent) {
	switch event.Type {
	case domain.EventJobStatus:
		JobTransitionsTotal.WithLabelValues(event.Status).Inc()
	case domain.EventWebhookAsset:
		WebhookAssetsTotal.WithLabelValues(event.Status).Inc()
	case domain.EventAlert:
		if event.Alert != nil {
			AlertsTotal.WithLabelValues(event.Alert.Kind, string(event.Alert.Severity)).Inc()
		}
	}
	if c.next != nil {
		c.next.Publish(event)
	}
}
