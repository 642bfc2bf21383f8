package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	"github.com/rs/zerolog"
)

// AlertThresholds configures derived alerts
type AlertThresholds struct {
	MaxErrorRate     float64 // Fraction of processed assets that failed
	MinThroughput    float64 // Assets per minute for a finished run
	MaxRateLimitHits int
	MinSamples       int // Processed assets needed before the error rate is judged
}

// DefaultAlertThresholds returns thresholds used when none are configured
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		MaxErrorRate:     0.2,
		MinThroughput:    1,
		MaxRateLimitHits: 10,
		MinSamples:       10,
	}
}

// MetricSummary is an aggregate over a shop's recent metrics
type MetricSummary struct {
	ShopID          string  `json:"shopId"`
	WindowSeconds   int64   `json:"windowSeconds"`
	APICalls        int     `json:"apiCalls"`
	APIErrors       int     `json:"apiErrors"`
	AvgAPILatencyMs float64 `json:"avgApiLatencyMs"`
	Processed       int     `json:"processed"`
	Errors          int     `json:"errors"`
	ErrorRate       float64 `json:"errorRate"`
	RateLimitHits   int     `json:"rateLimitHits"`
	MinThroughput   float64 `json:"minThroughput"` // Lowest assets/minute among runs in the window, 0 if none
	Runs            int     `json:"runs"`
}

// DefaultMetricBuffer is the queue size used by main for asynchronous metric writes
const DefaultMetricBuffer = 1024

// ObservabilityService is the metric sink and alert evaluator.
// Storage failures are logged and swallowed so they never affect syncing.
type ObservabilityService struct {
	metrics      ports.MetricRepository
	alerts       ports.AlertSink
	thresholds   AlertThresholds
	writeTimeout time.Duration
	logger       zerolog.Logger
	dropLogger   zerolog.Logger
	now          func() time.Time

	queue   chan *domain.MetricRecord // nil means writes happen inline
	dropped atomic.Int64
}

// NewObservabilityService creates a new observability service. alerts may be nil.
func NewObservabilityService(metrics ports.MetricRepository, alerts ports.AlertSink, thresholds AlertThresholds, logger zerolog.Logger) *ObservabilityService {
	return &ObservabilityService{
		metrics:      metrics,
		alerts:       alerts,
		thresholds:   thresholds,
		writeTimeout: 2 * time.Second,
		logger:       logger,
		dropLogger:   logger.Sample(&zerolog.BasicSampler{N: 100}),
		now:          time.Now,
	}
}

// WithBuffer makes Record enqueue instead of writing inline. RunWriter must drain the queue.
// Call before the service is shared.
func (s *ObservabilityService) WithBuffer(size int) *ObservabilityService {
	if size > 0 {
		s.queue = make(chan *domain.MetricRecord, size)
	}
	return s
}

// RunWriter persists queued metrics until ctx ends, then flushes what is already queued
func (s *ObservabilityService) RunWriter(ctx context.Context) {
	if s.queue == nil {
		return
	}
	for {
		select {
		case metric := <-s.queue:
			s.write(context.Background(), metric)
		case <-ctx.Done():
			for {
				select {
				case metric := <-s.queue:
					s.write(context.Background(), metric)
				default:
					return
				}
			}
		}
	}
}

// Dropped returns how many metrics were discarded because the queue was full
func (s *ObservabilityService) Dropped() int64 {
	return s.dropped.Load()
}

// Record appends a metric record. With a buffer it never blocks: a full queue drops the metric.
func (s *ObservabilityService) Record(ctx context.Context, metric *domain.MetricRecord) {
	if metric.RecordedAt.IsZero() {
		metric.RecordedAt = s.now().UTC()
	}
	if s.queue == nil {
		s.write(ctx, metric)
		return
	}
	select {
	case s.queue <- metric:
	default:
		n := s.dropped.Add(1)
		s.dropLogger.Warn().
			Str("shopId", metric.ShopID).
			Str("metricName", metric.Name).
			Int64("dropped", n).
			Msg("Metric queue full, dropping metric")
	}
}

func (s *ObservabilityService) write(ctx context.Context, metric *domain.MetricRecord) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()
	if err := s.metrics.InsertMetric(writeCtx, metric); err != nil {
		s.logger.Warn().
			Err(err).
			Str("shopId", metric.ShopID).
			Str("metricType", string(metric.Type)).
			Str("metricName", metric.Name).
			Msg("Failed to record metric")
	}
}

// RecordAPICall records one outbound call and its latency in milliseconds
func (s *ObservabilityService) RecordAPICall(ctx context.Context, shopID, jobID, service, operation string, duration time.Duration, err error) {
	meta := map[string]any{"service": service, "operation": operation, "success": err == nil}
	if err != nil {
		meta["error"] = err.Error()
	}
	s.Record(ctx, &domain.MetricRecord{
		ShopID:    shopID,
		SyncJobID: jobID,
		Type:      domain.MetricAPICall,
		Name:      service + "." + operation,
		Value:     float64(duration.Milliseconds()),
		Metadata:  meta,
	})
}

// RecordRateLimitHit records one rate-limit response
func (s *ObservabilityService) RecordRateLimitHit(ctx context.Context, shopID, jobID, service string) {
	s.Record(ctx, &domain.MetricRecord{
		ShopID:    shopID,
		SyncJobID: jobID,
		Type:      domain.MetricRateLimit,
		Name:      service + ".rate_limited",
		Value:     1,
	})
}

// RecordSyncResult records the outcome of a batch or retry run
func (s *ObservabilityService) RecordSyncResult(ctx context.Context, shopID, jobID, source string, counts domain.SyncCounts, errorCount int, duration time.Duration) {
	s.Record(ctx, &domain.MetricRecord{
		ShopID:    shopID,
		SyncJobID: jobID,
		Type:      domain.MetricSync,
		Name:      source + ".processed",
		Value:     float64(counts.Processed),
		Metadata: map[string]any{
			"created":    counts.Created,
			"updated":    counts.Updated,
			"skipped":    counts.Skipped,
			"errors":     errorCount,
			"durationMs": duration.Milliseconds(),
		},
	})
	s.Record(ctx, &domain.MetricRecord{
		ShopID:    shopID,
		SyncJobID: jobID,
		Type:      domain.MetricError,
		Name:      source + ".errors",
		Value:     float64(errorCount),
	})
	if minutes := duration.Minutes(); minutes > 0 && counts.Processed > 0 {
		s.Record(ctx, &domain.MetricRecord{
			ShopID:    shopID,
			SyncJobID: jobID,
			Type:      domain.MetricThroughput,
			Name:      source + ".assets_per_minute",
			Value:     float64(counts.Processed) / minutes,
		})
	}
}

// Prune deletes metrics older than retention
func (s *ObservabilityService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-retention)
	n, err := s.metrics.DeleteMetricsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune metrics: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Pruned old metrics")
	}
	return n, nil
}

// Summary aggregates a shop's metrics over the trailing window
func (s *ObservabilityService) Summary(ctx context.Context, shopID string, window time.Duration) (*MetricSummary, error) {
	records, err := s.metrics.ListMetricsSince(ctx, shopID, s.now().UTC().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}

	summary := &MetricSummary{ShopID: shopID, WindowSeconds: int64(window.Seconds())}
	var latency float64
	for _, m := range records {
		switch m.Type {
		case domain.MetricAPICall:
			summary.APICalls++
			latency += m.Value
			if ok, _ := m.Metadata["success"].(bool); !ok {
				summary.APIErrors++
			}
		case domain.MetricSync:
			summary.Processed += int(m.Value)
			summary.Runs++
		case domain.MetricError:
			summary.Errors += int(m.Value)
		case domain.MetricRateLimit:
			summary.RateLimitHits += int(m.Value)
		case domain.MetricThroughput:
			if summary.MinThroughput == 0 || m.Value < summary.MinThroughput {
				summary.MinThroughput = m.Value
			}
		}
	}
	if summary.APICalls > 0 {
		summary.AvgAPILatencyMs = latency / float64(summary.APICalls)
	}
	if summary.Processed > 0 {
		summary.ErrorRate = float64(summary.Errors) / float64(summary.Processed)
	}
	return summary, nil
}

// CheckAlerts evaluates thresholds over the trailing window and sends any breaches to the alert sink
func (s *ObservabilityService) CheckAlerts(ctx context.Context, shopID string, window time.Duration) ([]domain.Alert, error) {
	alerts, err := s.EvaluateAlerts(ctx, shopID, window)
	if err != nil {
		return nil, err
	}
	if s.alerts != nil {
		for _, a := range alerts {
			if err := s.alerts.Send(ctx, a); err != nil {
				s.logger.Warn().Err(err).Str("shopId", shopID).Str("alert", a.Kind).Msg("Failed to send alert")
			}
		}
	}
	return alerts, nil
}

// EvaluateAlerts returns the threshold breaches over the trailing window without sending them
func (s *ObservabilityService) EvaluateAlerts(ctx context.Context, shopID string, window time.Duration) ([]domain.Alert, error) {
	summary, err := s.Summary(ctx, shopID, window)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	alerts := []domain.Alert{}
	if summary.Processed >= s.thresholds.MinSamples && summary.ErrorRate > s.thresholds.MaxErrorRate {
		severity := domain.AlertWarning
		if summary.ErrorRate >= 2*s.thresholds.MaxErrorRate {
			severity = domain.AlertCritical
		}
		alerts = append(alerts, domain.Alert{
			Kind:     "high_error_rate",
			Severity: severity,
			Message:  fmt.Sprintf("%.0f%% of %d synced assets failed", summary.ErrorRate*100, summary.Processed),
			ShopID:   shopID,
			RaisedAt: now,
		})
	}
	if summary.Runs > 0 && summary.MinThroughput > 0 && summary.MinThroughput < s.thresholds.MinThroughput {
		alerts = append(alerts, domain.Alert{
			Kind:     "low_throughput",
			Severity: domain.AlertWarning,
			Message:  fmt.Sprintf("sync throughput dropped to %.2f assets/minute", summary.MinThroughput),
			ShopID:   shopID,
			RaisedAt: now,
		})
	}
	if s.thresholds.MaxRateLimitHits > 0 && summary.RateLimitHits > s.thresholds.MaxRateLimitHits {
		alerts = append(alerts, domain.Alert{
			Kind:     "rate_limit_hits",
			Severity: domain.AlertWarning,
			Message:  fmt.Sprintf("%d rate limit responses in the last %s", summary.RateLimitHits, window),
			ShopID:   shopID,
			RaisedAt: now,
		})
	}
	return alerts, nil
}

// LogAlertSink writes alerts to the log and publishes them to live subscribers
type LogAlertSink struct {
	publisher ports.EventPublisher
	logger    zerolog.Logger
}

// NewLogAlertSink creates an alert sink. publisher may be nil.
func NewLogAlertSink(publisher ports.EventPublisher, logger zerolog.Logger) *LogAlertSink {
	return &LogAlertSink{publisher: publisher, logger: logger}
}

// Send logs the alert at a level matching its severity
func (a *LogAlertSink) Send(ctx context.Context, alert domain.Alert) error {
	ev := a.logger.Warn()
	if alert.Severity == domain.AlertCritical {
		ev = a.logger.Error()
	}
	ev.Str("shopId", alert.ShopID).
		Str("jobId", alert.JobID).
		Str("alert", alert.Kind).
		Str("severity", string(alert.Severity)).
		Msg(alert.Message)

	if a.publisher != nil {
		alertCopy := alert
		a.publisher.Publish(&domain.SyncEvent{
			Type:     domain.EventAlert,
			ShopID:   alert.ShopID,
			JobID:    alert.JobID,
			Alert:    &alertCopy,
			Occurred: alert.RaisedAt,
		})
	}
	return nil
}
