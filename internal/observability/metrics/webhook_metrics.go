package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	FailureReasonDeadlineExceeded     = "deadline_exceeded"
	FailureReasonDBLockTimeout        = "db_lock_timeout"
	FailureReasonSerializationFailure = "serialization_failure"
	FailureReasonConnection           = "db_connection"
	FailureReasonDB                   = "db"
	FailureReasonUnknown              = "unknown"
)

// WebhookMetrics exposes webhook pipeline health on the prometheus registry.
type WebhookMetrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	processingErrs *prometheus.CounterVec
	queueDepth     prometheus.Gauge
}

var (
	webhookMetricsOnce sync.Once
	webhookMetrics     *WebhookMetrics
)

// Webhook returns the singleton webhook metrics registered on the default registry.
func Webhook() *WebhookMetrics {
	return WebhookWithConfig(Config{})
}

// WebhookWithConfig returns the singleton using config labels.
func WebhookWithConfig(cfg Config) *WebhookMetrics {
	webhookMetricsOnce.Do(func() {
		webhookMetrics = newWebhookMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return webhookMetrics
}

func newWebhookMetrics(registerer prometheus.Registerer, cfg Config) *WebhookMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "cryptopay"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cryptopay_webhook_requests_total",
		Help:        "Webhook deliveries by event type and response status.",
		ConstLabels: constLabels,
	}, []string{"event_type", "status_code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "cryptopay_webhook_duration_seconds",
		Help:        "Webhook ingestion latency from body read to response.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"event_type"})
	processingErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cryptopay_webhook_processing_errors_total",
		Help:        "Webhook state update failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"event_type", "reason"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "cryptopay_notification_queue_depth",
		Help:        "Notifications waiting in the in-process queue.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(requests, duration, processingErrs, queueDepth)

	return &WebhookMetrics{
		requests:       requests,
		duration:       duration,
		processingErrs: processingErrs,
		queueDepth:     queueDepth,
	}
}

func (m *WebhookMetrics) ObserveRequest(eventType, statusCode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(eventType, statusCode).Inc()
	m.duration.WithLabelValues(eventType).Observe(elapsed.Seconds())
}

func (m *WebhookMetrics) IncProcessingError(eventType, reason string) {
	if m == nil {
		return
	}
	m.processingErrs.WithLabelValues(eventType, reason).Inc()
}

func (m *WebhookMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// ClassifyFailureReason maps state update errors to low-cardinality reasons.
func ClassifyFailureReason(err error) string {
	if err == nil {
		return FailureReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return FailureReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") || hasPGCode(err, "40P01") {
		return FailureReasonSerializationFailure
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return FailureReasonConnection
	}
	if isDBError(err) {
		return FailureReasonDB
	}
	return FailureReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
