package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/cryptopay/internal/clock"
	"github.com/smallbiznis/cryptopay/internal/config"
	"github.com/smallbiznis/cryptopay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const enqueueTimeout = 2 * time.Second

const (
	outcomeEnqueued      = "enqueued"
	outcomeSkipped       = "skipped"
	outcomeEnqueueFailed = "enqueue_failed"
	outcomeDelivered     = "delivered"
	outcomeDuplicate     = "duplicate"
	outcomeSinkFailed    = "sink_failed"
)

type DispatcherParams struct {
	fx.In

	Log            *zap.Logger
	Clock          clock.Clock
	Queue          Queue
	Routing        *config.RoutingConfigHolder
	Metrics        *metrics.Metrics        `optional:"true"`
	WebhookMetrics *metrics.WebhookMetrics `optional:"true"`
}

type Dispatcher struct {
	log            *zap.Logger
	clock          clock.Clock
	queue          Queue
	routing        *config.RoutingConfigHolder
	metrics        *metrics.Metrics
	webhookMetrics *metrics.WebhookMetrics
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	routing := p.Routing
	if routing == nil {
		routing = config.NewStaticRoutingHolder(config.DefaultRoutingConfig())
	}
	return &Dispatcher{
		log:            p.Log.Named("notification.dispatcher"),
		clock:          p.Clock,
		queue:          p.Queue,
		routing:        routing,
		metrics:        p.Metrics,
		webhookMetrics: p.WebhookMetrics,
	}
}

// Notify enqueues a notification for data and returns without waiting for
// delivery. It reports false when the job could not be queued. Events that no
// routing rule selects are dropped and reported as true.
func (d *Dispatcher) Notify(ctx context.Context, eventType string, data map[string]any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("notification dispatch panicked",
				zap.String("event_type", eventType),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()

	status := statusOf(data)
	rule, matched := d.routing.Get().Match(eventType, status)
	if !matched {
		d.metrics.RecordNotification(ctx, eventType, outcomeSkipped)
		return true
	}

	now := d.clock.Now()
	job := Job{
		ID:         newJobID(now),
		EventType:  eventType,
		Status:     status,
		Reference:  referenceOf(eventType, data),
		Recipients: rule.Recipients,
		Data:       data,
		EnqueuedAt: now,
	}

	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if err := d.queue.Enqueue(enqueueCtx, job); err != nil {
		d.log.Warn("notification enqueue failed",
			zap.String("event_type", eventType),
			zap.String("notification_id", job.ID),
			zap.Error(err),
		)
		d.metrics.RecordNotification(ctx, eventType, outcomeEnqueueFailed)
		return false
	}

	d.metrics.RecordNotification(ctx, eventType, outcomeEnqueued)
	if d.webhookMetrics != nil {
		d.webhookMetrics.SetQueueDepth(d.queue.Len(enqueueCtx))
	}
	d.log.Debug("notification enqueued",
		zap.String("event_type", eventType),
		zap.String("notification_id", job.ID),
		zap.String("status", status),
	)
	return true
}

func statusOf(data map[string]any) string {
	for _, key := range []string{"payment_status", "invoice_status", "withdrawal_status", "status"} {
		if s := stringOf(data[key]); s != "" {
			return s
		}
	}
	return ""
}

func referenceOf(eventType string, data map[string]any) string {
	return stringOf(data[eventType+"_id"])
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", t))
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
