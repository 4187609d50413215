package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/cryptopay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sendTimeout = 10 * time.Second
	dedupTTL    = 24 * time.Hour
	idleBackoff = 500 * time.Millisecond
)

type PoolParams struct {
	fx.In

	Log            *zap.Logger
	Queue          Queue
	Sinks          []Sink
	Deduper        Deduper                 `optional:"true"`
	Workers        int                     `name:"notification_workers"`
	Metrics        *metrics.Metrics        `optional:"true"`
	WebhookMetrics *metrics.WebhookMetrics `optional:"true"`
}

// Pool drains the queue and fans every job out to the sinks.
type Pool struct {
	log            *zap.Logger
	queue          Queue
	sinks          []Sink
	deduper        Deduper
	workers        int
	metrics        *metrics.Metrics
	webhookMetrics *metrics.WebhookMetrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(p PoolParams) *Pool {
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		log:            p.Log.Named("notification.worker"),
		queue:          p.Queue,
		sinks:          p.Sinks,
		deduper:        p.Deduper,
		workers:        workers,
		metrics:        p.Metrics,
		webhookMetrics: p.WebhookMetrics,
	}
}

func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.log.Info("notification workers started", zap.Int("workers", p.workers), zap.Int("sinks", len(p.sinks)))
}

// Stop cancels the workers and waits for in-flight jobs or ctx.
func (p *Pool) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With(zap.Int("worker", id))

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			log.Warn("notification dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleBackoff):
			}
			continue
		}
		if p.webhookMetrics != nil {
			p.webhookMetrics.SetQueueDepth(p.queue.Len(ctx))
		}
		p.Process(ctx, job)
	}
}

// Process delivers one job to every sink. Sink failures are logged and
// counted, never returned.
func (p *Pool) Process(ctx context.Context, job Job) {
	log := p.log.With(
		zap.String("notification_id", job.ID),
		zap.String("event_type", job.EventType),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("notification job panicked", zap.Any("panic", r))
		}
	}()

	key := dedupKey(job)
	var token string
	if p.deduper != nil && key != "" {
		t, first, err := p.deduper.Claim(ctx, key, dedupTTL)
		switch {
		case err != nil:
			log.Warn("notification dedup unavailable", zap.Error(err))
		case !first:
			p.metrics.RecordNotification(ctx, job.EventType, outcomeDuplicate)
			return
		default:
			token = t
		}
	}

	delivered := 0
	for _, sink := range p.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := sink.Send(sendCtx, job)
		cancel()
		if errors.Is(err, ErrNoRecipients) {
			continue
		}
		if err != nil {
			log.Warn("notification sink failed", zap.String("sink", sink.Name()), zap.Error(err))
			p.metrics.RecordNotification(ctx, job.EventType, outcomeSinkFailed)
			continue
		}
		delivered++
	}

	if delivered == 0 && token != "" {
		if err := p.deduper.Release(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn("notification dedup release failed", zap.Error(err))
		}
		return
	}
	if delivered > 0 {
		p.metrics.RecordNotification(ctx, job.EventType, outcomeDelivered)
	}
}
