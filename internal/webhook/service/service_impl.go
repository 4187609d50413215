package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/cryptopay/internal/canonicaljson"
	"github.com/smallbiznis/cryptopay/internal/config"
	invoicedomain "github.com/smallbiznis/cryptopay/internal/invoice/domain"
	"github.com/smallbiznis/cryptopay/internal/observability/logger"
	"github.com/smallbiznis/cryptopay/internal/observability/metrics"
	"github.com/smallbiznis/cryptopay/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/cryptopay/internal/payment/domain"
	"github.com/smallbiznis/cryptopay/internal/webhook/domain"
	"github.com/smallbiznis/cryptopay/internal/webhook/eventlog"
	"github.com/smallbiznis/cryptopay/internal/webhook/signature"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var errProcessingPanic = errors.New("webhook_processing_panic")

// PaymentUpdater applies a payment event to its record.
type PaymentUpdater interface {
	Apply(ctx context.Context, event *domain.PaymentEvent) (*paymentdomain.PaymentRecord, error)
}

type InvoiceUpdater interface {
	UpdateInvoiceStatus(ctx context.Context, event *domain.InvoiceEvent) (*invoicedomain.InvoiceRecord, error)
}

// Notifier is fire-and-forget; the result is informational only.
type Notifier interface {
	Notify(ctx context.Context, eventType string, data map[string]any) bool
}

type EventLogger interface {
	LogEvent(ctx context.Context, entry eventlog.Entry) *domain.WebhookEvent
}

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Verifier *signature.Verifier
	EventLog EventLogger
	Payments PaymentUpdater
	Invoices InvoiceUpdater
	Notifier Notifier
	Metrics  *metrics.Metrics        `optional:"true"`
	Failures *metrics.WebhookMetrics `optional:"true"`
}

type Service struct {
	cfg      config.WebhookConfig
	log      *zap.Logger
	verifier *signature.Verifier
	eventLog EventLogger
	payments PaymentUpdater
	invoices InvoiceUpdater
	notifier Notifier
	metrics  *metrics.Metrics
	failures *metrics.WebhookMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		cfg:      p.Config.Webhook,
		log:      p.Log.Named("webhook.service"),
		verifier: p.Verifier,
		eventLog: p.EventLog,
		payments: p.Payments,
		invoices: p.Invoices,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		failures: p.Failures,
	}
}

// Ingest runs one delivery through parse, verify, apply, notify and log.
// Every call writes exactly one event log row.
func (s *Service) Ingest(ctx context.Context, req domain.IngestRequest) domain.IngestResult {
	ctx, span := tracing.Start(ctx, "webhook.ingest")
	defer span.End()

	log := logger.WithContext(ctx, s.log)
	entry := eventlog.Entry{
		EventType: domain.EventTypeSystem,
		RawBody:   req.Body,
		SourceIP:  req.SourceIP,
	}

	if req.BodyTooLarge {
		entry.ErrorMessage = domain.ErrPayloadTooLarge.Error()
		log.Warn("webhook body too large")
		return s.finish(ctx, entry, domain.IngestResult{
			Outcome:   domain.OutcomeInvalidPayload,
			EventType: domain.EventTypeSystem,
			Err:       domain.ErrPayloadTooLarge,
		})
	}

	payload, err := canonicaljson.Decode(req.Body)
	if err != nil {
		entry.ErrorMessage = fmt.Sprintf("%s: %v", domain.ErrInvalidPayload, err)
		log.Warn("webhook body is not valid JSON", zap.Int("body_bytes", len(req.Body)))
		return s.finish(ctx, entry, domain.IngestResult{
			Outcome:   domain.OutcomeInvalidPayload,
			EventType: domain.EventTypeSystem,
			Err:       domain.ErrInvalidPayload,
		})
	}

	eventType := domain.Classify(payload)
	entry.EventType = eventType
	span.SetAttributes(attribute.String("webhook.event_type", string(eventType)))

	if !s.verifier.Verify(payload, req.Signature, s.cfg.IPNSecret) {
		entry.ErrorMessage = domain.ErrInvalidSignature.Error()
		log.Warn("webhook signature rejected", zap.String("event_type", string(eventType)))
		return s.finish(ctx, entry, domain.IngestResult{
			Outcome:   domain.OutcomeInvalidSignature,
			EventType: eventType,
			Err:       domain.ErrInvalidSignature,
		})
	}
	entry.SignatureValid = true

	event, err := s.process(ctx, payload, req.Body)
	result := domain.IngestResult{EventType: eventType, Err: err}
	switch {
	case err == nil:
		result.Outcome = domain.OutcomeProcessed
		result.Processed = true
		entry.ProcessedSuccessfully = true
		s.notify(ctx, event)
	case IsTerminal(err):
		result.Outcome = domain.OutcomeProcessingFailed
		entry.ErrorMessage = err.Error()
		log.Warn("webhook processing failed", zap.String("event_type", string(eventType)), zap.Error(err))
	default:
		result.Outcome = domain.OutcomeProcessingFailed
		if s.cfg.RetryTransientFailures {
			result.Outcome = domain.OutcomeRetryable
		}
		entry.ErrorMessage = err.Error()
		s.failures.IncProcessingError(string(eventType), metrics.ClassifyFailureReason(err))
		log.Error("webhook processing error", zap.String("event_type", string(eventType)), zap.Error(err))
	}
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, string(result.Outcome))
	}

	return s.finish(ctx, entry, result)
}

func (s *Service) finish(ctx context.Context, entry eventlog.Entry, result domain.IngestResult) domain.IngestResult {
	result.Logged = s.eventLog.LogEvent(ctx, entry)
	if result.Logged == nil {
		s.metrics.RecordEventLogError(ctx, string(entry.EventType))
	}
	s.metrics.RecordWebhookEvent(ctx, string(result.EventType), string(result.Outcome))
	return result
}

// process narrows the payload and applies it. Panics become retryable errors.
func (s *Service) process(ctx context.Context, payload any, body []byte) (event domain.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("webhook processing panicked", zap.Any("panic", r))
			err = errProcessingPanic
		}
	}()

	if s.cfg.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProcessingTimeout)
		defer cancel()
	}

	event, err = domain.ParseEvent(payload)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "webhook.apply", attribute.String("webhook.event_type", string(event.Type())))
	defer span.End()

	switch ev := event.(type) {
	case *domain.PaymentEvent:
		ev.Body = body
		_, err = s.payments.Apply(ctx, ev)
	case *domain.InvoiceEvent:
		ev.Body = body
		_, err = s.invoices.UpdateInvoiceStatus(ctx, ev)
	case *domain.WithdrawalEvent:
		// Withdrawals have no local record yet.
		logger.WithContext(ctx, s.log).Info("withdrawal event received",
			zap.String("withdrawal_id", ev.WithdrawalID),
			zap.String("status", ev.Status),
		)
	case *domain.SystemEvent:
		logger.WithContext(ctx, s.log).Info("system event received", zap.Int("fields", len(ev.Payload)))
	}
	return event, err
}

func (s *Service) notify(ctx context.Context, event domain.Event) {
	if event == nil || event.Type() == domain.EventTypeSystem {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("notification panicked", zap.Any("panic", r))
		}
	}()
	if !s.notifier.Notify(ctx, string(event.Type()), event.Raw()) {
		logger.WithContext(ctx, s.log).Warn("notification not queued", zap.String("event_type", string(event.Type())))
	}
}

// IsTerminal reports processing errors that a redelivery cannot fix.
func IsTerminal(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, paymentdomain.ErrParentPaymentNotFound),
		errors.Is(err, paymentdomain.ErrSelfReferencingParent),
		errors.Is(err, paymentdomain.ErrMissingPaymentID),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, invoicedomain.ErrMissingInvoiceID),
		errors.Is(err, domain.ErrInvalidEventShape):
		return true
	default:
		return false
	}
}
