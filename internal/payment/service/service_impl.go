package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/cryptopay/internal/clock"
	obsmetrics "github.com/smallbiznis/cryptopay/internal/observability/metrics"
	"github.com/smallbiznis/cryptopay/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/cryptopay/internal/payment/domain"
	webhookdomain "github.com/smallbiznis/cryptopay/internal/webhook/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       paymentdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// Apply runs the status update and, for redeposits, the parent link in one
// transaction. A link that has to be refused (self reference or a parent
// unknown locally) does not undo the status update: the record is returned
// together with the refusal.
func (s *Service) Apply(ctx context.Context, event *webhookdomain.PaymentEvent) (*paymentdomain.PaymentRecord, error) {
	ctx, span := tracing.Start(ctx, "payment.apply", attribute.Bool("payment.redeposit", event != nil && event.IsRedeposit()))
	defer span.End()

	var (
		record  *paymentdomain.PaymentRecord
		linkErr error
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if err = s.updateStatus(ctx, tx, event); err != nil {
			return err
		}
		if event.IsRedeposit() {
			if err = s.linkParent(ctx, tx, event); err != nil {
				if !isRefusedLink(err) {
					return err
				}
				linkErr = err
			}
		}
		record, err = s.repo.FindByPaymentID(ctx, tx, event.PaymentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, event)
	if linkErr != nil {
		s.log.Warn("parent link refused",
			zap.String("payment_id", event.PaymentID),
			zap.String("parent_payment_id", event.ParentPaymentID),
			zap.Error(linkErr),
		)
		return record, linkErr
	}
	return record, nil
}

func isRefusedLink(err error) bool {
	return errors.Is(err, paymentdomain.ErrParentPaymentNotFound) ||
		errors.Is(err, paymentdomain.ErrSelfReferencingParent)
}

// UpdatePaymentStatus applies status, amounts, currency and the raw payload
// to the payment with the event's payment_id.
func (s *Service) UpdatePaymentStatus(ctx context.Context, event *webhookdomain.PaymentEvent) (*paymentdomain.PaymentRecord, error) {
	if err := s.updateStatus(ctx, s.db, event); err != nil {
		return nil, err
	}
	s.observe(ctx, event)
	return s.repo.FindByPaymentID(ctx, s.db, event.PaymentID)
}

// HandleParentPayment links the event's payment to its parent_payment_id and
// flags it as a redeposit. The parent record itself is never modified.
func (s *Service) HandleParentPayment(ctx context.Context, event *webhookdomain.PaymentEvent) error {
	return s.linkParent(ctx, s.db, event)
}

func (s *Service) updateStatus(ctx context.Context, db *gorm.DB, event *webhookdomain.PaymentEvent) error {
	if event == nil || strings.TrimSpace(event.PaymentID) == "" {
		return paymentdomain.ErrMissingPaymentID
	}
	if strings.TrimSpace(event.PaymentStatus) == "" {
		return fmt.Errorf("%w: payment_status is required", webhookdomain.ErrInvalidEventShape)
	}

	webhookData, err := webhookdomain.WebhookData(event.Body, event.Payload)
	if err != nil {
		return err
	}

	updated, err := s.repo.ApplyStatus(ctx, db, paymentdomain.StatusUpdate{
		PaymentID:    event.PaymentID,
		Status:       event.PaymentStatus,
		ActuallyPaid: event.ActuallyPaid,
		PayCurrency:  event.PayCurrency,
		WebhookData:  webhookData,
		UpdatedAt:    s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("update payment %s: %w", event.PaymentID, err)
	}
	if !updated {
		return fmt.Errorf("%w: %s", paymentdomain.ErrPaymentNotFound, event.PaymentID)
	}

	s.log.Info("payment status updated",
		zap.String("payment_id", event.PaymentID),
		zap.String("status", event.PaymentStatus),
	)
	return nil
}

func (s *Service) linkParent(ctx context.Context, db *gorm.DB, event *webhookdomain.PaymentEvent) error {
	if event == nil || strings.TrimSpace(event.PaymentID) == "" {
		return paymentdomain.ErrMissingPaymentID
	}
	parentID := strings.TrimSpace(event.ParentPaymentID)
	if parentID == "" {
		return nil
	}
	if parentID == event.PaymentID {
		return fmt.Errorf("%w: %s", paymentdomain.ErrSelfReferencingParent, event.PaymentID)
	}

	linked, err := s.repo.LinkParent(ctx, db, event.PaymentID, parentID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("link payment %s to parent %s: %w", event.PaymentID, parentID, err)
	}
	if !linked {
		exists, err := s.repo.Exists(ctx, db, event.PaymentID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", paymentdomain.ErrPaymentNotFound, event.PaymentID)
		}
		return fmt.Errorf("%w: %s", paymentdomain.ErrParentPaymentNotFound, parentID)
	}

	s.log.Info("payment linked to parent",
		zap.String("payment_id", event.PaymentID),
		zap.String("parent_payment_id", parentID),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRedeposit(ctx)
	}
	return nil
}

func (s *Service) observe(ctx context.Context, event *webhookdomain.PaymentEvent) {
	if !event.IsOverpaid() {
		return
	}
	s.log.Info("payment overpaid",
		zap.String("payment_id", event.PaymentID),
		zap.String("pay_currency", event.PayCurrency),
		zap.String("pay_amount", event.PayAmount.Decimal.String()),
		zap.String("actually_paid", event.ActuallyPaid.Decimal.String()),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordOverpayment(ctx, event.PayCurrency)
	}
}
