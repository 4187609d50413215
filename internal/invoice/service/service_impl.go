package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/cryptopay/internal/clock"
	invoicedomain "github.com/smallbiznis/cryptopay/internal/invoice/domain"
	"github.com/smallbiznis/cryptopay/internal/observability/tracing"
	webhookdomain "github.com/smallbiznis/cryptopay/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  invoicedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  invoicedomain.Repository
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// UpdateInvoiceStatus applies the event to the invoice with its invoice_id.
func (s *Service) UpdateInvoiceStatus(ctx context.Context, event *webhookdomain.InvoiceEvent) (*invoicedomain.InvoiceRecord, error) {
	if event == nil || strings.TrimSpace(event.InvoiceID) == "" {
		return nil, invoicedomain.ErrMissingInvoiceID
	}
	if strings.TrimSpace(event.InvoiceStatus) == "" {
		return nil, fmt.Errorf("%w: invoice status is required", webhookdomain.ErrInvalidEventShape)
	}

	ctx, span := tracing.Start(ctx, "invoice.update_status")
	defer span.End()

	webhookData, err := webhookdomain.WebhookData(event.Body, event.Payload)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.ApplyStatus(ctx, s.db, invoicedomain.StatusUpdate{
		InvoiceID:    event.InvoiceID,
		Status:       event.InvoiceStatus,
		ActuallyPaid: event.ActuallyPaid,
		WebhookData:  webhookData,
		UpdatedAt:    s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("update invoice %s: %w", event.InvoiceID, err)
	}
	if !updated {
		return nil, fmt.Errorf("%w: %s", invoicedomain.ErrInvoiceNotFound, event.InvoiceID)
	}

	s.log.Info("invoice status updated",
		zap.String("invoice_id", event.InvoiceID),
		zap.String("status", event.InvoiceStatus),
	)

	return s.repo.FindByInvoiceID(ctx, s.db, event.InvoiceID)
}
