package service

import (
	invoiceservice "github.com/smallbiznis/cryptopay/internal/invoice/service"
	"github.com/smallbiznis/cryptopay/internal/notification"
	paymentservice "github.com/smallbiznis/cryptopay/internal/payment/service"
	"github.com/smallbiznis/cryptopay/internal/webhook/eventlog"
	"github.com/smallbiznis/cryptopay/internal/webhook/signature"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(
		signature.NewVerifier,
		func(s *paymentservice.Service) PaymentUpdater { return s },
		func(s *invoiceservice.Service) InvoiceUpdater { return s },
		func(d *notification.Dispatcher) Notifier { return d },
		func(w *eventlog.Writer) EventLogger { return w },
		NewService,
	),
)
