package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cryptopay/internal/clock"
	"github.com/smallbiznis/cryptopay/internal/config"
	"github.com/smallbiznis/cryptopay/internal/invoice"
	"github.com/smallbiznis/cryptopay/internal/migration"
	"github.com/smallbiznis/cryptopay/internal/notification"
	"github.com/smallbiznis/cryptopay/internal/observability"
	"github.com/smallbiznis/cryptopay/internal/payment"
	"github.com/smallbiznis/cryptopay/internal/server"
	"github.com/smallbiznis/cryptopay/internal/webhook/eventlog"
	webhookservice "github.com/smallbiznis/cryptopay/internal/webhook/service"
	"github.com/smallbiznis/cryptopay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		eventlog.Module,
		payment.Module,
		invoice.Module,
		notification.Module,
		webhookservice.Module,

		server.Module,
		fx.Invoke(warnMissingSecret),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// Without a secret every delivery fails verification and is answered 401.
func warnMissingSecret(cfg config.Config, log *zap.Logger) {
	if cfg.Webhook.IPNSecret == "" {
		log.Warn("NOWPAYMENTS_IPN_SECRET is not set; all webhooks will be rejected")
	}
}
