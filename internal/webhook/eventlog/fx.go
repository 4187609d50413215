package eventlog

import (
	"github.com/smallbiznis/cryptopay/internal/webhook/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.eventlog",
	fx.Provide(repository.Provide),
	fx.Provide(NewWriter),
)
