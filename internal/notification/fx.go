package notification

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/cryptopay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(
		provideRedisClient,
		provideQueue,
		provideDeduper,
		provideSinks,
		provideRouting,
		fx.Annotate(provideWorkers, fx.ResultTags(`name:"notification_workers"`)),
		NewDispatcher,
		NewPool,
	),
	fx.Invoke(registerPool),
)

func provideRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func provideQueue(lc fx.Lifecycle, cfg config.Config, client *redis.Client) (Queue, error) {
	var queue Queue
	switch cfg.Notification.Queue {
	case config.QueueRedis:
		if client == nil {
			return nil, fmt.Errorf("notification queue %q requires REDIS_ADDR", config.QueueRedis)
		}
		queue = NewRedisQueue(client, cfg.Notification.RedisKey)
	default:
		queue = NewMemoryQueue(cfg.Notification.QueueSize)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return queue.Close()
		},
	})
	return queue, nil
}

func provideDeduper(client *redis.Client) Deduper {
	if client == nil {
		return nil
	}
	return NewRedisDeduper(client)
}

func provideSinks(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) ([]Sink, error) {
	var sinks []Sink
	if cfg.HasSink(config.SinkLog) {
		sinks = append(sinks, NewLogSink(log))
	}
	if cfg.HasSink(config.SinkEmail) {
		sinks = append(sinks, NewEmailSink(cfg.SMTP))
	}
	if cfg.HasSink(config.SinkNATS) {
		sink, err := NewNATSSink(cfg.NATS, cfg.AppName, log)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return sink.Close()
			},
		})
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func provideRouting(cfg config.Config, log *zap.Logger) (*config.RoutingConfigHolder, error) {
	return config.NewRoutingConfigHolder(cfg.Notification.RoutingFile, log)
}

func provideWorkers(cfg config.Config) int {
	return cfg.Notification.Workers
}

func registerPool(lc fx.Lifecycle, pool *Pool) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pool.Start(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return pool.Stop(ctx)
		},
	})
}
