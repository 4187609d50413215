package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smallbiznis/cryptopay/internal/config"
	"go.uber.org/zap"
)

// NATSSink publishes each job to <prefix>.<event_type>.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSSink(cfg config.NATSConfig, appName string, log *zap.Logger) (*NATSSink, error) {
	log = log.Named("notification.nats")
	opts := []nats.Option{
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Subject(eventType string) string {
	if s.prefix == "" {
		return eventType
	}
	return s.prefix + "." + eventType
}

func (s *NATSSink) Send(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return s.conn.Publish(s.Subject(job.EventType), payload)
}

func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
