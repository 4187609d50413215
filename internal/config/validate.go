package config

import (
	"fmt"
)

// StartupError reports a configuration value the service cannot run with.
type StartupError struct {
	Field  string
	Reason string
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// Validate checks infrastructure settings. A missing IPN secret is not an
// error here; webhooks fail verification until it is configured.
func (c Config) Validate() error {
	switch c.DBType {
	case "postgres", "mysql", "sqlite":
	default:
		return &StartupError{Field: "DATABASE_TYPE", Reason: fmt.Sprintf("unsupported database type %q", c.DBType)}
	}
	if c.Webhook.SignatureHeader == "" {
		return &StartupError{Field: "NOWPAYMENTS_SIGNATURE_HEADER", Reason: "must not be empty"}
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		return &StartupError{Field: "WEBHOOK_MAX_BODY_BYTES", Reason: "must be positive"}
	}
	switch c.Notification.Queue {
	case QueueMemory:
		if c.Notification.QueueSize <= 0 {
			return &StartupError{Field: "NOTIFICATION_QUEUE_SIZE", Reason: "must be positive"}
		}
	case QueueRedis:
		if c.Redis.Addr == "" {
			return &StartupError{Field: "REDIS_ADDR", Reason: "required when NOTIFICATION_QUEUE=redis"}
		}
	default:
		return &StartupError{Field: "NOTIFICATION_QUEUE", Reason: fmt.Sprintf("unsupported queue %q", c.Notification.Queue)}
	}
	if c.Notification.Workers <= 0 {
		return &StartupError{Field: "NOTIFICATION_WORKERS", Reason: "must be positive"}
	}
	for _, sink := range c.Notification.Sinks {
		switch sink {
		case SinkLog:
		case SinkEmail:
			if c.SMTP.Host == "" || c.SMTP.From == "" {
				return &StartupError{Field: "SMTP_HOST", Reason: "SMTP_HOST and SMTP_FROM required for the email sink"}
			}
		case SinkNATS:
			if c.NATS.URL == "" {
				return &StartupError{Field: "NATS_URL", Reason: "required for the nats sink"}
			}
		default:
			return &StartupError{Field: "NOTIFICATION_SINKS", Reason: fmt.Sprintf("unknown sink %q", sink)}
		}
	}
	return nil
}
