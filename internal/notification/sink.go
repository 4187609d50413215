package notification

import (
	"context"

	"go.uber.org/zap"
)

// Sink delivers a job to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, job Job) error
}

type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("notification.log")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, job Job) error {
	s.log.Info("notification",
		zap.String("notification_id", job.ID),
		zap.String("event_type", job.EventType),
		zap.String("status", job.Status),
		zap.String("reference", job.Reference),
		zap.Int("recipients", len(job.Recipients)),
	)
	return nil
}
