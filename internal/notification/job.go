package notification

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrQueueFull   = errors.New("notification_queue_full")
	ErrQueueClosed = errors.New("notification_queue_closed")
)

// Job is one queued notification.
type Job struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	Status     string         `json:"status,omitempty"`
	Reference  string         `json:"reference,omitempty"`
	Recipients []string       `json:"recipients,omitempty"`
	Data       map[string]any `json:"data"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

func newJobID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
