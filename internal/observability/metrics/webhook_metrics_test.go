package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyFailureReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("update: %w", context.DeadlineExceeded), want: FailureReasonDeadlineExceeded},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: FailureReasonDBLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: FailureReasonSerializationFailure},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: FailureReasonSerializationFailure},
		{name: "other_pg", err: &pgconn.PgError{Code: "23502"}, want: FailureReasonDB},
		{name: "gorm", err: gorm.ErrInvalidTransaction, want: FailureReasonDB},
		{name: "unknown", err: errors.New("boom"), want: FailureReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyFailureReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObserveRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newWebhookMetrics(registry, Config{ServiceName: "cryptopay", Environment: "test"})

	m.ObserveRequest("payment", "200", 15*time.Millisecond)
	m.ObserveRequest("payment", "200", 5*time.Millisecond)
	m.IncProcessingError("invoice", FailureReasonDB)
	m.SetQueueDepth(4)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("payment", "200")); got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.processingErrs.WithLabelValues("invoice", FailureReasonDB)); got != 1 {
		t.Fatalf("expected 1 processing error, got %v", got)
	}
	if got := testutil.ToFloat64(m.queueDepth); got != 4 {
		t.Fatalf("expected queue depth 4, got %v", got)
	}
}
