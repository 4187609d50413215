package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "payment"),
		attribute.String("payment_id", "PAY-1"),
		attribute.String("outcome", "processed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "event_type" && attrs[1].Key != "event_type" {
		t.Fatalf("expected event_type to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordWebhookEvent(context.Background(), "payment", "processed")
	m.RecordOverpayment(context.Background(), "btc")
	m.RecordNotification(context.Background(), "payment", "enqueued")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "cryptopay"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordWebhookEvent(context.Background(), "payment", "processed")
	m.RecordRedeposit(context.Background())
	m.RecordEventLogError(context.Background(), "system")
}
