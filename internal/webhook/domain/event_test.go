package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestClassifyPrecedence(t *testing.T) {
	cases := []struct {
		name    string
		payload any
		want    EventType
	}{
		{"payment wins over invoice", map[string]any{"payment_id": "P", "invoice_id": "I"}, EventTypePayment},
		{"invoice wins over withdrawal", map[string]any{"invoice_id": "I", "withdrawal_id": "W"}, EventTypeInvoice},
		{"withdrawal", map[string]any{"withdrawal_id": float64(12)}, EventTypeWithdrawal},
		{"empty object", map[string]any{}, EventTypeSystem},
		{"null payment id falls through", map[string]any{"payment_id": nil, "invoice_id": "I"}, EventTypeInvoice},
		{"empty string is absent", map[string]any{"payment_id": ""}, EventTypeSystem},
		{"array payload", []any{1, 2}, EventTypeSystem},
		{"nil payload", nil, EventTypeSystem},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.payload); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestParsePaymentEvent(t *testing.T) {
	ev, err := ParseEvent(map[string]any{
		"payment_id":        float64(5077125051),
		"payment_status":    "partially_paid",
		"actually_paid":     float64(0.5),
		"pay_amount":        "0.25",
		"pay_currency":      "btc",
		"parent_payment_id": "PAY-A",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	payment, ok := ev.(*PaymentEvent)
	if !ok {
		t.Fatalf("expected *PaymentEvent, got %T", ev)
	}
	if payment.PaymentID != "5077125051" {
		t.Fatalf("unexpected payment id %q", payment.PaymentID)
	}
	if !payment.ActuallyPaid.Decimal.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("unexpected actually_paid %s", payment.ActuallyPaid.Decimal)
	}
	if !payment.IsRedeposit() || payment.ParentPaymentID != "PAY-A" {
		t.Fatalf("expected redeposit of PAY-A")
	}
	if !payment.IsOverpaid() {
		t.Fatalf("expected overpayment to be detected")
	}
}

func TestParsePaymentRequiresStatus(t *testing.T) {
	_, err := ParseEvent(map[string]any{"payment_id": "PAY-1"})
	if !errors.Is(err, ErrInvalidEventShape) {
		t.Fatalf("expected ErrInvalidEventShape, got %v", err)
	}
}

func TestParsePaymentRejectsNonNumericAmount(t *testing.T) {
	_, err := ParseEvent(map[string]any{"payment_id": "PAY-1", "payment_status": "finished", "actually_paid": "lots"})
	if !errors.Is(err, ErrInvalidEventShape) {
		t.Fatalf("expected ErrInvalidEventShape, got %v", err)
	}
}

func TestParseInvoiceFallsBackToPaymentStatus(t *testing.T) {
	ev, err := ParseEvent(map[string]any{"invoice_id": "INV-1", "payment_status": "finished"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	invoice := ev.(*InvoiceEvent)
	if invoice.InvoiceStatus != "finished" {
		t.Fatalf("unexpected status %q", invoice.InvoiceStatus)
	}
	if invoice.ActuallyPaid.Valid {
		t.Fatalf("expected actually_paid unset")
	}
}

func TestParseSystemAndWithdrawal(t *testing.T) {
	ev, err := ParseEvent(map[string]any{"ping": true})
	if err != nil || ev.Type() != EventTypeSystem {
		t.Fatalf("expected system event, got %v %v", ev, err)
	}
	ev, err = ParseEvent(map[string]any{"withdrawal_id": "W-1", "status": "FINISHED", "amount": float64(3)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	w := ev.(*WithdrawalEvent)
	if w.WithdrawalID != "W-1" || w.Status != "FINISHED" {
		t.Fatalf("unexpected withdrawal %+v", w)
	}
}

func TestOverpaymentRequiresPartiallyPaid(t *testing.T) {
	ev := &PaymentEvent{
		PaymentStatus: "finished",
		ActuallyPaid:  decimal.NewNullDecimal(decimal.NewFromInt(2)),
		PayAmount:     decimal.NewNullDecimal(decimal.NewFromInt(1)),
	}
	if ev.IsOverpaid() {
		t.Fatalf("finished payments are not reported as overpaid")
	}
}

func TestWebhookData(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		payload map[string]any
		want    string
	}{
		{"body kept byte for byte", `{"b":1, "a":"<&>"}`, map[string]any{"a": "<&>", "b": float64(1)}, `{"b":1, "a":"<&>"}`},
		{"no body falls back to payload", "", map[string]any{"a": "x"}, `{"a":"x"}`},
		{"nothing at all", "", nil, "null"},
		{"escaped NUL is not stored", `{"a":"x\u0000"}`, map[string]any{"a": "x\x00"}, "null"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := WebhookData([]byte(tc.body), tc.payload)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
