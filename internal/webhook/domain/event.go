package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTypePayment    EventType = "payment"
	EventTypeInvoice    EventType = "invoice"
	EventTypeWithdrawal EventType = "withdrawal"
	EventTypeSystem     EventType = "system"
)

const (
	StatusPartiallyPaid = "partially_paid"
)

// Event is the narrowed shape of a verified payload. Exactly one of
// PaymentEvent, InvoiceEvent, WithdrawalEvent or SystemEvent.
type Event interface {
	Type() EventType
	Raw() map[string]any
	isEvent()
}

type PaymentEvent struct {
	PaymentID       string
	PaymentStatus   string
	ActuallyPaid    decimal.NullDecimal
	PayAmount       decimal.NullDecimal
	PayCurrency     string
	ParentPaymentID string
	OrderID         string
	Payload         map[string]any
	// Body is the delivery as received, when the caller has it.
	Body []byte
}

func (*PaymentEvent) Type() EventType       { return EventTypePayment }
func (e *PaymentEvent) Raw() map[string]any { return e.Payload }
func (*PaymentEvent) isEvent()              {}

// IsRedeposit reports whether the event references an earlier payment.
func (e *PaymentEvent) IsRedeposit() bool { return e.ParentPaymentID != "" }

// IsOverpaid reports a partially_paid event that received more than requested.
func (e *PaymentEvent) IsOverpaid() bool {
	if e.PaymentStatus != StatusPartiallyPaid || !e.ActuallyPaid.Valid || !e.PayAmount.Valid {
		return false
	}
	return e.ActuallyPaid.Decimal.GreaterThan(e.PayAmount.Decimal)
}

type InvoiceEvent struct {
	InvoiceID     string
	InvoiceStatus string
	ActuallyPaid  decimal.NullDecimal
	Payload       map[string]any
	Body          []byte
}

func (*InvoiceEvent) Type() EventType       { return EventTypeInvoice }
func (e *InvoiceEvent) Raw() map[string]any { return e.Payload }
func (*InvoiceEvent) isEvent()              {}

type WithdrawalEvent struct {
	WithdrawalID string
	Status       string
	Amount       decimal.NullDecimal
	Currency     string
	Payload      map[string]any
}

func (*WithdrawalEvent) Type() EventType       { return EventTypeWithdrawal }
func (e *WithdrawalEvent) Raw() map[string]any { return e.Payload }
func (*WithdrawalEvent) isEvent()              {}

// SystemEvent carries payloads with no identifying field, such as test pings.
type SystemEvent struct {
	Payload map[string]any
}

func (*SystemEvent) Type() EventType       { return EventTypeSystem }
func (e *SystemEvent) Raw() map[string]any { return e.Payload }
func (*SystemEvent) isEvent()              {}

// Classify picks the event kind from the identifier fields present, checking
// payment_id, then invoice_id, then withdrawal_id. Anything else is system.
func Classify(payload any) EventType {
	obj, ok := payload.(map[string]any)
	if !ok {
		return EventTypeSystem
	}
	switch {
	case present(obj["payment_id"]):
		return EventTypePayment
	case present(obj["invoice_id"]):
		return EventTypeInvoice
	case present(obj["withdrawal_id"]):
		return EventTypeWithdrawal
	default:
		return EventTypeSystem
	}
}

// ParseEvent classifies payload and decodes the fields of that kind.
func ParseEvent(payload any) (Event, error) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return &SystemEvent{}, nil
	}

	switch Classify(obj) {
	case EventTypePayment:
		return parsePayment(obj)
	case EventTypeInvoice:
		return parseInvoice(obj)
	case EventTypeWithdrawal:
		return parseWithdrawal(obj)
	default:
		return &SystemEvent{Payload: obj}, nil
	}
}

func parsePayment(obj map[string]any) (*PaymentEvent, error) {
	ev := &PaymentEvent{Payload: obj}
	var err error
	if ev.PaymentID, err = identifier(obj, "payment_id"); err != nil {
		return nil, err
	}
	if ev.PaymentStatus, err = requiredString(obj, "payment_status"); err != nil {
		return nil, err
	}
	if ev.ActuallyPaid, err = amount(obj, "actually_paid"); err != nil {
		return nil, err
	}
	if ev.PayAmount, err = amount(obj, "pay_amount"); err != nil {
		return nil, err
	}
	if ev.PayCurrency, err = optionalString(obj, "pay_currency"); err != nil {
		return nil, err
	}
	if present(obj["parent_payment_id"]) {
		if ev.ParentPaymentID, err = identifier(obj, "parent_payment_id"); err != nil {
			return nil, err
		}
	}
	if present(obj["order_id"]) {
		ev.OrderID, _ = identifier(obj, "order_id")
	}
	return ev, nil
}

func parseInvoice(obj map[string]any) (*InvoiceEvent, error) {
	ev := &InvoiceEvent{Payload: obj}
	var err error
	if ev.InvoiceID, err = identifier(obj, "invoice_id"); err != nil {
		return nil, err
	}
	// Invoice callbacks report the underlying payment status.
	status, err := optionalString(obj, "invoice_status")
	if err != nil {
		return nil, err
	}
	if status == "" {
		if status, err = requiredString(obj, "payment_status"); err != nil {
			return nil, err
		}
	}
	ev.InvoiceStatus = status
	if ev.ActuallyPaid, err = amount(obj, "actually_paid"); err != nil {
		return nil, err
	}
	return ev, nil
}

func parseWithdrawal(obj map[string]any) (*WithdrawalEvent, error) {
	ev := &WithdrawalEvent{Payload: obj}
	var err error
	if ev.WithdrawalID, err = identifier(obj, "withdrawal_id"); err != nil {
		return nil, err
	}
	if ev.Status, err = optionalString(obj, "status"); err != nil {
		return nil, err
	}
	if ev.Amount, err = amount(obj, "amount"); err != nil {
		return nil, err
	}
	if ev.Currency, err = optionalString(obj, "currency"); err != nil {
		return nil, err
	}
	return ev, nil
}

// present mirrors a truthiness check: null, false, "" and 0 count as absent.
func present(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	default:
		return true
	}
}

// identifier accepts provider ids sent either as JSON strings or numbers.
func identifier(obj map[string]any, key string) (string, error) {
	switch val := obj[key].(type) {
	case string:
		id := strings.TrimSpace(val)
		if id == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrInvalidEventShape, key)
		}
		return id, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %s must be a string or number", ErrInvalidEventShape, key)
	}
}

func requiredString(obj map[string]any, key string) (string, error) {
	s, err := optionalString(obj, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidEventShape, key)
	}
	return s, nil
}

func optionalString(obj map[string]any, key string) (string, error) {
	switch val := obj[key].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(val), nil
	default:
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidEventShape, key)
	}
}

// amount accepts numbers and numeric strings; null or missing is not set.
func amount(obj map[string]any, key string) (decimal.NullDecimal, error) {
	switch val := obj[key].(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(val)), nil
	case string:
		if strings.TrimSpace(val) == "" {
			return decimal.NullDecimal{}, nil
		}
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("%w: %s is not numeric", ErrInvalidEventShape, key)
		}
		return decimal.NewNullDecimal(d), nil
	default:
		return decimal.NullDecimal{}, fmt.Errorf("%w: %s must be numeric", ErrInvalidEventShape, key)
	}
}
