package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentRecord is a provider payment keyed by its provider payment_id.
type PaymentRecord struct {
	ID              snowflake.ID        `json:"id" gorm:"primaryKey"`
	PaymentID       string              `json:"payment_id" gorm:"type:varchar(64);not null;uniqueIndex"`
	OrderID         *string             `json:"order_id" gorm:"type:varchar(128)"`
	Status          string              `json:"status" gorm:"type:varchar(32);not null"`
	PayAmount       decimal.NullDecimal `json:"pay_amount" gorm:"type:numeric(38,18)"`
	ActuallyPaid    decimal.NullDecimal `json:"actually_paid" gorm:"type:numeric(38,18)"`
	PayCurrency     string              `json:"pay_currency" gorm:"type:varchar(32)"`
	ParentPaymentID *string             `json:"parent_payment_id" gorm:"type:varchar(64);index"`
	IsRedeposit     bool                `json:"is_redeposit" gorm:"not null;default:false"`
	WebhookData     datatypes.JSON      `json:"webhook_data"`
	Version         int64               `json:"version" gorm:"not null;default:0"`
	CreatedAt       time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time           `json:"updated_at" gorm:"not null"`
}

func (PaymentRecord) TableName() string { return "payments" }

const StatusWaiting = "waiting"

// StatusUpdate is applied in one conditional UPDATE keyed by PaymentID.
// Unset optional fields keep their stored values.
type StatusUpdate struct {
	PaymentID    string
	Status       string
	ActuallyPaid decimal.NullDecimal
	PayCurrency  string
	WebhookData  datatypes.JSON
	UpdatedAt    time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*PaymentRecord, error)
	ApplyStatus(ctx context.Context, db *gorm.DB, update StatusUpdate) (bool, error)
	LinkParent(ctx context.Context, db *gorm.DB, paymentID, parentPaymentID string, updatedAt time.Time) (bool, error)
	Exists(ctx context.Context, db *gorm.DB, paymentID string) (bool, error)
}

var (
	ErrPaymentNotFound       = errors.New("payment_not_found")
	ErrParentPaymentNotFound = errors.New("parent_payment_not_found")
	ErrSelfReferencingParent = errors.New("parent_payment_self_reference")
	ErrMissingPaymentID      = errors.New("missing_payment_id")
)
