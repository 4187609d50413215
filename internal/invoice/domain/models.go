// Package domain contains persistence models for provider invoices.
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

// InvoiceRecord represents a provider invoice keyed by invoice_id.
type InvoiceRecord struct {
	ID            snowflake.ID        `json:"id" gorm:"primaryKey"`
	InvoiceID     string              `json:"invoice_id" gorm:"type:varchar(64);not null;uniqueIndex"`
	OrderID       *string             `json:"order_id" gorm:"type:varchar(128)"`
	Status        string              `json:"status" gorm:"type:varchar(32);not null"`
	PriceAmount   decimal.NullDecimal `json:"price_amount" gorm:"type:numeric(38,18)"`
	PriceCurrency string              `json:"price_currency" gorm:"type:varchar(32)"`
	ActuallyPaid  decimal.NullDecimal `json:"actually_paid" gorm:"type:numeric(38,18)"`
	WebhookData   datatypes.JSON      `json:"webhook_data"`
	Version       int64               `json:"version" gorm:"not null;default:0"`
	CreatedAt     time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time           `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceRecord) TableName() string { return "invoices" }

// StatusUpdate is applied in one conditional UPDATE keyed by InvoiceID.
type StatusUpdate struct {
	InvoiceID    string
	Status       string
	ActuallyPaid decimal.NullDecimal
	WebhookData  datatypes.JSON
	UpdatedAt    time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *InvoiceRecord) error
	FindByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID string) (*InvoiceRecord, error)
	ApplyStatus(ctx context.Context, db *gorm.DB, update StatusUpdate) (bool, error)
}

var (
	ErrInvoiceNotFound  = errors.New("invoice_not_found")
	ErrMissingInvoiceID = errors.New("missing_invoice_id")
)
