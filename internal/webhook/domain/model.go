package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEvent is one append-only audit row per inbound webhook request.
type WebhookEvent struct {
	ID                    snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventType             EventType      `json:"event_type" gorm:"type:varchar(32);not null;index"`
	Payload               datatypes.JSON `json:"payload"`
	SignatureValid        bool           `json:"signature_valid" gorm:"not null"`
	SourceIP              string         `json:"source_ip" gorm:"type:varchar(64)"`
	ProcessedSuccessfully bool           `json:"processed_successfully" gorm:"not null"`
	ErrorMessage          *string        `json:"error_message"`
	CreatedAt             time.Time      `json:"created_at" gorm:"not null;index"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *WebhookEvent) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WebhookEvent, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]WebhookEvent, error)
}

type ListFilter struct {
	EventType  EventType
	FailedOnly bool
	Limit      int
}
