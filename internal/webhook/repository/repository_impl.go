package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cryptopay/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, event_type, payload, signature_valid, source_ip,
			processed_successfully, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.EventType,
		event.Payload,
		event.SignatureValid,
		event.SourceIP,
		event.ProcessedSuccessfully,
		event.ErrorMessage,
		event.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WebhookEvent, error) {
	var item domain.WebhookEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_type, payload, signature_valid, source_ip,
			processed_successfully, error_message, created_at
		 FROM webhook_events
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrEventNotFound
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.WebhookEvent, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := db.WithContext(ctx).Model(&domain.WebhookEvent{})
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.FailedOnly {
		query = query.Where("processed_successfully = ?", false)
	}

	var items []domain.WebhookEvent
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
