package repository

import (
	"context"

	"github.com/smallbiznis/cryptopay/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.InvoiceRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, invoice_id, order_id, status, price_amount, price_currency,
			actually_paid, webhook_data, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.InvoiceID,
		record.OrderID,
		record.Status,
		record.PriceAmount,
		record.PriceCurrency,
		record.ActuallyPaid,
		record.WebhookData,
		record.Version,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) FindByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.InvoiceRecord, error) {
	var item domain.InvoiceRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, order_id, status, price_amount, price_currency,
			actually_paid, webhook_data, version, created_at, updated_at
		 FROM invoices
		 WHERE invoice_id = ?
		 LIMIT 1`,
		invoiceID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrInvoiceNotFound
	}
	return &item, nil
}

func (r *repo) ApplyStatus(ctx context.Context, db *gorm.DB, update domain.StatusUpdate) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?,
			actually_paid = COALESCE(?, actually_paid),
			webhook_data = ?,
			updated_at = ?,
			version = version + 1
		 WHERE invoice_id = ?`,
		update.Status,
		update.ActuallyPaid,
		update.WebhookData,
		update.UpdatedAt,
		update.InvoiceID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
