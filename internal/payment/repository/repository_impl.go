package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/cryptopay/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, payment_id, order_id, status, pay_amount, actually_paid, pay_currency,
			parent_payment_id, is_redeposit, webhook_data, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.PaymentID,
		record.OrderID,
		record.Status,
		record.PayAmount,
		record.ActuallyPaid,
		record.PayCurrency,
		record.ParentPaymentID,
		record.IsRedeposit,
		record.WebhookData,
		record.Version,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*domain.PaymentRecord, error) {
	var item domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, order_id, status, pay_amount, actually_paid, pay_currency,
			parent_payment_id, is_redeposit, webhook_data, version, created_at, updated_at
		 FROM payments
		 WHERE payment_id = ?
		 LIMIT 1`,
		paymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	return &item, nil
}

// ApplyStatus updates the row in a single statement and bumps version.
// It reports false when no row has the payment id.
func (r *repo) ApplyStatus(ctx context.Context, db *gorm.DB, update domain.StatusUpdate) (bool, error) {
	var payCurrency any
	if update.PayCurrency != "" {
		payCurrency = update.PayCurrency
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?,
			actually_paid = COALESCE(?, actually_paid),
			pay_currency = COALESCE(?, pay_currency),
			webhook_data = ?,
			updated_at = ?,
			version = version + 1
		 WHERE payment_id = ?`,
		update.Status,
		update.ActuallyPaid,
		payCurrency,
		update.WebhookData,
		update.UpdatedAt,
		update.PaymentID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// LinkParent marks paymentID as a redeposit of parentPaymentID. The row is
// only touched when the parent exists and differs from the payment itself.
func (r *repo) LinkParent(ctx context.Context, db *gorm.DB, paymentID, parentPaymentID string, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET parent_payment_id = ?,
			is_redeposit = TRUE,
			updated_at = ?,
			version = version + 1
		 WHERE payment_id = ?
			AND payment_id <> ?
			AND EXISTS (
				SELECT 1 FROM (
					SELECT payment_id FROM payments WHERE payment_id = ? LIMIT 1
				) parent
			)`,
		parentPaymentID,
		updatedAt,
		paymentID,
		parentPaymentID,
		parentPaymentID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, paymentID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payments WHERE payment_id = ?`,
		paymentID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
