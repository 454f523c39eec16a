package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tugas/internal/payment/domain"
	"gorm.io/gorm"
)

const recordColumns = `id, org_id, payer_id, content_id, network, transaction_reference,
	sender_address, recipient_address, amount, expected_amount, status, failure_reason,
	ledger_slot, ledger_timestamp, confirmations, created_at, updated_at, confirmed_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.PaymentRecord, error) {
	var item domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM payment_records
		 WHERE transaction_reference = ?
		 LIMIT 1`,
		reference,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentRecord, error) {
	var item domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM payment_records
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// InsertPending reports false when the reference is already claimed.
func (r *repo) InsertPending(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_records (
			id, org_id, payer_id, content_id, network, transaction_reference,
			sender_address, recipient_address, amount, expected_amount, status, failure_reason,
			ledger_slot, ledger_timestamp, confirmations, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_reference) DO NOTHING`,
		record.ID,
		record.OrgID,
		record.PayerID,
		record.ContentID,
		record.Network,
		record.TransactionReference,
		record.SenderAddress,
		record.RecipientAddress,
		record.Amount,
		record.ExpectedAmount,
		record.Status,
		record.FailureReason,
		record.LedgerSlot,
		record.LedgerTimestamp,
		record.Confirmations,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkConfirmed is a compare-and-swap; CONFIRMED rows are never touched again.
func (r *repo) MarkConfirmed(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.ConfirmUpdate) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status = ?, sender_address = ?, amount = ?, ledger_slot = ?, ledger_timestamp = ?,
			confirmations = ?, failure_reason = '', confirmed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusConfirmed,
		update.SenderAddress,
		update.Amount,
		update.LedgerSlot,
		update.LedgerTimestamp,
		update.Confirmations,
		update.ConfirmedAt,
		update.ConfirmedAt,
		id,
		domain.StatusPending,
		domain.StatusFailed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason domain.Reason, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusFailed,
		string(reason),
		updatedAt,
		id,
		domain.StatusPending,
		domain.StatusFailed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateProgress records a shallow-but-genuine observation and reopens FAILED records.
func (r *repo) UpdateProgress(ctx context.Context, db *gorm.DB, id snowflake.ID, ledgerSlot, confirmations uint64, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status = ?, failure_reason = '', ledger_slot = ?, confirmations = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusPending,
		ledgerSlot,
		confirmations,
		updatedAt,
		id,
		domain.StatusPending,
		domain.StatusFailed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertEntitlement(ctx context.Context, db *gorm.DB, entitlement *domain.Entitlement) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO content_entitlements (
			id, org_id, payer_id, content_id, payment_record_id, granted_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, payer_id, content_id) DO NOTHING`,
		entitlement.ID,
		entitlement.OrgID,
		entitlement.PayerID,
		entitlement.ContentID,
		entitlement.PaymentRecordID,
		entitlement.GrantedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEntitlement(ctx context.Context, db *gorm.DB, orgID snowflake.ID, payerID, contentID string) (*domain.Entitlement, error) {
	var item domain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, payer_id, content_id, payment_record_id, granted_at
		 FROM content_entitlements
		 WHERE org_id = ? AND payer_id = ? AND content_id = ?
		 LIMIT 1`,
		orgID,
		payerID,
		contentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.RecordFilter) ([]*domain.PaymentRecord, error) {
	var items []*domain.PaymentRecord
	stmt := db.WithContext(ctx).Model(&domain.PaymentRecord{}).
		Where("org_id = ?", filter.OrgID)

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if payerID := strings.TrimSpace(filter.PayerID); payerID != "" {
		stmt = stmt.Where("payer_id = ?", payerID)
	}
	if contentID := strings.TrimSpace(filter.ContentID); contentID != "" {
		stmt = stmt.Where("content_id = ?", contentID)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListStalePending(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]*domain.PaymentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []*domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM payment_records
		 WHERE status = ? AND updated_at < ?
		 ORDER BY updated_at ASC, id ASC
		 LIMIT ?`,
		domain.StatusPending,
		olderThan,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
