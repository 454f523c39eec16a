package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ConfirmUpdate carries the ledger-observed fields written on confirmation.
type ConfirmUpdate struct {
	SenderAddress   string
	Amount          string
	LedgerSlot      uint64
	LedgerTimestamp *time.Time
	Confirmations   uint64
	ConfirmedAt     time.Time
}

type RecordCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type RecordFilter struct {
	OrgID     snowflake.ID
	Status    Status
	PayerID   string
	ContentID string
	Cursor    *RecordCursor
	Limit     int
}

type Repository interface {
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*PaymentRecord, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentRecord, error)
	InsertPending(ctx context.Context, db *gorm.DB, record *PaymentRecord) (bool, error)
	MarkConfirmed(ctx context.Context, db *gorm.DB, id snowflake.ID, update ConfirmUpdate) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason Reason, updatedAt time.Time) (bool, error)
	UpdateProgress(ctx context.Context, db *gorm.DB, id snowflake.ID, ledgerSlot, confirmations uint64, updatedAt time.Time) (bool, error)
	InsertEntitlement(ctx context.Context, db *gorm.DB, entitlement *Entitlement) (bool, error)
	FindEntitlement(ctx context.Context, db *gorm.DB, orgID snowflake.ID, payerID, contentID string) (*Entitlement, error)
	List(ctx context.Context, db *gorm.DB, filter RecordFilter) ([]*PaymentRecord, error)
	ListStalePending(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]*PaymentRecord, error)
}
