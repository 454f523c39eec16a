package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/holiman/uint256"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// PaymentRecord is the durable claim on a transaction reference.
// Amount and ExpectedAmount hold base units as decimal text.
type PaymentRecord struct {
	ID                   snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID                snowflake.ID `json:"org_id" gorm:"not null;index"`
	PayerID              string       `json:"payer_id" gorm:"type:text;not null"`
	ContentID            string       `json:"content_id" gorm:"type:text;not null"`
	Network              string       `json:"network" gorm:"type:text;not null"`
	TransactionReference string       `json:"transaction_reference" gorm:"type:text;not null;uniqueIndex"`
	SenderAddress        string       `json:"sender_address" gorm:"type:text;not null"`
	RecipientAddress     string       `json:"recipient_address" gorm:"type:text;not null"`
	Amount               string       `json:"amount" gorm:"type:numeric(78,0);not null;default:0"`
	ExpectedAmount       string       `json:"expected_amount" gorm:"type:numeric(78,0);not null"`
	Status               Status       `json:"status" gorm:"type:text;not null"`
	FailureReason        string       `json:"failure_reason,omitempty" gorm:"type:text;not null;default:''"`
	LedgerSlot           uint64       `json:"ledger_slot" gorm:"not null;default:0"`
	LedgerTimestamp      *time.Time   `json:"ledger_timestamp,omitempty"`
	Confirmations        uint64       `json:"confirmations" gorm:"not null;default:0"`
	CreatedAt            time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time    `json:"updated_at" gorm:"not null"`
	ConfirmedAt          *time.Time   `json:"confirmed_at,omitempty"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

// OwnedBy reports whether the record belongs to the given purchase.
func (r *PaymentRecord) OwnedBy(orgID snowflake.ID, payerID, contentID string) bool {
	return r != nil && r.OrgID == orgID && r.PayerID == payerID && r.ContentID == contentID
}

// Entitlement grants a payer access to one piece of content. Rows are never deleted.
type Entitlement struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID `json:"org_id" gorm:"not null"`
	PayerID         string       `json:"payer_id" gorm:"type:text;not null"`
	ContentID       string       `json:"content_id" gorm:"type:text;not null"`
	PaymentRecordID snowflake.ID `json:"payment_record_id" gorm:"not null"`
	GrantedAt       time.Time    `json:"granted_at" gorm:"not null"`
}

func (Entitlement) TableName() string { return "content_entitlements" }

// Claim is one verification attempt; it is never persisted as such.
type Claim struct {
	OrgID                snowflake.ID
	PayerID              string
	ContentID            string
	Network              string
	TransactionReference string
	SenderAddress        string
	ExpectedAmount       *uint256.Int
}

// VerificationResult is the ledger's answer for a claim.
type VerificationResult struct {
	Verified         bool
	Reason           Reason
	SenderAddress    string
	RecipientAddress string
	Amount           *uint256.Int
	LedgerSlot       uint64
	LedgerTimestamp  *time.Time
	Confirmations    uint64
	RetryAfter       time.Duration
}

// Qualifies reports whether the ledger proved a genuine payment, possibly still shallow.
func (r VerificationResult) Qualifies() bool {
	return r.Verified || r.Reason == ReasonInsufficientConfirmations
}

type ClaimOutcome string

const (
	ClaimCreated   ClaimOutcome = "created"
	ClaimReentered ClaimOutcome = "reentered"
)
