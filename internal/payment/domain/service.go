package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tugas/pkg/db/pagination"
)

type VerifyRequest struct {
	Network              string `json:"network"`
	TransactionReference string `json:"transaction_reference"`
	SenderAddress        string `json:"sender_address"`
	ExpectedAmount       string `json:"expected_amount"`
	ContentID            string `json:"content_id"`
}

// Outcome is what one Verify call concluded. Record is nil when no durable state exists.
type Outcome struct {
	Verified      bool
	Reason        Reason
	RetryAfter    time.Duration
	Amount        string
	Confirmations uint64
	Record        *PaymentRecord
}

type EntitlementStatus struct {
	ContentID string        `json:"content_id"`
	Granted   bool          `json:"granted"`
	GrantedAt *time.Time    `json:"granted_at,omitempty"`
	PaymentID *snowflake.ID `json:"payment_id,omitempty"`
}

type ListRecordsRequest struct {
	pagination.Pagination
	Status    string `form:"status"`
	PayerID   string `form:"payer_id"`
	ContentID string `form:"content_id"`
}

type ListRecordsResponse struct {
	pagination.PageInfo
	Records []PaymentRecord `json:"records"`
}

// ResumeResult summarises one pass of the pending-record worker.
type ResumeResult struct {
	Scanned   int
	Confirmed int
	Failed    int
	Pending   int
	Errors    int
}

type Service interface {
	Verify(ctx context.Context, req VerifyRequest) (*Outcome, error)
	HasEntitlement(ctx context.Context, orgID snowflake.ID, payerID, contentID string) (bool, error)
	GetEntitlement(ctx context.Context, contentID string) (*EntitlementStatus, error)
	ListRecords(ctx context.Context, req ListRecordsRequest) (ListRecordsResponse, error)
	ResumePending(ctx context.Context, olderThan time.Time, limit int) (ResumeResult, error)
}

var (
	ErrInvalidOrganization    = errors.New("invalid_organization")
	ErrInvalidPayer           = errors.New("invalid_payer")
	ErrInvalidContent         = errors.New("invalid_content")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
	ErrTransactionAlreadyUsed = errors.New("transaction_already_used")
	ErrRecordNotFound         = errors.New("payment_record_not_found")
)
