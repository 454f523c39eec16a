package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tugas/internal/clock"
	"github.com/smallbiznis/tugas/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/tugas/internal/payment/domain"
	"gorm.io/gorm"
)

// replayGuard owns the transaction reference. The unique index on
// payment_records.transaction_reference is the only arbiter.
type replayGuard struct {
	db      *gorm.DB
	repo    paymentdomain.Repository
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.PaymentMetrics
}

// Claim inserts a PENDING record for the claim or re-enters the one the same
// owner already holds. Another owner's record yields ErrTransactionAlreadyUsed.
func (g *replayGuard) Claim(ctx context.Context, claim paymentdomain.Claim, result paymentdomain.VerificationResult) (*paymentdomain.PaymentRecord, paymentdomain.ClaimOutcome, error) {
	now := g.clock.Now().UTC()
	record := &paymentdomain.PaymentRecord{
		ID:                   g.genID.Generate(),
		OrgID:                claim.OrgID,
		PayerID:              claim.PayerID,
		ContentID:            claim.ContentID,
		Network:              claim.Network,
		TransactionReference: claim.TransactionReference,
		SenderAddress:        result.SenderAddress,
		RecipientAddress:     result.RecipientAddress,
		Amount:               decimalText(result.Amount),
		ExpectedAmount:       decimalText(claim.ExpectedAmount),
		Status:               paymentdomain.StatusPending,
		LedgerSlot:           result.LedgerSlot,
		LedgerTimestamp:      result.LedgerTimestamp,
		Confirmations:        result.Confirmations,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	inserted, err := g.repo.InsertPending(ctx, g.db, record)
	if err != nil {
		return nil, "", err
	}
	if inserted {
		g.metrics.IncClaim(metrics.ClaimOutcomeCreated)
		return record, paymentdomain.ClaimCreated, nil
	}

	existing, err := g.repo.FindByReference(ctx, g.db, claim.TransactionReference)
	if err != nil {
		return nil, "", err
	}
	if existing == nil {
		return nil, "", paymentdomain.ErrRecordNotFound
	}
	if !existing.OwnedBy(claim.OrgID, claim.PayerID, claim.ContentID) {
		g.metrics.IncClaim(metrics.ClaimOutcomeAlreadyUsed)
		return nil, "", paymentdomain.ErrTransactionAlreadyUsed
	}

	g.metrics.IncClaim(metrics.ClaimOutcomeReentered)
	return existing, paymentdomain.ClaimReentered, nil
}
