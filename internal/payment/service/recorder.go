package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/holiman/uint256"
	auditdomain "github.com/smallbiznis/tugas/internal/audit/domain"
	"github.com/smallbiznis/tugas/internal/clock"
	obslogger "github.com/smallbiznis/tugas/internal/observability/logger"
	"github.com/smallbiznis/tugas/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/tugas/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recorder finalizes claimed records. Every write is conditional on the record
// not being CONFIRMED yet, so concurrent finalizers converge on one outcome.
type recorder struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       paymentdomain.Repository
	genID      *snowflake.Node
	clock      clock.Clock
	auditSvc   auditdomain.Service
	metrics    *metrics.PaymentMetrics
	obsMetrics *metrics.Metrics
}

// Confirm moves the record to CONFIRMED and grants the entitlement in one
// transaction. It reports whether this call performed the transition.
func (r *recorder) Confirm(ctx context.Context, record *paymentdomain.PaymentRecord, result paymentdomain.VerificationResult) (*paymentdomain.PaymentRecord, bool, error) {
	now := r.clock.Now().UTC()
	transitioned := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := r.repo.MarkConfirmed(ctx, tx, record.ID, paymentdomain.ConfirmUpdate{
			SenderAddress:   result.SenderAddress,
			Amount:          decimalText(result.Amount),
			LedgerSlot:      result.LedgerSlot,
			LedgerTimestamp: result.LedgerTimestamp,
			Confirmations:   result.Confirmations,
			ConfirmedAt:     now,
		})
		if err != nil {
			return err
		}
		if !updated {
			return nil
		}
		transitioned = true

		_, err = r.repo.InsertEntitlement(ctx, tx, &paymentdomain.Entitlement{
			ID:              r.genID.Generate(),
			OrgID:           record.OrgID,
			PayerID:         record.PayerID,
			ContentID:       record.ContentID,
			PaymentRecordID: record.ID,
			GrantedAt:       now,
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}

	stored, err := r.reload(ctx, record.ID)
	if err != nil {
		return nil, false, err
	}
	if !transitioned {
		return stored, false, nil
	}

	r.metrics.IncFinalized(string(paymentdomain.StatusConfirmed))
	r.obsMetrics.RecordGrant(ctx, stored.OrgID.String(), stored.Network)
	r.log.Info("payment confirmed",
		zap.String("payment_id", stored.ID.String()),
		zap.String("org_id", stored.OrgID.String()),
		zap.String("network", stored.Network),
		zap.Uint64("confirmations", stored.Confirmations),
		obslogger.TxReference(stored.TransactionReference),
	)
	r.audit(ctx, auditdomain.ActionPaymentConfirmed, stored, map[string]any{
		"network":           stored.Network,
		"content_id":        stored.ContentID,
		"amount":            stored.Amount,
		"confirmations":     stored.Confirmations,
		"sender_address":    stored.SenderAddress,
		"recipient_address": stored.RecipientAddress,
	})
	return stored, true, nil
}

// Fail folds a non-retryable rejection into the record. CONFIRMED records are left alone.
func (r *recorder) Fail(ctx context.Context, record *paymentdomain.PaymentRecord, reason paymentdomain.Reason) (*paymentdomain.PaymentRecord, error) {
	updated, err := r.repo.MarkFailed(ctx, r.db, record.ID, reason, r.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	stored, err := r.reload(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if updated && record.Status != paymentdomain.StatusFailed {
		r.metrics.IncFinalized(string(paymentdomain.StatusFailed))
		r.audit(ctx, auditdomain.ActionPaymentFailed, stored, map[string]any{
			"network":        stored.Network,
			"content_id":     stored.ContentID,
			"failure_reason": string(reason),
		})
	}
	return stored, nil
}

// Progress stores the latest confirmation depth of a genuine but shallow payment.
func (r *recorder) Progress(ctx context.Context, record *paymentdomain.PaymentRecord, result paymentdomain.VerificationResult) (*paymentdomain.PaymentRecord, error) {
	if _, err := r.repo.UpdateProgress(ctx, r.db, record.ID, result.LedgerSlot, result.Confirmations, r.clock.Now().UTC()); err != nil {
		return nil, err
	}
	return r.reload(ctx, record.ID)
}

func (r *recorder) reload(ctx context.Context, id snowflake.ID) (*paymentdomain.PaymentRecord, error) {
	stored, err := r.repo.FindByID(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, paymentdomain.ErrRecordNotFound
	}
	return stored, nil
}

func (r *recorder) audit(ctx context.Context, action string, record *paymentdomain.PaymentRecord, metadata map[string]any) {
	if r.auditSvc == nil {
		return
	}
	targetID := record.ID.String()
	orgID := record.OrgID
	if err := r.auditSvc.AuditLog(ctx, &orgID, "", nil, action, auditdomain.TargetPaymentRecord, &targetID, metadata); err != nil {
		r.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func decimalText(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.Dec()
}
