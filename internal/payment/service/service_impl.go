package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/holiman/uint256"
	auditdomain "github.com/smallbiznis/tugas/internal/audit/domain"
	"github.com/smallbiznis/tugas/internal/auditcontext"
	"github.com/smallbiznis/tugas/internal/chain"
	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
	"github.com/smallbiznis/tugas/internal/clock"
	"github.com/smallbiznis/tugas/internal/config"
	obslogger "github.com/smallbiznis/tugas/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tugas/internal/observability/metrics"
	"github.com/smallbiznis/tugas/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/tugas/internal/payment/domain"
	"github.com/smallbiznis/tugas/internal/payment/verifier"
	paymentpolicydomain "github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
	"github.com/smallbiznis/tugas/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250

	resumeActorID = "payment.resume"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Repo           paymentdomain.Repository
	Registry       *chain.Registry
	Policies       paymentpolicydomain.Resolver
	Cfg            config.Config
	PaymentMetrics *obsmetrics.PaymentMetrics
	AuditSvc       auditdomain.Service `optional:"true"`
	Clock          clock.Clock         `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       paymentdomain.Repository
	registry   *chain.Registry
	policies   paymentpolicydomain.Resolver
	verifier   *verifier.Verifier
	guard      *replayGuard
	recorder   *recorder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	log := p.Log.Named("payment.service")

	return &Service{
		db:       p.DB,
		log:      log,
		repo:     p.Repo,
		registry: p.Registry,
		policies: p.Policies,
		verifier: verifier.New(verifier.Config{
			RetryAttempts:        p.Cfg.Ledger.RetryAttempts,
			RetryInitialInterval: p.Cfg.Ledger.RetryInitialInterval,
			SlotTime:             p.Registry.Asset().SlotTime,
			Validator:            p.Registry.Validator(),
		}, p.Log, p.PaymentMetrics),
		guard: &replayGuard{
			db:      p.DB,
			repo:    p.Repo,
			genID:   p.GenID,
			clock:   clk,
			metrics: p.PaymentMetrics,
		},
		recorder: &recorder{
			db:         p.DB,
			log:        log,
			repo:       p.Repo,
			genID:      p.GenID,
			clock:      clk,
			auditSvc:   p.AuditSvc,
			metrics:    p.PaymentMetrics,
			obsMetrics: p.ObsMetrics,
		},
		obsMetrics: p.ObsMetrics,
	}
}

// Verify checks a payment claim made by the authenticated payer and grants the
// content entitlement once the ledger confirms it. Rejections are reported in
// the outcome; the error is reserved for storage and policy failures.
func (s *Service) Verify(ctx context.Context, req paymentdomain.VerifyRequest) (*paymentdomain.Outcome, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, paymentdomain.ErrInvalidOrganization
	}
	payerID, ok := orgcontext.UserIDFromContext(ctx)
	if !ok {
		return nil, paymentdomain.ErrInvalidPayer
	}

	claim, client, ok := s.buildClaim(orgID, payerID, req)
	if !ok {
		return s.finish(ctx, "unknown", s.rejection(paymentdomain.ReasonInvalidFormat, 0, nil)), nil
	}

	policy, err := s.policies.Resolve(ctx, orgID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByReference(ctx, s.db, claim.TransactionReference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.OwnedBy(orgID, payerID, claim.ContentID) {
			s.guard.metrics.IncClaim(obsmetrics.ClaimOutcomeAlreadyUsed)
			s.log.Warn("transaction reference already used",
				zap.String("org_id", orgID.String()),
				zap.String("network", claim.Network),
				obslogger.TxReference(claim.TransactionReference),
			)
			return s.finish(ctx, claim.Network, s.rejection(paymentdomain.ReasonTransactionAlreadyUsed, 0, nil)), nil
		}
		if existing.Status == paymentdomain.StatusConfirmed {
			return s.finish(ctx, claim.Network, s.stored(existing)), nil
		}
		// the claim was proven against this recipient; a policy change after
		// the claim must not turn the payer's own retry into wrong_recipient
		policy.RecipientAddress = existing.RecipientAddress
	}

	result := s.verifier.Verify(ctx, client, claim, policy)
	outcome, err := s.settle(ctx, claim, result, existing)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, claim.Network, outcome), nil
}

func (s *Service) buildClaim(orgID snowflake.ID, payerID string, req paymentdomain.VerifyRequest) (paymentdomain.Claim, chaindomain.Client, bool) {
	contentID := strings.TrimSpace(req.ContentID)
	if contentID == "" {
		return paymentdomain.Claim{}, nil, false
	}

	validator := s.registry.Validator()
	reference := strings.TrimSpace(req.TransactionReference)
	if err := validator.ValidateReference(reference); err != nil {
		return paymentdomain.Claim{}, nil, false
	}
	// every lookup and the claim itself use the canonical spelling
	reference = validator.NormalizeReference(reference)
	sender := strings.TrimSpace(req.SenderAddress)
	if err := validator.ValidateAddress(sender); err != nil {
		return paymentdomain.Claim{}, nil, false
	}
	expected, err := chaindomain.ParseAmount(req.ExpectedAmount, s.registry.Asset().Decimals)
	if err != nil {
		return paymentdomain.Claim{}, nil, false
	}

	client, err := s.registry.Client(req.Network)
	if err != nil {
		return paymentdomain.Claim{}, nil, false
	}

	return paymentdomain.Claim{
		OrgID:                orgID,
		PayerID:              payerID,
		ContentID:            contentID,
		Network:              string(client.Network()),
		TransactionReference: reference,
		SenderAddress:        validator.NormalizeAddress(sender),
		ExpectedAmount:       expected,
	}, client, true
}

// settle turns a ledger verdict into durable state. Only a genuine payment
// claims the reference; other verdicts touch a record the payer already owns.
func (s *Service) settle(ctx context.Context, claim paymentdomain.Claim, result paymentdomain.VerificationResult, existing *paymentdomain.PaymentRecord) (*paymentdomain.Outcome, error) {
	if !result.Qualifies() {
		if existing == nil || result.Reason.Retryable() {
			return s.rejection(result.Reason, result.RetryAfter, existing), nil
		}
		stored, err := s.recorder.Fail(ctx, existing, result.Reason)
		if err != nil {
			return nil, err
		}
		if stored.Status == paymentdomain.StatusConfirmed {
			return s.stored(stored), nil
		}
		return s.rejection(result.Reason, 0, stored), nil
	}

	record, _, err := s.guard.Claim(ctx, claim, result)
	if errors.Is(err, paymentdomain.ErrTransactionAlreadyUsed) {
		return s.rejection(paymentdomain.ReasonTransactionAlreadyUsed, 0, nil), nil
	}
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, record, result)
}

func (s *Service) finalize(ctx context.Context, record *paymentdomain.PaymentRecord, result paymentdomain.VerificationResult) (*paymentdomain.Outcome, error) {
	if result.Verified {
		stored, _, err := s.recorder.Confirm(ctx, record, result)
		if err != nil {
			return nil, err
		}
		return s.stored(stored), nil
	}

	stored, err := s.recorder.Progress(ctx, record, result)
	if err != nil {
		return nil, err
	}
	if stored.Status == paymentdomain.StatusConfirmed {
		return s.stored(stored), nil
	}
	outcome := s.rejection(result.Reason, result.RetryAfter, stored)
	outcome.Amount = s.formatAmount(result.Amount)
	outcome.Confirmations = result.Confirmations
	return outcome, nil
}

func (s *Service) finish(ctx context.Context, network string, outcome *paymentdomain.Outcome) *paymentdomain.Outcome {
	s.obsMetrics.RecordVerification(ctx, network, string(outcome.Reason))
	return outcome
}

func (s *Service) rejection(reason paymentdomain.Reason, retryAfter time.Duration, record *paymentdomain.PaymentRecord) *paymentdomain.Outcome {
	if reason.Retryable() && retryAfter > 0 {
		retryAfter = paymentdomain.ClampRetryAfter(retryAfter)
	} else {
		retryAfter = 0
	}
	return &paymentdomain.Outcome{
		Reason:     reason,
		RetryAfter: retryAfter,
		Record:     record,
	}
}

// stored reports a CONFIRMED record as it was persisted.
func (s *Service) stored(record *paymentdomain.PaymentRecord) *paymentdomain.Outcome {
	amount, err := uint256.FromDecimal(record.Amount)
	if err != nil {
		amount = nil
	}
	return &paymentdomain.Outcome{
		Verified:      true,
		Amount:        s.formatAmount(amount),
		Confirmations: record.Confirmations,
		Record:        record,
	}
}

func (s *Service) formatAmount(value *uint256.Int) string {
	if value == nil {
		return ""
	}
	return chaindomain.FormatAmount(value, s.registry.Asset().Decimals)
}

func (s *Service) HasEntitlement(ctx context.Context, orgID snowflake.ID, payerID, contentID string) (bool, error) {
	entitlement, err := s.findEntitlement(ctx, orgID, payerID, contentID)
	if err != nil {
		return false, err
	}
	return entitlement != nil, nil
}

func (s *Service) GetEntitlement(ctx context.Context, contentID string) (*paymentdomain.EntitlementStatus, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, paymentdomain.ErrInvalidOrganization
	}
	payerID, ok := orgcontext.UserIDFromContext(ctx)
	if !ok {
		return nil, paymentdomain.ErrInvalidPayer
	}

	entitlement, err := s.findEntitlement(ctx, orgID, payerID, contentID)
	if err != nil {
		return nil, err
	}
	status := &paymentdomain.EntitlementStatus{ContentID: strings.TrimSpace(contentID)}
	if entitlement != nil {
		grantedAt := entitlement.GrantedAt
		paymentID := entitlement.PaymentRecordID
		status.Granted = true
		status.GrantedAt = &grantedAt
		status.PaymentID = &paymentID
	}
	return status, nil
}

func (s *Service) findEntitlement(ctx context.Context, orgID snowflake.ID, payerID, contentID string) (*paymentdomain.Entitlement, error) {
	if orgID == 0 {
		return nil, paymentdomain.ErrInvalidOrganization
	}
	payerID = strings.TrimSpace(payerID)
	if payerID == "" {
		return nil, paymentdomain.ErrInvalidPayer
	}
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return nil, paymentdomain.ErrInvalidContent
	}
	return s.repo.FindEntitlement(ctx, s.db, orgID, payerID, contentID)
}

func (s *Service) ListRecords(ctx context.Context, req paymentdomain.ListRecordsRequest) (paymentdomain.ListRecordsResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return paymentdomain.ListRecordsResponse{}, paymentdomain.ErrInvalidOrganization
	}

	var status paymentdomain.Status
	if raw := strings.ToUpper(strings.TrimSpace(req.Status)); raw != "" {
		status = paymentdomain.Status(raw)
		switch status {
		case paymentdomain.StatusPending, paymentdomain.StatusConfirmed, paymentdomain.StatusFailed:
		default:
			return paymentdomain.ListRecordsResponse{}, paymentdomain.ErrInvalidStatus
		}
	}

	cursor, err := decodeCursor(req.PageToken)
	if err != nil {
		return paymentdomain.ListRecordsResponse{}, err
	}

	pageSize := pagination.ClampPageSize(req.PageSize, defaultPageSize, maxPageSize)
	items, err := s.repo.List(ctx, s.db, paymentdomain.RecordFilter{
		OrgID:     orgID,
		Status:    status,
		PayerID:   req.PayerID,
		ContentID: req.ContentID,
		Cursor:    cursor,
		Limit:     pageSize,
	})
	if err != nil {
		return paymentdomain.ListRecordsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *paymentdomain.PaymentRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	records := make([]paymentdomain.PaymentRecord, 0, len(items))
	for _, item := range items {
		if item != nil {
			records = append(records, *item)
		}
	}

	resp := paymentdomain.ListRecordsResponse{Records: records}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func decodeCursor(token string) (*paymentdomain.RecordCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, paymentdomain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, paymentdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, paymentdomain.ErrInvalidPageToken
	}
	return &paymentdomain.RecordCursor{ID: id, CreatedAt: createdAt}, nil
}

// ResumePending re-verifies PENDING records that have not moved since olderThan.
// The stored recipient is kept so a later policy change cannot strand a claim.
func (s *Service) ResumePending(ctx context.Context, olderThan time.Time, limit int) (paymentdomain.ResumeResult, error) {
	var summary paymentdomain.ResumeResult

	records, err := s.repo.ListStalePending(ctx, s.db, olderThan, limit)
	if err != nil {
		return summary, err
	}
	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), resumeActorID)

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Scanned++

		status, err := s.resumeRecord(ctx, record)
		if err != nil {
			summary.Errors++
			s.log.Warn("resume pending payment failed",
				zap.String("payment_id", record.ID.String()),
				zap.Error(err),
			)
			continue
		}
		switch status {
		case paymentdomain.StatusConfirmed:
			summary.Confirmed++
		case paymentdomain.StatusFailed:
			summary.Failed++
		default:
			summary.Pending++
		}
	}
	return summary, nil
}

func (s *Service) resumeRecord(ctx context.Context, record *paymentdomain.PaymentRecord) (paymentdomain.Status, error) {
	client, err := s.registry.Client(record.Network)
	if err != nil {
		return "", err
	}
	policy, err := s.policies.Resolve(ctx, record.OrgID)
	if err != nil {
		return "", err
	}
	policy.RecipientAddress = record.RecipientAddress

	expected, err := uint256.FromDecimal(record.ExpectedAmount)
	if err != nil {
		return "", err
	}
	claim := paymentdomain.Claim{
		OrgID:                record.OrgID,
		PayerID:              record.PayerID,
		ContentID:            record.ContentID,
		Network:              record.Network,
		TransactionReference: record.TransactionReference,
		SenderAddress:        record.SenderAddress,
		ExpectedAmount:       expected,
	}

	result := s.verifier.Verify(ctx, client, claim, policy)
	switch {
	case result.Verified:
		stored, _, err := s.recorder.Confirm(ctx, record, result)
		if err != nil {
			return "", err
		}
		return stored.Status, nil
	case result.Reason == paymentdomain.ReasonInsufficientConfirmations:
		stored, err := s.recorder.Progress(ctx, record, result)
		if err != nil {
			return "", err
		}
		return stored.Status, nil
	case result.Reason.Retryable():
		return paymentdomain.StatusPending, nil
	default:
		stored, err := s.recorder.Fail(ctx, record, result.Reason)
		if err != nil {
			return "", err
		}
		return stored.Status, nil
	}
}
