package service

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tugas/internal/audit/domain"
	"github.com/smallbiznis/tugas/internal/cache"
	"github.com/smallbiznis/tugas/internal/chain"
	"github.com/smallbiznis/tugas/internal/clock"
	"github.com/smallbiznis/tugas/internal/config"
	"github.com/smallbiznis/tugas/internal/orgcontext"
	"github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Registry *chain.Registry
	Defaults *config.PaymentDefaultsHolder
	Cfg      config.Config
	AuditSvc auditdomain.Service `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
	Cache    cache.PolicyCache   `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	registry *chain.Registry
	defaults *config.PaymentDefaultsHolder
	auditSvc auditdomain.Service
	clock    clock.Clock
	cache    cache.PolicyCache
	group    singleflight.Group

	// generations counts invalidations per org. A load may only fill the
	// cache if no invalidation happened since it started.
	mu          sync.Mutex
	generations map[snowflake.ID]uint64
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	policyCache := p.Cache
	if policyCache == nil {
		policyCache = cache.NewPolicyCache(p.Cfg.Payment.PolicyCacheTTL)
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("paymentpolicy.service"),
		repo:     p.Repo,
		registry: p.Registry,
		defaults: p.Defaults,
		auditSvc: p.AuditSvc,
		clock:    clk,
		cache:    policyCache,

		generations: make(map[snowflake.ID]uint64),
	}
}

// Resolve returns the effective policy for orgID, served from cache when fresh.
func (s *Service) Resolve(ctx context.Context, orgID snowflake.ID) (domain.Policy, error) {
	if orgID == 0 {
		return domain.Policy{}, domain.ErrInvalidOrganization
	}
	if policy, ok := s.cache.GetPolicy(orgID); ok {
		return policy, nil
	}

	generation := s.generation(orgID)
	key := orgID.String() + "/" + strconv.FormatUint(generation, 10)
	value, err, _ := s.group.Do(key, func() (any, error) {
		// shared by every caller joined on key, so the first caller's
		// cancellation must not fail the others
		policy, err := s.load(context.WithoutCancel(ctx), orgID)
		if err != nil {
			return domain.Policy{}, err
		}
		s.storeIfCurrent(orgID, generation, policy)
		return policy, nil
	})
	if err != nil {
		return domain.Policy{}, err
	}
	return value.(domain.Policy), nil
}

// InvalidatePolicy drops the cached policy for orgID and fences loads that
// started before the call.
func (s *Service) InvalidatePolicy(orgID snowflake.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[orgID]++
	s.cache.InvalidatePolicy(orgID)
}

func (s *Service) generation(orgID snowflake.ID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[orgID]
}

func (s *Service) storeIfCurrent(orgID snowflake.ID, generation uint64, policy domain.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[orgID] != generation {
		return
	}
	s.cache.SetPolicy(orgID, policy)
}

func (s *Service) Get(ctx context.Context) (domain.Policy, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Policy{}, domain.ErrInvalidOrganization
	}
	return s.load(ctx, orgID)
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (domain.Policy, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Policy{}, domain.ErrInvalidOrganization
	}

	validator := s.registry.Validator()
	recipient := strings.TrimSpace(req.RecipientAddress)
	if err := validator.ValidateAddress(recipient); err != nil {
		return domain.Policy{}, domain.ErrInvalidRecipient
	}
	recipient = validator.NormalizeAddress(recipient)

	existing, err := s.repo.Find(ctx, s.db, orgID)
	if err != nil {
		return domain.Policy{}, err
	}

	minConfirmations := s.defaults.Get().MinConfirmations
	if existing != nil {
		minConfirmations = existing.MinimumConfirmations
	}
	if req.MinimumConfirmations != nil {
		minConfirmations = *req.MinimumConfirmations
	}
	if minConfirmations > domain.MaxMinimumConfirmations {
		return domain.Policy{}, domain.ErrInvalidConfirmations
	}

	now := s.clock.Now().UTC()
	policy := domain.Policy{
		OrgID:                orgID,
		RecipientAddress:     recipient,
		MinimumConfirmations: minConfirmations,
		Source:               domain.SourceTenant,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if existing != nil {
		policy.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.Upsert(ctx, s.db, &policy); err != nil {
		return domain.Policy{}, err
	}
	s.InvalidatePolicy(orgID)

	s.log.Info("payment policy updated",
		zap.String("org_id", orgID.String()),
		zap.Uint64("minimum_confirmations", minConfirmations),
	)
	s.writeAudit(ctx, orgID, existing, policy)

	return policy, nil
}

func (s *Service) load(ctx context.Context, orgID snowflake.ID) (domain.Policy, error) {
	stored, err := s.repo.Find(ctx, s.db, orgID)
	if err != nil {
		return domain.Policy{}, err
	}
	if stored != nil {
		return *stored, nil
	}

	defaults := s.defaults.Get()
	if strings.TrimSpace(defaults.Recipient) == "" {
		return domain.Policy{}, domain.ErrNotConfigured
	}
	return domain.Policy{
		OrgID:                orgID,
		RecipientAddress:     s.registry.Validator().NormalizeAddress(defaults.Recipient),
		MinimumConfirmations: defaults.MinConfirmations,
		Source:               domain.SourceDefault,
	}, nil
}

func (s *Service) writeAudit(ctx context.Context, orgID snowflake.ID, previous *domain.Policy, current domain.Policy) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"recipient_address":     current.RecipientAddress,
		"minimum_confirmations": current.MinimumConfirmations,
	}
	if previous != nil {
		metadata["previous_recipient_address"] = previous.RecipientAddress
		metadata["previous_minimum_confirmations"] = previous.MinimumConfirmations
	}
	targetID := orgID.String()
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, auditdomain.ActionPaymentPolicyUpdated, auditdomain.TargetPaymentPolicy, &targetID, metadata); err != nil {
		s.log.Warn("audit payment policy update failed", zap.Error(err))
	}
}
