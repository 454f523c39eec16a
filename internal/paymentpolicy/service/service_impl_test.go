package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/tugas/internal/audit/domain"
	"github.com/smallbiznis/tugas/internal/chain"
	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
	"github.com/smallbiznis/tugas/internal/chain/solana"
	"github.com/smallbiznis/tugas/internal/clock"
	"github.com/smallbiznis/tugas/internal/config"
	"github.com/smallbiznis/tugas/internal/orgcontext"
	"github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
	"github.com/smallbiznis/tugas/internal/paymentpolicy/repository"
	"github.com/smallbiznis/tugas/internal/paymentpolicy/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultRecipient = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	tenantRecipient  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

type countingRepo struct {
	domain.Repository
	finds atomic.Int32
}

func (r *countingRepo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Policy, error) {
	r.finds.Add(1)
	return r.Repository.Find(ctx, db, orgID)
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) AuditLog(ctx context.Context, orgID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

func (a *recordingAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

// stallingRepo blocks the first Find after it has read, holding a load in
// flight while the test changes the policy underneath it.
type stallingRepo struct {
	domain.Repository
	stalled atomic.Bool
	started chan struct{}
	release chan struct{}
}

func (r *stallingRepo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Policy, error) {
	policy, err := r.Repository.Find(ctx, db, orgID)
	if r.stalled.CompareAndSwap(false, true) {
		close(r.started)
		<-r.release
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return policy, err
}

func newService(t *testing.T, defaults config.PaymentDefaults) (domain.Service, *countingRepo, *recordingAudit) {
	t.Helper()
	repo := &countingRepo{Repository: repository.Provide()}
	svc, audit := newServiceWithRepo(t, defaults, repo)
	return svc, repo, audit
}

func newServiceWithRepo(t *testing.T, defaults config.PaymentDefaults, repo domain.Repository) (domain.Service, *recordingAudit) {
	t.Helper()
	db := setupTestDB(t)
	audit := &recordingAudit{}
	svc := service.New(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Repo:     repo,
		Registry: chain.NewStaticRegistry(chaindomain.FamilySolana, solana.Asset, solana.NewValidator()),
		Defaults: config.NewStaticPaymentDefaultsHolder(defaults),
		Cfg:      config.Config{Payment: config.PaymentConfig{PolicyCacheTTL: time.Minute}},
		AuditSvc: audit,
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	})
	return svc, audit
}

func TestResolveFallsBackToSystemDefault(t *testing.T) {
	svc, _, _ := newService(t, config.PaymentDefaults{Recipient: defaultRecipient, MinConfirmations: 10})

	policy, err := svc.Resolve(context.Background(), 99)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy.Source != domain.SourceDefault {
		t.Fatalf("expected default source, got %q", policy.Source)
	}
	if policy.RecipientAddress != defaultRecipient || policy.MinimumConfirmations != 10 {
		t.Fatalf("unexpected default policy: %+v", policy)
	}
}

func TestResolveWithoutAnyRecipientIsNotConfigured(t *testing.T) {
	svc, _, _ := newService(t, config.PaymentDefaults{})
	if _, err := svc.Resolve(context.Background(), 99); err != domain.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := svc.Resolve(context.Background(), 0); err != domain.ErrInvalidOrganization {
		t.Fatalf("expected ErrInvalidOrganization, got %v", err)
	}
}

func TestUpsertOverridesDefaultAndInvalidatesCache(t *testing.T) {
	svc, repo, audit := newService(t, config.PaymentDefaults{Recipient: defaultRecipient, MinConfirmations: 10})
	org := snowflake.ID(5)
	ctx := orgcontext.WithOrgID(context.Background(), int64(org))

	if _, err := svc.Resolve(ctx, org); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := svc.Resolve(ctx, org); err != nil {
		t.Fatalf("resolve cached: %v", err)
	}
	if got := repo.finds.Load(); got != 1 {
		t.Fatalf("expected one repository read before upsert, got %d", got)
	}

	confirmations := uint64(32)
	updated, err := svc.Upsert(ctx, domain.UpsertRequest{RecipientAddress: tenantRecipient, MinimumConfirmations: &confirmations})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if updated.Source != domain.SourceTenant || updated.MinimumConfirmations != 32 {
		t.Fatalf("unexpected upsert result: %+v", updated)
	}

	policy, err := svc.Resolve(ctx, org)
	if err != nil {
		t.Fatalf("resolve after upsert: %v", err)
	}
	if policy.RecipientAddress != tenantRecipient || policy.Source != domain.SourceTenant {
		t.Fatalf("expected tenant policy after invalidation, got %+v", policy)
	}

	// omitted confirmations keep the stored value
	updated, err = svc.Upsert(ctx, domain.UpsertRequest{RecipientAddress: defaultRecipient})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if updated.MinimumConfirmations != 32 {
		t.Fatalf("expected confirmations to be preserved, got %d", updated.MinimumConfirmations)
	}
	if len(audit.actions) != 2 || audit.actions[0] != auditdomain.ActionPaymentPolicyUpdated {
		t.Fatalf("expected two policy audit entries, got %v", audit.actions)
	}
}

func TestUpsertValidatesInput(t *testing.T) {
	svc, _, _ := newService(t, config.PaymentDefaults{Recipient: defaultRecipient, MinConfirmations: 10})
	ctx := orgcontext.WithOrgID(context.Background(), 5)

	if _, err := svc.Upsert(ctx, domain.UpsertRequest{RecipientAddress: "0xdeadbeef"}); err != domain.ErrInvalidRecipient {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}

	tooMany := domain.MaxMinimumConfirmations + 1
	if _, err := svc.Upsert(ctx, domain.UpsertRequest{RecipientAddress: tenantRecipient, MinimumConfirmations: &tooMany}); err != domain.ErrInvalidConfirmations {
		t.Fatalf("expected ErrInvalidConfirmations, got %v", err)
	}

	if _, err := svc.Upsert(context.Background(), domain.UpsertRequest{RecipientAddress: tenantRecipient}); err != domain.ErrInvalidOrganization {
		t.Fatalf("expected ErrInvalidOrganization, got %v", err)
	}
}

func TestResolveCollapsesConcurrentMisses(t *testing.T) {
	svc, repo, _ := newService(t, config.PaymentDefaults{Recipient: defaultRecipient, MinConfirmations: 1})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Resolve(context.Background(), 77); err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := repo.finds.Load(); got > 16 || got < 1 {
		t.Fatalf("unexpected repository reads: %d", got)
	}
	if _, err := svc.Resolve(context.Background(), 77); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	before := repo.finds.Load()
	if _, err := svc.Resolve(context.Background(), 77); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if repo.finds.Load() != before {
		t.Fatalf("expected cached resolve to skip the repository")
	}
}

func TestResolveLoadOutlivesCallerAndRespectsInvalidation(t *testing.T) {
	repo := &stallingRepo{
		Repository: repository.Provide(),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	svc, _ := newServiceWithRepo(t, config.PaymentDefaults{Recipient: defaultRecipient, MinConfirmations: 1}, repo)
	org := snowflake.ID(8)
	orgCtx := orgcontext.WithOrgID(context.Background(), int64(org))

	callerCtx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		policy domain.Policy
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		policy, err := svc.Resolve(callerCtx, org)
		first <- outcome{policy: policy, err: err}
	}()

	<-repo.started
	cancel()
	if _, err := svc.Upsert(orgCtx, domain.UpsertRequest{RecipientAddress: tenantRecipient}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	close(repo.release)

	got := <-first
	if got.err != nil {
		t.Fatalf("expected in-flight load to survive caller cancellation, got %v", got.err)
	}
	if got.policy.Source != domain.SourceDefault {
		t.Fatalf("expected the load to return what it read, got %+v", got.policy)
	}

	policy, err := svc.Resolve(context.Background(), org)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy.RecipientAddress != tenantRecipient || policy.Source != domain.SourceTenant {
		t.Fatalf("expected stale load to stay out of the cache, got %+v", policy)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:policy_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE tenant_payment_policies (
			org_id BIGINT PRIMARY KEY,
			recipient_address TEXT NOT NULL,
			minimum_confirmations BIGINT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}
