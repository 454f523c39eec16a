package authorization

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tugas/internal/orgcontext"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) Service {
	t.Helper()

	dsn := fmt.Sprintf("file:authz_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	enforcer, err := NewEnforcer(db)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeByRole(t *testing.T) {
	svc := newTestService(t)

	cases := []struct {
		role   string
		action string
		object string
		want   error
	}{
		{RoleOwner, ActionPaymentPolicyManage, ObjectPaymentPolicy, nil},
		{RoleAdmin, ActionPaymentPolicyManage, ObjectPaymentPolicy, nil},
		{RoleAdmin, ActionAuditLogView, ObjectAuditLog, nil},
		{RoleMember, ActionPaymentRecordView, ObjectPaymentRecord, nil},
		{RoleMember, ActionPaymentPolicyManage, ObjectPaymentPolicy, ErrForbidden},
		{RoleMember, ActionAuditLogView, ObjectAuditLog, ErrForbidden},
		{"", ActionPaymentRecordView, ObjectPaymentRecord, ErrForbidden},
	}
	for _, tc := range cases {
		ctx := orgcontext.WithRole(context.Background(), tc.role)
		err := svc.Authorize(ctx, "user:payer-1", "42", tc.object, tc.action)
		if !errors.Is(err, tc.want) {
			t.Fatalf("role %q action %s: expected %v, got %v", tc.role, tc.action, tc.want, err)
		}
	}
}

func TestAuthorizeRoleChangeReplacesGrouping(t *testing.T) {
	svc := newTestService(t)

	admin := orgcontext.WithRole(context.Background(), RoleAdmin)
	if err := svc.Authorize(admin, "user:payer-1", "42", ObjectPaymentPolicy, ActionPaymentPolicyManage); err != nil {
		t.Fatalf("admin authorize: %v", err)
	}

	member := orgcontext.WithRole(context.Background(), RoleMember)
	if err := svc.Authorize(member, "user:payer-1", "42", ObjectPaymentPolicy, ActionPaymentPolicyManage); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected demoted user to be forbidden, got %v", err)
	}
}

func TestAuthorizeDomainsAreIsolated(t *testing.T) {
	svc := newTestService(t)

	owner := orgcontext.WithRole(context.Background(), RoleOwner)
	if err := svc.Authorize(owner, "user:payer-1", "42", ObjectAuditLog, ActionAuditLogView); err != nil {
		t.Fatalf("owner authorize: %v", err)
	}
	member := orgcontext.WithRole(context.Background(), RoleMember)
	if err := svc.Authorize(member, "user:payer-1", "43", ObjectAuditLog, ActionAuditLogView); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected org 43 to use its own role, got %v", err)
	}
}

func TestAuthorizeRejectsMalformedInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, "", "42", ObjectAuditLog, ActionAuditLogView); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected ErrInvalidActor, got %v", err)
	}
	if err := svc.Authorize(ctx, "robot:1", "42", ObjectAuditLog, ActionAuditLogView); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected ErrInvalidActor for unknown prefix, got %v", err)
	}
	if err := svc.Authorize(ctx, "system", "", ObjectAuditLog, ActionAuditLogView); !errors.Is(err, ErrInvalidOrganization) {
		t.Fatalf("expected ErrInvalidOrganization, got %v", err)
	}
	if err := svc.Authorize(ctx, "system", "42", ObjectPaymentRecord, ActionPaymentRecordView); err != nil {
		t.Fatalf("system authorize: %v", err)
	}
}
