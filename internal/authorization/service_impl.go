package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/tugas/internal/audit/domain"
	"github.com/smallbiznis/tugas/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPaymentPolicy = "payment_policy"
	ObjectPaymentRecord = "payment_record"
	ObjectAuditLog      = "audit_log"
)

const (
	ActionPaymentPolicyView   = "payment_policy.view"
	ActionPaymentPolicyManage = "payment_policy.manage"

	ActionPaymentRecordView = "payment_record.view"

	ActionAuditLogView = "audit_log.view"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleSystem = "system"
)

type grant struct {
	object string
	action string
}

// roleGrants is the seeded policy. Members may inspect payments but never
// change the recipient they are paid to.
var roleGrants = map[string][]grant{
	RoleMember: {
		{ObjectPaymentRecord, ActionPaymentRecordView},
	},
	RoleAdmin: {
		{ObjectPaymentPolicy, ActionPaymentPolicyView},
		{ObjectPaymentPolicy, ActionPaymentPolicyManage},
		{ObjectPaymentRecord, ActionPaymentRecordView},
		{ObjectAuditLog, ActionAuditLogView},
	},
	RoleOwner: {
		{ObjectPaymentPolicy, ActionPaymentPolicyView},
		{ObjectPaymentPolicy, ActionPaymentPolicyManage},
		{ObjectPaymentRecord, ActionPaymentRecordView},
		{ObjectAuditLog, ActionAuditLogView},
	},
	RoleSystem: {
		{ObjectPaymentRecord, ActionPaymentRecordView},
	},
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// actorRef is the casbin subject plus the audit identity behind it.
type actorRef struct {
	subject   string
	role      string
	actorType string
	actorID   *string
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	for role, grants := range roleGrants {
		for _, g := range grants {
			// AddPolicy reports false for rules that already exist
			if _, err := enforcer.AddPolicy("role:"+role, g.object, g.action); err != nil {
				return nil, err
			}
		}
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

// Authorize checks actor against the role it holds in orgID. Users carry their
// role in the request context; the token that authenticated them is the source.
func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor, orgID = strings.TrimSpace(actor), strings.TrimSpace(orgID)
	object, action = strings.TrimSpace(object), strings.TrimSpace(action)
	switch {
	case actor == "":
		return ErrInvalidActor
	case orgID == "":
		return ErrInvalidOrganization
	case object == "":
		return ErrInvalidObject
	case action == "":
		return ErrInvalidAction
	}

	ref, err := resolveActor(ctx, actor)
	if err != nil {
		if ref.actorType != "" {
			s.audit(ctx, "authorization.denied", ref, orgID, object, action)
		}
		return err
	}

	dom := "org:" + orgID
	if err := s.ensureGrouping(ref.subject, ref.role, dom); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(ref.subject, dom, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", ref.subject),
			zap.String("org_id", orgID),
			zap.String("action", action),
		)
		s.audit(ctx, "authorization.denied", ref, orgID, object, action)
		return ErrForbidden
	}

	// reads are too frequent to audit; policy changes are not
	if action == ActionPaymentPolicyManage {
		s.audit(ctx, "authorization.granted", ref, orgID, object, action)
	}
	return nil
}

func resolveActor(ctx context.Context, actor string) (actorRef, error) {
	if actor == RoleSystem {
		return actorRef{subject: actor, role: "role:" + RoleSystem, actorType: string(auditdomain.ActorTypeSystem)}, nil
	}

	userID, ok := strings.CutPrefix(actor, "user:")
	userID = strings.TrimSpace(userID)
	if !ok || userID == "" {
		return actorRef{}, ErrInvalidActor
	}

	ref := actorRef{subject: actor, actorType: string(auditdomain.ActorTypeUser), actorID: &userID}
	switch role := orgcontext.RoleFromContext(ctx); role {
	case RoleOwner, RoleAdmin, RoleMember:
		ref.role = "role:" + role
		return ref, nil
	default:
		return ref, ErrForbidden
	}
}

// ensureGrouping keeps exactly one role link for subject in dom. Roles come
// from the token, so a demoted user must lose the old link on the next call.
func (s *ServiceImpl) ensureGrouping(subject string, role string, dom string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", dom)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == role {
			continue
		}
		stale := make([]interface{}, len(rule))
		for i, value := range rule {
			stale[i] = value
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(stale...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, role, dom)
	if err != nil || has {
		return err
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, role, dom)
	return err
}

func (s *ServiceImpl) audit(ctx context.Context, decision string, ref actorRef, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := object + ":" + action
	if err := s.auditSvc.AuditLog(ctx, &parsedOrgID, ref.actorType, ref.actorID, decision, "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"subject": ref.subject,
	}); err != nil {
		s.log.Warn("authorization audit failed", zap.String("decision", decision), zap.Error(err))
	}
}
