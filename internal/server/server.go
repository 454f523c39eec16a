package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tugas/internal/audit"
	auditdomain "github.com/smallbiznis/tugas/internal/audit/domain"
	"github.com/smallbiznis/tugas/internal/auth"
	authdomain "github.com/smallbiznis/tugas/internal/auth/domain"
	"github.com/smallbiznis/tugas/internal/authorization"
	"github.com/smallbiznis/tugas/internal/chain"
	"github.com/smallbiznis/tugas/internal/config"
	"github.com/smallbiznis/tugas/internal/observability"
	obsmiddleware "github.com/smallbiznis/tugas/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tugas/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tugas/internal/observability/tracing"
	"github.com/smallbiznis/tugas/internal/payment"
	paymentdomain "github.com/smallbiznis/tugas/internal/payment/domain"
	"github.com/smallbiznis/tugas/internal/paymentpolicy"
	paymentpolicydomain "github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
	"github.com/smallbiznis/tugas/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	chain.Module,
	audit.Module,
	authorization.Module,
	auth.Module,
	paymentpolicy.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterAPIRoutes()
		s.RegisterAdminRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	authsvc       authdomain.Service
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	paymentSvc    paymentdomain.Service
	policySvc     paymentpolicydomain.Service
	verifyLimiter verifyLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Authsvc       authdomain.Service
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	PaymentSvc    paymentdomain.Service
	PolicySvc     paymentpolicydomain.Service
	VerifyLimiter *ratelimit.VerifyLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	var limiter verifyLimiter
	if p.VerifyLimiter.Enabled() {
		limiter = p.VerifyLimiter
	}
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		authsvc:       p.Authsvc,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		paymentSvc:    p.PaymentSvc,
		policySvc:     p.PolicySvc,
		verifyLimiter: limiter,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.BearerAuthRequired())

	// -------- Payments --------
	api.POST("/payments/verify", s.VerifyRateLimit(), s.VerifyPayment)
	api.GET("/payments/entitlements/:content_id", s.GetEntitlement)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.BearerAuthRequired())

	// -------- Payment Policy --------
	admin.GET("/payment-policy", s.RequireRole(authorization.RoleOwner, authorization.RoleAdmin), s.authorizeOrgAction(authorization.ObjectPaymentPolicy, authorization.ActionPaymentPolicyView), s.GetPaymentPolicy)
	admin.PUT("/payment-policy", s.RequireRole(authorization.RoleOwner, authorization.RoleAdmin), s.authorizeOrgAction(authorization.ObjectPaymentPolicy, authorization.ActionPaymentPolicyManage), s.UpdatePaymentPolicy)

	// -------- Payment Records --------
	admin.GET("/payment-records", s.RequireRole(authorization.RoleOwner, authorization.RoleAdmin), s.authorizeOrgAction(authorization.ObjectPaymentRecord, authorization.ActionPaymentRecordView), s.ListPaymentRecords)

	// -------- Audit Logs --------
	admin.GET("/audit-logs", s.RequireRole(authorization.RoleOwner, authorization.RoleAdmin), s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
