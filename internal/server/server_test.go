package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/tugas/internal/audit/domain"
	authdomain "github.com/smallbiznis/tugas/internal/auth/domain"
	"github.com/smallbiznis/tugas/internal/authorization"
	"github.com/smallbiznis/tugas/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/tugas/internal/payment/domain"
	paymentpolicydomain "github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
	"github.com/smallbiznis/tugas/internal/ratelimit"
)

const (
	tokenMember = "token-member"
	tokenAdmin  = "token-admin"
	testOrgID   = snowflake.ID(4242)
)

type fakeAuthService struct{}

func (f *fakeAuthService) Authenticate(_ context.Context, rawToken string) (*authdomain.Principal, error) {
	switch rawToken {
	case tokenMember:
		return &authdomain.Principal{PayerID: "payer-1", OrgID: testOrgID, Role: authorization.RoleMember}, nil
	case tokenAdmin:
		return &authdomain.Principal{PayerID: "admin-1", OrgID: testOrgID, Role: authorization.RoleAdmin}, nil
	case "expired":
		return nil, authdomain.ErrTokenExpired
	default:
		return nil, authdomain.ErrInvalidToken
	}
}

func (f *fakeAuthService) Issue(authdomain.Principal, time.Duration) (string, error) {
	return "", nil
}

type fakePaymentService struct {
	outcome   *paymentdomain.Outcome
	err       error
	listErr   error
	lastReq   paymentdomain.VerifyRequest
	lastOrg   snowflake.ID
	lastPayer string
	calls     int
}

func (f *fakePaymentService) Verify(ctx context.Context, req paymentdomain.VerifyRequest) (*paymentdomain.Outcome, error) {
	f.calls++
	f.lastReq = req
	f.lastOrg, _ = orgcontext.OrgIDFromContext(ctx)
	f.lastPayer, _ = orgcontext.UserIDFromContext(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

func (f *fakePaymentService) HasEntitlement(context.Context, snowflake.ID, string, string) (bool, error) {
	return false, nil
}

func (f *fakePaymentService) GetEntitlement(_ context.Context, contentID string) (*paymentdomain.EntitlementStatus, error) {
	return &paymentdomain.EntitlementStatus{ContentID: contentID, Granted: contentID == "article-1"}, nil
}

func (f *fakePaymentService) ListRecords(context.Context, paymentdomain.ListRecordsRequest) (paymentdomain.ListRecordsResponse, error) {
	if f.listErr != nil {
		return paymentdomain.ListRecordsResponse{}, f.listErr
	}
	return paymentdomain.ListRecordsResponse{Records: []paymentdomain.PaymentRecord{{ID: 1, Status: paymentdomain.StatusConfirmed}}}, nil
}

func (f *fakePaymentService) ResumePending(context.Context, time.Time, int) (paymentdomain.ResumeResult, error) {
	return paymentdomain.ResumeResult{}, nil
}

type fakePolicyService struct {
	getErr    error
	upsertErr error
}

func (f *fakePolicyService) Resolve(context.Context, snowflake.ID) (paymentpolicydomain.Policy, error) {
	return paymentpolicydomain.Policy{}, nil
}

func (f *fakePolicyService) Get(ctx context.Context) (paymentpolicydomain.Policy, error) {
	if f.getErr != nil {
		return paymentpolicydomain.Policy{}, f.getErr
	}
	orgID, _ := orgcontext.OrgIDFromContext(ctx)
	return paymentpolicydomain.Policy{OrgID: orgID, RecipientAddress: "recipient", MinimumConfirmations: 10}, nil
}

func (f *fakePolicyService) Upsert(ctx context.Context, req paymentpolicydomain.UpsertRequest) (paymentpolicydomain.Policy, error) {
	if f.upsertErr != nil {
		return paymentpolicydomain.Policy{}, f.upsertErr
	}
	orgID, _ := orgcontext.OrgIDFromContext(ctx)
	return paymentpolicydomain.Policy{OrgID: orgID, RecipientAddress: req.RecipientAddress}, nil
}

type fakeAuthzService struct {
	err       error
	lastActor string
	lastOrg   string
}

func (f *fakeAuthzService) Authorize(_ context.Context, actor string, orgID string, _ string, _ string) error {
	f.lastActor = actor
	f.lastOrg = orgID
	return f.err
}

type fakeAuditService struct{}

func (f *fakeAuditService) AuditLog(context.Context, *snowflake.ID, string, *string, string, string, *string, map[string]any) error {
	return nil
}

func (f *fakeAuditService) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type fakeVerifyLimiter struct {
	result *ratelimit.RateLimitResult
	err    error
}

func (f *fakeVerifyLimiter) Allow(context.Context, string, string) (*ratelimit.RateLimitResult, error) {
	return f.result, f.err
}

type testServer struct {
	server   *Server
	payments *fakePaymentService
	policies *fakePolicyService
	authz    *fakeAuthzService
}

func newTestServer(t *testing.T, limiter verifyLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		payments: &fakePaymentService{},
		policies: &fakePolicyService{},
		authz:    &fakeAuthzService{},
	}
	ts.server = &Server{
		engine:        engine,
		authsvc:       &fakeAuthService{},
		authzSvc:      ts.authz,
		auditSvc:      &fakeAuditService{},
		paymentSvc:    ts.payments,
		policySvc:     ts.policies,
		verifyLimiter: limiter,
	}
	ts.server.RegisterAPIRoutes()
	ts.server.RegisterAdminRoutes()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

var verifyBody = map[string]any{
	"network":               "production",
	"transaction_reference": "tx-1",
	"sender_address":        "sender",
	"expected_amount":       "0.5",
	"content_id":            "article-1",
}

func TestVerifyStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		outcome    *paymentdomain.Outcome
		status     int
		retryAfter string
	}{
		{"verified", &paymentdomain.Outcome{Verified: true, Amount: "0.5", Record: &paymentdomain.PaymentRecord{ID: 9, Status: paymentdomain.StatusConfirmed}}, http.StatusOK, ""},
		{"invalid format", &paymentdomain.Outcome{Reason: paymentdomain.ReasonInvalidFormat}, http.StatusBadRequest, ""},
		{"already used", &paymentdomain.Outcome{Reason: paymentdomain.ReasonTransactionAlreadyUsed}, http.StatusConflict, ""},
		{"wrong recipient", &paymentdomain.Outcome{Reason: paymentdomain.ReasonWrongRecipient}, http.StatusUnprocessableEntity, ""},
		{"sender mismatch", &paymentdomain.Outcome{Reason: paymentdomain.ReasonSenderMismatch}, http.StatusUnprocessableEntity, ""},
		{"insufficient amount", &paymentdomain.Outcome{Reason: paymentdomain.ReasonInsufficientAmount}, http.StatusUnprocessableEntity, ""},
		{"transaction failed", &paymentdomain.Outcome{Reason: paymentdomain.ReasonTransactionFailed}, http.StatusUnprocessableEntity, ""},
		{"confirmations", &paymentdomain.Outcome{Reason: paymentdomain.ReasonInsufficientConfirmations, RetryAfter: 8800 * time.Millisecond}, http.StatusAccepted, "9"},
		{"not found", &paymentdomain.Outcome{Reason: paymentdomain.ReasonNotFound, RetryAfter: 5 * time.Second}, http.StatusNotFound, "5"},
		{"transient", &paymentdomain.Outcome{Reason: paymentdomain.ReasonTransientError, RetryAfter: 10 * time.Second}, http.StatusServiceUnavailable, "10"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.payments.outcome = tc.outcome

			rec := ts.do(t, http.MethodPost, "/api/payments/verify", tokenMember, verifyBody)
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if got := rec.Header().Get("Retry-After"); got != tc.retryAfter {
				t.Fatalf("expected Retry-After %q, got %q", tc.retryAfter, got)
			}

			body := decodeBody(t, rec)
			if body["verified"] != tc.outcome.Verified {
				t.Fatalf("unexpected verified flag: %v", body["verified"])
			}
			if !tc.outcome.Verified {
				if body["reason"] != string(tc.outcome.Reason) {
					t.Fatalf("expected reason %s, got %v", tc.outcome.Reason, body["reason"])
				}
				if body["message"] == "" || body["message"] == nil {
					t.Fatalf("expected actionable message")
				}
			}
		})
	}
}

func TestVerifyUsesTokenIdentity(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.payments.outcome = &paymentdomain.Outcome{Verified: true}

	body := map[string]any{}
	for k, v := range verifyBody {
		body[k] = v
	}
	body["payer_id"] = "someone-else"

	rec := ts.do(t, http.MethodPost, "/api/payments/verify", tokenMember, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ts.payments.lastOrg != testOrgID || ts.payments.lastPayer != "payer-1" {
		t.Fatalf("identity must come from the token, got org=%d payer=%s", ts.payments.lastOrg, ts.payments.lastPayer)
	}
	if ts.payments.lastReq.ContentID != "article-1" || ts.payments.lastReq.ExpectedAmount != "0.5" {
		t.Fatalf("unexpected request forwarded: %+v", ts.payments.lastReq)
	}
}

func TestVerifyRequiresBearerToken(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, token := range []string{"", "garbage", "expired"} {
		rec := ts.do(t, http.MethodPost, "/api/payments/verify", token, verifyBody)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %d", token, rec.Code)
		}
	}
	if ts.payments.calls != 0 {
		t.Fatalf("service must not be called without identity")
	}
}

func TestVerifyInfrastructureErrorIs500(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.payments.err = errors.New("connection refused")

	rec := ts.do(t, http.MethodPost, "/api/payments/verify", tokenMember, verifyBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	payload, _ := body["error"].(map[string]any)
	if payload["type"] != "internal_error" {
		t.Fatalf("unexpected error payload: %v", body)
	}
}

func TestVerifyPolicyNotConfiguredIs503(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.payments.err = paymentpolicydomain.ErrNotConfigured

	rec := ts.do(t, http.MethodPost, "/api/payments/verify", tokenMember, verifyBody)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestVerifyRateLimited(t *testing.T) {
	limiter := &fakeVerifyLimiter{result: &ratelimit.RateLimitResult{Allowed: false, Limit: 10, RetryAfter: 1500 * time.Millisecond}}
	ts := newTestServer(t, limiter)

	rec := ts.do(t, http.MethodPost, "/api/payments/verify", tokenMember, verifyBody)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if ts.payments.calls != 0 {
		t.Fatalf("limited request must not reach the service")
	}
}

func TestVerifyRateLimiterFailureLetsRequestThrough(t *testing.T) {
	limiter := &fakeVerifyLimiter{err: errors.New("redis down")}
	ts := newTestServer(t, limiter)
	ts.payments.outcome = &paymentdomain.Outcome{Verified: true}

	rec := ts.do(t, http.MethodPost, "/api/payments/verify", tokenMember, verifyBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetEntitlement(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/payments/entitlements/article-1", tokenMember, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["granted"] != true || body["content_id"] != "article-1" {
		t.Fatalf("unexpected entitlement body: %v", body)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/admin/payment-policy", tokenMember, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member must be rejected, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/admin/payment-policy", tokenAdmin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin must be allowed, got %d: %s", rec.Code, rec.Body.String())
	}
	if ts.authz.lastActor != "user:admin-1" || ts.authz.lastOrg != testOrgID.String() {
		t.Fatalf("unexpected authorization subject %s in %s", ts.authz.lastActor, ts.authz.lastOrg)
	}
}

func TestAdminRoutesHonorCasbinDecision(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.authz.err = authorization.ErrForbidden

	rec := ts.do(t, http.MethodGet, "/admin/payment-records", tokenAdmin, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestUpdatePaymentPolicyValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.policies.upsertErr = paymentpolicydomain.ErrInvalidRecipient

	rec := ts.do(t, http.MethodPut, "/admin/payment-policy", tokenAdmin, map[string]any{"recipient_address": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	payload, _ := body["error"].(map[string]any)
	errs, _ := payload["errors"].([]any)
	if len(errs) != 1 {
		t.Fatalf("expected one validation error, got %v", payload)
	}
	first, _ := errs[0].(map[string]any)
	if first["field"] != "recipient" {
		t.Fatalf("expected recipient field, got %v", first["field"])
	}
}

func TestListPaymentRecordsBadPageToken(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.payments.listErr = paymentdomain.ErrInvalidPageToken

	rec := ts.do(t, http.MethodGet, "/admin/payment-records?page_token=zzz", tokenAdmin, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListPaymentRecords(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/admin/payment-records?status=confirmed", tokenAdmin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected one record, got %v", body)
	}
}

func TestBearerTokenParsing(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	if got := retryAfterSeconds(0); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := retryAfterSeconds(2100 * time.Millisecond); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := retryAfterSeconds(4 * time.Second); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}
