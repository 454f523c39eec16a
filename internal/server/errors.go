package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/tugas/internal/audit/domain"
	authdomain "github.com/smallbiznis/tugas/internal/auth/domain"
	"github.com/smallbiznis/tugas/internal/authorization"
	paymentdomain "github.com/smallbiznis/tugas/internal/payment/domain"
	paymentpolicydomain "github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrOrgRequired        = errors.New("organization_required")
	ErrRateLimited        = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

type errorClass struct {
	status  int
	typ     string
	message string
	matches []error
}

// errorClasses is checked in order; the first class with a matching sentinel wins.
var errorClasses = []errorClass{
	{http.StatusUnauthorized, "unauthorized", "unauthorized", []error{
		ErrUnauthorized,
		authdomain.ErrMissingToken,
		authdomain.ErrInvalidToken,
		authdomain.ErrTokenExpired,
		authdomain.ErrInvalidClaims,
	}},
	{http.StatusForbidden, "forbidden", "forbidden", []error{
		ErrForbidden,
		authorization.ErrForbidden,
		authorization.ErrInvalidActor,
	}},
	{http.StatusConflict, "conflict", "conflict", []error{ErrConflict}},
	{http.StatusTooManyRequests, "rate_limited", "too many requests", []error{ErrRateLimited}},
	{http.StatusNotFound, "not_found", "not found", []error{
		ErrNotFound,
		paymentdomain.ErrRecordNotFound,
		gorm.ErrRecordNotFound,
	}},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", []error{
		ErrServiceUnavailable,
		authdomain.ErrNotConfigured,
		paymentpolicydomain.ErrNotConfigured,
	}},
}

// validationSentinels become a single field error whose code is the sentinel text.
var validationSentinels = []error{
	ErrInvalidRequest,
	ErrOrgRequired,
	paymentdomain.ErrInvalidOrganization,
	paymentdomain.ErrInvalidPayer,
	paymentdomain.ErrInvalidContent,
	paymentdomain.ErrInvalidStatus,
	paymentdomain.ErrInvalidPageToken,
	paymentpolicydomain.ErrInvalidOrganization,
	paymentpolicydomain.ErrInvalidRecipient,
	paymentpolicydomain.ErrInvalidConfirmations,
	auditdomain.ErrInvalidOrganization,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
}

var internalPayload = errorPayload{Type: "internal_error", Message: "internal server error"}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalPayload
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if sentinel := matchSentinel(err, validationSentinels); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   validationErrorField(code),
				Code:    code,
				Message: validationErrorMessage(code),
			}},
		}
	}

	for _, class := range errorClasses {
		if matchSentinel(err, class.matches) != nil {
			return class.status, errorPayload{Type: class.typ, Message: class.message}
		}
	}
	return http.StatusInternalServerError, internalPayload
}

func matchSentinel(err error, sentinels []error) error {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

// classifyErrorForLog feeds the request logger; it never sees response bodies.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	switch {
	case status >= http.StatusInternalServerError:
		return "server", code
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth", code
	default:
		return "client", code
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if code == ErrOrgRequired.Error() {
		return "organization"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "organization_required":
		return "organization is required"
	default:
		return "invalid value"
	}
}
