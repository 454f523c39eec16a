package context

import (
	stdcontext "context"
	"strings"

	"github.com/smallbiznis/tugas/internal/auditcontext"
	"github.com/smallbiznis/tugas/internal/orgcontext"
)

type requestIDKey struct{}

// WithRequestID stores the request identifier used for log correlation.
func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func OrgIDFromContext(ctx stdcontext.Context) string {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return ""
	}
	return orgID.String()
}

func ActorFromContext(ctx stdcontext.Context) (string, string) {
	return auditcontext.ActorFromContext(ctx)
}
