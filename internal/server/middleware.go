package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/tugas/internal/audit/domain"
	"github.com/smallbiznis/tugas/internal/auditcontext"
	authdomain "github.com/smallbiznis/tugas/internal/auth/domain"
	"github.com/smallbiznis/tugas/internal/orgcontext"
)

const (
	headerAuthorization = "Authorization"
	bearerPrefix        = "bearer "
	contextPrincipalKey = "principal"
)

// BearerAuthRequired resolves the payer and tenant from the bearer token and
// places them on the request context. Nothing downstream trusts body fields
// for identity.
func (s *Server) BearerAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader(headerAuthorization))
		if raw == "" {
			AbortWithError(c, authdomain.ErrMissingToken)
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		ctx = orgcontext.WithOrgID(ctx, int64(principal.OrgID))
		ctx = orgcontext.WithUserID(ctx, principal.PayerID)
		ctx = orgcontext.WithRole(ctx, principal.Role)
		ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeUser), principal.PayerID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextPrincipalKey, principal)
		c.Next()
	}
}

// RequireRole rejects principals whose token role is not listed.
func (s *Server) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.ToLower(strings.TrimSpace(orgcontext.RoleFromContext(c.Request.Context())))
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}

func principalFromContext(c *gin.Context) (*authdomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*authdomain.Principal)
	return principal, ok && principal != nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
