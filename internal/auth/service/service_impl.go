package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	jwt "github.com/golang-jwt/jwt/v5"
	authdomain "github.com/smallbiznis/tugas/internal/auth/domain"
	"github.com/smallbiznis/tugas/internal/clock"
	"github.com/smallbiznis/tugas/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const clockSkew = 30 * time.Second

type claims struct {
	OrgID string `json:"org_id"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	log    *zap.Logger
	secret []byte
	issuer string
	clock  clock.Clock
}

func New(p Params) authdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		log:    p.Log.Named("auth.service"),
		secret: []byte(strings.TrimSpace(p.Cfg.AuthJWTSecret)),
		issuer: strings.TrimSpace(p.Cfg.AuthJWTIssuer),
		clock:  clk,
	}
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*authdomain.Principal, error) {
	if len(s.secret) == 0 {
		return nil, authdomain.ErrNotConfigured
	}
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, authdomain.ErrMissingToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}

	var parsed claims
	token, err := jwt.ParseWithClaims(rawToken, &parsed, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, authdomain.ErrTokenExpired
		}
		s.log.Debug("token rejected", zap.Error(err))
		return nil, authdomain.ErrInvalidToken
	}
	if !token.Valid {
		return nil, authdomain.ErrInvalidToken
	}

	payerID := strings.TrimSpace(parsed.Subject)
	if payerID == "" {
		return nil, authdomain.ErrInvalidClaims
	}
	orgID, err := snowflake.ParseString(strings.TrimSpace(parsed.OrgID))
	if err != nil || orgID == 0 {
		return nil, authdomain.ErrInvalidClaims
	}

	principal := &authdomain.Principal{
		PayerID: payerID,
		OrgID:   orgID,
		Role:    strings.ToLower(strings.TrimSpace(parsed.Role)),
	}
	if parsed.ExpiresAt != nil {
		principal.ExpiresAt = parsed.ExpiresAt.Time
	}
	return principal, nil
}

func (s *Service) Issue(principal authdomain.Principal, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", authdomain.ErrNotConfigured
	}
	if strings.TrimSpace(principal.PayerID) == "" || principal.OrgID == 0 {
		return "", authdomain.ErrInvalidClaims
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := s.clock.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		OrgID: principal.OrgID.String(),
		Role:  strings.ToLower(strings.TrimSpace(principal.Role)),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.TrimSpace(principal.PayerID),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.secret)
}
