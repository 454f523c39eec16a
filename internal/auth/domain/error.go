package domain

import "errors"

var (
	ErrMissingToken  = errors.New("missing_token")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrTokenExpired  = errors.New("token_expired")
	ErrInvalidClaims = errors.New("invalid_claims")
	ErrNotConfigured = errors.New("auth_not_configured")
)
