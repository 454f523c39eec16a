package domain

import (
	"context"
	"time"
)

type Service interface {
	// Authenticate validates rawToken and returns the principal it names.
	Authenticate(ctx context.Context, rawToken string) (*Principal, error)
	// Issue signs a token for principal; used by tooling and tests.
	Issue(principal Principal, ttl time.Duration) (string, error)
}
