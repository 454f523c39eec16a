package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Resolver is the read path used during verification.
type Resolver interface {
	Resolve(ctx context.Context, orgID snowflake.ID) (Policy, error)
}

type Service interface {
	Resolver
	Get(ctx context.Context) (Policy, error)
	Upsert(ctx context.Context, req UpsertRequest) (Policy, error)
}

type UpsertRequest struct {
	RecipientAddress     string  `json:"recipient_address"`
	MinimumConfirmations *uint64 `json:"minimum_confirmations"`
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidRecipient     = errors.New("invalid_recipient")
	ErrInvalidConfirmations = errors.New("invalid_minimum_confirmations")
	ErrNotConfigured        = errors.New("payment_policy_not_configured")
)
