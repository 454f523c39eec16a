// Package domain contains core types for bearer-token authentication.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Principal is the caller identified by a bearer token. PayerID is the token
// subject and OrgID the tenant the token was issued for.
type Principal struct {
	PayerID   string
	OrgID     snowflake.ID
	Role      string
	ExpiresAt time.Time
}
