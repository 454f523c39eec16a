package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"
	paymentpolicydomain "github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
)

const defaultPolicyTTL = 30 * time.Second

// PolicyCache holds resolved tenant payment policies for the verify path.
type PolicyCache interface {
	GetPolicy(orgID snowflake.ID) (paymentpolicydomain.Policy, bool)
	SetPolicy(orgID snowflake.ID, policy paymentpolicydomain.Policy)
	InvalidatePolicy(orgID snowflake.ID)
}

type policyCache struct {
	policies Cache[snowflake.ID, paymentpolicydomain.Policy]
	ttl      time.Duration
}

// NewPolicyCache returns an in-memory policy cache; ttl <= 0 uses the default.
func NewPolicyCache(ttl time.Duration) PolicyCache {
	if ttl <= 0 {
		ttl = defaultPolicyTTL
	}
	return &policyCache{
		policies: NewTTLCache[snowflake.ID, paymentpolicydomain.Policy](),
		ttl:      ttl,
	}
}

func (c *policyCache) GetPolicy(orgID snowflake.ID) (paymentpolicydomain.Policy, bool) {
	return c.policies.Get(orgID)
}

func (c *policyCache) SetPolicy(orgID snowflake.ID, policy paymentpolicydomain.Policy) {
	if orgID == 0 {
		return
	}
	c.policies.Set(orgID, policy, c.ttl)
}

func (c *policyCache) InvalidatePolicy(orgID snowflake.ID) {
	c.policies.Delete(orgID)
}
