package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentpolicydomain "github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	c := NewTTLCacheWithClock[string, int](clock)

	c.Set("a", 1, time.Minute)
	c.Set("forever", 2, 0)
	if got, ok := c.Get("a"); !ok || got != 1 {
		t.Fatalf("expected cached value, got %v %v", got, ok)
	}

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected entry to expire")
	}
	if _, ok := c.Get("forever"); !ok {
		t.Fatalf("expected non-expiring entry to remain")
	}
	if c.Len() != 1 {
		t.Fatalf("expected expired entry to be evicted, len=%d", c.Len())
	}
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache[int, string]()
	c.Set(1, "x", time.Hour)
	c.Delete(1)
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected deleted entry to be gone")
	}
}

func TestPolicyCacheInvalidate(t *testing.T) {
	c := NewPolicyCache(time.Hour)
	org := snowflake.ID(10)

	c.SetPolicy(org, paymentpolicydomain.Policy{OrgID: org, MinimumConfirmations: 3})
	if got, ok := c.GetPolicy(org); !ok || got.MinimumConfirmations != 3 {
		t.Fatalf("expected cached policy, got %+v %v", got, ok)
	}

	c.InvalidatePolicy(org)
	if _, ok := c.GetPolicy(org); ok {
		t.Fatalf("expected policy to be invalidated")
	}

	c.SetPolicy(0, paymentpolicydomain.Policy{})
	if _, ok := c.GetPolicy(0); ok {
		t.Fatalf("zero org must not be cached")
	}
}
