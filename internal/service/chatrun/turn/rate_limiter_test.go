package turn

import (
	"context"
	"testing"

	domainchatrun "chatrun/internal/domain/services/chatrun"
)

func TestSessionToolLimiterAllowsUpToBurstThenDenies(t *testing.T) {
	resolver := domainchatrun.NewConfigToolLimitResolver(0, 2)
	limiter := NewSessionToolLimiter(resolver)
	ctx := context.Background()

	if !limiter.Allow(ctx, "s1") {
		t.Fatal("first call within burst should be allowed")
	}
	if !limiter.Allow(ctx, "s1") {
		t.Fatal("second call within burst should be allowed")
	}
	if limiter.Allow(ctx, "s1") {
		t.Fatal("third call should exceed the burst of 2 and be denied")
	}
}

func TestSessionToolLimiterIsPerSession(t *testing.T) {
	resolver := domainchatrun.NewConfigToolLimitResolver(0, 1)
	limiter := NewSessionToolLimiter(resolver)
	ctx := context.Background()

	if !limiter.Allow(ctx, "s1") {
		t.Fatal("s1's first call should be allowed")
	}
	if limiter.Allow(ctx, "s1") {
		t.Fatal("s1's second call should be denied (burst exhausted)")
	}
	if !limiter.Allow(ctx, "s2") {
		t.Fatal("s2 should have its own independent budget")
	}
}
