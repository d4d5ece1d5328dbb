package turn

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	domainchatrun "chatrun/internal/domain/services/chatrun"
)

// SessionToolLimiter is the concrete ToolCallLimiter: a
// golang.org/x/time/rate token bucket per session, resolved
// through a ToolLimitResolver so the configured rate/burst can later vary
// per user tier without touching callers.
type SessionToolLimiter struct {
	resolver domainchatrun.ToolLimitResolver

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewSessionToolLimiter(resolver domainchatrun.ToolLimitResolver) *SessionToolLimiter {
	return &SessionToolLimiter{
		resolver: resolver,
		limiters: make(map[string]*rate.Limiter),
	}
}

var _ domainchatrun.ToolCallLimiter = (*SessionToolLimiter)(nil)

// Allow never blocks: it takes a token with the limiter's non-blocking
// Allow and reports false when none is available, so a rate-limited tool call
// becomes a tool_result error rather than stalling the turn.
func (l *SessionToolLimiter) Allow(ctx context.Context, sessionID string) bool {
	limiter := l.limiterFor(ctx, sessionID)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

func (l *SessionToolLimiter) limiterFor(ctx context.Context, sessionID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters[sessionID]; ok {
		return limiter
	}

	ratePerSecond, burst, err := l.resolver.GetToolCallRate(ctx, sessionID)
	if err != nil {
		return nil
	}
	limiter := rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	l.limiters[sessionID] = limiter
	return limiter
}
