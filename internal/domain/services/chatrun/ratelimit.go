package chatrun

import "context"

// ToolCallLimiter gates tool invocations per session, backed by a
// golang.org/x/time/rate token bucket.
type ToolCallLimiter interface {
	// Allow reports whether a tool call for this session may proceed right
	// now. A false result means the caller must synthesize a rate_limit_tools
	// error rather than block — the turn never waits on the limiter.
	Allow(ctx context.Context, sessionID string) bool
}

// ToolLimitResolver resolves the tool-call-rate quota to apply for a
// session. Mirrors a tiered-limit strategy: a static default today, a
// user-tier lookup later, without touching ToolCallLimiter callers.
type ToolLimitResolver interface {
	GetToolCallRate(ctx context.Context, sessionID string) (ratePerSecond float64, burst int, err error)
}

// ConfigToolLimitResolver returns the same configured rate/burst for every
// session.
type ConfigToolLimitResolver struct {
	ratePerSecond float64
	burst         int
}

func NewConfigToolLimitResolver(ratePerSecond float64, burst int) *ConfigToolLimitResolver {
	return &ConfigToolLimitResolver{ratePerSecond: ratePerSecond, burst: burst}
}

func (r *ConfigToolLimitResolver) GetToolCallRate(ctx context.Context, sessionID string) (float64, int, error) {
	return r.ratePerSecond, r.burst, nil
}
