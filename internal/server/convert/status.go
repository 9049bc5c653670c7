package convert

import (
	"context"
	"sync"
	"time"
)

// StatusProber checks every conversion tool. *Converter implements it.
type StatusProber interface {
	Probe(ctx context.Context) []ToolStatus
}

// StatusCache serves tool statuses from memory and checks the tools again at
// most once per TTL. Each check runs under its own timeout, detached from the
// caller's cancellation.
type StatusCache struct {
	prober  StatusProber
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	statuses []ToolStatus
	checked  time.Time
}

// NewStatusCache creates a cache in front of prober.
func NewStatusCache(prober StatusProber, ttl, timeout time.Duration) *StatusCache {
	return &StatusCache{
		prober:  prober,
		ttl:     ttl,
		timeout: timeout,
		now:     time.Now,
	}
}

// Probe returns the cached statuses, refreshing them first when they are
// missing or older than the TTL. Concurrent callers share one refresh.
func (c *StatusCache) Probe(ctx context.Context) []ToolStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.statuses != nil && c.now().Sub(c.checked) < c.ttl {
		return c.snapshot()
	}
	c.refreshLocked(ctx)
	return c.snapshot()
}

// Refresh checks the tools immediately regardless of the TTL.
func (c *StatusCache) Refresh(ctx context.Context) []ToolStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked(ctx)
	return c.snapshot()
}

func (c *StatusCache) refreshLocked(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	c.statuses = c.prober.Probe(checkCtx)
	c.checked = c.now()
}

func (c *StatusCache) snapshot() []ToolStatus {
	out := make([]ToolStatus, len(c.statuses))
	copy(out, c.statuses)
	return out
}
