package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/filecoin-project/go-clock"
)

// Cooldown admits one action per key per period. Acquire reports false
// while the key is cooling down.
type Cooldown interface {
	Acquire(ctx context.Context, key string, period time.Duration) (bool, error)
}

type MemoryCooldown struct {
	mu    sync.Mutex
	until map[string]time.Time
	clock clock.Clock
}

func NewMemoryCooldown(clk clock.Clock) *MemoryCooldown {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryCooldown{until: make(map[string]time.Time), clock: clk}
}

func (c *MemoryCooldown) Acquire(_ context.Context, key string, period time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if until, ok := c.until[key]; ok && now.Before(until) {
		return false, nil
	}
	c.until[key] = now.Add(period)

	for k, until := range c.until {
		if !now.Before(until) {
			delete(c.until, k)
		}
	}
	return true, nil
}
