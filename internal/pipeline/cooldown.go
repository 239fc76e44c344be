package pipeline

import (
	"context"
	"sync"
	"time"
)

// Cooldown decides whether a vehicle may raise another alert yet.
type Cooldown interface {
	Allow(ctx context.Context, vehicleID string) (bool, error)
}

// MemoryCooldown keeps the time of the last allowed alert per vehicle.
type MemoryCooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func NewMemoryCooldown(window time.Duration) *MemoryCooldown {
	return &MemoryCooldown{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

func (c *MemoryCooldown) Allow(_ context.Context, vehicleID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if at, ok := c.last[vehicleID]; ok && now.Sub(at) < c.window {
		return false, nil
	}
	c.last[vehicleID] = now
	return true, nil
}

type cooldownLocker interface {
	AcquireCooldown(ctx context.Context, vehicleID string, ttl time.Duration) (bool, error)
}

// RedisCooldown shares the cooldown window across processes through a
// per-vehicle key that expires after the window.
type RedisCooldown struct {
	locker cooldownLocker
	window time.Duration
}

func NewRedisCooldown(locker cooldownLocker, window time.Duration) *RedisCooldown {
	return &RedisCooldown{locker: locker, window: window}
}

func (c *RedisCooldown) Allow(ctx context.Context, vehicleID string) (bool, error) {
	return c.locker.AcquireCooldown(ctx, vehicleID, c.window)
}
