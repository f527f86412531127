package cache

import (
	"context"
	"time"
)

// BytesCache stores raw bytes with a TTL. Backend errors are reported as
// misses; a cache never fails the request it accelerates.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Layered reads through an in-process L1 in front of a shared L2 and
// writes through both.
type Layered struct {
	l1 BytesCache
	l2 BytesCache
	// l1TTL caps how long an L2 hit is kept in L1.
	l1TTL time.Duration
}

func NewLayered(l1, l2 BytesCache, l1TTL time.Duration) *Layered {
	return &Layered{l1: l1, l2: l2, l1TTL: l1TTL}
}

func (c *Layered) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	if b, ok := c.l1.GetBytes(ctx, key); ok {
		return b, true
	}
	b, ok := c.l2.GetBytes(ctx, key)
	if ok {
		c.l1.SetBytes(ctx, key, b, c.l1TTL)
	}
	return b, ok
}

func (c *Layered) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.l2.SetBytes(ctx, key, value, ttl)
	l1 := ttl
	if c.l1TTL > 0 && (l1 <= 0 || c.l1TTL < l1) {
		l1 = c.l1TTL
	}
	c.l1.SetBytes(ctx, key, value, l1)
}
