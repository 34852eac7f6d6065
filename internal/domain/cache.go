package domain

import (
	"context"
	"time"
)

// ListingCache provides fast listing lookups for the query surface.
type ListingCache interface {
	Set(ctx context.Context, l Listing) error
	Get(ctx context.Context, id uint64) (Listing, error)
	Invalidate(ctx context.Context, id uint64) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides mutual exclusion per key. Acquire blocks until the
// lock is obtained or ctx is done.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Deduper remembers keys for a fixed window. Seen records key and reports
// whether it had already been recorded inside that window.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}
