package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Dedup implements domain.Deduper with SET NX so replay protection holds
// across instances.
type Dedup struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDedup creates a Dedup whose keys expire after ttl.
func NewDedup(c *Client, ttl time.Duration) *Dedup {
	return &Dedup{rdb: c.Underlying(), ttl: ttl}
}

func (d *Dedup) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, "dedup:"+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: dedup %s: %w", key, err)
	}
	return !ok, nil
}

var _ domain.Deduper = (*Dedup)(nil)
