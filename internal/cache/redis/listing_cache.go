package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/redis/go-redis/v9"
)

const listingTTL = 5 * time.Minute

// ListingCache implements domain.ListingCache. Each listing is a hash with
// its JSON under "data" and its version under "version"; Set never replaces
// a newer version with an older one.
type ListingCache struct {
	rdb   *redis.Client
	setSc *redis.Script
}

// setIfNewerLua writes the listing unless the cached version is newer.
const setIfNewerLua = `
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
    return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`

// NewListingCache creates a ListingCache backed by the given Client.
func NewListingCache(c *Client) *ListingCache {
	return &ListingCache{rdb: c.Underlying(), setSc: redis.NewScript(setIfNewerLua)}
}

func listingKey(id uint64) string { return "listing:" + strconv.FormatUint(id, 10) }

func (lc *ListingCache) Set(ctx context.Context, l domain.Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("redis: marshal listing %d: %w", l.ID, err)
	}
	err = lc.setSc.Run(ctx, lc.rdb, []string{listingKey(l.ID)},
		l.Version, data, listingTTL.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis: set listing %d: %w", l.ID, err)
	}
	return nil
}

// Get returns domain.ErrNotFound on a cache miss.
func (lc *ListingCache) Get(ctx context.Context, id uint64) (domain.Listing, error) {
	data, err := lc.rdb.HGet(ctx, listingKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("redis: get listing %d: %w", id, err)
	}

	var l domain.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return domain.Listing{}, fmt.Errorf("redis: unmarshal listing %d: %w", id, err)
	}
	return l, nil
}

func (lc *ListingCache) Invalidate(ctx context.Context, id uint64) error {
	if err := lc.rdb.Del(ctx, listingKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate listing %d: %w", id, err)
	}
	return nil
}

var _ domain.ListingCache = (*ListingCache)(nil)
