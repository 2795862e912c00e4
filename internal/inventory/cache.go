package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// balanceCacheTTL bounds how stale a cached balance read may be before a
// query falls back to the database, independent of how quickly the engine
// invalidates on write.
const balanceCacheTTL = 10 * time.Second

// CachedStore wraps Store with a Redis cache-aside layer over balance reads,
// the read path queries bypass the mediator's transaction machinery for
// (spec.md §2: "Queries bypass the mediator's transaction machinery and
// read directly (optionally from a cache)"). Grounded directly on
// Tim275-oms's stock/store_cached.go (cache-then-DB-then-populate,
// invalidate-on-write, best-effort cache errors logged and never fatal),
// re-targeted from single-quantity Items onto (item, location) Balances.
type CachedStore struct {
	store  *Store
	client *redis.Client
	logger *slog.Logger
}

// NewCachedStore wraps store with a Redis client at addr. A nil client
// (addr == "") makes every call fall through to store directly, for
// environments with no cache configured.
func NewCachedStore(store *Store, addr string, logger *slog.Logger) (*CachedStore, error) {
	if addr == "" {
		return &CachedStore{store: store, logger: logger}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("inventory: failed to connect to redis: %w", err)
	}
	return &CachedStore{store: store, client: client, logger: logger}, nil
}

func balanceCacheKey(itemID, locationID string) string {
	return fmt.Sprintf("balance:%s:%s", itemID, locationID)
}

// GetBalance implements the cache-aside read path: check cache, on miss
// query the database and best-effort populate the cache, per
// store_cached.go's GetItem.
func (c *CachedStore) GetBalance(ctx context.Context, itemID, locationID string) (Balance, error) {
	if c.client == nil {
		return c.store.GetBalance(ctx, itemID, locationID)
	}

	key := balanceCacheKey(itemID, locationID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var b Balance
		if unmarshalErr := json.Unmarshal(data, &b); unmarshalErr == nil {
			return b, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("inventory: cache read error, falling back to database", slog.Any("error", err))
	}

	b, err := c.store.GetBalance(ctx, itemID, locationID)
	if err != nil {
		return Balance{}, err
	}

	if data, marshalErr := json.Marshal(b); marshalErr == nil {
		if setErr := c.client.Set(ctx, key, data, balanceCacheTTL).Err(); setErr != nil {
			c.logger.Warn("inventory: failed to populate balance cache", slog.String("key", key), slog.Any("error", setErr))
		}
	}
	return b, nil
}

// Invalidate drops a cached balance, called by the engine after any
// mutating operation commits so a subsequent read never serves a value
// superseded by that write.
func (c *CachedStore) Invalidate(ctx context.Context, itemID, locationID string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, balanceCacheKey(itemID, locationID)).Err(); err != nil {
		c.logger.Warn("inventory: failed to invalidate balance cache", slog.String("item_id", itemID), slog.Any("error", err))
	}
}

// Close closes the underlying Redis connection, if any.
func (c *CachedStore) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
