package loyaltyconfig

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/pkg/redis"
)

// cacheStore is the subset of the redis client the configuration cache needs.
type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	LoyaltyConfigKey(restaurantID string) string
}

// Cache keeps resolved configurations keyed by restaurant id and a generation
// counter. Invalidate bumps the generation, which orphans every entry filled
// from an earlier read; orphans age out with the ttl.
type Cache struct {
	store cacheStore
	ttl   time.Duration
}

// NewCache wraps a redis store. A nil store disables caching.
func NewCache(store cacheStore, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

func (c *Cache) disabled() bool {
	return c == nil || c.store == nil
}

func (c *Cache) generationKey(restaurantID uuid.UUID) string {
	return c.store.LoyaltyConfigKey(restaurantID.String()) + ":gen"
}

func (c *Cache) entryKey(restaurantID uuid.UUID, gen string) string {
	return c.store.LoyaltyConfigKey(restaurantID.String()) + ":v" + gen
}

// Get returns the cached configuration and the generation it was looked up
// under. ok is false on a miss or a corrupt entry; gen is empty when the
// generation could not be read, and Put then skips the fill.
func (c *Cache) Get(ctx context.Context, restaurantID uuid.UUID) (cfg Configuration, gen string, ok bool, err error) {
	if c.disabled() {
		return Configuration{}, "", false, nil
	}
	gen, err = c.store.Get(ctx, c.generationKey(restaurantID))
	switch {
	case redis.IsNil(err):
		gen = "0"
	case err != nil:
		return Configuration{}, "", false, err
	}

	raw, err := c.store.Get(ctx, c.entryKey(restaurantID, gen))
	if err != nil {
		if redis.IsNil(err) {
			return Configuration{}, gen, false, nil
		}
		return Configuration{}, gen, false, err
	}
	if !json.Valid([]byte(raw)) {
		return Configuration{}, gen, false, nil
	}
	return Resolve([]byte(raw)), gen, true, nil
}

// Put stores a resolved configuration under the generation returned by Get.
func (c *Cache) Put(ctx context.Context, restaurantID uuid.UUID, gen string, cfg Configuration) error {
	if c.disabled() || gen == "" {
		return nil
	}
	payload, err := cfg.Encode()
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.entryKey(restaurantID, gen), string(payload), c.ttl)
}

// Invalidate moves the restaurant to a new generation. Call it after the
// settings write has committed.
func (c *Cache) Invalidate(ctx context.Context, restaurantID uuid.UUID) error {
	if c.disabled() {
		return nil
	}
	_, err := c.store.Incr(ctx, c.generationKey(restaurantID))
	return err
}
