package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/pkg/redis"
)

// Locker hands out a per-job lease so only one worker runs a job at a time.
type Locker interface {
	// Acquire returns a release func when the lease was taken, nil otherwise.
	Acquire(ctx context.Context, job string, ttl time.Duration) (release func(context.Context) error, err error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLocker leases job locks with SETNX. Keys look like
// loyalty:lock:<scope>:<job>.
type RedisLocker struct {
	store lockStore
	key   func(job string) string
}

func NewRedisLocker(store lockStore, key func(job string) string) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == nil {
		return nil, errors.New("lock key builder is required")
	}
	return &RedisLocker{store: store, key: key}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, job string, ttl time.Duration) (func(context.Context) error, error) {
	key := l.key(job)
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("lease %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return func(ctx context.Context) error {
		holder, err := l.store.Get(ctx, key)
		if redis.IsNil(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read lease %s: %w", key, err)
		}
		// the lease expired and someone else took it
		if holder != token {
			return nil
		}
		return l.store.Del(ctx, key)
	}, nil
}
