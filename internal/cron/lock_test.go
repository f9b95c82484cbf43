package cron

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func jobKey(job string) string { return "loyalty:lock:test:" + job }

func TestRedisLockerLeasesPerJob(t *testing.T) {
	store := newMemoryStore()
	locker, err := NewRedisLocker(store, jobKey)
	require.NoError(t, err)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "redemption-expiry", 15*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, release)
	assert.Equal(t, 15*time.Minute, store.ttls["loyalty:lock:test:redemption-expiry"])

	again, err := locker.Acquire(ctx, "redemption-expiry", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again, "second lease on the same job must fail")

	other, err := locker.Acquire(ctx, "outbox-retention", time.Hour)
	require.NoError(t, err)
	assert.NotNil(t, other, "jobs lease independently")

	require.NoError(t, release(ctx))
	assert.NotContains(t, store.values, "loyalty:lock:test:redemption-expiry")
}

func TestRedisLockerReleaseLeavesForeignLease(t *testing.T) {
	store := newMemoryStore()
	locker, err := NewRedisLocker(store, jobKey)
	require.NoError(t, err)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "outbox-retention", time.Minute)
	require.NoError(t, err)
	store.values["loyalty:lock:test:outbox-retention"] = "someone-else"

	require.NoError(t, release(ctx))
	assert.Equal(t, "someone-else", store.values["loyalty:lock:test:outbox-retention"])

	delete(store.values, "loyalty:lock:test:outbox-retention")
	assert.NoError(t, release(ctx), "expired lease is not an error")
}

func TestNewRedisLockerValidation(t *testing.T) {
	_, err := NewRedisLocker(nil, jobKey)
	assert.Error(t, err)
	_, err = NewRedisLocker(newMemoryStore(), nil)
	assert.Error(t, err)
}
