package loyaltyconfig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/pkg/db/dbtest"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/retry"
)

type memoryCache struct {
	data   map[string]string
	bumps  int
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryCache) Incr(_ context.Context, key string) (int64, error) {
	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	m.bumps++
	return n, nil
}

func (m *memoryCache) LoyaltyConfigKey(restaurantID string) string {
	return "loyalty:config:loyalty:" + restaurantID
}

type countingRepo struct {
	settingsRepository
	loads int
	errs  []error
}

func (c *countingRepo) LoadSettings(ctx context.Context, id uuid.UUID) ([]byte, error) {
	c.loads++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	return c.settingsRepository.LoadSettings(ctx, id)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func seedRestaurant(t *testing.T, conn *gorm.DB, settings string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, conn.Exec(`INSERT INTO restaurants (id, name, settings) VALUES (?, ?, ?)`, id.String(), "Trattoria", settings).Error)
	return id
}

func newTestService(t *testing.T, repo settingsRepository, cache *memoryCache) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Cache:     NewCache(cache, time.Minute),
		Logger:    testLogger(),
		ReadRetry: retry.Read(time.Millisecond),
	})
	require.NoError(t, err)
	return svc
}

func TestServiceGetResolvesAndCaches(t *testing.T) {
	conn := dbtest.Open(t)
	restaurantID := seedRestaurant(t, conn, `{"loyalty":{"point_value":"0.1"}}`)
	repo := &countingRepo{settingsRepository: NewRepository(conn)}
	cache := newMemoryCache()
	svc := newTestService(t, repo, cache)

	cfg, err := svc.Get(context.Background(), restaurantID)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("0.1").Equal(cfg.PointValue))
	require.Equal(t, 1, repo.loads)

	cfg, err = svc.Get(context.Background(), restaurantID)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("0.1").Equal(cfg.PointValue))
	require.Equal(t, 1, repo.loads, "second read should be served from cache")
}

func TestServiceGetFallsBackToDatabaseWhenCacheFails(t *testing.T) {
	conn := dbtest.Open(t)
	restaurantID := seedRestaurant(t, conn, `{}`)
	repo := &countingRepo{settingsRepository: NewRepository(conn)}
	cache := newMemoryCache()
	cache.getErr = errors.New("redis down")
	svc := newTestService(t, repo, cache)

	cfg, err := svc.Get(context.Background(), restaurantID)
	require.NoError(t, err)
	require.Equal(t, enums.BlanketSmart, cfg.BlanketMode.Type)
	require.Equal(t, 1, repo.loads)
}

func TestServiceGetRetriesTransientReadOnce(t *testing.T) {
	conn := dbtest.Open(t)
	restaurantID := seedRestaurant(t, conn, `{}`)
	repo := &countingRepo{settingsRepository: NewRepository(conn), errs: []error{context.DeadlineExceeded}}
	svc := newTestService(t, repo, newMemoryCache())

	_, err := svc.Get(context.Background(), restaurantID)
	require.NoError(t, err)
	require.Equal(t, 2, repo.loads)
}

func TestServiceGetSurfacesDependencyErrorAfterRetry(t *testing.T) {
	conn := dbtest.Open(t)
	restaurantID := seedRestaurant(t, conn, `{}`)
	repo := &countingRepo{
		settingsRepository: NewRepository(conn),
		errs:               []error{context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded},
	}
	svc := newTestService(t, repo, newMemoryCache())

	_, err := svc.Get(context.Background(), restaurantID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Equal(t, 2, repo.loads)
}

func TestServiceGetUnknownRestaurant(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, NewRepository(conn), newMemoryCache())

	_, err := svc.Get(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceUpdateMergesSectionAndInvalidatesCache(t *testing.T) {
	conn := dbtest.Open(t)
	restaurantID := seedRestaurant(t, conn, `{"theme":"dark","loyalty":{"point_value":"0.1"}}`)
	cache := newMemoryCache()
	svc := newTestService(t, NewRepository(conn), cache)
	ctx := context.Background()

	_, err := svc.Get(ctx, restaurantID)
	require.NoError(t, err)
	require.Len(t, cache.data, 1)

	enabled := true
	manual := enums.BlanketManual
	rate := decimal.RequireFromString("0.5")
	updated, err := svc.Update(ctx, restaurantID, UpdateInput{
		BlanketEnabled:          &enabled,
		BlanketType:             &manual,
		ManualPointsPerCurrency: &rate,
	})
	require.NoError(t, err)
	require.True(t, updated.BlanketMode.Enabled)
	require.True(t, decimal.RequireFromString("0.1").Equal(updated.PointValue))
	require.Equal(t, 1, cache.bumps)

	var settings string
	require.NoError(t, conn.Raw(`SELECT settings FROM restaurants WHERE id = ?`, restaurantID.String()).Scan(&settings).Error)
	require.Contains(t, settings, `"theme":"dark"`)

	reread, err := svc.Get(ctx, restaurantID)
	require.NoError(t, err)
	require.Equal(t, enums.BlanketManual, reread.BlanketMode.Type)
	require.True(t, rate.Equal(reread.BlanketMode.Manual.PointsPerCurrency))
}

func TestServiceUpdateRejectsInvalidInputWithoutWriting(t *testing.T) {
	conn := dbtest.Open(t)
	restaurantID := seedRestaurant(t, conn, `{}`)
	cache := newMemoryCache()
	svc := newTestService(t, NewRepository(conn), cache)

	pct := 0
	_, err := svc.Update(context.Background(), restaurantID, UpdateInput{ProfitAllocationPercent: &pct})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Zero(t, cache.bumps)

	var settings string
	require.NoError(t, conn.Raw(`SELECT settings FROM restaurants WHERE id = ?`, restaurantID.String()).Scan(&settings).Error)
	require.Equal(t, "{}", settings)
}

func TestCacheOrphansFillStartedBeforeInvalidate(t *testing.T) {
	store := newMemoryCache()
	cache := NewCache(store, time.Minute)
	ctx := context.Background()
	restaurantID := uuid.New()

	_, gen, ok, err := cache.Get(ctx, restaurantID)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "0", gen)

	// an Update commits and invalidates while the miss is still loading
	require.NoError(t, cache.Invalidate(ctx, restaurantID))

	stale := Defaults()
	stale.PointValue = decimal.RequireFromString("0.99")
	require.NoError(t, cache.Put(ctx, restaurantID, gen, stale))

	_, gen, ok, err = cache.Get(ctx, restaurantID)
	require.NoError(t, err)
	require.False(t, ok, "a fill from before the invalidation must not be served")
	require.Equal(t, "1", gen)
}

func TestCachePutWithoutGenerationIsSkipped(t *testing.T) {
	store := newMemoryCache()
	cache := NewCache(store, time.Minute)
	require.NoError(t, cache.Put(context.Background(), uuid.New(), "", Defaults()))
	require.Empty(t, store.data)
}

func TestServiceUpdateConcurrentPartialWritesKeepBoth(t *testing.T) {
	conn := dbtest.Open(t)
	restaurantID := seedRestaurant(t, conn, `{"theme":"dark"}`)
	svc := newTestService(t, NewRepository(conn), newMemoryCache())
	ctx := context.Background()

	pointValue := decimal.RequireFromString("0.2")
	rate := decimal.RequireFromString("3")
	inputs := []UpdateInput{
		{PointValue: &pointValue},
		{ManualPointsPerCurrency: &rate},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(inputs))
	for i, in := range inputs {
		wg.Add(1)
		go func(i int, in UpdateInput) {
			defer wg.Done()
			_, errs[i] = svc.Update(ctx, restaurantID, in)
		}(i, in)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	var settings string
	require.NoError(t, conn.Raw(`SELECT settings FROM restaurants WHERE id = ?`, restaurantID.String()).Scan(&settings).Error)
	cfg := FromSettings([]byte(settings))
	require.True(t, pointValue.Equal(cfg.PointValue), "point value lost: %s", settings)
	require.True(t, rate.Equal(cfg.BlanketMode.Manual.PointsPerCurrency), "manual rate lost: %s", settings)
	require.Contains(t, settings, `"theme":"dark"`)
}

func TestServiceUpdateRefusesMalformedSettings(t *testing.T) {
	conn := dbtest.Open(t)
	restaurantID := seedRestaurant(t, conn, `["not","an","object"]`)
	cache := newMemoryCache()
	svc := newTestService(t, NewRepository(conn), cache)

	pointValue := decimal.RequireFromString("0.2")
	_, err := svc.Update(context.Background(), restaurantID, UpdateInput{PointValue: &pointValue})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedSettings)
	require.Zero(t, cache.bumps)

	var settings string
	require.NoError(t, conn.Raw(`SELECT settings FROM restaurants WHERE id = ?`, restaurantID.String()).Scan(&settings).Error)
	require.Equal(t, `["not","an","object"]`, settings)
}

func errDetails(err error) (map[string]string, bool) {
	typed := pkgerrors.As(err)
	if typed == nil {
		return nil, false
	}
	details, ok := typed.Details().(map[string]string)
	return details, ok
}
