package redemptions

import (
	"context"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/internal/customers"
	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/internal/rewards"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/db/dbtest"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox"
	"github.com/angelmondragon/loyalty-backend/pkg/retry"
)

type env struct {
	conn         *gorm.DB
	svc          *service
	reg          *prometheus.Registry
	restaurantID uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conn := dbtest.Open(t)
	restaurant := dbtest.Restaurant(t, conn, "")
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	reg := prometheus.NewRegistry()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	customerRepo := customers.NewRepository(conn)
	customerSvc, err := customers.NewService(customers.ServiceParams{
		DB:        db.FromConn(conn),
		Repo:      customerRepo,
		Ledger:    ledger.NewRepository(conn),
		Outbox:    emitter,
		Logger:    logg,
		ReadRetry: retry.Read(time.Millisecond),
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		DB:             db.FromConn(conn),
		Repo:           NewRepository(conn),
		Rewards:        rewards.NewRepository(conn),
		Customers:      customerRepo,
		CustomerReader: customerSvc,
		Ledger:         ledger.NewRepository(conn),
		Outbox:         emitter,
		Logger:         logg,
		Metrics:        metrics.NewLoyaltyMetrics(reg),
	})
	require.NoError(t, err)
	return &env{conn: conn, svc: svc.(*service), reg: reg, restaurantID: restaurant.ID}
}

func (e *env) customer(t *testing.T, id uuid.UUID) models.Customer {
	t.Helper()
	var c models.Customer
	require.NoError(t, e.conn.First(&c, "id = ?", id).Error)
	return c
}

func (e *env) reward(t *testing.T, id uuid.UUID) models.Reward {
	t.Helper()
	var r models.Reward
	require.NoError(t, e.conn.First(&r, "id = ?", id).Error)
	return r
}

func (e *env) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.conn.Model(model).Count(&n).Error)
	return n
}

func (e *env) redemptionCounter(t *testing.T, outcome string) float64 {
	t.Helper()
	mfs, err := e.reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "loyalty_redemptions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabel(m, "outcome", outcome) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

var codePattern = regexp.MustCompile(`^LOYAL-[0-9A-F]{4}-[0-9A-F]{4}$`)

func TestNewCodeFormat(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestRedeemDebitsAndRecordsPending(t *testing.T) {
	e := newEnv(t)
	customer := dbtest.Customer(t, e.conn, e.restaurantID, 120, enums.TierSilver)
	reward := dbtest.Reward(t, e.conn, e.restaurantID, 100, dbtest.WithCap(5, 1))
	branch := uuid.New()

	res, err := e.svc.Redeem(context.Background(), e.restaurantID, RedeemInput{
		CustomerIDOrEmail: customer.Email,
		RewardID:          reward.ID,
		BranchID:          &branch,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.RedemptionStatusPending, res.Redemption.Status)
	assert.Equal(t, 100, res.Redemption.PointsUsed)
	assert.Regexp(t, codePattern, res.Redemption.Code)
	require.NotNil(t, res.Redemption.BranchID)
	assert.Equal(t, branch, *res.Redemption.BranchID)
	assert.Equal(t, int64(20), res.Customer.TotalPoints)
	assert.Equal(t, int64(120), res.Customer.LifetimePoints, "debits leave lifetime points alone")

	require.NotNil(t, res.Transaction)
	assert.Equal(t, -100, res.Transaction.Points)
	assert.Equal(t, enums.PointTxRedemption, res.Transaction.Type)
	require.NotNil(t, res.Transaction.RewardID)
	assert.Equal(t, reward.ID, *res.Transaction.RewardID)

	assert.Equal(t, 2, e.reward(t, reward.ID).TotalRedeemed)
	assert.Equal(t, int64(1), e.count(t, &models.Redemption{}))

	var event models.OutboxEvent
	require.NoError(t, e.conn.First(&event).Error)
	assert.Equal(t, enums.EventRewardRedeemed, event.EventType)
	assert.Equal(t, res.Redemption.ID, event.AggregateID)

	assert.Equal(t, float64(1), e.redemptionCounter(t, "success"))
}

func TestRedeemCheckOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	soldOutGold := dbtest.Reward(t, e.conn, e.restaurantID, 50, dbtest.WithMinTier(enums.TierGold), dbtest.WithCap(1, 1))

	cases := []struct {
		name   string
		points int64
		tier   enums.CustomerTier
		want   pkgerrors.Code
	}{
		{"balance checked before tier and stock", 10, enums.TierBronze, pkgerrors.CodeInsufficientPoints},
		{"tier checked before stock", 100, enums.TierBronze, pkgerrors.CodeTierTooLow},
		{"stock checked last", 100, enums.TierGold, pkgerrors.CodeSoldOut},
		{"platinum outranks gold", 100, enums.TierPlatinum, pkgerrors.CodeSoldOut},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			customer := dbtest.Customer(t, e.conn, e.restaurantID, tc.points, tc.tier)
			_, err := e.svc.Redeem(ctx, e.restaurantID, RedeemInput{CustomerIDOrEmail: customer.ID.String(), RewardID: soldOutGold.ID})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.want), "got %v", err)
			assert.Equal(t, tc.points, e.customer(t, customer.ID).TotalPoints)
		})
	}

	assert.Zero(t, e.count(t, &models.Redemption{}))
	assert.Zero(t, e.count(t, &models.PointTransaction{}))
	assert.Zero(t, e.count(t, &models.OutboxEvent{}))
	assert.Equal(t, float64(1), e.redemptionCounter(t, string(pkgerrors.CodeTierTooLow)))
}

func TestRedeemInsufficientPointsDetails(t *testing.T) {
	e := newEnv(t)
	customer := dbtest.Customer(t, e.conn, e.restaurantID, 30, enums.TierBronze)
	reward := dbtest.Reward(t, e.conn, e.restaurantID, 45)

	_, err := e.svc.Redeem(context.Background(), e.restaurantID, RedeemInput{CustomerIDOrEmail: customer.ID.String(), RewardID: reward.ID})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientPoints, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 45, details["points_required"])
	assert.Equal(t, int64(30), details["total_points"])
}

func TestRedeemNotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	customer := dbtest.Customer(t, e.conn, e.restaurantID, 500, enums.TierPlatinum)
	inactive := dbtest.Reward(t, e.conn, e.restaurantID, 10, dbtest.Inactive())
	other := dbtest.Restaurant(t, e.conn, "")
	foreign := dbtest.Reward(t, e.conn, other.ID, 10)
	active := dbtest.Reward(t, e.conn, e.restaurantID, 10)

	for _, rewardID := range []uuid.UUID{uuid.New(), inactive.ID, foreign.ID} {
		_, err := e.svc.Redeem(ctx, e.restaurantID, RedeemInput{CustomerIDOrEmail: customer.ID.String(), RewardID: rewardID})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	}

	_, err := e.svc.Redeem(ctx, e.restaurantID, RedeemInput{CustomerIDOrEmail: "ghost@example.com", RewardID: active.ID})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
	assert.Equal(t, "customer not found", typed.Message())

	// a missing reward wins over a missing customer
	_, err = e.svc.Redeem(ctx, e.restaurantID, RedeemInput{CustomerIDOrEmail: "ghost@example.com", RewardID: uuid.New()})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, "reward not found", typed.Message())
}

func TestRedeemRollsBackWhenLaterStepFails(t *testing.T) {
	e := newEnv(t)
	customer := dbtest.Customer(t, e.conn, e.restaurantID, 100, enums.TierBronze)
	reward := dbtest.Reward(t, e.conn, e.restaurantID, 40, dbtest.WithCap(3, 0))
	e.svc.newCode = func() (string, error) { return "", assert.AnError }

	_, err := e.svc.Redeem(context.Background(), e.restaurantID, RedeemInput{CustomerIDOrEmail: customer.ID.String(), RewardID: reward.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))

	assert.Equal(t, int64(100), e.customer(t, customer.ID).TotalPoints)
	assert.Zero(t, e.reward(t, reward.ID).TotalRedeemed)
	assert.Zero(t, e.count(t, &models.PointTransaction{}))
	assert.Zero(t, e.count(t, &models.Redemption{}))
}

func TestConcurrentRedeemNeverOverdraws(t *testing.T) {
	e := newEnv(t)
	customer := dbtest.Customer(t, e.conn, e.restaurantID, 100, enums.TierBronze)
	reward := dbtest.Reward(t, e.conn, e.restaurantID, 40)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		short     int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Redeem(context.Background(), e.restaurantID, RedeemInput{CustomerIDOrEmail: customer.ID.String(), RewardID: reward.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientPoints):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, successes)
	assert.Equal(t, 3, short)
	assert.Equal(t, int64(20), e.customer(t, customer.ID).TotalPoints)
	assert.Equal(t, 2, e.reward(t, reward.ID).TotalRedeemed)
}

func TestConcurrentRedeemRespectsCap(t *testing.T) {
	e := newEnv(t)
	reward := dbtest.Reward(t, e.conn, e.restaurantID, 10, dbtest.WithCap(2, 0))
	buyers := make([]models.Customer, 4)
	for i := range buyers {
		buyers[i] = dbtest.Customer(t, e.conn, e.restaurantID, 50, enums.TierBronze)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		soldOut int
	)
	for _, buyer := range buyers {
		wg.Add(1)
		go func(c models.Customer) {
			defer wg.Done()
			_, err := e.svc.Redeem(context.Background(), e.restaurantID, RedeemInput{CustomerIDOrEmail: c.ID.String(), RewardID: reward.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case pkgerrors.IsCode(err, pkgerrors.CodeSoldOut):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(buyer)
	}
	wg.Wait()

	assert.Equal(t, 2, granted)
	assert.Equal(t, 2, soldOut)
	assert.Equal(t, 2, e.reward(t, reward.ID).TotalRedeemed)
	assert.Equal(t, int64(2), e.count(t, &models.Redemption{}))
}

func TestMarkUsedTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	customer := dbtest.Customer(t, e.conn, e.restaurantID, 100, enums.TierBronze)
	reward := dbtest.Reward(t, e.conn, e.restaurantID, 30)

	res, err := e.svc.Redeem(ctx, e.restaurantID, RedeemInput{CustomerIDOrEmail: customer.ID.String(), RewardID: reward.ID})
	require.NoError(t, err)

	used, err := e.svc.MarkUsed(ctx, e.restaurantID, res.Redemption.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RedemptionStatusUsed, used.Status)
	require.NotNil(t, used.UsedAt)

	_, err = e.svc.MarkUsed(ctx, e.restaurantID, res.Redemption.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = e.svc.MarkUsed(ctx, uuid.New(), res.Redemption.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var events int64
	require.NoError(t, e.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventRedemptionUsed).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestExpirePendingHonoursCutoffWithoutRefund(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	customer := dbtest.Customer(t, e.conn, e.restaurantID, 100, enums.TierBronze)
	reward := dbtest.Reward(t, e.conn, e.restaurantID, 30)

	old, err := e.svc.Redeem(ctx, e.restaurantID, RedeemInput{CustomerIDOrEmail: customer.ID.String(), RewardID: reward.ID})
	require.NoError(t, err)
	fresh, err := e.svc.Redeem(ctx, e.restaurantID, RedeemInput{CustomerIDOrEmail: customer.ID.String(), RewardID: reward.ID})
	require.NoError(t, err)
	usedOld, err := e.svc.Redeem(ctx, e.restaurantID, RedeemInput{CustomerIDOrEmail: customer.ID.String(), RewardID: reward.ID})
	require.NoError(t, err)
	_, err = e.svc.MarkUsed(ctx, e.restaurantID, usedOld.Redemption.ID)
	require.NoError(t, err)

	aged := dbtest.Ago(40 * 24 * time.Hour)
	require.NoError(t, e.conn.Model(&models.Redemption{}).
		Where("id IN ?", []uuid.UUID{old.Redemption.ID, usedOld.Redemption.ID}).
		Update("created_at", aged).Error)

	n, err := e.svc.ExpirePending(ctx, dbtest.Ago(30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	statuses := map[uuid.UUID]enums.RedemptionStatus{}
	var rows []models.Redemption
	require.NoError(t, e.conn.Find(&rows).Error)
	for _, row := range rows {
		statuses[row.ID] = row.Status
	}
	assert.Equal(t, enums.RedemptionStatusExpired, statuses[old.Redemption.ID])
	assert.Equal(t, enums.RedemptionStatusPending, statuses[fresh.Redemption.ID])
	assert.Equal(t, enums.RedemptionStatusUsed, statuses[usedOld.Redemption.ID])

	assert.Equal(t, int64(10), e.customer(t, customer.ID).TotalPoints, "expiry does not refund")

	_, err = e.svc.MarkUsed(ctx, e.restaurantID, old.Redemption.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	n, err = e.svc.ExpirePending(ctx, dbtest.Ago(30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListForCustomer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	customer := dbtest.Customer(t, e.conn, e.restaurantID, 100, enums.TierBronze)
	reward := dbtest.Reward(t, e.conn, e.restaurantID, 20)

	first, err := e.svc.Redeem(ctx, e.restaurantID, RedeemInput{CustomerIDOrEmail: customer.ID.String(), RewardID: reward.ID})
	require.NoError(t, err)
	_, err = e.svc.Redeem(ctx, e.restaurantID, RedeemInput{CustomerIDOrEmail: customer.ID.String(), RewardID: reward.ID})
	require.NoError(t, err)
	_, err = e.svc.MarkUsed(ctx, e.restaurantID, first.Redemption.ID)
	require.NoError(t, err)

	all, err := e.svc.ListForCustomer(ctx, e.restaurantID, customer.Email, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	used := enums.RedemptionStatusUsed
	onlyUsed, err := e.svc.ListForCustomer(ctx, e.restaurantID, customer.ID.String(), &used)
	require.NoError(t, err)
	require.Len(t, onlyUsed, 1)
	assert.Equal(t, first.Redemption.ID, onlyUsed[0].ID)

	bogus := enums.RedemptionStatus("lost")
	_, err = e.svc.ListForCustomer(ctx, e.restaurantID, customer.ID.String(), &bogus)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = e.svc.ListForCustomer(ctx, e.restaurantID, uuid.NewString(), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
