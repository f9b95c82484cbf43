package points

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/internal/customers"
	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/internal/loyaltyconfig"
	"github.com/angelmondragon/loyalty-backend/internal/menuitems"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/db/dbtest"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox"
	"github.com/angelmondragon/loyalty-backend/pkg/retry"
)

type harness struct {
	conn         *gorm.DB
	svc          Service
	restaurantID uuid.UUID
}

func newHarness(t *testing.T, settings string) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	restaurant := dbtest.Restaurant(t, conn, settings)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	readRetry := retry.Read(time.Millisecond)

	cfgSvc, err := loyaltyconfig.NewService(loyaltyconfig.ServiceParams{
		Repo:      loyaltyconfig.NewRepository(conn),
		Logger:    logg,
		ReadRetry: readRetry,
	})
	require.NoError(t, err)
	itemSvc, err := menuitems.NewService(menuitems.NewRepository(conn), logg, readRetry)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		DB:        db.FromConn(conn),
		Config:    cfgSvc,
		MenuItems: itemSvc,
		Customers: customers.NewRepository(conn),
		Ledger:    ledger.NewRepository(conn),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:    logg,
		ReadRetry: readRetry,
	})
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, restaurantID: restaurant.ID}
}

func (h *harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(model).Count(&n).Error)
	return n
}

func amount(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestPreviewUsesMenuItemWithoutWriting(t *testing.T) {
	h := newHarness(t, "")
	item := dbtest.MenuItem(t, h.conn, h.restaurantID, "5", "12", 20)

	res, err := h.svc.Preview(context.Background(), h.restaurantID, PreviewInput{MenuItemID: &item.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(28), res.Points)
	assert.Equal(t, SourceMenuItem, res.Breakdown.Source)
	assert.True(t, decimal.RequireFromString("12").Equal(res.Breakdown.OrderAmount))
	assert.True(t, decimal.RequireFromString("1.4").Equal(res.ValueInCurrency))

	assert.Zero(t, h.count(t, &models.PointTransaction{}))
	assert.Zero(t, h.count(t, &models.OutboxEvent{}))
}

func TestPreviewAppliesTierMultiplier(t *testing.T) {
	h := newHarness(t, "")
	item := dbtest.MenuItem(t, h.conn, h.restaurantID, "5", "12", 20)

	res, err := h.svc.Preview(context.Background(), h.restaurantID, PreviewInput{
		MenuItemID: &item.ID,
		Tier:       enums.TierPlatinum,
		Quantity:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(112), res.Points)
}

func TestPreviewValidation(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	_, err := h.svc.Preview(ctx, h.restaurantID, PreviewInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Preview(ctx, h.restaurantID, PreviewInput{OrderAmount: amount("10"), Tier: "diamond"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	missing := uuid.New()
	_, err = h.svc.Preview(ctx, h.restaurantID, PreviewInput{MenuItemID: &missing})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCalculationRejectsOrderAboveMaximum(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	_, err := h.svc.Preview(ctx, h.restaurantID, PreviewInput{OrderAmount: amount("1000000000.01")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = h.svc.Preview(ctx, h.restaurantID, PreviewInput{OrderAmount: amount("1e19")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	res, err := h.svc.Preview(ctx, h.restaurantID, PreviewInput{OrderAmount: amount("1000000000")})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Points, int64(0))
}

func TestPreviewMenuItemFromAnotherRestaurantIsNotFound(t *testing.T) {
	h := newHarness(t, "")
	other := dbtest.Restaurant(t, h.conn, "")
	item := dbtest.MenuItem(t, h.conn, other.ID, "5", "12", 20)

	_, err := h.svc.Preview(context.Background(), h.restaurantID, PreviewInput{MenuItemID: &item.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAwardCreditsLedgerAndQueuesEvent(t *testing.T) {
	h := newHarness(t, "")
	item := dbtest.MenuItem(t, h.conn, h.restaurantID, "5", "12", 20)
	customer := dbtest.Customer(t, h.conn, h.restaurantID, 10, enums.TierSilver)
	branch := uuid.New()

	res, err := h.svc.Award(context.Background(), h.restaurantID, AwardInput{
		CustomerIDOrEmail: customer.ID.String(),
		MenuItemID:        &item.ID,
		Quantity:          2,
		BranchID:          &branch,
	})
	require.NoError(t, err)
	// profit 14 * 20% = 2.8 / 0.05 = 56, silver 1.25 -> 70
	assert.Equal(t, int64(70), res.Calculation.Points)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, 70, res.Transaction.Points)
	assert.Equal(t, enums.PointTxPurchase, res.Transaction.Type)
	assert.Equal(t, "Purchase", res.Transaction.Description)
	assert.Equal(t, int64(80), res.Customer.TotalPoints)
	assert.Equal(t, int64(80), res.Customer.LifetimePoints)

	var row models.PointTransaction
	require.NoError(t, h.conn.First(&row, "id = ?", res.Transaction.ID).Error)
	require.True(t, row.AmountSpent.Valid)
	assert.True(t, decimal.RequireFromString("24").Equal(row.AmountSpent.Decimal))
	require.NotNil(t, row.BranchID)
	assert.Equal(t, branch, *row.BranchID)

	var event models.OutboxEvent
	require.NoError(t, h.conn.First(&event).Error)
	assert.Equal(t, enums.EventPointsAwarded, event.EventType)
	assert.Equal(t, customer.ID, event.AggregateID)
}

func TestAwardZeroPointsWritesNothing(t *testing.T) {
	h := newHarness(t, "")
	customer := dbtest.Customer(t, h.conn, h.restaurantID, 5, enums.TierGold)

	res, err := h.svc.Award(context.Background(), h.restaurantID, AwardInput{
		CustomerIDOrEmail: customer.ID.String(),
		OrderAmount:       amount("40"),
	})
	require.NoError(t, err)
	assert.Zero(t, res.Calculation.Points)
	assert.Equal(t, SourceNone, res.Calculation.Breakdown.Source)
	assert.Nil(t, res.Transaction)
	assert.Equal(t, int64(5), res.Customer.TotalPoints)

	assert.Zero(t, h.count(t, &models.PointTransaction{}))
	assert.Zero(t, h.count(t, &models.OutboxEvent{}))
}

func TestAwardBlanketSpendIgnoresItem(t *testing.T) {
	h := newHarness(t, `{"loyalty":{"blanket_mode":{"enabled":true,"type":"spend","spend_settings":{"points_per_currency":2}}}}`)
	item := dbtest.MenuItem(t, h.conn, h.restaurantID, "5", "12", 20)
	customer := dbtest.Customer(t, h.conn, h.restaurantID, 0, enums.TierGold)

	res, err := h.svc.Award(context.Background(), h.restaurantID, AwardInput{
		CustomerIDOrEmail: customer.ID.String(),
		MenuItemID:        &item.ID,
		OrderAmount:       amount("15.50"),
	})
	require.NoError(t, err)
	// floor(15.50 * 2) = 31, gold 1.5 -> floor(46.5) = 46
	assert.Equal(t, int64(46), res.Calculation.Points)
	assert.Equal(t, SourceBlanket, res.Calculation.Breakdown.Source)
	assert.Equal(t, int64(46), res.Customer.TotalPoints)
}

func TestAwardFindsCustomerByEmailIgnoringCase(t *testing.T) {
	h := newHarness(t, "")
	item := dbtest.MenuItem(t, h.conn, h.restaurantID, "5", "12", 20)
	customer := dbtest.Customer(t, h.conn, h.restaurantID, 0, enums.TierBronze)

	res, err := h.svc.Award(context.Background(), h.restaurantID, AwardInput{
		CustomerIDOrEmail: "  " + strings.ToUpper(customer.Email),
		MenuItemID:        &item.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, customer.ID, res.Customer.ID)
	assert.Equal(t, int64(28), res.Customer.TotalPoints)
}

func TestAwardUnknownCustomer(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.svc.Award(context.Background(), h.restaurantID, AwardInput{
		CustomerIDOrEmail: uuid.NewString(),
		OrderAmount:       amount("10"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.Award(context.Background(), h.restaurantID, AwardInput{OrderAmount: amount("10")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAdjustCreditsBonus(t *testing.T) {
	h := newHarness(t, "")
	customer := dbtest.Customer(t, h.conn, h.restaurantID, 20, enums.TierBronze)

	res, err := h.svc.Adjust(context.Background(), h.restaurantID, AdjustInput{
		CustomerIDOrEmail: customer.Email,
		Type:              enums.PointTxBonus,
		Points:            50,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PointTxBonus, res.Transaction.Type)
	assert.Equal(t, "Bonus", res.Transaction.Description)
	assert.Equal(t, int64(70), res.Customer.TotalPoints)
	assert.Equal(t, int64(70), res.Customer.LifetimePoints)
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}))
}

func TestAdjustValidation(t *testing.T) {
	h := newHarness(t, "")
	customer := dbtest.Customer(t, h.conn, h.restaurantID, 20, enums.TierBronze)
	ctx := context.Background()

	cases := []AdjustInput{
		{CustomerIDOrEmail: customer.Email, Type: enums.PointTxPurchase, Points: 10},
		{CustomerIDOrEmail: customer.Email, Type: enums.PointTxRedemption, Points: 10},
		{CustomerIDOrEmail: customer.Email, Type: enums.PointTxReferral, Points: 0},
		{CustomerIDOrEmail: customer.Email, Type: enums.PointTxReferral, Points: -5},
	}
	for _, input := range cases {
		_, err := h.svc.Adjust(ctx, h.restaurantID, input)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "input %+v", input)
	}
	assert.Zero(t, h.count(t, &models.PointTransaction{}))
}
