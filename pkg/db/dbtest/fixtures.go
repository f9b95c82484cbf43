package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// Restaurant inserts a restaurant with the given raw settings blob.
func Restaurant(t *testing.T, conn *gorm.DB, settings string) models.Restaurant {
	t.Helper()
	if settings == "" {
		settings = "{}"
	}
	row := models.Restaurant{
		ID:       uuid.New(),
		Name:     "Test Kitchen",
		Settings: datatypes.JSON(settings),
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

// Customer inserts a customer holding points at the given tier.
func Customer(t *testing.T, conn *gorm.DB, restaurantID uuid.UUID, points int64, tier enums.CustomerTier) models.Customer {
	t.Helper()
	id := uuid.New()
	row := models.Customer{
		ID:             id,
		RestaurantID:   restaurantID,
		Name:           "Guest " + id.String()[:8],
		Email:          id.String()[:8] + "@example.com",
		TotalPoints:    points,
		LifetimePoints: points,
		CurrentTier:    tier,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

// RewardOption customizes a seeded reward.
type RewardOption func(*models.Reward)

// WithCap limits how many times the reward may be redeemed.
func WithCap(available, redeemed int) RewardOption {
	return func(r *models.Reward) {
		r.TotalAvailable = &available
		r.TotalRedeemed = redeemed
	}
}

// WithMinTier sets the lowest tier allowed to redeem.
func WithMinTier(tier enums.CustomerTier) RewardOption {
	return func(r *models.Reward) { r.MinTier = tier }
}

// Inactive marks the reward as hidden from the catalog.
func Inactive() RewardOption {
	return func(r *models.Reward) { r.IsActive = false }
}

// Reward inserts an active, uncapped bronze reward costing points.
func Reward(t *testing.T, conn *gorm.DB, restaurantID uuid.UUID, points int, opts ...RewardOption) models.Reward {
	t.Helper()
	row := models.Reward{
		ID:             uuid.New(),
		RestaurantID:   restaurantID,
		Name:           "Free Dessert",
		PointsRequired: points,
		MinTier:        enums.TierBronze,
		IsActive:       true,
	}
	for _, opt := range opts {
		opt(&row)
	}
	// gorm skips zero-valued fields that carry a default, so write is_active explicitly.
	require.NoError(t, conn.Create(&row).Error)
	if !row.IsActive {
		require.NoError(t, conn.Model(&models.Reward{}).Where("id = ?", row.ID).Update("is_active", false).Error)
	}
	return row
}

// MenuItem inserts a smart-mode item priced at cost/selling.
func MenuItem(t *testing.T, conn *gorm.DB, restaurantID uuid.UUID, cost, selling string, pct int) models.MenuItem {
	t.Helper()
	row := models.MenuItem{
		ID:                      uuid.New(),
		RestaurantID:            restaurantID,
		Name:                    "House Special",
		CostPrice:               decimal.RequireFromString(cost),
		SellingPrice:            decimal.RequireFromString(selling),
		LoyaltyMode:             enums.ItemModeSmart,
		ProfitAllocationPercent: pct,
		IsActive:                true,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

// Ago returns a UTC timestamp d before now, for seeding created_at columns.
func Ago(d time.Duration) time.Time {
	return time.Now().UTC().Add(-d)
}
