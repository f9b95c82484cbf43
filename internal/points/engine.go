// Package points turns purchases into point awards. Calculate is pure and safe
// for concurrent use; Service adds the persistence boundary around it.
package points

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/internal/loyaltyconfig"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// EstimatedMarginRate is the fixed margin blanket smart mode assumes on an order.
var EstimatedMarginRate = decimal.RequireFromString("0.30")

var (
	hundred = decimal.NewFromInt(100)
	// maxPoints saturates results that would not fit the int64 point count.
	maxPoints = decimal.NewFromInt(math.MaxInt64)
)

// Source identifies which rule produced the base points.
type Source string

const (
	SourceBlanket  Source = "blanket"
	SourceMenuItem Source = "menu_item"
	SourceNone     Source = "none"
)

// MenuItem is the engine's view of a menu item.
type MenuItem struct {
	CostPrice               decimal.Decimal
	SellingPrice            decimal.Decimal
	Mode                    enums.ItemLoyaltyMode
	ProfitAllocationPercent int
	FixedPoints             int
}

// Breakdown records the branch that fired and its intermediate values.
type Breakdown struct {
	Source                  Source             `json:"source"`
	Mode                    string             `json:"mode,omitempty"`
	OrderAmount             decimal.Decimal    `json:"order_amount"`
	Quantity                int                `json:"quantity"`
	EstimatedProfit         *decimal.Decimal   `json:"estimated_profit,omitempty"`
	Profit                  *decimal.Decimal   `json:"profit,omitempty"`
	ProfitAllocationPercent *int               `json:"profit_allocation_percent,omitempty"`
	RewardValue             *decimal.Decimal   `json:"reward_value,omitempty"`
	PointsPerCurrency       *decimal.Decimal   `json:"points_per_currency,omitempty"`
	FixedPoints             *int               `json:"fixed_points,omitempty"`
	BasePoints              int64              `json:"base_points"`
	Tier                    enums.CustomerTier `json:"tier"`
	TierMultiplier          decimal.Decimal    `json:"tier_multiplier"`
	PointValue              decimal.Decimal    `json:"point_value"`
}

// Result is the outcome of a calculation.
type Result struct {
	Points          int64           `json:"points"`
	ValueInCurrency decimal.Decimal `json:"value_in_currency"`
	Breakdown       Breakdown       `json:"breakdown"`
}

// Calculate computes the point award for a purchase.
//
// Blanket mode, when enabled, ignores item. Otherwise the item's own mode
// applies, and with neither the award is zero. Base points are floored, then
// multiplied by the tier multiplier and floored again; fractional points lost
// in the first floor are never recovered by the multiplier.
func Calculate(cfg loyaltyconfig.Configuration, item *MenuItem, orderAmount decimal.Decimal, tier enums.CustomerTier, quantity int) Result {
	pointValue := cfg.PointValue
	if !pointValue.IsPositive() {
		pointValue = loyaltyconfig.DefaultPointValue
	}
	multiplier := cfg.MultiplierFor(tier)

	bd := Breakdown{
		Source:         SourceNone,
		OrderAmount:    orderAmount,
		Quantity:       quantity,
		Tier:           tier,
		TierMultiplier: multiplier,
		PointValue:     pointValue,
	}

	if !orderAmount.IsPositive() || quantity <= 0 {
		return Result{Points: 0, ValueInCurrency: decimal.Zero, Breakdown: bd}
	}

	var base decimal.Decimal
	switch {
	case cfg.BlanketMode.Enabled:
		bd.Source = SourceBlanket
		bd.Mode = string(cfg.BlanketMode.Type)
		base = blanketBase(cfg, orderAmount, pointValue, &bd)
	case item != nil:
		bd.Source = SourceMenuItem
		bd.Mode = string(item.Mode)
		base = itemBase(*item, quantity, pointValue, &bd)
	default:
		base = decimal.Zero
	}

	basePoints := wholePoints(base)
	bd.BasePoints = basePoints.IntPart()

	final := wholePoints(basePoints.Mul(multiplier))

	return Result{
		Points:          final.IntPart(),
		ValueInCurrency: final.Mul(pointValue),
		Breakdown:       bd,
	}
}

func blanketBase(cfg loyaltyconfig.Configuration, orderAmount, pointValue decimal.Decimal, bd *Breakdown) decimal.Decimal {
	switch cfg.BlanketMode.Type {
	case enums.BlanketManual, enums.BlanketSpend:
		rate := cfg.BlanketMode.ActiveRate()
		bd.PointsPerCurrency = &rate
		return flatRate(orderAmount, rate)
	default:
		pct := cfg.BlanketMode.Smart.ProfitAllocationPercent
		estimated := orderAmount.Mul(EstimatedMarginRate)
		reward := allocate(estimated, pct)
		bd.EstimatedProfit = &estimated
		bd.ProfitAllocationPercent = &pct
		bd.RewardValue = &reward
		return reward.Div(pointValue)
	}
}

func itemBase(item MenuItem, quantity int, pointValue decimal.Decimal, bd *Breakdown) decimal.Decimal {
	switch item.Mode {
	case enums.ItemModeSmart:
		pct := item.ProfitAllocationPercent
		profit := item.SellingPrice.Sub(item.CostPrice).Mul(decimal.NewFromInt(int64(quantity)))
		reward := allocate(profit, pct)
		bd.Profit = &profit
		bd.ProfitAllocationPercent = &pct
		bd.RewardValue = &reward
		return reward.Div(pointValue)
	case enums.ItemModeManual:
		fixed := item.FixedPoints
		bd.FixedPoints = &fixed
		return decimal.NewFromInt(int64(fixed)).Mul(decimal.NewFromInt(int64(quantity)))
	default:
		return decimal.Zero
	}
}

// flatRate is the shared manual/spend computation: points per unit of order amount.
func flatRate(orderAmount, rate decimal.Decimal) decimal.Decimal {
	return orderAmount.Mul(rate)
}

func allocate(value decimal.Decimal, pct int) decimal.Decimal {
	if pct <= 0 || !value.IsPositive() {
		return decimal.Zero
	}
	return value.Mul(decimal.NewFromInt(int64(pct))).Div(hundred)
}

// wholePoints floors v into [0, MaxInt64].
func wholePoints(v decimal.Decimal) decimal.Decimal {
	switch {
	case !v.IsPositive():
		return decimal.Zero
	case v.GreaterThan(maxPoints):
		return maxPoints
	}
	return v.Floor()
}
