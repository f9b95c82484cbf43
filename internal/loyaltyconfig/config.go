package loyaltyconfig

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// SettingsKey is the key of the loyalty section inside restaurants.settings.
const SettingsKey = "loyalty"

var (
	DefaultPointValue              = decimal.RequireFromString("0.05")
	DefaultBlanketType             = enums.BlanketSmart
	DefaultProfitAllocationPercent = 20
	DefaultManualPointsPerCurrency = decimal.NewFromInt(1)
	DefaultSpendPointsPerCurrency  = decimal.NewFromInt(1)

	MinProfitAllocationPercent = 1
	MaxProfitAllocationPercent = 50
	MinManualRate              = decimal.RequireFromString("0.1")
	MaxManualRate              = decimal.NewFromInt(5)
	MinSpendRate               = decimal.RequireFromString("0.1")
	MaxSpendRate               = decimal.NewFromInt(2)
	MinTierMultiplier          = decimal.NewFromInt(1)
)

// DefaultTierMultipliers returns a fresh copy of the documented defaults.
func DefaultTierMultipliers() map[enums.CustomerTier]decimal.Decimal {
	return map[enums.CustomerTier]decimal.Decimal{
		enums.TierBronze:   decimal.NewFromInt(1),
		enums.TierSilver:   decimal.RequireFromString("1.25"),
		enums.TierGold:     decimal.RequireFromString("1.5"),
		enums.TierPlatinum: decimal.NewFromInt(2),
	}
}

// Configuration is the fully resolved restaurant loyalty configuration. Every
// field carries a concrete value; consumers never check for absence.
type Configuration struct {
	PointValue      decimal.Decimal                        `json:"point_value"`
	BlanketMode     BlanketMode                            `json:"blanket_mode"`
	TierMultipliers map[enums.CustomerTier]decimal.Decimal `json:"tier_multipliers"`
}

type BlanketMode struct {
	Enabled bool              `json:"enabled"`
	Type    enums.BlanketType `json:"type"`
	Smart   SmartSettings     `json:"smart_settings"`
	Manual  RateSettings      `json:"manual_settings"`
	Spend   RateSettings      `json:"spend_settings"`
}

type SmartSettings struct {
	ProfitAllocationPercent int `json:"profit_allocation_percent"`
}

// RateSettings is the flat points-per-currency-unit rule shared by the manual
// and spend blanket modes.
type RateSettings struct {
	PointsPerCurrency decimal.Decimal `json:"points_per_currency"`
}

// Defaults returns the configuration an empty settings blob resolves to.
func Defaults() Configuration {
	return Configuration{
		PointValue: DefaultPointValue,
		BlanketMode: BlanketMode{
			Enabled: false,
			Type:    DefaultBlanketType,
			Smart:   SmartSettings{ProfitAllocationPercent: DefaultProfitAllocationPercent},
			Manual:  RateSettings{PointsPerCurrency: DefaultManualPointsPerCurrency},
			Spend:   RateSettings{PointsPerCurrency: DefaultSpendPointsPerCurrency},
		},
		TierMultipliers: DefaultTierMultipliers(),
	}
}

// MultiplierFor returns the tier multiplier, or 1 for tiers outside the table.
func (c Configuration) MultiplierFor(tier enums.CustomerTier) decimal.Decimal {
	if m, ok := c.TierMultipliers[tier]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// ActiveRate returns the flat rate of the selected manual or spend blanket mode.
func (b BlanketMode) ActiveRate() decimal.Decimal {
	if b.Type == enums.BlanketSpend {
		return b.Spend.PointsPerCurrency
	}
	return b.Manual.PointsPerCurrency
}

// Encode serializes the configuration into its stored form.
func (c Configuration) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// FromSettings resolves the loyalty section of a full restaurants.settings blob.
func FromSettings(settings []byte) Configuration {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(settings, &root); err != nil {
		return Defaults()
	}
	return Resolve(root[SettingsKey])
}

// Resolve turns an arbitrary, possibly partial or malformed, loyalty settings
// document into a Configuration. It never fails: each field is defaulted or
// clamped independently.
func Resolve(raw []byte) Configuration {
	cfg := Defaults()

	var doc map[string]any
	if err := decode(raw, &doc); err != nil || doc == nil {
		return cfg
	}

	if v, ok := number(doc["point_value"]); ok && v.IsPositive() {
		cfg.PointValue = v
	}

	if blanket, ok := doc["blanket_mode"].(map[string]any); ok {
		if enabled, ok := boolean(blanket["enabled"]); ok {
			cfg.BlanketMode.Enabled = enabled
		}
		if raw, ok := blanket["type"].(string); ok {
			if t, err := enums.ParseBlanketType(strings.ToLower(strings.TrimSpace(raw))); err == nil {
				cfg.BlanketMode.Type = t
			}
		}
		if smart, ok := blanket["smart_settings"].(map[string]any); ok {
			if v, ok := number(smart["profit_allocation_percent"]); ok {
				cfg.BlanketMode.Smart.ProfitAllocationPercent = clampPercent(v)
			}
		}
		if manual, ok := blanket["manual_settings"].(map[string]any); ok {
			if v, ok := number(manual["points_per_currency"]); ok {
				cfg.BlanketMode.Manual.PointsPerCurrency = clamp(v, MinManualRate, MaxManualRate)
			}
		}
		if spend, ok := blanket["spend_settings"].(map[string]any); ok {
			if v, ok := number(spend["points_per_currency"]); ok {
				cfg.BlanketMode.Spend.PointsPerCurrency = clamp(v, MinSpendRate, MaxSpendRate)
			}
		}
	}

	if tiers, ok := doc["tier_multipliers"].(map[string]any); ok {
		for key, value := range tiers {
			tier, err := enums.ParseCustomerTier(key)
			if err != nil {
				continue
			}
			if v, ok := number(value); ok && v.GreaterThanOrEqual(MinTierMultiplier) {
				cfg.TierMultipliers[tier] = v
			}
		}
	}

	return cfg
}

func decode(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

func number(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	default:
		return decimal.Zero, false
	}
}

func boolean(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	return false, false
}

// clampPercent bounds v as a decimal first; IntPart wraps past int64.
func clampPercent(v decimal.Decimal) int {
	switch {
	case v.LessThan(decimal.NewFromInt(MinProfitAllocationPercent)):
		return MinProfitAllocationPercent
	case v.GreaterThan(decimal.NewFromInt(MaxProfitAllocationPercent)):
		return MaxProfitAllocationPercent
	}
	return int(v.IntPart())
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
