package loyaltyconfig

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/retry"
)

type settingsRepository interface {
	LoadSettings(ctx context.Context, restaurantID uuid.UUID) ([]byte, error)
	UpdateSection(ctx context.Context, restaurantID uuid.UUID, key string, apply func(settings []byte) ([]byte, error)) error
}

// Service exposes configuration reads and writes.
type Service interface {
	Get(ctx context.Context, restaurantID uuid.UUID) (Configuration, error)
	Update(ctx context.Context, restaurantID uuid.UUID, input UpdateInput) (Configuration, error)
}

// ServiceParams wires the configuration service.
type ServiceParams struct {
	Repo      settingsRepository
	Cache     *Cache
	Logger    *logger.Logger
	ReadRetry retry.Policy
}

type service struct {
	repo      settingsRepository
	cache     *Cache
	logg      *logger.Logger
	readRetry retry.Policy
}

// NewService builds the configuration service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		cache:     params.Cache,
		logg:      params.Logger,
		readRetry: params.ReadRetry,
	}, nil
}

func (s *service) Get(ctx context.Context, restaurantID uuid.UUID) (Configuration, error) {
	if restaurantID == uuid.Nil {
		return Configuration{}, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}

	cached, gen, ok, err := s.cache.Get(ctx, restaurantID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "loyalty config cache read failed")
	}
	if ok {
		return cached, nil
	}

	cfg, err := s.load(ctx, restaurantID)
	if err != nil {
		return Configuration{}, err
	}

	// gen was read before the load, so a fill racing an Update lands on a
	// generation nobody reads any more.
	if err := s.cache.Put(ctx, restaurantID, gen, cfg); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "loyalty config cache write failed")
	}
	return cfg, nil
}

func (s *service) Update(ctx context.Context, restaurantID uuid.UUID, input UpdateInput) (Configuration, error) {
	if restaurantID == uuid.Nil {
		return Configuration{}, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}

	var next Configuration
	err := s.repo.UpdateSection(ctx, restaurantID, SettingsKey, func(settings []byte) ([]byte, error) {
		applied, err := input.Apply(FromSettings(settings))
		if err != nil {
			return nil, err
		}
		payload, err := applied.Encode()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode loyalty config")
		}
		next = applied
		return payload, nil
	})
	if err != nil {
		return Configuration{}, db.AsAppError(err, "save loyalty config", "restaurant not found")
	}

	if err := s.cache.Invalidate(ctx, restaurantID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "loyalty config cache invalidation failed")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"restaurant_id":   restaurantID.String(),
		"blanket_enabled": next.BlanketMode.Enabled,
		"blanket_type":    next.BlanketMode.Type,
	}), "loyalty config updated")
	return next, nil
}

func (s *service) load(ctx context.Context, restaurantID uuid.UUID) (Configuration, error) {
	var settings []byte
	err := s.readRetry.Do(ctx, func(ctx context.Context) error {
		raw, err := s.repo.LoadSettings(ctx, restaurantID)
		if err != nil {
			return err
		}
		settings = raw
		return nil
	})
	if err != nil {
		return Configuration{}, db.AsAppError(err, "load loyalty config", "restaurant not found")
	}
	return FromSettings(settings), nil
}

// UpdateInput carries the fields an owner may change. Nil fields keep their
// current value. Unlike Resolve, out-of-range values are rejected.
type UpdateInput struct {
	PointValue              *decimal.Decimal
	BlanketEnabled          *bool
	BlanketType             *enums.BlanketType
	ProfitAllocationPercent *int
	ManualPointsPerCurrency *decimal.Decimal
	SpendPointsPerCurrency  *decimal.Decimal
	TierMultipliers         map[enums.CustomerTier]decimal.Decimal
}

// Apply validates the input and layers it over base.
func (in UpdateInput) Apply(base Configuration) (Configuration, error) {
	next := base
	next.TierMultipliers = make(map[enums.CustomerTier]decimal.Decimal, len(base.TierMultipliers))
	for tier, m := range base.TierMultipliers {
		next.TierMultipliers[tier] = m
	}

	problems := map[string]string{}

	if in.PointValue != nil {
		if !in.PointValue.IsPositive() {
			problems["point_value"] = "must be greater than 0"
		} else {
			next.PointValue = *in.PointValue
		}
	}
	if in.BlanketEnabled != nil {
		next.BlanketMode.Enabled = *in.BlanketEnabled
	}
	if in.BlanketType != nil {
		if !in.BlanketType.IsValid() {
			problems["blanket_mode.type"] = "must be one of smart, manual, spend"
		} else {
			next.BlanketMode.Type = *in.BlanketType
		}
	}
	if in.ProfitAllocationPercent != nil {
		pct := *in.ProfitAllocationPercent
		if pct < MinProfitAllocationPercent || pct > MaxProfitAllocationPercent {
			problems["blanket_mode.smart_settings.profit_allocation_percent"] = fmt.Sprintf("must be between %d and %d", MinProfitAllocationPercent, MaxProfitAllocationPercent)
		} else {
			next.BlanketMode.Smart.ProfitAllocationPercent = pct
		}
	}
	if in.ManualPointsPerCurrency != nil {
		if !within(*in.ManualPointsPerCurrency, MinManualRate, MaxManualRate) {
			problems["blanket_mode.manual_settings.points_per_currency"] = fmt.Sprintf("must be between %s and %s", MinManualRate, MaxManualRate)
		} else {
			next.BlanketMode.Manual.PointsPerCurrency = *in.ManualPointsPerCurrency
		}
	}
	if in.SpendPointsPerCurrency != nil {
		if !within(*in.SpendPointsPerCurrency, MinSpendRate, MaxSpendRate) {
			problems["blanket_mode.spend_settings.points_per_currency"] = fmt.Sprintf("must be between %s and %s", MinSpendRate, MaxSpendRate)
		} else {
			next.BlanketMode.Spend.PointsPerCurrency = *in.SpendPointsPerCurrency
		}
	}
	for tier, m := range in.TierMultipliers {
		field := "tier_multipliers." + string(tier)
		switch {
		case !tier.IsValid():
			problems[field] = "unknown tier"
		case m.LessThan(MinTierMultiplier):
			problems[field] = "must be at least 1.0"
		default:
			next.TierMultipliers[tier] = m
		}
	}

	if len(problems) > 0 {
		return Configuration{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid loyalty configuration").WithDetails(problems)
	}
	return next, nil
}

func within(v, lo, hi decimal.Decimal) bool {
	return v.GreaterThanOrEqual(lo) && v.LessThanOrEqual(hi)
}
