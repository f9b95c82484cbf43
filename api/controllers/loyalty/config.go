// Package loyalty holds the handlers for restaurant loyalty configuration and
// the points engine: preview, purchase awards and manual credits.
package loyalty

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/api/controllers/restaurantcontext"
	"github.com/angelmondragon/loyalty-backend/api/responses"
	"github.com/angelmondragon/loyalty-backend/api/validators"
	"github.com/angelmondragon/loyalty-backend/internal/loyaltyconfig"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

// ConfigGet returns the resolved configuration; missing or malformed settings
// come back as defaults, never as an error.
func ConfigGet(svc loyaltyconfig.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty config service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cfg, err := svc.Get(r.Context(), restaurantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}

type rateSettingsRequest struct {
	PointsPerCurrency *decimal.Decimal `json:"points_per_currency"`
}

type smartSettingsRequest struct {
	ProfitAllocationPercent *int `json:"profit_allocation_percent" validate:"omitempty,min=1,max=50"`
}

type blanketModeRequest struct {
	Enabled        *bool                 `json:"enabled"`
	Type           *enums.BlanketType    `json:"type" validate:"omitempty,enum"`
	SmartSettings  *smartSettingsRequest `json:"smart_settings"`
	ManualSettings *rateSettingsRequest  `json:"manual_settings"`
	SpendSettings  *rateSettingsRequest  `json:"spend_settings"`
}

type configUpdateRequest struct {
	PointValue      *decimal.Decimal                       `json:"point_value"`
	BlanketMode     *blanketModeRequest                    `json:"blanket_mode"`
	TierMultipliers map[enums.CustomerTier]decimal.Decimal `json:"tier_multipliers"`
}

func (req configUpdateRequest) toInput() loyaltyconfig.UpdateInput {
	input := loyaltyconfig.UpdateInput{
		PointValue:      req.PointValue,
		TierMultipliers: req.TierMultipliers,
	}
	if b := req.BlanketMode; b != nil {
		input.BlanketEnabled = b.Enabled
		input.BlanketType = b.Type
		if b.SmartSettings != nil {
			input.ProfitAllocationPercent = b.SmartSettings.ProfitAllocationPercent
		}
		if b.ManualSettings != nil {
			input.ManualPointsPerCurrency = b.ManualSettings.PointsPerCurrency
		}
		if b.SpendSettings != nil {
			input.SpendPointsPerCurrency = b.SpendSettings.PointsPerCurrency
		}
	}
	return input
}

// ConfigUpdate merges the submitted fields into the stored configuration.
func ConfigUpdate(svc loyaltyconfig.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty config service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body configUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cfg, err := svc.Update(r.Context(), restaurantID, body.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}
