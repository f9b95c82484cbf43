package controllers

import (
	"net/http"

	"github.com/angelmondragon/loyalty-backend/api/controllers/restaurantcontext"
	"github.com/angelmondragon/loyalty-backend/api/responses"
	"github.com/angelmondragon/loyalty-backend/api/validators"
	"github.com/angelmondragon/loyalty-backend/internal/rewards"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

// RewardCatalog lists active rewards that still have stock.
func RewardCatalog(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reward service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.Catalog(r.Context(), restaurantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

type rewardCreateRequest struct {
	Name           string             `json:"name" validate:"required,max=160"`
	Description    *string            `json:"description,omitempty" validate:"omitempty,max=1000"`
	PointsRequired int                `json:"points_required" validate:"required,min=1"`
	MinTier        enums.CustomerTier `json:"min_tier" validate:"omitempty,enum"`
	TotalAvailable *int               `json:"total_available,omitempty" validate:"omitempty,min=0"`
	IsActive       *bool              `json:"is_active,omitempty"`
}

func RewardCreate(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reward service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body rewardCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reward, err := svc.Create(r.Context(), restaurantID, rewards.CreateInput{
			Name:           body.Name,
			Description:    body.Description,
			PointsRequired: body.PointsRequired,
			MinTier:        body.MinTier,
			TotalAvailable: body.TotalAvailable,
			Inactive:       body.IsActive != nil && !*body.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reward)
	}
}
