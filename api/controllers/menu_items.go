package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/api/controllers/restaurantcontext"
	"github.com/angelmondragon/loyalty-backend/api/responses"
	"github.com/angelmondragon/loyalty-backend/api/validators"
	"github.com/angelmondragon/loyalty-backend/internal/menuitems"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

type menuItemCreateRequest struct {
	Name                    string                `json:"name" validate:"required,max=160"`
	CostPrice               decimal.Decimal       `json:"cost_price"`
	SellingPrice            decimal.Decimal       `json:"selling_price"`
	LoyaltyMode             enums.ItemLoyaltyMode `json:"loyalty_mode" validate:"omitempty,enum"`
	ProfitAllocationPercent int                   `json:"profit_allocation_percent" validate:"min=0,max=50"`
	FixedPoints             int                   `json:"fixed_points" validate:"min=0"`
	IsActive                *bool                 `json:"is_active,omitempty"`
}

func MenuItemCreate(svc menuitems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "menu item service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body menuItemCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Create(r.Context(), restaurantID, menuitems.CreateInput{
			Name:                    body.Name,
			CostPrice:               body.CostPrice,
			SellingPrice:            body.SellingPrice,
			LoyaltyMode:             body.LoyaltyMode,
			ProfitAllocationPercent: body.ProfitAllocationPercent,
			FixedPoints:             body.FixedPoints,
			Inactive:                body.IsActive != nil && !*body.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func MenuItemGet(svc menuitems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "menu item service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Get(r.Context(), restaurantID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}
