package loyalty

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/api/controllers/restaurantcontext"
	"github.com/angelmondragon/loyalty-backend/api/responses"
	"github.com/angelmondragon/loyalty-backend/api/validators"
	"github.com/angelmondragon/loyalty-backend/internal/points"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

const maxDescriptionLen = 255

type previewRequest struct {
	MenuItemID  *uuid.UUID         `json:"menu_item_id"`
	OrderAmount *decimal.Decimal   `json:"order_amount" validate:"omitempty,lte=1000000000"`
	Tier        enums.CustomerTier `json:"tier" validate:"omitempty,enum"`
	Quantity    int                `json:"quantity" validate:"min=0,max=1000"`
}

// Preview runs the points engine without writing anything.
func Preview(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body previewRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Preview(r.Context(), restaurantID, points.PreviewInput{
			MenuItemID:  body.MenuItemID,
			OrderAmount: body.OrderAmount,
			Tier:        body.Tier,
			Quantity:    body.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type awardRequest struct {
	Customer    string           `json:"customer" validate:"required,max=320"`
	MenuItemID  *uuid.UUID       `json:"menu_item_id"`
	OrderAmount *decimal.Decimal `json:"order_amount" validate:"omitempty,lte=1000000000"`
	Quantity    int              `json:"quantity" validate:"min=0,max=1000"`
	Description string           `json:"description" validate:"max=255"`
	BranchID    *uuid.UUID       `json:"branch_id"`
}

// Award credits a purchase. It answers 201 when a transaction was written and
// 200 when the calculation came to zero points.
func Award(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body awardRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Award(r.Context(), restaurantID, points.AwardInput{
			CustomerIDOrEmail: body.Customer,
			MenuItemID:        body.MenuItemID,
			OrderAmount:       body.OrderAmount,
			Quantity:          body.Quantity,
			Description:       validators.Clean(body.Description, maxDescriptionLen),
			BranchID:          body.BranchID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Transaction != nil {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

type adjustRequest struct {
	Customer    string                     `json:"customer" validate:"required,max=320"`
	Type        enums.PointTransactionType `json:"type" validate:"required,adjustment"`
	Points      int                        `json:"points" validate:"required,min=1,max=1000000"`
	Description string                     `json:"description" validate:"max=255"`
}

// Adjust credits bonus, referral or signup points.
func Adjust(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body adjustRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Adjust(r.Context(), restaurantID, points.AdjustInput{
			CustomerIDOrEmail: body.Customer,
			Type:              body.Type,
			Points:            body.Points,
			Description:       validators.Clean(body.Description, maxDescriptionLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
