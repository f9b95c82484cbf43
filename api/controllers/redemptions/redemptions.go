// Package redemptions exposes reward redemption, the staff "mark used" action
// and the customer wallet view.
package redemptions

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/api/controllers/restaurantcontext"
	"github.com/angelmondragon/loyalty-backend/api/responses"
	"github.com/angelmondragon/loyalty-backend/api/validators"
	redemptionsvc "github.com/angelmondragon/loyalty-backend/internal/redemptions"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

type redeemRequest struct {
	Customer string     `json:"customer" validate:"required,max=320"`
	RewardID uuid.UUID  `json:"reward_id" validate:"required"`
	BranchID *uuid.UUID `json:"branch_id,omitempty"`
}

// Redeem debits the reward's points and issues a pending redemption code.
// Failure reasons (insufficient points, tier, stock) are returned verbatim.
func Redeem(svc redemptionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "redemption service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body redeemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Redeem(r.Context(), restaurantID, redemptionsvc.RedeemInput{
			CustomerIDOrEmail: body.Customer,
			RewardID:          body.RewardID,
			BranchID:          body.BranchID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// MarkUsed moves a pending redemption to used.
func MarkUsed(svc redemptionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "redemption service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		redemptionID, err := validators.ParseUUIDParam(r, "redemptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		redemption, err := svc.MarkUsed(r.Context(), restaurantID, redemptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, redemption)
	}
}

// CustomerRedemptions lists a customer's redemptions, optionally filtered by ?status=.
func CustomerRedemptions(svc redemptionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "redemption service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ref, err := validators.PathParam(r, "customer")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.RedemptionStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			s := enums.RedemptionStatus(strings.ToLower(raw))
			status = &s
		}

		items, err := svc.ListForCustomer(r.Context(), restaurantID, ref, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}
