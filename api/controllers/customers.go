package controllers

import (
	"net/http"

	"github.com/angelmondragon/loyalty-backend/api/controllers/restaurantcontext"
	"github.com/angelmondragon/loyalty-backend/api/responses"
	"github.com/angelmondragon/loyalty-backend/api/validators"
	"github.com/angelmondragon/loyalty-backend/internal/customers"
	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/internal/rewards"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/pagination"
)

// customerParam accepts a customer id or an email address.
const customerParam = "customer"

type customerCreateRequest struct {
	Name  string  `json:"name" validate:"required,max=120"`
	Email string  `json:"email" validate:"required,email,max=320"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// CustomerCreate enrols a customer in the restaurant's programme.
func CustomerCreate(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body customerCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customer, err := svc.Create(r.Context(), restaurantID, customers.CreateInput{
			Name:  body.Name,
			Email: body.Email,
			Phone: body.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, customer)
	}
}

func CustomerGet(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ref, err := validators.PathParam(r, customerParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customer, err := svc.Get(r.Context(), restaurantID, ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, customer)
	}
}

// CustomerTransactions pages through the customer's ledger, newest first.
func CustomerTransactions(customerSvc customers.Service, ledgerSvc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if customerSvc == nil || ledgerSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		restaurantID, err := restaurantcontext.ResolveRestaurantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ref, err := validators.PathParam(r, customerParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customer, err := customerSvc.Get(r.Context(), restaurantID, ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := ledgerSvc.History(r.Context(), ledger.HistoryParams{
			RestaurantID: restaurantID,
			CustomerID:   customer.ID,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: r.URL.Query().Get("cursor"),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// CustomerRewards lists the rewards the customer's tier unlocks, flagging the
// ones the balance already covers.
func CustomerRewards(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
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
		ref, err := validators.PathParam(r, customerParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Redeemable(r.Context(), restaurantID, ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
