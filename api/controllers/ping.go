package controllers

import (
	"net/http"

	"github.com/angelmondragon/loyalty-backend/api/middleware"
	"github.com/angelmondragon/loyalty-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{
			"scope":         "private",
			"status":        "ok",
			"restaurant_id": middleware.RestaurantIDFromContext(r.Context()),
			"role":          middleware.RoleFromContext(r.Context()),
		}
		responses.WriteSuccess(w, payload)
	}
}
