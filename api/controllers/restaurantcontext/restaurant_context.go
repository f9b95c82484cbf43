// Package restaurantcontext resolves the tenant a request acts for.
package restaurantcontext

import (
	"net/http"

	"github.com/angelmondragon/loyalty-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/google/uuid"
)

// ResolveRestaurantID extracts the restaurant carried by the access token.
func ResolveRestaurantID(r *http.Request) (uuid.UUID, error) {
	restaurantID := middleware.RestaurantIDFromContext(r.Context())
	if restaurantID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "restaurant context required")
	}

	id, err := uuid.Parse(restaurantID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid restaurant id")
	}
	return id, nil
}
