package restaurantcontext

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/loyalty-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/google/uuid"
)

func TestResolveRestaurantID(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithRestaurantID(req.Context(), id.String()))

	got, err := ResolveRestaurantID(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id {
		t.Fatalf("expected %s got %s", id, got)
	}
}

func TestResolveRestaurantIDMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ResolveRestaurantID(req)
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestResolveRestaurantIDMalformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithRestaurantID(req.Context(), "not-a-uuid"))
	_, err := ResolveRestaurantID(req)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
