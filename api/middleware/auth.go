package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/loyalty-backend/api/responses"
	pkgAuth "github.com/angelmondragon/loyalty-backend/pkg/auth"
	"github.com/angelmondragon/loyalty-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

var errMissingCredentials = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")

// Auth requires a bearer token issued for one restaurant and puts the caller
// on the request context and on the request logger.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, errMissingCredentials)
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			userID, restaurantID, role := claims.UserID.String(), claims.RestaurantID.String(), string(claims.Role)
			ctx := withCaller(r.Context(), func(c *caller) {
				*c = caller{userID: userID, role: role, restaurantID: restaurantID}
			})
			ctx = annotate(ctx, logg, userID, restaurantID, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(header string) (string, bool) {
	token := strings.TrimSpace(header)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token, token != "" && !strings.EqualFold(token, "bearer")
}

func annotate(ctx context.Context, logg *logger.Logger, userID, restaurantID, role string) context.Context {
	ctx = logg.WithUserID(ctx, userID)
	ctx = logg.WithRestaurantID(ctx, restaurantID)
	return logg.WithActorRole(ctx, role)
}
