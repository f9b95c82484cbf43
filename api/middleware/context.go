package middleware

import "context"

type callerKey struct{}

// caller is what Auth learned from the bearer token. Fields are kept as the
// token's string forms; handlers parse what they need.
type caller struct {
	userID       string
	role         string
	restaurantID string
}

func callerFrom(ctx context.Context) caller {
	if ctx == nil {
		return caller{}
	}
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

func withCaller(ctx context.Context, set func(*caller)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := callerFrom(ctx)
	set(&c)
	return context.WithValue(ctx, callerKey{}, c)
}

func UserIDFromContext(ctx context.Context) string       { return callerFrom(ctx).userID }
func RoleFromContext(ctx context.Context) string         { return callerFrom(ctx).role }
func RestaurantIDFromContext(ctx context.Context) string { return callerFrom(ctx).restaurantID }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withCaller(ctx, func(c *caller) { c.userID = userID })
}

func WithRole(ctx context.Context, role string) context.Context {
	return withCaller(ctx, func(c *caller) { c.role = role })
}

// WithRestaurantID scopes the request to the restaurant the caller acts for.
func WithRestaurantID(ctx context.Context, restaurantID string) context.Context {
	return withCaller(ctx, func(c *caller) { c.restaurantID = restaurantID })
}
