// Package auth verifies the HS256 access tokens the identity service issues
// to restaurant staff and owners.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

var (
	signingMethod = jwt.SigningMethodHS256

	errSecretRequired = errors.New("jwt secret is required")
)

// clockSkew tolerates tills whose clocks drift a little.
const clockSkew = 30 * time.Second

// AccessTokenPayload is what MintAccessToken needs to sign a token.
type AccessTokenPayload struct {
	UserID       uuid.UUID
	RestaurantID uuid.UUID
	Role         enums.MemberRole
	JTI          string
}

// AccessTokenClaims binds a user to one restaurant with one role.
type AccessTokenClaims struct {
	UserID       uuid.UUID        `json:"user_id"`
	RestaurantID uuid.UUID        `json:"restaurant_id"`
	Role         enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks during parsing.
func (c AccessTokenClaims) Validate() error {
	if c.RestaurantID == uuid.Nil {
		return errors.New("restaurant_id claim is required")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid member role %q", c.Role)
	}
	return nil
}

// MintAccessToken signs a token for payload. Production tokens come from the
// identity service; local tooling and tests use this.
func MintAccessToken(cfg config.JWTConfig, now time.Time, ttl time.Duration, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errSecretRequired
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case ttl <= 0:
		return "", errors.New("jwt ttl must be positive")
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID:       payload.UserID,
		RestaurantID: payload.RestaurantID,
		Role:         payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then the loyalty
// claims.
func ParseAccessToken(cfg config.JWTConfig, token string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errSecretRequired
	}
	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
