package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "loyalty-identity"}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	userID := uuid.New()
	restaurantID := uuid.New()

	token, err := MintAccessToken(testJWT, now, 30*time.Minute, AccessTokenPayload{
		UserID:       userID,
		RestaurantID: restaurantID,
		Role:         enums.MemberRoleOwner,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(testJWT, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.RestaurantID != restaurantID {
		t.Fatalf("expected restaurant_id %s, got %s", restaurantID, claims.RestaurantID)
	}
	if claims.Role != enums.MemberRoleOwner {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != testJWT.Issuer {
		t.Fatalf("expected issuer %s, got %s", testJWT.Issuer, claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected generated jti")
	}

	exp := now.Add(30 * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt.UTC())
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now(), 10*time.Minute, AccessTokenPayload{
		UserID:       uuid.New(),
		RestaurantID: uuid.New(),
		Role:         enums.MemberRoleStaff,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err := ParseAccessToken(testJWT, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}
	other := config.JWTConfig{Secret: "other", Issuer: testJWT.Issuer}
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	token, err := MintAccessToken(config.JWTConfig{Secret: "secret", Issuer: "someone-else"}, time.Now(), time.Minute, AccessTokenPayload{
		UserID:       uuid.New(),
		RestaurantID: uuid.New(),
		Role:         enums.MemberRoleStaff,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := ParseAccessToken(testJWT, token); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now().Add(-time.Hour), 15*time.Minute, AccessTokenPayload{
		UserID:       uuid.New(),
		RestaurantID: uuid.New(),
		Role:         enums.MemberRoleStaff,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	_, err = ParseAccessToken(testJWT, token)
	if err == nil {
		t.Fatal("expected expiration error")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseAccessTokenRequiresRestaurant(t *testing.T) {
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.MemberRoleOwner,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testJWT.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWT.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccessToken(testJWT, token); err == nil {
		t.Fatal("expected missing restaurant_id error")
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	now := time.Now()
	cases := map[string]AccessTokenPayload{
		"missing role":       {UserID: uuid.New(), RestaurantID: uuid.New()},
		"unknown role":       {UserID: uuid.New(), RestaurantID: uuid.New(), Role: "admin"},
		"missing restaurant": {UserID: uuid.New(), Role: enums.MemberRoleOwner},
	}
	for name, payload := range cases {
		if _, err := MintAccessToken(testJWT, now, time.Minute, payload); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := MintAccessToken(testJWT, now, 0, AccessTokenPayload{RestaurantID: uuid.New(), Role: enums.MemberRoleOwner}); err == nil {
		t.Fatal("expected ttl error")
	}
}
