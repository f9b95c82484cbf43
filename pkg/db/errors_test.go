package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: fmt.Errorf("load: %w", context.DeadlineExceeded), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "not found", err: gorm.ErrRecordNotFound, want: false},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: true},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, want: false},
		{name: "connection refused text", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(errors.New("ERROR: duplicate key value violates unique constraint"), ""))
	require.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: customers.email"), ""))
	require.True(t, IsUniqueViolation(errors.New("violates idx_customers_restaurant_email"), "idx_customers_restaurant_email"))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestAsAppError(t *testing.T) {
	require.Nil(t, AsAppError(nil, "load", "missing"))

	typed := pkgerrors.New(pkgerrors.CodeSoldOut, "reward sold out")
	require.Same(t, typed, pkgerrors.As(AsAppError(typed, "load", "missing")))

	notFound := pkgerrors.As(AsAppError(gorm.ErrRecordNotFound, "load reward", "reward not found"))
	require.Equal(t, pkgerrors.CodeNotFound, notFound.Code())
	require.Equal(t, "reward not found", notFound.Message())

	transient := pkgerrors.As(AsAppError(context.DeadlineExceeded, "load reward", "reward not found"))
	require.Equal(t, pkgerrors.CodeDependency, transient.Code())

	other := pkgerrors.As(AsAppError(errors.New("syntax error"), "load reward", "reward not found"))
	require.Equal(t, pkgerrors.CodeInternal, other.Code())
}
