// Package ledger is the point transaction procedure: every balance change is a
// conditional customer update plus an append-only point_transactions row.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/pagination"
)

// Service exposes read access to a customer's point history.
type Service interface {
	History(ctx context.Context, params HistoryParams) (*HistoryResult, error)
}

// HistoryParams selects one customer's transactions, newest first.
type HistoryParams struct {
	RestaurantID uuid.UUID
	CustomerID   uuid.UUID
	pagination.Params
}

// HistoryResult wraps a page of transactions and the cursor for the next one.
type HistoryResult struct {
	Items  []models.PointTransaction `json:"items"`
	Cursor string                    `json:"cursor"`
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) History(ctx context.Context, params HistoryParams) (*HistoryResult, error) {
	if params.RestaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	if params.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}

	query := listParams{
		RestaurantID: params.RestaurantID,
		CustomerID:   params.CustomerID,
		Limit:        params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListByCustomer(ctx, query)
	if err != nil {
		return nil, db.AsAppError(err, "list point transactions", "customer not found")
	}

	cursor := ""
	if next != nil {
		cursor = next.Encode()
	}
	return &HistoryResult{Items: rows, Cursor: cursor}, nil
}
