// Package rewards serves the reward catalog and the per-customer view of it.
package rewards

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/retry"
)

type customerReader interface {
	Get(ctx context.Context, restaurantID uuid.UUID, idOrEmail string) (*models.Customer, error)
}

// Service exposes catalog reads and reward creation.
type Service interface {
	Catalog(ctx context.Context, restaurantID uuid.UUID) ([]CatalogItem, error)
	Redeemable(ctx context.Context, restaurantID uuid.UUID, customerIDOrEmail string) (*RedeemableResult, error)
	Create(ctx context.Context, restaurantID uuid.UUID, input CreateInput) (*models.Reward, error)
}

// CatalogItem is a reward with its remaining stock.
type CatalogItem struct {
	models.Reward
	Remaining *int `json:"remaining"`
}

// RedeemableItem adds what the customer still lacks to afford the reward.
type RedeemableItem struct {
	CatalogItem
	Affordable  bool  `json:"affordable"`
	PointsShort int64 `json:"points_short"`
}

// RedeemableResult lists the rewards a customer's tier unlocks.
type RedeemableResult struct {
	CustomerID  uuid.UUID          `json:"customer_id"`
	TotalPoints int64              `json:"total_points"`
	Tier        enums.CustomerTier `json:"tier"`
	Items       []RedeemableItem   `json:"items"`
}

// CreateInput describes a new reward. A nil TotalAvailable means unlimited.
type CreateInput struct {
	Name           string
	Description    *string
	PointsRequired int
	MinTier        enums.CustomerTier
	TotalAvailable *int
	Inactive       bool
}

// ServiceParams wires the reward service.
type ServiceParams struct {
	Repo      Repository
	Customers customerReader
	Logger    *logger.Logger
	ReadRetry retry.Policy
}

type service struct {
	repo      Repository
	customers customerReader
	logg      *logger.Logger
	readRetry retry.Policy
}

// NewService builds the reward service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("reward repository required")
	case params.Customers == nil:
		return nil, fmt.Errorf("customer reader required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		customers: params.Customers,
		logg:      params.Logger,
		readRetry: params.ReadRetry,
	}, nil
}

// Catalog lists active rewards that still have stock.
func (s *service) Catalog(ctx context.Context, restaurantID uuid.UUID) ([]CatalogItem, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	rows, err := s.listActive(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	items := make([]CatalogItem, 0, len(rows))
	for _, row := range rows {
		if row.SoldOut() {
			continue
		}
		items = append(items, CatalogItem{Reward: row, Remaining: row.Remaining()})
	}
	return items, nil
}

// Redeemable narrows the catalog to the customer's tier and flags what is
// affordable with the current balance.
func (s *service) Redeemable(ctx context.Context, restaurantID uuid.UUID, customerIDOrEmail string) (*RedeemableResult, error) {
	customer, err := s.customers.Get(ctx, restaurantID, customerIDOrEmail)
	if err != nil {
		return nil, err
	}
	catalog, err := s.Catalog(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	out := &RedeemableResult{
		CustomerID:  customer.ID,
		TotalPoints: customer.TotalPoints,
		Tier:        customer.CurrentTier,
		Items:       make([]RedeemableItem, 0, len(catalog)),
	}
	for _, item := range catalog {
		if !customer.CurrentTier.AtLeast(item.MinTier) {
			continue
		}
		short := int64(item.PointsRequired) - customer.TotalPoints
		if short < 0 {
			short = 0
		}
		out.Items = append(out.Items, RedeemableItem{
			CatalogItem: item,
			Affordable:  short == 0,
			PointsShort: short,
		})
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, restaurantID uuid.UUID, input CreateInput) (*models.Reward, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.PointsRequired <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points required must be positive")
	}
	minTier := input.MinTier
	if minTier == "" {
		minTier = enums.TierBronze
	}
	if !minTier.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min tier must be bronze, silver, gold or platinum")
	}
	if input.TotalAvailable != nil && *input.TotalAvailable <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total available must be positive when set")
	}

	reward := &models.Reward{
		ID:             uuid.New(),
		RestaurantID:   restaurantID,
		Name:           name,
		Description:    input.Description,
		PointsRequired: input.PointsRequired,
		MinTier:        minTier,
		TotalAvailable: input.TotalAvailable,
		IsActive:       !input.Inactive,
	}
	if err := s.repo.Create(ctx, reward); err != nil {
		return nil, db.AsAppError(err, "create reward", "reward not found")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"reward_id":       reward.ID.String(),
		"points_required": reward.PointsRequired,
	}), "reward created")
	return reward, nil
}

func (s *service) listActive(ctx context.Context, restaurantID uuid.UUID) ([]models.Reward, error) {
	var rows []models.Reward
	err := s.readRetry.Do(ctx, func(ctx context.Context) error {
		found, err := s.repo.ListActive(ctx, restaurantID)
		if err != nil {
			return err
		}
		rows = found
		return nil
	})
	if err != nil {
		return nil, db.AsAppError(err, "list rewards", "reward not found")
	}
	return rows, nil
}
