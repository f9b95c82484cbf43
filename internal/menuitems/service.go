// Package menuitems manages the priced dishes that feed per-item earning.
package menuitems

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/retry"
)

const (
	minSmartAllocation = 1
	maxSmartAllocation = 50
)

type repository interface {
	Create(ctx context.Context, item *models.MenuItem) error
	FindByID(ctx context.Context, restaurantID, id uuid.UUID) (*models.MenuItem, error)
}

// Service exposes menu item writes and reads.
type Service interface {
	Create(ctx context.Context, restaurantID uuid.UUID, input CreateInput) (*models.MenuItem, error)
	Get(ctx context.Context, restaurantID, id uuid.UUID) (*models.MenuItem, error)
}

// CreateInput describes a new menu item.
type CreateInput struct {
	Name                    string
	CostPrice               decimal.Decimal
	SellingPrice            decimal.Decimal
	LoyaltyMode             enums.ItemLoyaltyMode
	ProfitAllocationPercent int
	FixedPoints             int
	Inactive                bool
}

type service struct {
	repo      repository
	logg      *logger.Logger
	readRetry retry.Policy
}

// NewService builds the menu item service.
func NewService(repo repository, logg *logger.Logger, readRetry retry.Policy) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("menu item repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg, readRetry: readRetry}, nil
}

func (s *service) Create(ctx context.Context, restaurantID uuid.UUID, input CreateInput) (*models.MenuItem, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	if err := validateCreate(&input); err != nil {
		return nil, err
	}

	item := &models.MenuItem{
		ID:                      uuid.New(),
		RestaurantID:            restaurantID,
		Name:                    input.Name,
		CostPrice:               input.CostPrice,
		SellingPrice:            input.SellingPrice,
		LoyaltyMode:             input.LoyaltyMode,
		ProfitAllocationPercent: input.ProfitAllocationPercent,
		FixedPoints:             input.FixedPoints,
		IsActive:                !input.Inactive,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, db.AsAppError(err, "create menu item", "menu item not found")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"menu_item_id": item.ID.String(),
		"loyalty_mode": item.LoyaltyMode.String(),
	}), "menu item created")
	return item, nil
}

func (s *service) Get(ctx context.Context, restaurantID, id uuid.UUID) (*models.MenuItem, error) {
	if restaurantID == uuid.Nil || id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id and menu item id are required")
	}
	var item *models.MenuItem
	err := s.readRetry.Do(ctx, func(ctx context.Context) error {
		found, err := s.repo.FindByID(ctx, restaurantID, id)
		if err != nil {
			return err
		}
		item = found
		return nil
	})
	if err != nil {
		return nil, db.AsAppError(err, "load menu item", "menu item not found")
	}
	return item, nil
}

func validateCreate(input *CreateInput) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.CostPrice.IsNegative() || input.SellingPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "prices must not be negative")
	}
	if input.LoyaltyMode == "" {
		input.LoyaltyMode = enums.ItemModeNone
	}
	if !input.LoyaltyMode.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "loyalty mode must be smart, manual or none")
	}

	switch input.LoyaltyMode {
	case enums.ItemModeSmart:
		if input.ProfitAllocationPercent < minSmartAllocation || input.ProfitAllocationPercent > maxSmartAllocation {
			return pkgerrors.New(pkgerrors.CodeValidation, "profit allocation percent must be between 1 and 50").
				WithDetails(map[string]any{"profit_allocation_percent": input.ProfitAllocationPercent})
		}
	case enums.ItemModeManual:
		if input.FixedPoints < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "fixed points must not be negative")
		}
	}
	return nil
}

