package points

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/internal/customers"
	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/internal/loyaltyconfig"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/loyalty-backend/pkg/retry"
)

// MaxOrderAmount is the largest order a calculation accepts. It stays inside
// the numeric(12,2) amount_spent column.
var MaxOrderAmount = decimal.NewFromInt(1_000_000_000)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type configReader interface {
	Get(ctx context.Context, restaurantID uuid.UUID) (loyaltyconfig.Configuration, error)
}

type menuItemReader interface {
	Get(ctx context.Context, restaurantID, id uuid.UUID) (*models.MenuItem, error)
}

// Service exposes what-if calculations and point awards.
type Service interface {
	Preview(ctx context.Context, restaurantID uuid.UUID, input PreviewInput) (*Result, error)
	Award(ctx context.Context, restaurantID uuid.UUID, input AwardInput) (*AwardResult, error)
	Adjust(ctx context.Context, restaurantID uuid.UUID, input AdjustInput) (*AdjustResult, error)
}

// PreviewInput is a side-effect-free calculation request. OrderAmount defaults
// to the item's selling price times quantity; Quantity defaults to 1.
type PreviewInput struct {
	MenuItemID  *uuid.UUID
	OrderAmount *decimal.Decimal
	Tier        enums.CustomerTier
	Quantity    int
}

// AwardInput is a purchase to convert into points.
type AwardInput struct {
	CustomerIDOrEmail string
	MenuItemID        *uuid.UUID
	OrderAmount       *decimal.Decimal
	Quantity          int
	Description       string
	BranchID          *uuid.UUID
}

// AwardResult carries the calculation and, when points were credited, the
// ledger row and refreshed customer.
type AwardResult struct {
	Calculation Result                   `json:"calculation"`
	Transaction *models.PointTransaction `json:"transaction,omitempty"`
	Customer    *models.Customer         `json:"customer"`
}

// AdjustInput is a manual credit of an explicit amount.
type AdjustInput struct {
	CustomerIDOrEmail string
	Type              enums.PointTransactionType
	Points            int
	Description       string
}

// AdjustResult carries the ledger row and refreshed customer.
type AdjustResult struct {
	Transaction *models.PointTransaction `json:"transaction"`
	Customer    *models.Customer         `json:"customer"`
}

// ServiceParams wires the points service.
type ServiceParams struct {
	DB        txRunner
	Config    configReader
	MenuItems menuItemReader
	Customers customers.Repository
	Ledger    ledger.Repository
	Outbox    outboxEmitter
	Logger    *logger.Logger
	ReadRetry retry.Policy
	Metrics   *metrics.LoyaltyMetrics
}

type service struct {
	db        txRunner
	config    configReader
	menuItems menuItemReader
	customers customers.Repository
	ledger    ledger.Repository
	outbox    outboxEmitter
	logg      *logger.Logger
	readRetry retry.Policy
	metrics   *metrics.LoyaltyMetrics
}

// NewService builds the points service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Config == nil:
		return nil, fmt.Errorf("config reader required")
	case params.MenuItems == nil:
		return nil, fmt.Errorf("menu item reader required")
	case params.Customers == nil:
		return nil, fmt.Errorf("customer repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:        params.DB,
		config:    params.Config,
		menuItems: params.MenuItems,
		customers: params.Customers,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		logg:      params.Logger,
		readRetry: params.ReadRetry,
		metrics:   params.Metrics,
	}, nil
}

func (s *service) Preview(ctx context.Context, restaurantID uuid.UUID, input PreviewInput) (*Result, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	tier := input.Tier
	if tier == "" {
		tier = enums.TierBronze
	}
	if !tier.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tier must be bronze, silver, gold or platinum")
	}

	result, err := s.calculate(ctx, restaurantID, input.MenuItemID, input.OrderAmount, tier, input.Quantity)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) Award(ctx context.Context, restaurantID uuid.UUID, input AwardInput) (*AwardResult, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	customer, err := s.loadCustomer(ctx, restaurantID, input.CustomerIDOrEmail)
	if err != nil {
		return nil, err
	}

	result, err := s.calculate(ctx, restaurantID, input.MenuItemID, input.OrderAmount, customer.CurrentTier, input.Quantity)
	if err != nil {
		return nil, err
	}
	out := &AwardResult{Calculation: result, Customer: customer}
	if result.Points <= 0 {
		return out, nil
	}

	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = "Purchase"
	}
	amount := result.Breakdown.OrderAmount

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.ledger.WithTx(tx).Apply(ctx, ledger.ApplyInput{
			RestaurantID: restaurantID,
			CustomerID:   customer.ID,
			Type:         enums.PointTxPurchase,
			Points:       int(result.Points),
			Description:  description,
			AmountSpent:  decimal.NewNullDecimal(amount),
			BranchID:     input.BranchID,
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPointsAwarded,
			AggregateType: enums.AggregateCustomer,
			AggregateID:   customer.ID,
			Data: payloads.PointsAwardedEvent{
				TransactionID:   row.ID,
				RestaurantID:    restaurantID,
				CustomerID:      customer.ID,
				Type:            enums.PointTxPurchase,
				Points:          row.Points,
				ValueInCurrency: result.ValueInCurrency,
				AmountSpent:     &amount,
				Tier:            customer.CurrentTier,
			},
		}); err != nil {
			return err
		}
		refreshed, err := s.customers.WithTx(tx).FindByID(ctx, restaurantID, customer.ID)
		if err != nil {
			return err
		}
		out.Transaction = row
		out.Customer = refreshed
		return nil
	})
	if err != nil {
		return nil, db.AsAppError(err, "award points", "customer not found")
	}

	s.metrics.AddPoints(enums.PointTxPurchase.String(), int(result.Points))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"customer_id": customer.ID.String(),
		"points":      result.Points,
		"source":      string(result.Breakdown.Source),
	}), "points awarded")
	return out, nil
}

func (s *service) Adjust(ctx context.Context, restaurantID uuid.UUID, input AdjustInput) (*AdjustResult, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	if !input.Type.IsAdjustment() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "type must be bonus, referral or signup")
	}
	if input.Points <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be positive")
	}
	customer, err := s.loadCustomer(ctx, restaurantID, input.CustomerIDOrEmail)
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = strings.ToUpper(input.Type.String()[:1]) + input.Type.String()[1:]
	}

	out := &AdjustResult{}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.ledger.WithTx(tx).Apply(ctx, ledger.ApplyInput{
			RestaurantID: restaurantID,
			CustomerID:   customer.ID,
			Type:         input.Type,
			Points:       input.Points,
			Description:  description,
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPointsAwarded,
			AggregateType: enums.AggregateCustomer,
			AggregateID:   customer.ID,
			Data: payloads.PointsAwardedEvent{
				TransactionID:   row.ID,
				RestaurantID:    restaurantID,
				CustomerID:      customer.ID,
				Type:            input.Type,
				Points:          row.Points,
				ValueInCurrency: decimal.Zero,
				Tier:            customer.CurrentTier,
			},
		}); err != nil {
			return err
		}
		refreshed, err := s.customers.WithTx(tx).FindByID(ctx, restaurantID, customer.ID)
		if err != nil {
			return err
		}
		out.Transaction = row
		out.Customer = refreshed
		return nil
	})
	if err != nil {
		return nil, db.AsAppError(err, "adjust points", "customer not found")
	}

	s.metrics.AddPoints(input.Type.String(), input.Points)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"customer_id": customer.ID.String(),
		"points":      input.Points,
		"type":        input.Type.String(),
	}), "points adjusted")
	return out, nil
}

func (s *service) calculate(ctx context.Context, restaurantID uuid.UUID, menuItemID *uuid.UUID, orderAmount *decimal.Decimal, tier enums.CustomerTier, quantity int) (Result, error) {
	if menuItemID == nil && orderAmount == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "menu item id or order amount is required")
	}
	if orderAmount != nil && orderAmount.GreaterThan(MaxOrderAmount) {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "order amount is too large").WithDetails(map[string]any{
			"max_order_amount": MaxOrderAmount.String(),
		})
	}
	if quantity == 0 {
		quantity = 1
	}

	cfg, err := s.config.Get(ctx, restaurantID)
	if err != nil {
		return Result{}, err
	}

	var item *MenuItem
	if menuItemID != nil {
		row, err := s.menuItems.Get(ctx, restaurantID, *menuItemID)
		if err != nil {
			return Result{}, err
		}
		item = &MenuItem{
			CostPrice:               row.CostPrice,
			SellingPrice:            row.SellingPrice,
			Mode:                    row.LoyaltyMode,
			ProfitAllocationPercent: row.ProfitAllocationPercent,
			FixedPoints:             row.FixedPoints,
		}
	}

	amount := decimal.Zero
	switch {
	case orderAmount != nil:
		amount = *orderAmount
	case item != nil:
		amount = item.SellingPrice.Mul(decimal.NewFromInt(int64(quantity)))
	}

	return Calculate(cfg, item, amount, tier, quantity), nil
}

func (s *service) loadCustomer(ctx context.Context, restaurantID uuid.UUID, idOrEmail string) (*models.Customer, error) {
	if strings.TrimSpace(idOrEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id or email is required")
	}
	var customer *models.Customer
	err := s.readRetry.Do(ctx, func(ctx context.Context) error {
		found, err := s.customers.FindByIDOrEmail(ctx, restaurantID, idOrEmail)
		if err != nil {
			return err
		}
		customer = found
		return nil
	})
	if err != nil {
		return nil, db.AsAppError(err, "load customer", "customer not found")
	}
	return customer, nil
}
