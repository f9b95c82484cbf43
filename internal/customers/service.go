package customers

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/loyalty-backend/pkg/retry"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes customer reads and enrolment.
type Service interface {
	Get(ctx context.Context, restaurantID uuid.UUID, idOrEmail string) (*models.Customer, error)
	Create(ctx context.Context, restaurantID uuid.UUID, input CreateInput) (*models.Customer, error)
}

// CreateInput carries the fields needed to enrol a customer.
type CreateInput struct {
	Name  string
	Email string
	Phone *string
}

// ServiceParams wires the customer service. SignupBonus is credited through
// the ledger on enrolment when positive.
type ServiceParams struct {
	DB          txRunner
	Repo        Repository
	Ledger      ledger.Repository
	Outbox      outboxEmitter
	Logger      *logger.Logger
	ReadRetry   retry.Policy
	SignupBonus int
}

type service struct {
	db          txRunner
	repo        Repository
	ledger      ledger.Repository
	outbox      outboxEmitter
	logg        *logger.Logger
	readRetry   retry.Policy
	signupBonus int
}

// NewService builds the customer service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("customer repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:          params.DB,
		repo:        params.Repo,
		ledger:      params.Ledger,
		outbox:      params.Outbox,
		logg:        params.Logger,
		readRetry:   params.ReadRetry,
		signupBonus: params.SignupBonus,
	}, nil
}

func (s *service) Get(ctx context.Context, restaurantID uuid.UUID, idOrEmail string) (*models.Customer, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	if strings.TrimSpace(idOrEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id or email is required")
	}

	var customer *models.Customer
	err := s.readRetry.Do(ctx, func(ctx context.Context) error {
		found, err := s.repo.FindByIDOrEmail(ctx, restaurantID, idOrEmail)
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

func (s *service) Create(ctx context.Context, restaurantID uuid.UUID, input CreateInput) (*models.Customer, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is invalid")
	}

	customer := &models.Customer{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		Name:         name,
		Email:        email,
		Phone:        input.Phone,
		CurrentTier:  enums.TierBronze,
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, customer); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "customer email already enrolled")
			}
			return err
		}
		if s.signupBonus <= 0 {
			return nil
		}

		row, err := s.ledger.WithTx(tx).Apply(ctx, ledger.ApplyInput{
			RestaurantID: restaurantID,
			CustomerID:   customer.ID,
			Type:         enums.PointTxSignup,
			Points:       s.signupBonus,
			Description:  "Signup bonus",
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
				Type:            enums.PointTxSignup,
				Points:          row.Points,
				ValueInCurrency: decimal.Zero,
				Tier:            enums.TierBronze,
			},
		}); err != nil {
			return err
		}

		reloaded, err := repo.FindByID(ctx, restaurantID, customer.ID)
		if err != nil {
			return err
		}
		customer = reloaded
		return nil
	})
	if err != nil {
		return nil, db.AsAppError(err, "create customer", "customer not found")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"customer_id":  customer.ID.String(),
		"signup_bonus": s.signupBonus,
	}), "customer enrolled")
	return customer, nil
}
