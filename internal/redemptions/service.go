// Package redemptions is the gate between a customer's balance and the reward
// catalog. A redemption either fully happens (debit, stock, record, event) or
// leaves nothing behind.
package redemptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/internal/customers"
	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/internal/rewards"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox/payloads"
)

const defaultExpiryBatch = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type customerReader interface {
	Get(ctx context.Context, restaurantID uuid.UUID, idOrEmail string) (*models.Customer, error)
}

// Service exposes the redemption lifecycle.
type Service interface {
	Redeem(ctx context.Context, restaurantID uuid.UUID, input RedeemInput) (*RedeemResult, error)
	MarkUsed(ctx context.Context, restaurantID, redemptionID uuid.UUID) (*models.Redemption, error)
	ExpirePending(ctx context.Context, cutoff time.Time) (int, error)
	ListForCustomer(ctx context.Context, restaurantID uuid.UUID, customerIDOrEmail string, status *enums.RedemptionStatus) ([]models.Redemption, error)
}

// RedeemInput identifies who redeems what, and optionally where.
type RedeemInput struct {
	CustomerIDOrEmail string
	RewardID          uuid.UUID
	BranchID          *uuid.UUID
}

// RedeemResult carries the pending redemption and the customer's new balance.
type RedeemResult struct {
	Redemption  models.Redemption        `json:"redemption"`
	Transaction *models.PointTransaction `json:"transaction"`
	Customer    *models.Customer         `json:"customer"`
}

// ServiceParams wires the redemption service.
type ServiceParams struct {
	DB              txRunner
	Repo            Repository
	Rewards         rewards.Repository
	Customers       customers.Repository
	CustomerReader  customerReader
	Ledger          ledger.Repository
	Outbox          outboxEmitter
	Logger          *logger.Logger
	Metrics         *metrics.LoyaltyMetrics
	ExpiryBatchSize int
}

type service struct {
	db             txRunner
	repo           Repository
	rewards        rewards.Repository
	customers      customers.Repository
	customerReader customerReader
	ledger         ledger.Repository
	outbox         outboxEmitter
	logg           *logger.Logger
	metrics        *metrics.LoyaltyMetrics
	batch          int
	now            func() time.Time
	newCode        func() (string, error)
}

// NewService builds the redemption service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("redemption repository required")
	case params.Rewards == nil:
		return nil, fmt.Errorf("reward repository required")
	case params.Customers == nil:
		return nil, fmt.Errorf("customer repository required")
	case params.CustomerReader == nil:
		return nil, fmt.Errorf("customer reader required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	batch := params.ExpiryBatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &service{
		db:             params.DB,
		repo:           params.Repo,
		rewards:        params.Rewards,
		customers:      params.Customers,
		customerReader: params.CustomerReader,
		ledger:         params.Ledger,
		outbox:         params.Outbox,
		logg:           params.Logger,
		metrics:        params.Metrics,
		batch:          batch,
		now:            func() time.Time { return time.Now().UTC() },
		newCode:        NewCode,
	}, nil
}

// Redeem checks, in order, that the reward and customer exist, that the
// balance covers the cost, that the tier qualifies and that stock remains,
// then debits, consumes stock, records the redemption and queues the event in
// one transaction. Concurrent losers surface as INSUFFICIENT_POINTS or
// SOLD_OUT. Nothing here is retried.
func (s *service) Redeem(ctx context.Context, restaurantID uuid.UUID, input RedeemInput) (*RedeemResult, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	if input.RewardID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reward id is required")
	}

	out := &RedeemResult{}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		reward, err := s.rewards.WithTx(tx).FindActiveForUpdate(ctx, restaurantID, input.RewardID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "reward not found")
			}
			return err
		}
		customerRepo := s.customers.WithTx(tx)
		customer, err := customerRepo.FindByIDOrEmail(ctx, restaurantID, input.CustomerIDOrEmail)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "customer not found")
			}
			return err
		}

		if customer.TotalPoints < int64(reward.PointsRequired) {
			return pkgerrors.New(pkgerrors.CodeInsufficientPoints, "insufficient points").
				WithDetails(map[string]any{
					"points_required": reward.PointsRequired,
					"total_points":    customer.TotalPoints,
				})
		}
		if !customer.CurrentTier.AtLeast(reward.MinTier) {
			return pkgerrors.New(pkgerrors.CodeTierTooLow, "tier too low").
				WithDetails(map[string]any{
					"min_tier":     reward.MinTier,
					"current_tier": customer.CurrentTier,
				})
		}
		if reward.SoldOut() {
			return soldOut(reward)
		}

		row, err := s.ledger.WithTx(tx).Apply(ctx, ledger.ApplyInput{
			RestaurantID: restaurantID,
			CustomerID:   customer.ID,
			Type:         enums.PointTxRedemption,
			Points:       -reward.PointsRequired,
			Description:  "Redeemed: " + reward.Name,
			RewardID:     &reward.ID,
			BranchID:     input.BranchID,
		})
		if err != nil {
			return err
		}

		ok, err := s.rewards.WithTx(tx).IncrementRedeemed(ctx, reward.ID)
		if err != nil {
			return err
		}
		if !ok {
			return soldOut(reward)
		}

		code, err := s.newCode()
		if err != nil {
			return err
		}
		now := s.now()
		redemption := models.Redemption{
			ID:           uuid.New(),
			RestaurantID: restaurantID,
			CustomerID:   customer.ID,
			RewardID:     reward.ID,
			BranchID:     input.BranchID,
			PointsUsed:   reward.PointsRequired,
			Code:         code,
			Status:       enums.RedemptionStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.WithTx(tx).Create(ctx, &redemption); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRewardRedeemed,
			AggregateType: enums.AggregateRedemption,
			AggregateID:   redemption.ID,
			Data: payloads.RewardRedeemedEvent{
				RedemptionID: redemption.ID,
				RestaurantID: restaurantID,
				CustomerID:   customer.ID,
				RewardID:     reward.ID,
				BranchID:     input.BranchID,
				PointsUsed:   redemption.PointsUsed,
				Code:         redemption.Code,
			},
		}); err != nil {
			return err
		}

		refreshed, err := customerRepo.FindByID(ctx, restaurantID, customer.ID)
		if err != nil {
			return err
		}
		out.Redemption = redemption
		out.Transaction = row
		out.Customer = refreshed
		return nil
	})
	if err != nil {
		appErr := db.AsAppError(err, "redeem reward", "customer not found")
		if typed := pkgerrors.As(appErr); typed != nil {
			s.metrics.IncRedemption(string(typed.Code()))
		}
		return nil, appErr
	}

	s.metrics.IncRedemption("success")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"redemption_id": out.Redemption.ID.String(),
		"customer_id":   out.Redemption.CustomerID.String(),
		"reward_id":     out.Redemption.RewardID.String(),
		"points_used":   out.Redemption.PointsUsed,
	}), "reward redeemed")
	return out, nil
}

// MarkUsed moves a pending redemption to used. Any other starting status is a
// state conflict.
func (s *service) MarkUsed(ctx context.Context, restaurantID, redemptionID uuid.UUID) (*models.Redemption, error) {
	if restaurantID == uuid.Nil || redemptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id and redemption id are required")
	}

	var out *models.Redemption
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindForUpdate(ctx, restaurantID, redemptionID)
		if err != nil {
			return err
		}
		if !row.Status.CanTransitionTo(enums.RedemptionStatusUsed) {
			return stateConflict(row.Status, enums.RedemptionStatusUsed)
		}

		now := s.now()
		ok, err := repo.MarkUsed(ctx, row.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return stateConflict(row.Status, enums.RedemptionStatusUsed)
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRedemptionUsed,
			AggregateType: enums.AggregateRedemption,
			AggregateID:   row.ID,
			Data: payloads.RedemptionUsedEvent{
				RedemptionID: row.ID,
				RestaurantID: row.RestaurantID,
				CustomerID:   row.CustomerID,
				RewardID:     row.RewardID,
				UsedAt:       now,
			},
		}); err != nil {
			return err
		}

		row.Status = enums.RedemptionStatusUsed
		row.UsedAt = &now
		row.UpdatedAt = now
		out = row
		return nil
	})
	if err != nil {
		return nil, db.AsAppError(err, "mark redemption used", "redemption not found")
	}

	s.logg.Info(s.logg.WithField(ctx, "redemption_id", out.ID.String()), "redemption used")
	return out, nil
}

// ExpirePending expires one batch of pending redemptions created before cutoff.
// Points are not refunded.
func (s *service) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	expired := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ListPendingBefore(ctx, cutoff.UTC(), s.batch)
		if err != nil {
			return err
		}

		now := s.now()
		for _, row := range rows {
			ok, err := repo.MarkExpired(ctx, row.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRedemptionExpired,
				AggregateType: enums.AggregateRedemption,
				AggregateID:   row.ID,
				Data: payloads.RedemptionExpiredEvent{
					RedemptionID: row.ID,
					RestaurantID: row.RestaurantID,
					CustomerID:   row.CustomerID,
					RewardID:     row.RewardID,
					PointsUsed:   row.PointsUsed,
					ExpiredAt:    now,
				},
			}); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, db.AsAppError(err, "expire redemptions", "redemption not found")
	}
	return expired, nil
}

func (s *service) ListForCustomer(ctx context.Context, restaurantID uuid.UUID, customerIDOrEmail string, status *enums.RedemptionStatus) ([]models.Redemption, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be pending, used or expired")
	}
	customer, err := s.customerReader.Get(ctx, restaurantID, customerIDOrEmail)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByCustomer(ctx, restaurantID, customer.ID, status)
	if err != nil {
		return nil, db.AsAppError(err, "list redemptions", "customer not found")
	}
	return rows, nil
}

func soldOut(reward *models.Reward) error {
	details := map[string]any{"total_redeemed": reward.TotalRedeemed}
	if reward.TotalAvailable != nil {
		details["total_available"] = *reward.TotalAvailable
	}
	return pkgerrors.New(pkgerrors.CodeSoldOut, "reward sold out").WithDetails(details)
}

func stateConflict(from, to enums.RedemptionStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("redemption is %s and cannot become %s", from, to)).
		WithDetails(map[string]any{"status": from})
}
