package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// PointsAwardedEvent is emitted for every positive ledger credit.
type PointsAwardedEvent struct {
	TransactionID   uuid.UUID                  `json:"transaction_id"`
	RestaurantID    uuid.UUID                  `json:"restaurant_id"`
	CustomerID      uuid.UUID                  `json:"customer_id"`
	Type            enums.PointTransactionType `json:"type"`
	Points          int                        `json:"points"`
	ValueInCurrency decimal.Decimal            `json:"value_in_currency"`
	AmountSpent     *decimal.Decimal           `json:"amount_spent,omitempty"`
	Tier            enums.CustomerTier         `json:"tier"`
}

// RewardRedeemedEvent is emitted when a redemption is created and points debited.
type RewardRedeemedEvent struct {
	RedemptionID uuid.UUID  `json:"redemption_id"`
	RestaurantID uuid.UUID  `json:"restaurant_id"`
	CustomerID   uuid.UUID  `json:"customer_id"`
	RewardID     uuid.UUID  `json:"reward_id"`
	BranchID     *uuid.UUID `json:"branch_id,omitempty"`
	PointsUsed   int        `json:"points_used"`
	Code         string     `json:"code"`
}

// RedemptionUsedEvent is emitted when staff honour a pending redemption.
type RedemptionUsedEvent struct {
	RedemptionID uuid.UUID `json:"redemption_id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	RewardID     uuid.UUID `json:"reward_id"`
	UsedAt       time.Time `json:"used_at"`
}

// RedemptionExpiredEvent is emitted when a pending redemption passes its TTL.
type RedemptionExpiredEvent struct {
	RedemptionID uuid.UUID `json:"redemption_id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	RewardID     uuid.UUID `json:"reward_id"`
	PointsUsed   int       `json:"points_used"`
	ExpiredAt    time.Time `json:"expired_at"`
}

// Scoped is implemented by every loyalty payload so the relay can route and
// order messages without knowing the concrete type.
type Scoped interface {
	Scope() (restaurantID, customerID uuid.UUID)
}

func (e PointsAwardedEvent) Scope() (uuid.UUID, uuid.UUID)     { return e.RestaurantID, e.CustomerID }
func (e RewardRedeemedEvent) Scope() (uuid.UUID, uuid.UUID)    { return e.RestaurantID, e.CustomerID }
func (e RedemptionUsedEvent) Scope() (uuid.UUID, uuid.UUID)    { return e.RestaurantID, e.CustomerID }
func (e RedemptionExpiredEvent) Scope() (uuid.UUID, uuid.UUID) { return e.RestaurantID, e.CustomerID }
