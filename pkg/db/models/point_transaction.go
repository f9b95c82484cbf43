package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// PointTransaction is an append-only ledger row. Points are signed: positive
// credits, negative redemptions.
type PointTransaction struct {
	ID           uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RestaurantID uuid.UUID                  `gorm:"column:restaurant_id;type:uuid;not null" json:"restaurant_id"`
	CustomerID   uuid.UUID                  `gorm:"column:customer_id;type:uuid;not null" json:"customer_id"`
	Type         enums.PointTransactionType `gorm:"column:type;type:point_transaction_type;not null" json:"type"`
	Points       int                        `gorm:"column:points;not null" json:"points"`
	Description  string                     `gorm:"column:description;not null;default:''" json:"description"`
	AmountSpent  decimal.NullDecimal        `gorm:"column:amount_spent;type:numeric(12,2)" json:"amount_spent"`
	RewardID     *uuid.UUID                 `gorm:"column:reward_id;type:uuid" json:"reward_id"`
	BranchID     *uuid.UUID                 `gorm:"column:branch_id;type:uuid" json:"branch_id"`
	CreatedAt    time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
