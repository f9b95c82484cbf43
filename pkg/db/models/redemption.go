package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// Redemption records a reward claim. Status only moves pending -> used or pending -> expired.
type Redemption struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RestaurantID uuid.UUID              `gorm:"column:restaurant_id;type:uuid;not null" json:"restaurant_id"`
	CustomerID   uuid.UUID              `gorm:"column:customer_id;type:uuid;not null" json:"customer_id"`
	RewardID     uuid.UUID              `gorm:"column:reward_id;type:uuid;not null" json:"reward_id"`
	BranchID     *uuid.UUID             `gorm:"column:branch_id;type:uuid" json:"branch_id"`
	PointsUsed   int                    `gorm:"column:points_used;not null" json:"points_used"`
	Code         string                 `gorm:"column:code;not null" json:"code"`
	Status       enums.RedemptionStatus `gorm:"column:status;type:redemption_status;not null;default:'pending'" json:"status"`
	UsedAt       *time.Time             `gorm:"column:used_at" json:"used_at"`
	ExpiredAt    *time.Time             `gorm:"column:expired_at" json:"expired_at"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
