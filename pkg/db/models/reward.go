package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// Reward is a catalog entry customers exchange points for.
type Reward struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RestaurantID   uuid.UUID          `gorm:"column:restaurant_id;type:uuid;not null" json:"restaurant_id"`
	Name           string             `gorm:"column:name;not null" json:"name"`
	Description    *string            `gorm:"column:description" json:"description"`
	PointsRequired int                `gorm:"column:points_required;not null" json:"points_required"`
	MinTier        enums.CustomerTier `gorm:"column:min_tier;type:customer_tier;not null;default:'bronze'" json:"min_tier"`
	TotalAvailable *int               `gorm:"column:total_available" json:"total_available"`
	TotalRedeemed  int                `gorm:"column:total_redeemed;not null;default:0" json:"total_redeemed"`
	IsActive       bool               `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// SoldOut reports whether a capped reward has no units left.
func (r Reward) SoldOut() bool {
	return r.TotalAvailable != nil && r.TotalRedeemed >= *r.TotalAvailable
}

// Remaining returns the units left, or nil for uncapped rewards.
func (r Reward) Remaining() *int {
	if r.TotalAvailable == nil {
		return nil
	}
	left := *r.TotalAvailable - r.TotalRedeemed
	if left < 0 {
		left = 0
	}
	return &left
}
