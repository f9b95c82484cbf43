package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// Customer balances are maintained aggregates; only the point ledger writes them.
type Customer struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RestaurantID   uuid.UUID          `gorm:"column:restaurant_id;type:uuid;not null" json:"restaurant_id"`
	Name           string             `gorm:"column:name;not null" json:"name"`
	Email          string             `gorm:"column:email;not null" json:"email"`
	Phone          *string            `gorm:"column:phone" json:"phone"`
	TotalPoints    int64              `gorm:"column:total_points;not null;default:0" json:"total_points"`
	LifetimePoints int64              `gorm:"column:lifetime_points;not null;default:0" json:"lifetime_points"`
	CurrentTier    enums.CustomerTier `gorm:"column:current_tier;type:customer_tier;not null;default:'bronze'" json:"current_tier"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
