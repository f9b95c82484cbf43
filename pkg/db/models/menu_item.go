package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// MenuItem is a priced dish used as per-item earning input.
type MenuItem struct {
	ID                      uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RestaurantID            uuid.UUID             `gorm:"column:restaurant_id;type:uuid;not null" json:"restaurant_id"`
	Name                    string                `gorm:"column:name;not null" json:"name"`
	CostPrice               decimal.Decimal       `gorm:"column:cost_price;type:numeric(12,2);not null;default:0" json:"cost_price"`
	SellingPrice            decimal.Decimal       `gorm:"column:selling_price;type:numeric(12,2);not null;default:0" json:"selling_price"`
	LoyaltyMode             enums.ItemLoyaltyMode `gorm:"column:loyalty_mode;type:item_loyalty_mode;not null;default:'none'" json:"loyalty_mode"`
	ProfitAllocationPercent int                   `gorm:"column:profit_allocation_percent;not null;default:0" json:"profit_allocation_percent"`
	FixedPoints             int                   `gorm:"column:fixed_points;not null;default:0" json:"fixed_points"`
	IsActive                bool                  `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt               time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
