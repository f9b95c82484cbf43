package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Restaurant is the tenant. Settings holds the loosely-typed settings blob; the
// loyalty section is parsed by loyaltyconfig.Resolve.
type Restaurant struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	Settings  datatypes.JSON `gorm:"column:settings;type:jsonb;not null;default:'{}'" json:"settings"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
