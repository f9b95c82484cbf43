package menuitems

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
)

// Repository handles menu item persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to menu item operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new menu item row.
func (r *Repository) Create(ctx context.Context, item *models.MenuItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return err
	}
	if !item.IsActive {
		return r.db.WithContext(ctx).Model(&models.MenuItem{}).
			Where("id = ?", item.ID).
			Update("is_active", false).Error
	}
	return nil
}

// FindByID loads a menu item owned by the restaurant.
func (r *Repository) FindByID(ctx context.Context, restaurantID, id uuid.UUID) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.db.WithContext(ctx).
		Where("id = ? AND restaurant_id = ?", id, restaurantID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}
