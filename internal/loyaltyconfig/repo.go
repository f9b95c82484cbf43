package loyaltyconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
)

// ErrMalformedSettings marks a settings blob that is not a JSON object.
var ErrMalformedSettings = errors.New("restaurant settings are not a JSON object")

// Repository reads and writes the restaurants.settings blob.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to settings operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LoadSettings returns the raw settings blob of a restaurant.
func (r *Repository) LoadSettings(ctx context.Context, restaurantID uuid.UUID) ([]byte, error) {
	var restaurant models.Restaurant
	if err := r.db.WithContext(ctx).
		Select("id", "settings").
		Where("id = ?", restaurantID).
		First(&restaurant).Error; err != nil {
		return nil, err
	}
	return restaurant.Settings, nil
}

// UpdateSection rewrites one top-level key of the settings blob under a row
// lock. apply receives the blob as committed when the lock was taken and
// returns the new section; every other key is left untouched. A blob that is
// not a JSON object is refused rather than overwritten.
func (r *Repository) UpdateSection(ctx context.Context, restaurantID uuid.UUID, key string, apply func(settings []byte) ([]byte, error)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var restaurant models.Restaurant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "settings").
			Where("id = ?", restaurantID).
			First(&restaurant).Error; err != nil {
			return err
		}

		var root map[string]json.RawMessage
		if len(restaurant.Settings) > 0 {
			if err := json.Unmarshal(restaurant.Settings, &root); err != nil {
				return fmt.Errorf("%w: %v", ErrMalformedSettings, err)
			}
		}
		if root == nil {
			root = map[string]json.RawMessage{}
		}

		section, err := apply(restaurant.Settings)
		if err != nil {
			return err
		}
		root[key] = section

		merged, err := json.Marshal(root)
		if err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}

		return tx.Model(&models.Restaurant{}).
			Where("id = ?", restaurantID).
			Update("settings", datatypes.JSON(merged)).Error
	})
}
