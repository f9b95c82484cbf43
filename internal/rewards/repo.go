package rewards

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
)

// Repository handles reward catalog persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reward *models.Reward) error
	ListActive(ctx context.Context, restaurantID uuid.UUID) ([]models.Reward, error)
	FindActiveForUpdate(ctx context.Context, restaurantID, id uuid.UUID) (*models.Reward, error)
	IncrementRedeemed(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to reward operations.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reward *models.Reward) error {
	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(reward).Error; err != nil {
		return err
	}
	if !reward.IsActive {
		return r.db.WithContext(ctx).Model(&models.Reward{}).
			Where("id = ?", reward.ID).
			Update("is_active", false).Error
	}
	return nil
}

// ListActive returns the restaurant's active rewards, cheapest first.
func (r *repository) ListActive(ctx context.Context, restaurantID uuid.UUID) ([]models.Reward, error) {
	var rows []models.Reward
	if err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND is_active = ?", restaurantID, true).
		Order("points_required ASC").
		Order("name ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindActiveForUpdate loads an active reward of the restaurant and row-locks it
// for the rest of the transaction.
func (r *repository) FindActiveForUpdate(ctx context.Context, restaurantID, id uuid.UUID) (*models.Reward, error) {
	var reward models.Reward
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND restaurant_id = ? AND is_active = ?", id, restaurantID, true).
		First(&reward).Error; err != nil {
		return nil, err
	}
	return &reward, nil
}

// IncrementRedeemed bumps total_redeemed unless the cap is already reached.
// It reports false when no unit was left.
func (r *repository) IncrementRedeemed(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reward{}).
		Where("id = ? AND (total_available IS NULL OR total_redeemed < total_available)", id).
		UpdateColumn("total_redeemed", gorm.Expr("total_redeemed + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
