package redemptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// Repository handles redemption persistence. Status changes are conditional on
// the row still being pending.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, redemption *models.Redemption) error
	FindForUpdate(ctx context.Context, restaurantID, id uuid.UUID) (*models.Redemption, error)
	ListByCustomer(ctx context.Context, restaurantID, customerID uuid.UUID, status *enums.RedemptionStatus) ([]models.Redemption, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Redemption, error)
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to redemption operations.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, redemption *models.Redemption) error {
	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(redemption).Error
}

func (r *repository) FindForUpdate(ctx context.Context, restaurantID, id uuid.UUID) (*models.Redemption, error) {
	var row models.Redemption
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND restaurant_id = ?", id, restaurantID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListByCustomer(ctx context.Context, restaurantID, customerID uuid.UUID, status *enums.RedemptionStatus) ([]models.Redemption, error) {
	query := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND customer_id = ?", restaurantID, customerID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var rows []models.Redemption
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPendingBefore locks up to limit pending redemptions created before
// cutoff, skipping rows another worker already holds.
func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Redemption, error) {
	var rows []models.Redemption
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND created_at < ?", enums.RedemptionStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":     enums.RedemptionStatusUsed,
		"used_at":    at,
		"updated_at": at,
	})
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":     enums.RedemptionStatusExpired,
		"expired_at": at,
		"updated_at": at,
	})
}

func (r *repository) transition(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Redemption{}).
		Where("id = ? AND status = ?", id, enums.RedemptionStatusPending).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
