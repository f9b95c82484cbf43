package customers

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
)

// Repository handles customer persistence. Balances are never written here;
// the ledger owns total_points and lifetime_points.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, customer *models.Customer) error
	FindByID(ctx context.Context, restaurantID, id uuid.UUID) (*models.Customer, error)
	FindByIDOrEmail(ctx context.Context, restaurantID uuid.UUID, idOrEmail string) (*models.Customer, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to customer operations.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, customer *models.Customer) error {
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *repository) FindByID(ctx context.Context, restaurantID, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).
		Where("id = ? AND restaurant_id = ?", id, restaurantID).
		First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// FindByIDOrEmail matches a UUID on id and anything else on email, ignoring case.
func (r *repository) FindByIDOrEmail(ctx context.Context, restaurantID uuid.UUID, idOrEmail string) (*models.Customer, error) {
	key := strings.TrimSpace(idOrEmail)
	if id, err := uuid.Parse(key); err == nil {
		return r.FindByID(ctx, restaurantID, id)
	}

	var customer models.Customer
	if err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND lower(email) = ?", restaurantID, strings.ToLower(key)).
		First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}
