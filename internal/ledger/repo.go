package ledger

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/pagination"
)

// MaxPostingPoints bounds one posting; point_transactions.points is an integer column.
const MaxPostingPoints = math.MaxInt32

// Repository posts point transactions and keeps customer balances in step.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Apply(ctx context.Context, input ApplyInput) (*models.PointTransaction, error)
	ListByCustomer(ctx context.Context, params listParams) ([]models.PointTransaction, *pagination.Cursor, error)
}

// ApplyInput describes one ledger posting. Points are signed: redemptions are
// negative, every other type positive.
type ApplyInput struct {
	RestaurantID uuid.UUID
	CustomerID   uuid.UUID
	Type         enums.PointTransactionType
	Points       int
	Description  string
	AmountSpent  decimal.NullDecimal
	RewardID     *uuid.UUID
	BranchID     *uuid.UUID
}

type listParams struct {
	RestaurantID uuid.UUID
	CustomerID   uuid.UUID
	Limit        int
	Cursor       *pagination.Cursor
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

// Apply moves the customer balance with a single conditional UPDATE and then
// appends the transaction row. It must run inside the caller's transaction so
// that a failed insert also undoes the balance change.
func (r *repository) Apply(ctx context.Context, input ApplyInput) (*models.PointTransaction, error) {
	if err := validateApply(input); err != nil {
		return nil, err
	}

	now := r.now()
	conn := r.db.WithContext(ctx)

	var result *gorm.DB
	if input.Type.IsDebit() {
		amount := -input.Points
		result = conn.Model(&models.Customer{}).
			Where("id = ? AND restaurant_id = ? AND total_points >= ?", input.CustomerID, input.RestaurantID, amount).
			UpdateColumns(map[string]any{
				"total_points": gorm.Expr("total_points - ?", amount),
				"updated_at":   now,
			})
	} else {
		result = conn.Model(&models.Customer{}).
			Where("id = ? AND restaurant_id = ?", input.CustomerID, input.RestaurantID).
			UpdateColumns(map[string]any{
				"total_points":    gorm.Expr("total_points + ?", input.Points),
				"lifetime_points": gorm.Expr("lifetime_points + ?", input.Points),
				"updated_at":      now,
			})
	}
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, r.missedUpdate(ctx, input)
	}

	row := &models.PointTransaction{
		ID:           uuid.New(),
		RestaurantID: input.RestaurantID,
		CustomerID:   input.CustomerID,
		Type:         input.Type,
		Points:       input.Points,
		Description:  input.Description,
		AmountSpent:  input.AmountSpent,
		RewardID:     input.RewardID,
		BranchID:     input.BranchID,
		CreatedAt:    now,
	}
	if err := conn.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// missedUpdate explains a zero-row balance update: either the customer does not
// exist in this restaurant or the debit would overdraw the balance.
func (r *repository) missedUpdate(ctx context.Context, input ApplyInput) error {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Select("id", "total_points").
		Where("id = ? AND restaurant_id = ?", input.CustomerID, input.RestaurantID).
		Take(&customer).Error
	if err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientPoints, "insufficient points").WithDetails(map[string]any{
		"points_required": -input.Points,
		"total_points":    customer.TotalPoints,
	})
}

func (r *repository) ListByCustomer(ctx context.Context, params listParams) ([]models.PointTransaction, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("restaurant_id = ? AND customer_id = ?", params.RestaurantID, params.CustomerID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.PointTransaction
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.Fetch(params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.Trim(rows, params.Limit, func(tx models.PointTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: tx.CreatedAt, ID: tx.ID}
	})
	return page, next, nil
}

func validateApply(input ApplyInput) error {
	switch {
	case input.RestaurantID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	case input.CustomerID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	case !input.Type.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid point transaction type")
	case input.Points == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "points must be non-zero")
	case input.Points > MaxPostingPoints || input.Points < -MaxPostingPoints:
		return pkgerrors.New(pkgerrors.CodeValidation, "points exceed the per-transaction limit")
	case input.Type.IsDebit() && input.Points > 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "redemption points must be negative")
	case !input.Type.IsDebit() && input.Points < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "credit points must be positive")
	}
	return nil
}
