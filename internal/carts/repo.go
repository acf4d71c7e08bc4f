package carts

import (
	"context"

	"github.com/angelmondragon/dashbite-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LineRepository defines the persistence surface required by the cart service.
type LineRepository interface {
	WithTx(tx *gorm.DB) LineRepository
	ListLines(ctx context.Context, cartKey string) ([]models.CartLine, error)
	FindLine(ctx context.Context, cartKey string, lineID uuid.UUID) (*models.CartLine, error)
	UpsertLine(ctx context.Context, line *models.CartLine) (*models.CartLine, error)
	UpdateQuantity(ctx context.Context, cartKey string, lineID uuid.UUID, qty int) (*models.CartLine, error)
	DeleteLine(ctx context.Context, cartKey string, lineID uuid.UUID) error
	DeleteByKey(ctx context.Context, cartKey string) (int64, error)
	SumQuantity(ctx context.Context, cartKey string) (int, error)
}

// Repository persists cart lines with gorm.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart line repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) LineRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListLines returns every line held under cartKey, oldest first.
func (r *Repository) ListLines(ctx context.Context, cartKey string) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := r.db.WithContext(ctx).
		Where("cart_key = ?", cartKey).
		Order("created_at ASC").
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// FindLine loads one line restricted to cartKey.
func (r *Repository) FindLine(ctx context.Context, cartKey string, lineID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Where("id = ? AND cart_key = ?", lineID, cartKey).
		First(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// UpsertLine inserts line, or adds its quantity to the existing line for the
// same menu item. The stored row is returned.
func (r *Repository) UpsertLine(ctx context.Context, line *models.CartLine) (*models.CartLine, error) {
	updates := clause.AssignmentColumns([]string{"name", "unit_price_cents", "notes", "restaurant_id", "updated_at"})
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "quantity"},
		Value:  gorm.Expr("cart_lines.quantity + excluded.quantity"),
	})
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_key"}, {Name: "menu_item_id"}},
			DoUpdates: updates,
		}).
		Create(line).Error
	if err != nil {
		return nil, err
	}

	var stored models.CartLine
	err = r.db.WithContext(ctx).
		Where("cart_key = ? AND menu_item_id = ?", line.CartKey, line.MenuItemID).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// UpdateQuantity sets the line quantity. A zero quantity deletes the line and
// returns nil.
func (r *Repository) UpdateQuantity(ctx context.Context, cartKey string, lineID uuid.UUID, qty int) (*models.CartLine, error) {
	if qty == 0 {
		return nil, r.DeleteLine(ctx, cartKey, lineID)
	}
	res := r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("id = ? AND cart_key = ?", lineID, cartKey).
		Update("quantity", qty)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindLine(ctx, cartKey, lineID)
}

// DeleteLine removes one line owned by cartKey.
func (r *Repository) DeleteLine(ctx context.Context, cartKey string, lineID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND cart_key = ?", lineID, cartKey).
		Delete(&models.CartLine{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteByKey empties the cart and reports how many lines were removed.
func (r *Repository) DeleteByKey(ctx context.Context, cartKey string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("cart_key = ?", cartKey).
		Delete(&models.CartLine{})
	return res.RowsAffected, res.Error
}

// SumQuantity totals the quantities under cartKey; an empty cart sums to 0.
func (r *Repository) SumQuantity(ctx context.Context, cartKey string) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("cart_key = ?", cartKey).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}
