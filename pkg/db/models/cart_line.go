package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartLine is one menu item held in a cart. CartKey is either a user id or a
// device key; the row does not record which.
type CartLine struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartKey        string    `gorm:"column:cart_key;not null;uniqueIndex:ux_cart_lines_key_item,priority:1"`
	MenuItemID     uuid.UUID `gorm:"column:menu_item_id;type:uuid;not null;uniqueIndex:ux_cart_lines_key_item,priority:2"`
	RestaurantID   uuid.UUID `gorm:"column:restaurant_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	Quantity       int       `gorm:"column:quantity;not null;default:1"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null;default:0"`
	Notes          *string   `gorm:"column:notes"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartLine) TableName() string { return "cart_lines" }

// BeforeCreate assigns the primary key so inserts work without gen_random_uuid.
func (l *CartLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
