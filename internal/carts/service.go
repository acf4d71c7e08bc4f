package carts

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/dashbite-backend/internal/cartkey"
	"github.com/angelmondragon/dashbite-backend/pkg/db"
	"github.com/angelmondragon/dashbite-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dashbite-backend/pkg/errors"
	"github.com/angelmondragon/dashbite-backend/pkg/events"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
	"github.com/angelmondragon/dashbite-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MaxLineQuantity caps the quantity held on a single line.
const MaxLineQuantity = 99

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Emitter is the in-process change signal.
type Emitter interface {
	Emit(change events.Change) int
}

// Publisher announces changes to other processes.
type Publisher interface {
	Publish(ctx context.Context, change events.Change) error
}

// Service exposes cart reads and mutations scoped to a cart identity.
type Service interface {
	ReadCart(ctx context.Context, identity cartkey.Identity) ([]Line, error)
	CartCount(ctx context.Context, identity cartkey.Identity) (int, error)
	Summary(ctx context.Context, identity cartkey.Identity) (*Summary, error)
	AddItem(ctx context.Context, identity cartkey.Identity, input AddItemInput) (*Line, error)
	SetQuantity(ctx context.Context, identity cartkey.Identity, lineID uuid.UUID, qty int) (*Line, error)
	RemoveItem(ctx context.Context, identity cartkey.Identity, lineID uuid.UUID) error
	Clear(ctx context.Context, identity cartkey.Identity) error
}

// ServiceParams wires the service. Feed, Metrics and Logger are optional.
type ServiceParams struct {
	Repo    LineRepository
	Tx      txRunner
	Bus     Emitter
	Feed    Publisher
	Metrics *metrics.CartMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    LineRepository
	tx      txRunner
	bus     Emitter
	feed    Publisher
	metrics *metrics.CartMetrics
	logg    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Bus == nil {
		return nil, fmt.Errorf("change bus required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    p.Repo,
		tx:      p.Tx,
		bus:     p.Bus,
		feed:    p.Feed,
		metrics: p.Metrics,
		logg:    logg,
	}, nil
}

// Line is the client-facing view of a cart line.
type Line struct {
	ID             uuid.UUID `json:"id"`
	MenuItemID     uuid.UUID `json:"menu_item_id"`
	RestaurantID   uuid.UUID `json:"restaurant_id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
	Notes          *string   `json:"notes,omitempty"`
}

// Summary is a cart with derived totals. Subtotal is a fixed two-place decimal string.
type Summary struct {
	Lines     []Line `json:"lines"`
	ItemCount int    `json:"item_count"`
	Subtotal  string `json:"subtotal"`
}

// AddItemInput describes a menu item being put in the cart.
type AddItemInput struct {
	MenuItemID     uuid.UUID
	RestaurantID   uuid.UUID
	Name           string
	Quantity       int
	UnitPriceCents int
	Notes          *string
}

// ReadCart returns the lines held under identity.
func (s *service) ReadCart(ctx context.Context, identity cartkey.Identity) ([]Line, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListLines(ctx, identity.Value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart lines")
	}
	lines := make([]Line, 0, len(rows))
	for i := range rows {
		lines = append(lines, toLine(&rows[i]))
	}
	return lines, nil
}

// CartCount totals the quantities under identity without loading the lines.
func (s *service) CartCount(ctx context.Context, identity cartkey.Identity) (int, error) {
	if err := requireIdentity(identity); err != nil {
		return 0, err
	}
	total, err := s.repo.SumQuantity(ctx, identity.Value)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cart items")
	}
	return total, nil
}

// Summary returns the cart with its item count and subtotal.
func (s *service) Summary(ctx context.Context, identity cartkey.Identity) (*Summary, error) {
	lines, err := s.ReadCart(ctx, identity)
	if err != nil {
		return nil, err
	}
	return Summarize(lines), nil
}

// Summarize totals lines. The subtotal is computed from cents without float rounding.
func Summarize(lines []Line) *Summary {
	subtotal := decimal.Zero
	for _, line := range lines {
		price := decimal.New(int64(line.UnitPriceCents), -2)
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if lines == nil {
		lines = []Line{}
	}
	return &Summary{
		Lines:     lines,
		ItemCount: CountItems(lines),
		Subtotal:  subtotal.StringFixed(2),
	}
}

// CountItems sums line quantities; an empty cart counts 0.
func CountItems(lines []Line) int {
	total := 0
	for _, line := range lines {
		total += line.Quantity
	}
	return total
}

// AddItem puts input in the cart, merging with an existing line for the same menu item.
func (s *service) AddItem(ctx context.Context, identity cartkey.Identity, input AddItemInput) (*Line, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	if input.MenuItemID == uuid.Nil || input.RestaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item and restaurant are required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
	}
	if input.Quantity < 1 || input.Quantity > MaxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", MaxLineQuantity))
	}
	if input.UnitPriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must be non-negative")
	}

	var stored *models.CartLine
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.UpsertLine(ctx, &models.CartLine{
			CartKey:        identity.Value,
			MenuItemID:     input.MenuItemID,
			RestaurantID:   input.RestaurantID,
			Name:           name,
			Quantity:       input.Quantity,
			UnitPriceCents: input.UnitPriceCents,
			Notes:          input.Notes,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert cart line")
		}
		if row.Quantity > MaxLineQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", MaxLineQuantity))
		}
		stored = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, identity, events.OpAdd)
	line := toLine(stored)
	return &line, nil
}

// SetQuantity overwrites a line's quantity; zero removes the line and returns nil.
func (s *service) SetQuantity(ctx context.Context, identity cartkey.Identity, lineID uuid.UUID, qty int) (*Line, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	if lineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "line id is required")
	}
	if qty < 0 || qty > MaxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 0 and %d", MaxLineQuantity))
	}

	row, err := s.repo.UpdateQuantity(ctx, identity.Value, lineID, qty)
	if err != nil {
		return nil, lineError(err, "update cart line")
	}

	if row == nil {
		s.notify(ctx, identity, events.OpRemove)
		return nil, nil
	}
	s.notify(ctx, identity, events.OpUpdate)
	line := toLine(row)
	return &line, nil
}

// RemoveItem deletes one line from the cart.
func (s *service) RemoveItem(ctx context.Context, identity cartkey.Identity, lineID uuid.UUID) error {
	if err := requireIdentity(identity); err != nil {
		return err
	}
	if lineID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "line id is required")
	}
	if err := s.repo.DeleteLine(ctx, identity.Value, lineID); err != nil {
		return lineError(err, "delete cart line")
	}
	s.notify(ctx, identity, events.OpRemove)
	return nil
}

// Clear empties the cart. Clearing an empty cart is not an error and emits nothing.
func (s *service) Clear(ctx context.Context, identity cartkey.Identity) error {
	if err := requireIdentity(identity); err != nil {
		return err
	}
	removed, err := s.repo.DeleteByKey(ctx, identity.Value)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	if removed > 0 {
		s.notify(ctx, identity, events.OpClear)
	}
	return nil
}

// notify signals local observers, then other processes. Feed failures only log;
// the mutation already committed.
func (s *service) notify(ctx context.Context, identity cartkey.Identity, op events.Op) {
	change := events.Change{CartKey: identity.Value, Op: op}
	s.metrics.IncMutation(string(op))
	s.bus.Emit(change)
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, change); err != nil {
		logCtx := s.logg.WithCartKey(ctx, identity.Value, string(identity.Scope))
		s.logg.Error(logCtx, "publish cart change", err)
	}
}

func requireIdentity(identity cartkey.Identity) error {
	if identity.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart identity is required")
	}
	return nil
}

func lineError(err error, message string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func toLine(row *models.CartLine) Line {
	return Line{
		ID:             row.ID,
		MenuItemID:     row.MenuItemID,
		RestaurantID:   row.RestaurantID,
		Name:           row.Name,
		Quantity:       row.Quantity,
		UnitPriceCents: row.UnitPriceCents,
		Notes:          row.Notes,
	}
}
