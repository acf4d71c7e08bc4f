package controllers

import (
	"net/http"

	"github.com/angelmondragon/dashbite-backend/api/middleware"
	"github.com/angelmondragon/dashbite-backend/api/responses"
	"github.com/angelmondragon/dashbite-backend/api/validators"
	"github.com/angelmondragon/dashbite-backend/internal/cartkey"
	"github.com/angelmondragon/dashbite-backend/internal/carts"
	"github.com/angelmondragon/dashbite-backend/pkg/errors"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	maxNameLength  = 200
	maxNotesLength = 500
)

type addItemRequest struct {
	MenuItemID     string  `json:"menu_item_id" validate:"required,uuid"`
	RestaurantID   string  `json:"restaurant_id" validate:"required,uuid"`
	Name           string  `json:"name" validate:"required,notblank,max=200"`
	Quantity       int     `json:"quantity" validate:"gte=1,lte=99"`
	UnitPriceCents int     `json:"unit_price_cents" validate:"gte=0"`
	Notes          *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0,lte=99"`
}

type cartCountResponse struct {
	Count int    `json:"count"`
	Scope string `json:"scope,omitempty"`
}

// CartFetch returns the active cart with totals. Without a usable identity the
// cart is reported empty.
func CartFetch(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := middleware.CartIdentityFromContext(r.Context())
		if identity.IsZero() {
			responses.WriteSuccess(w, carts.Summarize(nil))
			return
		}

		summary, err := svc.Summary(r.Context(), identity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CartCount returns the total item quantity of the active cart.
func CartCount(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := middleware.CartIdentityFromContext(r.Context())
		if identity.IsZero() {
			responses.WriteSuccess(w, cartCountResponse{})
			return
		}

		count, err := svc.CartCount(r.Context(), identity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartCountResponse{Count: count, Scope: string(identity.Scope)})
	}
}

// CartAddItem puts a menu item in the active cart.
func CartAddItem(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireCartIdentity(w, r, logg)
		if !ok {
			return
		}

		var body addItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var notes *string
		if body.Notes != nil {
			trimmed := validators.SanitizeString(*body.Notes, maxNotesLength)
			if trimmed != "" {
				notes = &trimmed
			}
		}

		line, err := svc.AddItem(r.Context(), identity, carts.AddItemInput{
			MenuItemID:     uuid.MustParse(body.MenuItemID),
			RestaurantID:   uuid.MustParse(body.RestaurantID),
			Name:           validators.SanitizeString(body.Name, maxNameLength),
			Quantity:       body.Quantity,
			UnitPriceCents: body.UnitPriceCents,
			Notes:          notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, line)
	}
}

// CartUpdateItem sets a line quantity; zero removes the line.
func CartUpdateItem(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireCartIdentity(w, r, logg)
		if !ok {
			return
		}

		lineID, err := validators.ParseUUIDParam(r, "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := svc.SetQuantity(r.Context(), identity, lineID, *body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if line == nil {
			responses.WriteSuccess(w, map[string]string{"status": "removed", "line_id": lineID.String()})
			return
		}
		responses.WriteSuccess(w, line)
	}
}

// CartRemoveItem deletes one line from the active cart.
func CartRemoveItem(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireCartIdentity(w, r, logg)
		if !ok {
			return
		}

		lineID, err := validators.ParseUUIDParam(r, "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RemoveItem(r.Context(), identity, lineID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "removed", "line_id": lineID.String()})
	}
}

// CartClear empties the active cart.
func CartClear(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireCartIdentity(w, r, logg)
		if !ok {
			return
		}

		if err := svc.Clear(r.Context(), identity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cleared"})
	}
}

func requireCartIdentity(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (cartkey.Identity, bool) {
	identity, err := middleware.CartIdentityFromContext(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return cartkey.Identity{}, false
	}
	if identity.IsZero() {
		responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeStorage, "cart identity unavailable"))
		return cartkey.Identity{}, false
	}
	return identity, true
}
