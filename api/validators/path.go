package validators

import (
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/dashbite-backend/pkg/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ParseUUIDParam reads a chi URL parameter as a uuid.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "path parameter is required").WithDetails(map[string]any{"field": name})
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "path parameter must be a uuid").WithDetails(map[string]any{"field": name})
	}
	return id, nil
}
