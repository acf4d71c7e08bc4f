package cartkey

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/dashbite-backend/pkg/errors"
	"github.com/google/uuid"
)

// DefaultDeviceKeyName is the storage key holding the device cart identifier.
const DefaultDeviceKeyName = "cart_device_key"

// ErrStorageUnavailable means device storage could not be read or written.
// Callers treat it as "no identity" and show an empty cart.
var ErrStorageUnavailable = errors.New("cart identity storage unavailable")

// Scope tells whether an identity belongs to a signed-in user or to a device.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeDevice Scope = "device"
)

// Identity scopes a cart. Value is opaque to everything but the cart store.
type Identity struct {
	Value string
	Scope Scope
}

func (i Identity) String() string { return i.Value }

// IsZero reports whether no identity was resolved.
func (i Identity) IsZero() bool { return i.Value == "" }

// SessionAccessor reports the signed-in user, if any.
type SessionAccessor interface {
	IsAuthenticated(ctx context.Context) bool
	CurrentUserID(ctx context.Context) (string, bool)
}

// Storage is the device-local persistent key/value store.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Params groups resolver dependencies. Session may be nil (always anonymous);
// NewKey defaults to a random uuid and KeyName to DefaultDeviceKeyName.
type Params struct {
	Session SessionAccessor
	Storage Storage
	KeyName string
	NewKey  func() string
}

// Resolver derives the active cart identity.
type Resolver struct {
	session SessionAccessor
	storage Storage
	keyName string
	newKey  func() string
}

// NewResolver builds a resolver from params.
func NewResolver(p Params) *Resolver {
	keyName := strings.TrimSpace(p.KeyName)
	if keyName == "" {
		keyName = DefaultDeviceKeyName
	}
	newKey := p.NewKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	return &Resolver{
		session: p.Session,
		storage: p.Storage,
		keyName: keyName,
		newKey:  newKey,
	}
}

// Resolve returns the user identity when signed in, otherwise the persisted
// device key, generating and storing one on first use.
func (r *Resolver) Resolve(ctx context.Context) (Identity, error) {
	if r.session != nil && r.session.IsAuthenticated(ctx) {
		if userID, ok := r.session.CurrentUserID(ctx); ok && strings.TrimSpace(userID) != "" {
			return Identity{Value: userID, Scope: ScopeUser}, nil
		}
	}
	return r.deviceIdentity(ctx)
}

func (r *Resolver) deviceIdentity(ctx context.Context) (Identity, error) {
	if r.storage == nil {
		return Identity{}, storageError(errors.New("no device storage configured"), "device storage missing")
	}

	stored, found, err := r.storage.Get(ctx, r.keyName)
	if err != nil {
		return Identity{}, storageError(err, "read device cart key")
	}
	if found && strings.TrimSpace(stored) != "" {
		return Identity{Value: stored, Scope: ScopeDevice}, nil
	}

	key := r.newKey()
	if strings.TrimSpace(key) == "" {
		return Identity{}, storageError(errors.New("empty key generated"), "generate device cart key")
	}
	if err := r.storage.Set(ctx, r.keyName, key); err != nil {
		return Identity{}, storageError(err, "persist device cart key")
	}
	return Identity{Value: key, Scope: ScopeDevice}, nil
}

func storageError(cause error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeStorage, fmt.Errorf("%w: %w", ErrStorageUnavailable, cause), message)
}
