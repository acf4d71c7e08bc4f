package cli

import (
	"errors"

	"github.com/angelmondragon/dashbite-backend/internal/cartkey"
	"github.com/spf13/cobra"
)

type countResult struct {
	Count   int    `json:"count"`
	CartKey string `json:"cart_key"`
	Scope   string `json:"scope"`
}

type keyResult struct {
	CartKey string `json:"cart_key"`
	Scope   string `json:"scope"`
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the item count of the active cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(env *Env) error {
				ctx := cmd.Context()
				out := newPrinter(rootOpts.Format, cmd.OutOrStdout())
				identity, ok, err := resolveIdentity(cmd, env)
				if err != nil {
					return err
				}
				if !ok {
					return out.print(countResult{}, "%d", 0)
				}
				count, err := env.App.Carts.CartCount(ctx, identity)
				if err != nil {
					return err
				}
				return out.print(countResult{Count: count, CartKey: identity.Value, Scope: string(identity.Scope)}, "%d", count)
			})
		},
	}
}

// NewKeyCommand creates the key command. Resolving on a fresh device issues
// and stores a device key.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "key",
		Short: "Print the active cart key and its scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(env *Env) error {
				out := newPrinter(rootOpts.Format, cmd.OutOrStdout())
				identity, ok, err := resolveIdentity(cmd, env)
				if err != nil {
					return err
				}
				if !ok {
					return out.print(keyResult{}, "%s", "none")
				}
				return out.print(keyResult{CartKey: identity.Value, Scope: string(identity.Scope)}, "%s %s", identity.Scope, identity.Value)
			})
		},
	}
}

// resolveIdentity treats unreadable device storage as "no identity" so read
// commands show an empty cart instead of failing.
func resolveIdentity(cmd *cobra.Command, env *Env) (cartkey.Identity, bool, error) {
	identity, err := env.Resolver.Resolve(cmd.Context())
	if errors.Is(err, cartkey.ErrStorageUnavailable) {
		env.Logger.Warn(cmd.Context(), "cart identity unavailable, showing empty cart: "+err.Error())
		return cartkey.Identity{}, false, nil
	}
	if err != nil {
		return cartkey.Identity{}, false, err
	}
	return identity, true, nil
}
