package cli

import (
	"fmt"
	"strings"

	pkgAuth "github.com/angelmondragon/dashbite-backend/pkg/auth"
	"github.com/angelmondragon/dashbite-backend/pkg/events"
	"github.com/spf13/cobra"
)

// NewLoginCommand creates the login command. The token is issued elsewhere;
// login only verifies and stores it.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token so the user cart becomes active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token = strings.TrimSpace(token)
			return withEnv(cmd, rootOpts, func(env *Env) error {
				ctx := cmd.Context()
				claims, err := pkgAuth.ParseAccessToken(env.Config.JWT(), token)
				if err != nil {
					return fmt.Errorf("invalid access token: %w", err)
				}

				previous, _ := env.Resolver.Resolve(ctx)
				if err := env.Store.Set(ctx, env.Config.Device.TokenKey, token); err != nil {
					return fmt.Errorf("store access token: %w", err)
				}
				env.announce(ctx, previous, events.OpLogin)

				out := newPrinter(rootOpts.Format, cmd.OutOrStdout())
				userID := claims.UserID.String()
				return out.print(map[string]string{"status": "logged_in", "user_id": userID}, "logged in as %s", userID)
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "access token")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

// NewLogoutCommand creates the logout command. The device key stays, so the
// device cart becomes active again.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(env *Env) error {
				ctx := cmd.Context()
				previous, _ := env.Resolver.Resolve(ctx)
				if err := env.Store.Delete(ctx, env.Config.Device.TokenKey); err != nil {
					return fmt.Errorf("drop access token: %w", err)
				}
				env.announce(ctx, previous, events.OpLogout)

				out := newPrinter(rootOpts.Format, cmd.OutOrStdout())
				return out.print(map[string]string{"status": "logged_out"}, "logged out")
			})
		},
	}
}
