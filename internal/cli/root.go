// Package cli implements the cartctl device client: it resolves the device's
// cart identity, mutates the cart and follows its item count.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format    string
	StorePath string
	Migrate   bool

	// open builds the per-invocation environment.
	open opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

type opener func(ctx context.Context, opts *RootOptions) (*Env, error)

// NewRootCommand creates the cartctl root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(openEnv)
}

func newRootCommand(open opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "cartctl",
		Short: "Inspect and edit the dashbite cart of this device",
		Long: `cartctl works on the active cart of this device: the signed-in user's cart
when a valid access token is stored, otherwise the device cart.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.StorePath, "store", "", "device store path (defaults to DASHBITE_DEVICE_STORE_PATH)")
	cmd.PersistentFlags().BoolVar(&opts.Migrate, "migrate", false, "apply cart migrations before running")

	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewKeyCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withEnv opens the environment for one command run and closes it afterwards.
func withEnv(cmd *cobra.Command, opts *RootOptions, fn func(env *Env) error) error {
	env, err := opts.open(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env)
}
