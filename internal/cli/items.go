package cli

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/dashbite-backend/internal/carts"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type addOptions struct {
	item       string
	restaurant string
	name       string
	qty        int
	price      int
	notes      string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &addOptions{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Put a menu item in the active cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := uuid.Parse(opts.item)
			if err != nil {
				return fmt.Errorf("--item must be a uuid: %w", err)
			}
			restaurantID, err := uuid.Parse(opts.restaurant)
			if err != nil {
				return fmt.Errorf("--restaurant must be a uuid: %w", err)
			}
			input := carts.AddItemInput{
				MenuItemID:     itemID,
				RestaurantID:   restaurantID,
				Name:           opts.name,
				Quantity:       opts.qty,
				UnitPriceCents: opts.price,
			}
			if notes := strings.TrimSpace(opts.notes); notes != "" {
				input.Notes = &notes
			}

			return withEnv(cmd, rootOpts, func(env *Env) error {
				ctx := cmd.Context()
				identity, err := env.Resolver.Resolve(ctx)
				if err != nil {
					return err
				}
				line, err := env.App.Carts.AddItem(ctx, identity, input)
				if err != nil {
					return err
				}
				out := newPrinter(rootOpts.Format, cmd.OutOrStdout())
				return out.print(line, "%s %s x%d", line.ID, line.Name, line.Quantity)
			})
		},
	}

	cmd.Flags().StringVar(&opts.item, "item", "", "menu item id")
	cmd.Flags().StringVar(&opts.restaurant, "restaurant", "", "restaurant id")
	cmd.Flags().StringVar(&opts.name, "name", "", "item display name")
	cmd.Flags().IntVar(&opts.qty, "qty", 1, "quantity to add")
	cmd.Flags().IntVar(&opts.price, "price", 0, "unit price in cents")
	cmd.Flags().StringVar(&opts.notes, "notes", "", "kitchen notes")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("restaurant")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <line-id>",
		Short: "Remove a line from the active cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lineID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("line id must be a uuid: %w", err)
			}
			return withEnv(cmd, rootOpts, func(env *Env) error {
				ctx := cmd.Context()
				identity, err := env.Resolver.Resolve(ctx)
				if err != nil {
					return err
				}
				if err := env.App.Carts.RemoveItem(ctx, identity, lineID); err != nil {
					return err
				}
				out := newPrinter(rootOpts.Format, cmd.OutOrStdout())
				return out.print(map[string]string{"status": "removed", "line_id": lineID.String()}, "removed %s", lineID)
			})
		},
	}
}
