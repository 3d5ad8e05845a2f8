package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/anon-cart/internal/auth"
)

// NewIdentityCommand prints the visitor's cart token, creating one if needed.
func NewIdentityCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Show the cart token for this visitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts)
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Value("token", s.sync.Token(cmd.Context()))
		},
	}
}

// NewCartCommand shows the visitor's cart.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show the visitor's cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCartShow(rootOpts, cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the cart with its items and total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCartShow(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the cart on the server if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts)
			if err != nil {
				return err
			}
			c, err := s.sync.EnsureCart(cmd.Context())
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Value("cartId", c.ID)
		},
	})
	return cmd
}

func runCartShow(opts *RootOptions, cmd *cobra.Command) error {
	s, err := newSession(opts)
	if err != nil {
		return err
	}
	snap, err := s.sync.Snapshot(cmd.Context())
	if err != nil {
		return err
	}
	return newFormatter(opts, cmd.OutOrStdout()).Snapshot(snap)
}

// NewItemsCommand manages the lines of the visitor's cart.
func NewItemsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List and change cart items",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cart items in the order they were added",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts)
			if err != nil {
				return err
			}
			items, err := s.sync.Items(cmd.Context())
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Items(items)
		},
	})

	var quantity int
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts)
			if err != nil {
				return err
			}
			item, err := s.sync.AddItem(cmd.Context(), args[0], quantity)
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Item("Added", item)
		},
	}
	add.Flags().IntVarP(&quantity, "quantity", "q", 1, "number of units")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "update <item-id> <quantity>",
		Short: "Change the quantity of a cart item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			s, err := newSession(rootOpts)
			if err != nil {
				return err
			}
			item, err := s.sync.UpdateQuantity(cmd.Context(), args[0], qty)
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Item("Updated", item)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <item-id>",
		Short: "Remove an item from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts)
			if err != nil {
				return err
			}
			item, err := s.sync.RemoveItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Item("Removed", item)
		},
	})

	return cmd
}

// NewProductsCommand lists the catalog.
func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts)
			if err != nil {
				return err
			}
			products, err := s.api.ListProducts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Products(products)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of products (1-100)")
	return cmd
}

// NewResetCommand forgets the local cart token.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the cart token; the next command starts a new cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts)
			if err != nil {
				return err
			}
			if err := s.sync.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cart token cleared")
			return nil
		},
	}
}

// NewTokenCommand mints a bearer token for local testing of owned carts.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		secret string
		issuer string
		email  string
		expiry time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <owner-id>",
		Short: "Issue a signed access token for an owner (development)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(secret) < 32 {
				return fmt.Errorf("secret must be at least 32 characters")
			}
			token, _, err := auth.NewJWTService(secret, issuer, expiry).GenerateToken(args[0], email)
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Value("token", token)
		},
	}
	cmd.Flags().StringVar(&secret, "secret", envOr("JWT_SECRET", ""), "HMAC signing secret shared with the API")
	cmd.Flags().StringVar(&issuer, "issuer", envOr("JWT_ISSUER", "anon-cart"), "token issuer")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&expiry, "expiry", time.Hour, "token lifetime")
	return cmd
}
