package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/anon-cart/internal/client/cartsync"
	"github.com/example/anon-cart/internal/client/identity"
	"github.com/example/anon-cart/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	APIURL  string
	State   string
	TTL     time.Duration
	Token   string // bearer token for an authenticated session
	Format  string // "json" | "text"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cart CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cartctl",
		Short: "cartctl - anonymous shopping cart client",
		Long: `A command-line storefront client. The visitor's cart token is kept in a
local state file, so the same cart is resumed across invocations.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.TTL <= 0 {
				return fmt.Errorf("invalid ttl %s: must be positive", opts.TTL)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", envOr("CART_API_URL", "http://localhost:8080"), "cart API base URL")
	cmd.PersistentFlags().StringVar(&opts.State, "state", defaultStatePath(), "file holding the cart token")
	cmd.PersistentFlags().DurationVar(&opts.TTL, "ttl", identity.DefaultTTL, "cart token lifetime")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("CART_API_TOKEN"), "bearer token for authenticated requests")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	cmd.AddCommand(NewIdentityCommand(opts))
	cmd.AddCommand(NewCartCommand(opts))
	cmd.AddCommand(NewItemsCommand(opts))
	cmd.AddCommand(NewProductsCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// session bundles the clients a command needs.
type session struct {
	api      *cartsync.Client
	identity *identity.Manager
	sync     *cartsync.Sync
	log      *logger.Logger
}

func newSession(opts *RootOptions) (*session, error) {
	log := logger.Nop()
	if opts.Verbose {
		l, err := logger.New("development", "debug")
		if err != nil {
			return nil, err
		}
		log = l
	}

	var clientOpts []cartsync.ClientOption
	if opts.Token != "" {
		clientOpts = append(clientOpts, cartsync.WithBearerToken(opts.Token))
	}
	api := cartsync.NewClient(opts.APIURL, clientOpts...)
	ids := identity.NewManager(identity.NewFileStorage(opts.State), log, identity.WithTTL(opts.TTL))

	return &session{
		api:      api,
		identity: ids,
		sync:     cartsync.NewSync(api, ids, log),
		log:      log,
	}, nil
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".cartctl.json"
	}
	return filepath.Join(dir, "cartctl", "state.json")
}

func envOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
