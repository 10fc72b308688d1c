package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tgfiles/tgfiles/internal/core/store"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect or clear rate windows kept in the SQL store",
	Long: `Inspect or clear rate windows kept in the SQL store.

Only the sql backend persists windows between runs. Memory windows live in the
serve process and redis windows expire on their own.`,
}

// openWindowAdmin opens the configured SQL store for the admin subcommands.
func openWindowAdmin(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.RateLimit.Backend != "sql" {
		return nil, fmt.Errorf("rate_limit.backend is %q; only the sql backend keeps windows between runs", cfg.RateLimit.Backend)
	}
	return openStore(ctx, cfg.Store)
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
