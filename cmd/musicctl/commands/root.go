package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"musicgen/internal/app"
	"musicgen/internal/infra"
)

var (
	cfg    *infra.Config
	logger infra.Logger

	// openRuntime builds the generation engine from cfg.
	openRuntime = func(ctx context.Context) (*app.Runtime, error) {
		return app.New(ctx, cfg, logger)
	}
	// openSQL connects to the configured database.
	openSQL = func(ctx context.Context) (infra.SQLExecutor, func(), error) {
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required")
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return infra.NewSQLRunner(pool, logger), pool.Close, nil
	}
)

// NewRootCmd returns the musicctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "musicctl",
		Short: "musicctl - administer the song generation service",
		Long: `musicctl manages the song generation service: database schema, provider
API keys, requester tokens and generation jobs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional
			_ = godotenv.Load()
			loaded, err := infra.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
			logger = infra.NewLogger(cfg, cmd.ErrOrStderr()).With().Str("cmd", cmd.CommandPath()).Logger()
			return nil
		},
	}
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newJobsCmd())
	root.AddCommand(newGenerateCmd())
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
	return err
}
