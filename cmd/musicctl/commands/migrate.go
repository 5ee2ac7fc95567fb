package commands

import (
	"github.com/spf13/cobra"

	"musicgen/internal/app"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sql, closeDB, err := openSQL(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			if err := app.Migrate(cmd.Context(), sql); err != nil {
				return err
			}
			logger.Info().Msg("musicctl: schema is up to date")
			return nil
		},
	}
}
