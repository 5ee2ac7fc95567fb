package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"musicgen/internal/app"
	"musicgen/internal/infra/credentials"
)

const (
	flagProvider = "provider"
	flagKey      = "key"
	flagSetBy    = "by"
)

var keyEnv = map[string]string{
	credentials.ProviderMusic:  "MUSIC_API_KEY",
	credentials.ProviderOpenAI: "OPENAI_API_KEY",
	credentials.ProviderGemini: "GEMINI_API_KEY",
}

func newKeysCmd() *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Manage provider API keys stored in the database",
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Store an API key for a provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, _ := cmd.Flags().GetString(flagProvider)
			provider = strings.ToLower(strings.TrimSpace(provider))
			envName, ok := keyEnv[provider]
			if !ok {
				return fmt.Errorf("unsupported provider %q (want one of %s)", provider, app.ProviderNames())
			}
			key, _ := cmd.Flags().GetString(flagKey)
			key = strings.TrimSpace(key)
			if key == "" {
				key = strings.TrimSpace(os.Getenv(envName))
			}
			if key == "" {
				return fmt.Errorf("%s API key is required via --key or %s", strings.ToUpper(provider), envName)
			}

			sql, closeDB, err := openSQL(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			setBy, _ := cmd.Flags().GetString(flagSetBy)
			if err := credentials.NewStore(sql).SetToken(ctx, provider, key, setBy); err != nil {
				return fmt.Errorf("failed to persist %s api key: %w", provider, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s api key stored\n", provider)
			return nil
		},
	}
	set.Flags().StringP(flagProvider, "p", credentials.ProviderMusic, "Provider to configure ("+app.ProviderNames()+")")
	set.Flags().StringP(flagKey, "k", "", "API key (falls back to the provider's environment variable)")
	set.Flags().String(flagSetBy, os.Getenv("USER"), "Operator recorded with the key")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored provider keys, masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sql, closeDB, err := openSQL(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			stored, err := credentials.NewStore(sql).List(cmd.Context())
			if err != nil {
				return err
			}
			if stored == nil {
				stored = []credentials.KeyInfo{}
			}
			return printJSON(cmd, stored)
		},
	}

	keys.AddCommand(set)
	keys.AddCommand(list)
	return keys
}
