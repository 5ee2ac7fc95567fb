package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"musicgen/internal/middleware"
)

const (
	flagSubject = "sub"
	flagTTL     = "ttl"
	flagLocale  = "locale"
)

func newTokenCmd() *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue requester tokens for the API",
	}
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token for a requester id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required to sign tokens")
			}
			sub, _ := cmd.Flags().GetString(flagSubject)
			ttl, _ := cmd.Flags().GetDuration(flagTTL)
			locale, _ := cmd.Flags().GetString(flagLocale)
			if ttl <= 0 {
				return errors.New("ttl must be positive")
			}
			signed, err := middleware.SignJWT(cfg.JWTSecret, middleware.TokenClaims{
				Sub:    strings.TrimSpace(sub),
				Locale: locale,
				Exp:    time.Now().Add(ttl).Unix(),
				Issuer: "musicctl",
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	issue.Flags().String(flagSubject, "", "Requester id placed in the sub claim")
	issue.Flags().Duration(flagTTL, 24*time.Hour, "Token lifetime")
	issue.Flags().String(flagLocale, "", "Preferred lyric locale")
	_ = issue.MarkFlagRequired(flagSubject)
	token.AddCommand(issue)
	return token
}
