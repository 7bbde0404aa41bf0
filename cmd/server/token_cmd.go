package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hiragana-park/kotoba/internal/httpapi"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenTTL     time.Duration

	tokenCmd = &cobra.Command{
		Use:     "token",
		Short:   "Print an admin token for the /admin endpoints",
		Example: "curl -H \"Authorization: Bearer $(kotoba token)\" localhost:8080/admin/cache",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, expiresAt, err := httpapi.IssueAdminToken(cfg.AdminJWTSecret, tokenSubject, tokenTTL)
			if err != nil {
				return fmt.Errorf("issue token: %w (set ADMIN_JWT_SECRET)", err)
			}
			logger.Info("admin token issued", "subject", tokenSubject, "expires", humanize.Time(expiresAt))
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
)

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject, shown in admin logs")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
