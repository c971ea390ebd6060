package cmd

import (
	"fmt"
	"time"

	"github.com/jmehdipour/agency-crm/internal/auth"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSubject == "" {
			return fmt.Errorf("--subject is required")
		}
		v, err := auth.NewVerifier(cfg.Auth)
		if err != nil {
			return err
		}
		tok, err := v.Sign(tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject (used as rate-limit key)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default auth.token_ttl)")
}
