package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/phantom-auth/authority/internal/auth"
)

var tokenFlags struct {
	email string
	ttl   time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator bearer token without a password",
	Long: `Token signs a bearer token for an existing, active operator. It needs
AUTHORITY_JWT_SECRET to match the running server.`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenFlags.email, "email", "", "operator email")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 0, "token lifetime (default: AUTHORITY_JWT_TTL)")
}

func runToken(cmd *cobra.Command, args []string) error {
	email := strings.TrimSpace(tokenFlags.email)
	if email == "" {
		return errors.New("--email is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("AUTHORITY_JWT_SECRET must be set to issue tokens")
	}
	ttl := tokenFlags.ttl
	if ttl <= 0 {
		ttl = cfg.JWTTTL
	}

	st, err := openSQL(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	op, err := st.Operators().FindByEmail(cmd.Context(), email)
	if err != nil {
		return fmt.Errorf("find operator %s: %w", email, err)
	}
	if !op.IsActive {
		return fmt.Errorf("operator %s is disabled", email)
	}
	issuer, err := auth.NewIssuer(cfg.JWTSecret, ttl)
	if err != nil {
		return err
	}
	signed, exp, err := issuer.Issue(op)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), signed)
	cmd.PrintErrf("expires %s\n", exp.Format(time.RFC3339))
	return nil
}
