package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/config"
	"github.com/phantom-auth/authority/internal/vault"
)

var seedFlags struct {
	file string
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create or update operators from the bootstrap file",
	Long: `Seed reads the YAML bootstrap file and upserts every operator it lists.
Operators whose role, status and password are unchanged are left alone,
so running it repeatedly is safe.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVar(&seedFlags.file, "file", "", "bootstrap file (default: AUTHORITY_BOOTSTRAP_FILE)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	path := seedFlags.file
	if path == "" {
		path = cfg.BootstrapFile
	}
	if path == "" {
		return errors.New("bootstrap file required (use --file or AUTHORITY_BOOTSTRAP_FILE)")
	}
	st, err := openSQL(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := migrateUp(cmd.Context(), st); err != nil {
		return err
	}

	n, err := seedOperators(cmd, st.Operators(), path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d operator(s) created or updated\n", n)
	return nil
}

func seedOperators(cmd *cobra.Command, store auth.OperatorStore, path string) (int, error) {
	boot, err := config.LoadBootstrap(path)
	if err != nil {
		return 0, err
	}
	n, err := auth.Seed(cmd.Context(), store, vault.New(cfg.BcryptCost), boot.Operators)
	if err != nil {
		return 0, fmt.Errorf("seed operators: %w", err)
	}
	return n, nil
}
