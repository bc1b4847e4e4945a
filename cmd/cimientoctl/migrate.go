package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cimiento/cimiento/internal/platform/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	applied, err := db.Migrate(ctx, env.pool)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	}
	for _, version := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", version)
	}
	return nil
}
