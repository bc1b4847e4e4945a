package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cimiento/cimiento/internal/auth"
	"github.com/cimiento/cimiento/internal/shared"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue an API token for a company and actor",
	Long: `Issue an API token. The credential is printed once and cannot be
recovered; only its bcrypt hash is stored.`,
	Example: `  cimientoctl token issue --company 3 --actor 12`,
	Args:    cobra.NoArgs,
	RunE:    runTokenIssue,
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an API token",
	Args:  cobra.NoArgs,
	RunE:  runTokenRevoke,
}

var (
	tokenCompany int64
	tokenActor   int64
	tokenID      int64
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd, tokenRevokeCmd)

	tokenCmd.PersistentFlags().Int64Var(&tokenCompany, "company", 0, "Company id [REQUIRED]")
	_ = tokenCmd.MarkPersistentFlagRequired("company")
	tokenIssueCmd.Flags().Int64Var(&tokenActor, "actor", 0, "Actor id recorded on audit logs [REQUIRED]")
	_ = tokenIssueCmd.MarkFlagRequired("actor")
	tokenRevokeCmd.Flags().Int64Var(&tokenID, "id", 0, "Token id [REQUIRED]")
	_ = tokenRevokeCmd.MarkFlagRequired("id")
}

func runTokenIssue(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	service := auth.NewService(auth.NewRepository(env.pool), nil, 0, env.logger)
	issued, err := service.Issue(ctx, shared.Tenant{CompanyID: tokenCompany, ActorID: tokenActor})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), issued.Plaintext)
	return nil
}

func runTokenRevoke(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	service := auth.NewService(auth.NewRepository(env.pool), nil, 0, env.logger)
	if err := service.Revoke(ctx, tokenCompany, tokenID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked token %d\n", tokenID)
	return nil
}
