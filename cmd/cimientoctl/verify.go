package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cimiento/cimiento/internal/app"
	"github.com/cimiento/cimiento/jobs"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check ledger balance, stock and bank balances against their logs",
	Long: `Run every integrity check synchronously and print a JSON report.

With --repair, cached stock and bank balances that drifted from their logs are
rewritten. Unbalanced ledger entries are only reported. The command exits
non-zero when any anomaly is found.`,
	Example: `  # every company
  cimientoctl verify

  # one company, fixing cached aggregates
  cimientoctl verify --company 3 --repair`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

var (
	verifyCompany int64
	verifyRepair  bool
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Int64Var(&verifyCompany, "company", 0, "Company id (default: all companies)")
	verifyCmd.Flags().BoolVar(&verifyRepair, "repair", false, "Rewrite drifted cached stock and balances")
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	services := app.NewServices(env.pool, env.cfg, env.logger)
	job := jobs.NewIntegrityJob(jobs.IntegrityConfig{
		Ledger:    services.Accounting,
		Stock:     services.Inventory,
		Treasury:  services.Treasury,
		Companies: jobs.NewCompanyDirectory(env.pool),
		Logger:    env.logger,
	})
	reports, err := job.Run(ctx, jobs.IntegrityTaskTypes, jobs.IntegrityPayload{CompanyID: verifyCompany, Repair: verifyRepair})
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), reports); err != nil {
		return err
	}
	return anomaliesError(reports)
}

func anomaliesError(reports []jobs.Report) error {
	total := 0
	for _, r := range reports {
		total += r.Anomalies()
	}
	if total == 0 {
		return nil
	}
	return fmt.Errorf("%d anomalies found across %d companies", total, len(reports))
}
