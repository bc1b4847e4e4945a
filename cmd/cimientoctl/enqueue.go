package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cimiento/cimiento/internal/app"
	"github.com/cimiento/cimiento/internal/platform/cache"
	"github.com/cimiento/cimiento/jobs"
)

var enqueueCmd = &cobra.Command{
	Use:       "enqueue <task>",
	Short:     "Queue an integrity task for the worker",
	Long:      "Queue an integrity task for the worker. Tasks: " + strings.Join(jobs.IntegrityTaskTypes, ", "),
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: jobs.IntegrityTaskTypes,
	RunE:      runEnqueue,
}

var (
	enqueueCompany int64
	enqueueRepair  bool
)

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().Int64Var(&enqueueCompany, "company", 0, "Company id (default: all companies)")
	enqueueCmd.Flags().BoolVar(&enqueueRepair, "repair", false, "Rewrite drifted cached values")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	queueOpt, err := cache.QueueOpt(cfg.RedisAddr)
	if err != nil {
		return err
	}
	enqueuer := jobs.NewEnqueuer(queueOpt)
	defer enqueuer.Close()

	info, err := enqueuer.Enqueue(ctx, args[0], jobs.IntegrityPayload{CompanyID: enqueueCompany, Repair: enqueueRepair})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return nil
}
