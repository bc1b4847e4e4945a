package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cimiento/cimiento/internal/app"
	"github.com/cimiento/cimiento/internal/platform/db"
)

var rootCmd = &cobra.Command{
	Use:   "cimientoctl",
	Short: "Operator tooling for the cimiento transactional core",
	Long: `Operator tooling for the cimiento transactional core.

Configuration is read from the environment (and an optional .env file) using
the same keys as the API server, notably PG_DSN and REDIS_ADDR.`,
	SilenceUsage: true,
}

var commandTimeout time.Duration

func init() {
	rootCmd.PersistentFlags().DurationVar(&commandTimeout, "timeout", 5*time.Minute, "Abort the command after this long")
}

// environment is what every database-backed subcommand needs.
type environment struct {
	cfg    *app.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func openEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	pool, err := db.New(ctx, cfg.DBOptions("cimientoctl"))
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, logger: logger, pool: pool}, nil
}

func (e *environment) Close() {
	e.pool.Close()
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), commandTimeout)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
