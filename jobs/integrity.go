package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/cimiento/cimiento/internal/accounting"
	"github.com/cimiento/cimiento/internal/inventory"
	jobmetrics "github.com/cimiento/cimiento/internal/jobs"
	"github.com/cimiento/cimiento/internal/treasury"
)

const defaultConcurrency = 4

// LedgerChecker finds persisted entries whose lines do not balance.
type LedgerChecker interface {
	CheckBalances(ctx context.Context, companyID int64) ([]accounting.Imbalance, error)
}

// StockReconciler compares cached stock with the movement log.
type StockReconciler interface {
	ReconcileStock(ctx context.Context, companyID int64, repair bool) ([]inventory.StockDrift, error)
}

// BalanceReconciler compares cached bank balances with the transaction log.
type BalanceReconciler interface {
	ReconcileBalances(ctx context.Context, companyID int64, repair bool) ([]treasury.BalanceDrift, error)
}

// CompanyLister enumerates tenants for unscoped runs.
type CompanyLister interface {
	CompanyIDs(ctx context.Context) ([]int64, error)
}

// Report holds the findings of one company.
type Report struct {
	CompanyID int64                   `json:"company_id"`
	Ledger    []accounting.Imbalance  `json:"ledger,omitempty"`
	Stock     []inventory.StockDrift  `json:"stock,omitempty"`
	Treasury  []treasury.BalanceDrift `json:"treasury,omitempty"`
}

// Anomalies counts every finding in the report.
func (r Report) Anomalies() int {
	return len(r.Ledger) + len(r.Stock) + len(r.Treasury)
}

// IntegrityConfig collects the dependencies of IntegrityJob.
type IntegrityConfig struct {
	Ledger      LedgerChecker
	Stock       StockReconciler
	Treasury    BalanceReconciler
	Companies   CompanyLister
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// IntegrityJob verifies that derived values still agree with their logs.
type IntegrityJob struct {
	cfg IntegrityConfig
}

// NewIntegrityJob initialises the integrity handler.
func NewIntegrityJob(cfg IntegrityConfig) *IntegrityJob {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &IntegrityJob{cfg: cfg}
}

// Handle executes the check named by the task type.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("integrity: handler not configured")
	}
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("integrity: decode payload: %w", asynq.SkipRetry)
		}
	}
	done := j.cfg.Metrics.Begin(t.Type())
	defer func() {
		err = done(err)
	}()

	start := time.Now()
	logger := j.cfg.Logger.With(slog.String("task", t.Type()), slog.Int64("company_id", payload.CompanyID), slog.Bool("repair", payload.Repair))
	logger.Info("starting integrity check")
	reports, err := j.Run(ctx, []string{t.Type()}, payload)
	if err != nil {
		logger.Error("integrity check failed", slog.Any("error", err))
		return err
	}
	anomalies := 0
	for _, r := range reports {
		anomalies += r.Anomalies()
	}
	logger.Info("completed integrity check",
		slog.Int("companies", len(reports)),
		slog.Int("anomalies", anomalies),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Run executes checks for the companies in scope, several companies at a time.
// Reports are returned in company order.
func (j *IntegrityJob) Run(ctx context.Context, checks []string, payload IntegrityPayload) ([]Report, error) {
	for _, c := range checks {
		if !knownTask(c) {
			return nil, fmt.Errorf("integrity: unknown check %q", c)
		}
	}
	companies, err := j.companies(ctx, payload.CompanyID)
	if err != nil {
		return nil, err
	}
	reports := make([]Report, len(companies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)
	for i, companyID := range companies {
		g.Go(func() error {
			report, err := j.check(gctx, companyID, checks, payload.Repair)
			if err != nil {
				return fmt.Errorf("integrity: company %d: %w", companyID, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (j *IntegrityJob) companies(ctx context.Context, companyID int64) ([]int64, error) {
	if companyID > 0 {
		return []int64{companyID}, nil
	}
	if j.cfg.Companies == nil {
		return nil, errors.New("integrity: company lister not configured")
	}
	ids, err := j.cfg.Companies.CompanyIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("integrity: list companies: %w", err)
	}
	return ids, nil
}

func (j *IntegrityJob) check(ctx context.Context, companyID int64, checks []string, repair bool) (Report, error) {
	report := Report{CompanyID: companyID}
	logger := j.cfg.Logger.With(slog.Int64("company_id", companyID))
	for _, c := range checks {
		switch c {
		case TaskIntegrityLedger:
			if j.cfg.Ledger == nil {
				return report, errors.New("ledger checker not configured")
			}
			found, err := j.cfg.Ledger.CheckBalances(ctx, companyID)
			if err != nil {
				return report, err
			}
			for _, im := range found {
				logger.Warn("unbalanced ledger entry", slog.Int64("entry_id", im.EntryID),
					slog.String("debit", im.Debit.String()), slog.String("credit", im.Credit.String()))
			}
			report.Ledger = found
			j.cfg.Metrics.AddAnomalies("ledger", companyID, len(found))
		case TaskIntegrityStock:
			if j.cfg.Stock == nil {
				return report, errors.New("stock reconciler not configured")
			}
			found, err := j.cfg.Stock.ReconcileStock(ctx, companyID, repair)
			if err != nil {
				return report, err
			}
			report.Stock = found
			j.cfg.Metrics.AddAnomalies("stock", companyID, len(found))
		case TaskIntegrityTreasury:
			if j.cfg.Treasury == nil {
				return report, errors.New("balance reconciler not configured")
			}
			found, err := j.cfg.Treasury.ReconcileBalances(ctx, companyID, repair)
			if err != nil {
				return report, err
			}
			report.Treasury = found
			j.cfg.Metrics.AddAnomalies("treasury", companyID, len(found))
		}
	}
	return report, nil
}
