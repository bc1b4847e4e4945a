package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cimiento/cimiento/internal/accounting"
	"github.com/cimiento/cimiento/internal/inventory"
	jobmetrics "github.com/cimiento/cimiento/internal/jobs"
	"github.com/cimiento/cimiento/internal/treasury"
)

type fakeChecks struct {
	mu        sync.Mutex
	calls     map[string][]int64
	repairs   []bool
	imbalance map[int64][]accounting.Imbalance
	drift     map[int64][]inventory.StockDrift
	fail      int64
}

func newFakeChecks() *fakeChecks {
	return &fakeChecks{calls: map[string][]int64{}, imbalance: map[int64][]accounting.Imbalance{}, drift: map[int64][]inventory.StockDrift{}}
}

func (f *fakeChecks) note(check string, companyID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[check] = append(f.calls[check], companyID)
	if companyID == f.fail {
		return errors.New("database unavailable")
	}
	return nil
}

func (f *fakeChecks) CheckBalances(_ context.Context, companyID int64) ([]accounting.Imbalance, error) {
	if err := f.note("ledger", companyID); err != nil {
		return nil, err
	}
	return f.imbalance[companyID], nil
}

func (f *fakeChecks) ReconcileStock(_ context.Context, companyID int64, repair bool) ([]inventory.StockDrift, error) {
	if err := f.note("stock", companyID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.repairs = append(f.repairs, repair)
	f.mu.Unlock()
	return f.drift[companyID], nil
}

func (f *fakeChecks) ReconcileBalances(_ context.Context, companyID int64, _ bool) ([]treasury.BalanceDrift, error) {
	if err := f.note("treasury", companyID); err != nil {
		return nil, err
	}
	return nil, nil
}

type staticCompanies []int64

func (s staticCompanies) CompanyIDs(context.Context) ([]int64, error) { return s, nil }

func newJob(f *fakeChecks, companies ...int64) *IntegrityJob {
	return NewIntegrityJob(IntegrityConfig{
		Ledger:    f,
		Stock:     f,
		Treasury:  f,
		Companies: staticCompanies(companies),
		Metrics:   jobmetrics.NewMetrics(prometheus.NewRegistry()),
	})
}

func sorted(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestRunChecksEveryCompany(t *testing.T) {
	f := newFakeChecks()
	f.imbalance[2] = []accounting.Imbalance{{EntryID: 9, Debit: decimal.NewFromInt(100), Credit: decimal.NewFromInt(99)}}
	f.drift[3] = []inventory.StockDrift{{ProductID: 4, Cached: decimal.NewFromInt(5), Computed: decimal.NewFromInt(3)}}
	job := newJob(f, 1, 2, 3)

	reports, err := job.Run(context.Background(), IntegrityTaskTypes, IntegrityPayload{})
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for i, r := range reports {
		require.Equal(t, int64(i+1), r.CompanyID)
	}
	require.Equal(t, 0, reports[0].Anomalies())
	require.Len(t, reports[1].Ledger, 1)
	require.Len(t, reports[2].Stock, 1)
	for _, check := range []string{"ledger", "stock", "treasury"} {
		require.Equal(t, []int64{1, 2, 3}, sorted(f.calls[check]), check)
	}
}

func TestHandleScopesToCompanyAndRepair(t *testing.T) {
	f := newFakeChecks()
	job := newJob(f, 1, 2, 3)
	task, err := NewIntegrityTask(TaskIntegrityStock, IntegrityPayload{CompanyID: 2, Repair: true})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{2}, f.calls["stock"])
	require.Empty(t, f.calls["ledger"])
	require.Equal(t, []bool{true}, f.repairs)
}

func TestHandleSurfacesCheckFailure(t *testing.T) {
	f := newFakeChecks()
	f.fail = 2
	job := newJob(f, 1, 2, 3)
	task, err := NewIntegrityTask(TaskIntegrityTreasury, IntegrityPayload{})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorContains(t, err, "company 2")
}

func TestHandleSkipsRetryOnBadPayload(t *testing.T) {
	job := newJob(newFakeChecks(), 1)
	err := job.Handle(context.Background(), asynq.NewTask(TaskIntegrityLedger, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestUnknownChecksRejected(t *testing.T) {
	_, err := NewIntegrityTask("integrity:unknown", IntegrityPayload{})
	require.Error(t, err)

	job := newJob(newFakeChecks(), 1)
	_, err = job.Run(context.Background(), []string{"integrity:unknown"}, IntegrityPayload{})
	require.Error(t, err)
}
