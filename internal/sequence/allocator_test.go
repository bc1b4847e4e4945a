package sequence_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cimiento/cimiento/internal/platform/db"
	"github.com/cimiento/cimiento/internal/sequence"
	"github.com/cimiento/cimiento/internal/sequence/sequencetest"
	"github.com/cimiento/cimiento/internal/shared"
)

func TestNextIsStrictlyIncreasing(t *testing.T) {
	store := sequencetest.NewStore()
	ctx := context.Background()
	scope := sequence.Scope{CompanyID: 1, DocType: sequence.DocPurchaseOrder}

	var last int64
	for i := 0; i < 5; i++ {
		folio, err := sequence.Next(ctx, store, scope)
		require.NoError(t, err)
		require.Greater(t, folio, last)
		last = folio
	}
	require.Equal(t, int64(5), last)
}

func TestScopesAreIndependent(t *testing.T) {
	store := sequencetest.NewStore()
	ctx := context.Background()

	a, err := sequence.Next(ctx, store, sequence.Scope{CompanyID: 1, DocType: sequence.DocEntryJournal})
	require.NoError(t, err)
	b, err := sequence.Next(ctx, store, sequence.Scope{CompanyID: 2, DocType: sequence.DocEntryJournal})
	require.NoError(t, err)
	c, err := sequence.Next(ctx, store, sequence.Scope{CompanyID: 1, DocType: sequence.DocEstimate, ScopeID: 10})
	require.NoError(t, err)
	d, err := sequence.Next(ctx, store, sequence.Scope{CompanyID: 1, DocType: sequence.DocEstimate, ScopeID: 11})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 1, 1, 1}, []int64{a, b, c, d})
}

func TestNextRejectsBadScope(t *testing.T) {
	store := sequencetest.NewStore()
	_, err := sequence.Next(context.Background(), store, sequence.Scope{DocType: sequence.DocPurchaseOrder})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = sequence.Next(context.Background(), store, sequence.Scope{CompanyID: 1, DocType: "INVOICE"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

// racingStore lets two allocators read the same max before either reserves.
type racingStore struct {
	*sequencetest.Store
	barrier *sync.WaitGroup
}

func (s racingStore) MaxFolio(ctx context.Context, scope sequence.Scope) (int64, error) {
	max, err := s.Store.MaxFolio(ctx, scope)
	s.barrier.Done()
	s.barrier.Wait()
	return max, err
}

func TestConcurrentCollisionAbortsLoser(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)
	store := racingStore{Store: sequencetest.NewStore(), barrier: &barrier}
	scope := sequence.Scope{CompanyID: 1, DocType: sequence.DocPurchaseOrder}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sequence.Next(context.Background(), store, scope)
		}(i)
	}
	wg.Wait()

	aborted := 0
	for _, err := range errs {
		if err != nil {
			require.True(t, errors.Is(err, shared.ErrTransactionAborted))
			aborted++
		}
	}
	require.Equal(t, 1, aborted)
}

func TestConcurrentAllocationWithRetryHasNoDuplicates(t *testing.T) {
	store := sequencetest.NewStore()
	scope := sequence.Scope{CompanyID: 3, DocType: sequence.DocEntryExpense}
	const workers = 32

	type result struct {
		folio int64
		err   error
	}
	results := make(chan result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var folio int64
			err := db.Retry(context.Background(), workers+1, 0, func(ctx context.Context) error {
				var err error
				folio, err = sequence.Next(ctx, store, scope)
				return err
			})
			results <- result{folio: folio, err: err}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for res := range results {
		require.NoError(t, res.err)
		require.False(t, seen[res.folio], "duplicate folio %d", res.folio)
		seen[res.folio] = true
	}
	require.Len(t, seen, workers)
	for i := int64(1); i <= workers; i++ {
		require.True(t, seen[i], "gap at %d", i)
	}
}
