package treasury

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cimiento/cimiento/internal/shared"
)

type docKey struct {
	doc Document
	id  int64
}

type memoryDoc struct {
	companyID int64
	rec       Receivable
	status    shared.PaymentStatus
}

type memoryState struct {
	accounts map[int64]BankAccount
	txs      []Transaction
	docs     map[docKey]memoryDoc
	nextID   int64
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		accounts: make(map[int64]BankAccount, len(s.accounts)),
		txs:      append([]Transaction(nil), s.txs...),
		docs:     make(map[docKey]memoryDoc, len(s.docs)),
		nextID:   s.nextID,
	}
	for id, a := range s.accounts {
		out.accounts[id] = a
	}
	for k, d := range s.docs {
		out.docs[k] = d
	}
	return out
}

type memoryRepo struct {
	mu    sync.Mutex
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{accounts: map[int64]BankAccount{}, docs: map[docKey]memoryDoc{}}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{st: r.state}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) addDoc(companyID int64, doc Document, id int64, total, state string) {
	r.state.docs[docKey{doc, id}] = memoryDoc{
		companyID: companyID,
		rec:       Receivable{ID: id, Total: decimal.RequireFromString(total), State: state},
		status:    shared.PaymentUnpaid,
	}
}

func (r *memoryRepo) doc(doc Document, id int64) memoryDoc {
	return r.state.docs[docKey{doc, id}]
}

type memoryTx struct {
	st *memoryState
}

func (tx *memoryTx) InsertBankAccount(_ context.Context, companyID int64, in CreateBankAccountInput) (BankAccount, error) {
	tx.st.nextID++
	a := BankAccount{ID: tx.st.nextID, CompanyID: companyID, Alias: in.Alias, OpeningBalance: in.OpeningBalance, Balance: in.OpeningBalance}
	tx.st.accounts[a.ID] = a
	return a, nil
}

func (tx *memoryTx) GetBankAccount(_ context.Context, companyID, accountID int64) (BankAccount, error) {
	a, ok := tx.st.accounts[accountID]
	if !ok || a.CompanyID != companyID {
		return BankAccount{}, shared.NotFound("bank_account", accountID)
	}
	return a, nil
}

func (tx *memoryTx) GetBankAccountForUpdate(ctx context.Context, companyID, accountID int64) (BankAccount, error) {
	return tx.GetBankAccount(ctx, companyID, accountID)
}

func (tx *memoryTx) logBalance(companyID, accountID int64) decimal.Decimal {
	balance := tx.st.accounts[accountID].OpeningBalance
	for _, t := range tx.st.txs {
		if t.CompanyID == companyID && t.BankAccountID == accountID {
			balance = balance.Add(t.Kind.Signed(t.Amount))
		}
	}
	return balance
}

func (tx *memoryTx) BalanceFromLog(_ context.Context, companyID, accountID int64) (decimal.Decimal, error) {
	return tx.logBalance(companyID, accountID), nil
}

func (tx *memoryTx) InsertTransaction(_ context.Context, t Transaction) (Transaction, error) {
	tx.st.nextID++
	t.ID = tx.st.nextID
	tx.st.txs = append(tx.st.txs, t)
	return t, nil
}

func (tx *memoryTx) SetBalance(_ context.Context, _ int64, accountID int64, balance decimal.Decimal) error {
	a := tx.st.accounts[accountID]
	a.Balance = balance
	tx.st.accounts[accountID] = a
	return nil
}

func (tx *memoryTx) GetReceivableForUpdate(_ context.Context, companyID int64, doc Document, id int64) (Receivable, error) {
	d, ok := tx.st.docs[docKey{doc, id}]
	if !ok || d.companyID != companyID {
		return Receivable{}, shared.NotFound(string(doc), id)
	}
	return d.rec, nil
}

func (tx *memoryTx) SetPaid(_ context.Context, _ int64, doc Document, id int64, paid decimal.Decimal, status shared.PaymentStatus) error {
	k := docKey{doc, id}
	d := tx.st.docs[k]
	d.rec.PaidToDate = paid
	d.status = status
	tx.st.docs[k] = d
	return nil
}

func (tx *memoryTx) ListTransactions(_ context.Context, companyID, accountID int64, limit int) ([]Transaction, error) {
	out := []Transaction{}
	balance := tx.st.accounts[accountID].OpeningBalance
	for _, t := range tx.st.txs {
		if t.CompanyID != companyID || t.BankAccountID != accountID {
			continue
		}
		balance = balance.Add(t.Kind.Signed(t.Amount))
		t.BalanceAfter = balance
		t.Settlement = nil
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *memoryTx) BalanceDrifts(_ context.Context, companyID int64) ([]BalanceDrift, error) {
	out := []BalanceDrift{}
	for _, a := range tx.st.accounts {
		if a.CompanyID != companyID {
			continue
		}
		computed := tx.logBalance(companyID, a.ID)
		if Drifted(a.Balance, computed) {
			out = append(out, BalanceDrift{BankAccountID: a.ID, Alias: a.Alias, Cached: a.Balance, Computed: computed})
		}
	}
	return out, nil
}

var tenant = shared.Tenant{CompanyID: 1, ActorID: 5}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func int64Ptr(v int64) *int64 { return &v }

func newAccount(t *testing.T, svc *Service, opening string) BankAccount {
	t.Helper()
	a, err := svc.CreateBankAccount(context.Background(), tenant, CreateBankAccountInput{Alias: "BBVA obra", OpeningBalance: dec(opening)})
	require.NoError(t, err)
	return a
}

func TestPurchaseOrderSettlement(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	account := newAccount(t, svc, "5000")
	repo.addDoc(1, DocumentPurchaseOrder, 70, "1000", "SENT")

	pay := func(amount string) Transaction {
		posted, err := svc.PostTransaction(ctx, tenant, TransactionInput{BankAccountID: account.ID, Kind: KindOutflow, Amount: dec(amount), PurchaseOrderID: int64Ptr(70)})
		require.NoError(t, err)
		return posted
	}

	first := pay("400")
	require.Equal(t, shared.PaymentPartial, first.Settlement.Status)
	require.True(t, first.BalanceAfter.Equal(dec("4600")))
	require.NotEmpty(t, first.RefID)

	second := pay("600")
	require.Equal(t, shared.PaymentPaid, second.Settlement.Status)
	require.True(t, second.Settlement.PaidToDate.Equal(dec("1000")))

	third := pay("50")
	require.Equal(t, shared.PaymentOverpaid, third.Settlement.Status)
	require.True(t, repo.doc(DocumentPurchaseOrder, 70).rec.PaidToDate.Equal(dec("1050")))

	got, err := svc.GetBankAccount(ctx, tenant, account.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(dec("3950")))
}

func TestBillingPeriodCollection(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	account := newAccount(t, svc, "0")
	repo.addDoc(1, DocumentBillingPeriod, 8, "2500.50", "")

	posted, err := svc.PostTransaction(ctx, tenant, TransactionInput{BankAccountID: account.ID, Kind: KindInflow, Amount: dec("2500.49"), BillingPeriodID: int64Ptr(8)})
	require.NoError(t, err)
	require.Equal(t, DocumentBillingPeriod, posted.Settlement.Document)
	require.Equal(t, shared.PaymentPaid, posted.Settlement.Status)
	require.Equal(t, shared.PaymentPaid, repo.doc(DocumentBillingPeriod, 8).status)
	require.True(t, posted.BalanceAfter.Equal(dec("2500.49")))
}

func TestOutflowRequiresFunds(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	account := newAccount(t, svc, "100")
	repo.addDoc(1, DocumentPurchaseOrder, 70, "1000", "SENT")

	_, err := svc.PostTransaction(ctx, tenant, TransactionInput{BankAccountID: account.ID, Kind: KindOutflow, Amount: dec("100.01"), PurchaseOrderID: int64Ptr(70)})
	var short *shared.InsufficientFundsError
	require.ErrorAs(t, err, &short)
	require.True(t, short.Balance.Equal(dec("100")))
	require.True(t, short.Requested.Equal(dec("100.01")))
	require.True(t, repo.doc(DocumentPurchaseOrder, 70).rec.PaidToDate.IsZero())

	posted, err := svc.PostTransaction(ctx, tenant, TransactionInput{BankAccountID: account.ID, Kind: KindOutflow, Amount: dec("100")})
	require.NoError(t, err)
	require.True(t, posted.BalanceAfter.IsZero())
	require.Nil(t, posted.Settlement)
}

func TestLinkRules(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	account := newAccount(t, svc, "1000")
	repo.addDoc(1, DocumentPurchaseOrder, 70, "100", "CANCELLED")
	repo.addDoc(2, DocumentPurchaseOrder, 71, "100", "SENT")

	cases := map[string]struct {
		input TransactionInput
		want  error
	}{
		"po on inflow":      {TransactionInput{BankAccountID: account.ID, Kind: KindInflow, Amount: dec("1"), PurchaseOrderID: int64Ptr(70)}, shared.ErrValidation},
		"period on outflow": {TransactionInput{BankAccountID: account.ID, Kind: KindOutflow, Amount: dec("1"), BillingPeriodID: int64Ptr(3)}, shared.ErrValidation},
		"two links":         {TransactionInput{BankAccountID: account.ID, Kind: KindOutflow, Amount: dec("1"), PurchaseOrderID: int64Ptr(70), BillingPeriodID: int64Ptr(3)}, shared.ErrValidation},
		"cancelled order":   {TransactionInput{BankAccountID: account.ID, Kind: KindOutflow, Amount: dec("1"), PurchaseOrderID: int64Ptr(70)}, shared.ErrInvalidStateTransition},
		"foreign order":     {TransactionInput{BankAccountID: account.ID, Kind: KindOutflow, Amount: dec("1"), PurchaseOrderID: int64Ptr(71)}, shared.ErrNotFound},
		"missing account":   {TransactionInput{BankAccountID: 404, Kind: KindInflow, Amount: dec("1")}, shared.ErrNotFound},
		"zero amount":       {TransactionInput{BankAccountID: account.ID, Kind: KindInflow, Amount: decimal.Zero}, shared.ErrValidation},
		"sub-cent amount":   {TransactionInput{BankAccountID: account.ID, Kind: KindInflow, Amount: dec("1.005")}, shared.ErrValidation},
		"unknown kind":      {TransactionInput{BankAccountID: account.ID, Kind: "TRANSFER", Amount: dec("1")}, shared.ErrValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.PostTransaction(ctx, tenant, tc.input)
			require.ErrorIs(t, err, tc.want)
		})
	}
	txs, err := svc.ListTransactions(ctx, tenant, account.ID, 0)
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestListTransactionsRunningBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	account := newAccount(t, svc, "10")

	for _, in := range []TransactionInput{
		{BankAccountID: account.ID, Kind: KindInflow, Amount: dec("90")},
		{BankAccountID: account.ID, Kind: KindOutflow, Amount: dec("25.50")},
	} {
		_, err := svc.PostTransaction(ctx, tenant, in)
		require.NoError(t, err)
	}
	txs, err := svc.ListTransactions(ctx, tenant, account.ID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.True(t, txs[0].BalanceAfter.Equal(dec("74.50")))
	require.True(t, txs[1].BalanceAfter.Equal(dec("100")))

	_, err = svc.ListTransactions(ctx, shared.Tenant{CompanyID: 2}, account.ID, 10)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReconcileBalances(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	account := newAccount(t, svc, "10")
	_, err := svc.PostTransaction(ctx, tenant, TransactionInput{BankAccountID: account.ID, Kind: KindInflow, Amount: dec("5")})
	require.NoError(t, err)

	a := repo.state.accounts[account.ID]
	a.Balance = dec("99")
	repo.state.accounts[account.ID] = a

	drifts, err := svc.ReconcileBalances(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.True(t, drifts[0].Computed.Equal(dec("15")))

	got, err := svc.GetBankAccount(ctx, tenant, account.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(dec("15")))

	drifts, err = svc.ReconcileBalances(ctx, 1, false)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestCreateBankAccountValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.CreateBankAccount(context.Background(), tenant, CreateBankAccountInput{Alias: "Caja", OpeningBalance: dec("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreateBankAccount(context.Background(), shared.Tenant{}, CreateBankAccountInput{Alias: "Caja"})
	require.ErrorIs(t, err, shared.ErrValidation)
}
