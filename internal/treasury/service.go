package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cimiento/cimiento/internal/shared"
)

// RepositoryPort abstracts transactional persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records treasury events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts bank movements and settles linked documents.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the treasury service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// CreateBankAccount opens a bank account with its opening balance.
func (s *Service) CreateBankAccount(ctx context.Context, tenant shared.Tenant, input CreateBankAccountInput) (BankAccount, error) {
	if err := tenant.Validate(); err != nil {
		return BankAccount{}, err
	}
	if err := input.Validate(); err != nil {
		return BankAccount{}, err
	}
	var account BankAccount
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.InsertBankAccount(ctx, tenant.CompanyID, input)
		return err
	})
	if err != nil {
		return BankAccount{}, err
	}
	s.record(ctx, tenant, "bank_account.create", "bank_account", account.ID, map[string]any{"alias": account.Alias})
	return account, nil
}

// GetBankAccount returns one account of the tenant.
func (s *Service) GetBankAccount(ctx context.Context, tenant shared.Tenant, accountID int64) (BankAccount, error) {
	if err := tenant.Validate(); err != nil {
		return BankAccount{}, err
	}
	var account BankAccount
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetBankAccount(ctx, tenant.CompanyID, accountID)
		return err
	})
	return account, err
}

// PostTransaction records an inflow or outflow. The balance is recomputed
// from the log under a row lock before the funds check, and a linked
// document has its paid-to-date and payment status updated in the same
// transaction.
func (s *Service) PostTransaction(ctx context.Context, tenant shared.Tenant, input TransactionInput) (Transaction, error) {
	if err := tenant.Validate(); err != nil {
		return Transaction{}, err
	}
	if err := input.Validate(); err != nil {
		return Transaction{}, err
	}
	var posted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetBankAccountForUpdate(ctx, tenant.CompanyID, input.BankAccountID)
		if err != nil {
			return err
		}
		settlement, err := s.loadSettlement(ctx, tx, tenant.CompanyID, input)
		if err != nil {
			return err
		}
		balance, err := tx.BalanceFromLog(ctx, tenant.CompanyID, account.ID)
		if err != nil {
			return err
		}
		if input.Kind == KindOutflow && input.Amount.GreaterThan(balance) {
			return &shared.InsufficientFundsError{BankAccountID: account.ID, Balance: balance, Requested: input.Amount}
		}
		posted, err = tx.InsertTransaction(ctx, Transaction{
			CompanyID:       tenant.CompanyID,
			BankAccountID:   account.ID,
			Kind:            input.Kind,
			Amount:          input.Amount,
			Concept:         input.Concept,
			PurchaseOrderID: input.PurchaseOrderID,
			BillingPeriodID: input.BillingPeriodID,
			RefID:           uuid.NewString(),
			CreatedBy:       tenant.ActorID,
		})
		if err != nil {
			return fmt.Errorf("treasury: insert transaction: %w", err)
		}
		posted.BalanceAfter = balance.Add(input.Kind.Signed(input.Amount))
		if err := tx.SetBalance(ctx, tenant.CompanyID, account.ID, posted.BalanceAfter); err != nil {
			return fmt.Errorf("treasury: set balance: %w", err)
		}
		if settlement == nil {
			return nil
		}
		settlement.PaidToDate = settlement.PaidToDate.Add(input.Amount)
		settlement.Status = shared.SettlementStatus(settlement.Total, settlement.PaidToDate)
		if err := tx.SetPaid(ctx, tenant.CompanyID, settlement.Document, settlement.ID, settlement.PaidToDate, settlement.Status); err != nil {
			return fmt.Errorf("treasury: settle %s: %w", settlement.Document, err)
		}
		posted.Settlement = settlement
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	meta := map[string]any{
		"kind":    posted.Kind,
		"amount":  posted.Amount.StringFixed(2),
		"ref_id":  posted.RefID,
		"balance": posted.BalanceAfter.StringFixed(2),
	}
	if posted.Settlement != nil {
		meta[string(posted.Settlement.Document)] = posted.Settlement.ID
		meta["payment_status"] = posted.Settlement.Status
	}
	s.record(ctx, tenant, "treasury:"+string(posted.Kind), "treasury_transaction", posted.ID, meta)
	return posted, nil
}

func (s *Service) loadSettlement(ctx context.Context, tx TxRepository, companyID int64, input TransactionInput) (*Settlement, error) {
	var (
		doc Document
		id  int64
	)
	switch {
	case input.PurchaseOrderID != nil:
		doc, id = DocumentPurchaseOrder, *input.PurchaseOrderID
	case input.BillingPeriodID != nil:
		doc, id = DocumentBillingPeriod, *input.BillingPeriodID
	default:
		return nil, nil
	}
	rec, err := tx.GetReceivableForUpdate(ctx, companyID, doc, id)
	if err != nil {
		return nil, err
	}
	if doc == DocumentPurchaseOrder && rec.State == "CANCELLED" {
		return nil, &shared.InvalidStateTransitionError{Entity: string(doc), From: rec.State, To: string(shared.PaymentPaid)}
	}
	return &Settlement{
		Document:   doc,
		ID:         rec.ID,
		Total:      rec.Total,
		PaidToDate: rec.PaidToDate,
		Status:     shared.SettlementStatus(rec.Total, rec.PaidToDate),
	}, nil
}

// ListTransactions returns an account's movements, newest first.
func (s *Service) ListTransactions(ctx context.Context, tenant shared.Tenant, accountID int64, limit int) ([]Transaction, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var out []Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetBankAccount(ctx, tenant.CompanyID, accountID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListTransactions(ctx, tenant.CompanyID, accountID, shared.ListLimit(limit))
		return err
	})
	return out, err
}

// ReconcileBalances compares cached balances with opening balance plus log.
// With repair set, drifted caches are overwritten.
func (s *Service) ReconcileBalances(ctx context.Context, companyID int64, repair bool) ([]BalanceDrift, error) {
	if companyID <= 0 {
		return nil, shared.Invalid("company_id", "tenant not resolved")
	}
	var drifts []BalanceDrift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		drifts, err = tx.BalanceDrifts(ctx, companyID)
		if err != nil || !repair {
			return err
		}
		for _, d := range drifts {
			if err := tx.SetBalance(ctx, companyID, d.BankAccountID, d.Computed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(drifts) > 0 {
		s.logger.Warn("treasury balance drift", slog.Int64("company_id", companyID), slog.Int("accounts", len(drifts)), slog.Bool("repaired", repair))
	}
	return drifts, nil
}

// Drifted reports whether two balances differ by at least one cent.
func Drifted(cached, computed decimal.Decimal) bool {
	return !cached.Sub(computed).Abs().LessThan(shared.MoneyEpsilon)
}

func (s *Service) record(ctx context.Context, tenant shared.Tenant, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: tenant.CompanyID,
		ActorID:   tenant.ActorID,
		Action:    action,
		Entity:    entity,
		EntityID:  strconv.FormatInt(id, 10),
		Meta:      meta,
		At:        s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
