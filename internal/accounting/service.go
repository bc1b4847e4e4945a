package accounting

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cimiento/cimiento/internal/sequence"
	"github.com/cimiento/cimiento/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts and reverses ledger entries and maintains the chart of accounts.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostEntry validates and persists a balanced entry with its own folio.
func (s *Service) PostEntry(ctx context.Context, tenant shared.Tenant, input PostEntryInput) (Entry, error) {
	if err := tenant.Validate(); err != nil {
		return Entry{}, err
	}
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.post(ctx, tx, tenant, input, nil)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, tenant, "ledger.post", "ledger_entry", entry.ID, map[string]any{
		"kind":  entry.Kind,
		"folio": entry.Folio,
	})
	return entry, nil
}

func (s *Service) post(ctx context.Context, tx TxRepository, tenant shared.Tenant, input PostEntryInput, reversesID *int64) (Entry, error) {
	ids := make([]int64, 0, len(input.Lines))
	for _, line := range input.Lines {
		ids = append(ids, line.AccountID)
	}
	accounts, err := tx.GetAccounts(ctx, tenant.CompanyID, ids)
	if err != nil {
		return Entry{}, err
	}
	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return Entry{}, shared.NotFound("account", id)
		}
	}
	docType, _ := input.Kind.DocType()
	folio, err := sequence.Next(ctx, tx.Folios(), sequence.Scope{CompanyID: tenant.CompanyID, DocType: docType})
	if err != nil {
		return Entry{}, err
	}
	entry, err := tx.InsertEntry(ctx, Entry{
		CompanyID:   tenant.CompanyID,
		Kind:        input.Kind,
		Folio:       folio,
		Date:        input.Date,
		Description: input.Description,
		ReversesID:  reversesID,
		CreatedBy:   tenant.ActorID,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("accounting: insert entry: %w", err)
	}
	lines := make([]EntryLine, 0, len(input.Lines))
	for idx, line := range input.Lines {
		lines = append(lines, EntryLine{
			EntryID:   entry.ID,
			LineNo:    idx + 1,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			Note:      line.Note,
		})
	}
	if err := tx.InsertEntryLines(ctx, tenant.CompanyID, entry.ID, lines); err != nil {
		return Entry{}, fmt.Errorf("accounting: insert lines: %w", err)
	}
	entry.Lines = lines
	return entry, nil
}

// ReverseEntry posts a new entry that swaps debits and credits of a posted one.
// An entry can be reversed once.
func (s *Service) ReverseEntry(ctx context.Context, tenant shared.Tenant, input ReverseEntryInput) (Entry, error) {
	if err := tenant.Validate(); err != nil {
		return Entry{}, err
	}
	if input.EntryID <= 0 {
		return Entry{}, shared.Invalid("entry_id", "required")
	}
	var reversal Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntry(ctx, tenant.CompanyID, input.EntryID)
		if err != nil {
			return err
		}
		reversed, err := tx.HasReversal(ctx, tenant.CompanyID, original.ID)
		if err != nil {
			return err
		}
		if reversed {
			return &shared.ConflictError{Entity: "ledger_entry_reversal", Constraint: "ledger_entries_reverses_key"}
		}
		posting := PostEntryInput{
			Kind:        original.Kind,
			Date:        input.Date,
			Description: input.Description,
			Lines:       reverseLines(original.Lines),
		}
		if posting.Date.IsZero() {
			posting.Date = s.now().UTC().Truncate(24 * time.Hour)
		}
		if posting.Description == "" {
			posting.Description = fmt.Sprintf("Reversal of %s %d", original.Kind, original.Folio)
		}
		if err := posting.Validate(); err != nil {
			return err
		}
		reversal, err = s.post(ctx, tx, tenant, posting, &original.ID)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, tenant, "ledger.reverse", "ledger_entry", input.EntryID, map[string]any{
		"reversal_id":    reversal.ID,
		"reversal_folio": reversal.Folio,
	})
	return reversal, nil
}

func reverseLines(lines []EntryLine) []EntryLineInput {
	out := make([]EntryLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, EntryLineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
			Note:      line.Note,
		})
	}
	return out
}

// GetEntry returns an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, tenant shared.Tenant, entryID int64) (Entry, error) {
	if err := tenant.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntry(ctx, tenant.CompanyID, entryID)
		return err
	})
	return entry, err
}

// ListEntries returns entry headers, newest first.
func (s *Service) ListEntries(ctx context.Context, tenant shared.Tenant, filter EntryFilter) ([]Entry, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if filter.Kind != "" {
		if _, ok := filter.Kind.DocType(); !ok {
			return nil, shared.Invalid("kind", "unknown entry kind")
		}
	}
	filter.Limit = shared.ListLimit(filter.Limit)
	var entries []Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListEntries(ctx, tenant.CompanyID, filter)
		return err
	})
	return entries, err
}

// CreateAccount adds an account; codes are unique per tenant.
func (s *Service) CreateAccount(ctx context.Context, tenant shared.Tenant, input CreateAccountInput) (Account, error) {
	if err := tenant.Validate(); err != nil {
		return Account{}, err
	}
	if err := input.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.ParentID != nil {
			if _, err := tx.GetAccount(ctx, tenant.CompanyID, *input.ParentID); err != nil {
				return err
			}
		}
		var err error
		account, err = tx.InsertAccount(ctx, tenant.CompanyID, input)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, tenant, "account.create", "account", account.ID, map[string]any{"code": account.Code})
	return account, nil
}

// UpdateAccount changes name, type or level. Accounts referenced by any
// posted line are immutable.
func (s *Service) UpdateAccount(ctx context.Context, tenant shared.Tenant, accountID int64, input UpdateAccountInput) (Account, error) {
	if err := tenant.Validate(); err != nil {
		return Account{}, err
	}
	if err := input.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccountForUpdate(ctx, tenant.CompanyID, accountID)
		if err != nil {
			return err
		}
		used, err := tx.AccountHasLines(ctx, tenant.CompanyID, accountID)
		if err != nil {
			return err
		}
		if used {
			return &shared.InvalidStateTransitionError{Entity: "account", From: "REFERENCED", To: "MODIFIED"}
		}
		if input.Name != nil {
			current.Name = *input.Name
		}
		if input.Type != nil {
			current.Type = *input.Type
		}
		if input.Level != nil {
			current.Level = *input.Level
		}
		current.UpdatedAt = s.now()
		if err := tx.UpdateAccount(ctx, current); err != nil {
			return err
		}
		account = current
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, tenant, "account.update", "account", account.ID, nil)
	return account, nil
}

// ListAccounts retrieves the tenant's chart of accounts ordered by code.
func (s *Service) ListAccounts(ctx context.Context, tenant shared.Tenant) ([]Account, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, tenant.CompanyID)
		return err
	})
	return accounts, err
}

// TrialBalance sums debits and credits per account for entries dated in
// [from, to]. Zero bounds are open.
func (s *Service) TrialBalance(ctx context.Context, tenant shared.Tenant, from, to time.Time) (TrialBalance, error) {
	if err := tenant.Validate(); err != nil {
		return TrialBalance{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return TrialBalance{}, shared.Invalid("to", "must not precede from")
	}
	var rows []TrialBalanceRow
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rows, err = tx.AccountTotals(ctx, tenant.CompanyID, from, to)
		return err
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(from, to, rows), nil
}

// CheckBalances lists persisted entries whose lines do not balance.
func (s *Service) CheckBalances(ctx context.Context, companyID int64) ([]Imbalance, error) {
	if companyID <= 0 {
		return nil, shared.Invalid("company_id", "tenant not resolved")
	}
	var out []Imbalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.UnbalancedEntries(ctx, companyID)
		return err
	})
	return out, err
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
