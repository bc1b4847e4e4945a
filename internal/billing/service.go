package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cimiento/cimiento/internal/sequence"
	"github.com/cimiento/cimiento/internal/shared"
)

// RepositoryPort abstracts transactional persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records billing events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service keeps progressive estimates within budget.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the billing service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// CreateProject registers a project; codes are unique per tenant.
func (s *Service) CreateProject(ctx context.Context, tenant shared.Tenant, input CreateProjectInput) (Project, error) {
	if err := tenant.Validate(); err != nil {
		return Project{}, err
	}
	if err := input.Validate(); err != nil {
		return Project{}, err
	}
	var project Project
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		project, err = tx.InsertProject(ctx, tenant.CompanyID, input)
		return err
	})
	if err != nil {
		return Project{}, err
	}
	s.record(ctx, tenant, "project.create", "project", project.ID, map[string]any{"code": project.Code})
	return project, nil
}

// CreateBudget stores a budget and its lines for a project.
func (s *Service) CreateBudget(ctx context.Context, tenant shared.Tenant, input CreateBudgetInput) (Budget, error) {
	if err := tenant.Validate(); err != nil {
		return Budget{}, err
	}
	if err := input.Validate(); err != nil {
		return Budget{}, err
	}
	var budget Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProject(ctx, tenant.CompanyID, input.ProjectID); err != nil {
			return err
		}
		var err error
		budget, err = tx.InsertBudget(ctx, Budget{CompanyID: tenant.CompanyID, ProjectID: input.ProjectID, Name: input.Name})
		if err != nil {
			return fmt.Errorf("billing: insert budget: %w", err)
		}
		lines := make([]BudgetLine, 0, len(input.Lines))
		for _, in := range input.Lines {
			lines = append(lines, BudgetLine{
				BudgetID:    budget.ID,
				Key:         in.Key,
				Description: in.Description,
				Unit:        in.Unit,
				Quantity:    in.Quantity,
				UnitPrice:   in.UnitPrice,
			})
		}
		budget.Lines, err = tx.InsertBudgetLines(ctx, tenant.CompanyID, lines)
		return err
	})
	if err != nil {
		return Budget{}, err
	}
	s.record(ctx, tenant, "budget.create", "budget", budget.ID, map[string]any{"lines": len(budget.Lines)})
	return budget, nil
}

// CreatePeriod opens the next estimate of a project. Each project numbers its
// estimates independently.
func (s *Service) CreatePeriod(ctx context.Context, tenant shared.Tenant, input CreatePeriodInput) (Period, error) {
	if err := tenant.Validate(); err != nil {
		return Period{}, err
	}
	if err := input.Validate(); err != nil {
		return Period{}, err
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		budget, err := tx.GetBudget(ctx, tenant.CompanyID, input.BudgetID)
		if err != nil {
			return err
		}
		if budget.ProjectID != input.ProjectID {
			return shared.Invalid("budget_id", "budget belongs to another project")
		}
		seq, err := sequence.Next(ctx, tx.Folios(), sequence.Scope{CompanyID: tenant.CompanyID, DocType: sequence.DocEstimate, ScopeID: input.ProjectID})
		if err != nil {
			return err
		}
		period, err = tx.InsertPeriod(ctx, Period{
			CompanyID:     tenant.CompanyID,
			ProjectID:     input.ProjectID,
			BudgetID:      input.BudgetID,
			Sequence:      seq,
			Start:         input.Start,
			End:           input.End,
			PaymentStatus: shared.PaymentUnpaid,
		})
		if err != nil {
			return fmt.Errorf("billing: insert period: %w", err)
		}
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, tenant, "billing_period.create", "billing_period", period.ID, map[string]any{
		"project_id": period.ProjectID,
		"sequence":   period.Sequence,
	})
	return period, nil
}

// RecordExecution books executed quantity of a budget line in a period. The
// accumulated quantity over the project's periods up to and including this
// one may not exceed the budgeted quantity.
func (s *Service) RecordExecution(ctx context.Context, tenant shared.Tenant, input RecordExecutionInput) (BilledLine, error) {
	if err := tenant.Validate(); err != nil {
		return BilledLine{}, err
	}
	if err := input.Validate(); err != nil {
		return BilledLine{}, err
	}
	var billed BilledLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, tenant.CompanyID, input.PeriodID)
		if err != nil {
			return err
		}
		line, err := tx.GetBudgetLine(ctx, tenant.CompanyID, input.BudgetLineID)
		if err != nil {
			return err
		}
		if line.BudgetID != period.BudgetID {
			return shared.Invalid("budget_line_id", "line is not part of the period budget")
		}
		later, err := tx.LaterBilled(ctx, tenant.CompanyID, period.ProjectID, line.ID, period.Sequence)
		if err != nil {
			return err
		}
		if later {
			return &shared.InvalidStateTransitionError{Entity: "billing_period", From: "SUPERSEDED", To: "BILLED"}
		}
		prior, err := tx.PriorExecuted(ctx, tenant.CompanyID, period.ProjectID, line.ID, period.Sequence)
		if err != nil {
			return err
		}
		accumulated := prior.Add(input.QuantityExecuted)
		if shared.ExceedsBy(accumulated, line.Quantity, shared.QuantityEpsilon) {
			return &shared.OverBudgetError{BudgetLineID: line.ID, Requested: accumulated, Limit: line.Quantity}
		}
		billed, err = tx.UpsertBilledLine(ctx, tenant.CompanyID, BilledLine{
			PeriodID:            period.ID,
			BudgetLineID:        line.ID,
			QuantityExecuted:    input.QuantityExecuted,
			QuantityAccumulated: accumulated,
			Amount:              shared.RoundMoney(input.QuantityExecuted.Mul(line.UnitPrice)),
		})
		if err != nil {
			return fmt.Errorf("billing: upsert billed line: %w", err)
		}
		total, err := tx.PeriodBilledTotal(ctx, tenant.CompanyID, period.ID)
		if err != nil {
			return err
		}
		status := shared.SettlementStatus(total, period.PaidToDate)
		if err := tx.SetPeriodTotal(ctx, tenant.CompanyID, period.ID, total, status); err != nil {
			return fmt.Errorf("billing: refresh total: %w", err)
		}
		return nil
	})
	if err != nil {
		return BilledLine{}, err
	}
	s.record(ctx, tenant, "billing.record", "billing_period", input.PeriodID, map[string]any{
		"budget_line_id": billed.BudgetLineID,
		"executed":       billed.QuantityExecuted.String(),
		"accumulated":    billed.QuantityAccumulated.String(),
	})
	return billed, nil
}

// GetPeriod returns a period with its billed lines.
func (s *Service) GetPeriod(ctx context.Context, tenant shared.Tenant, periodID int64) (Period, error) {
	if err := tenant.Validate(); err != nil {
		return Period{}, err
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.GetPeriod(ctx, tenant.CompanyID, periodID)
		return err
	})
	return period, err
}

// ListPeriods returns a project's periods ordered by sequence.
func (s *Service) ListPeriods(ctx context.Context, tenant shared.Tenant, projectID int64) ([]Period, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var periods []Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProject(ctx, tenant.CompanyID, projectID); err != nil {
			return err
		}
		var err error
		periods, err = tx.ListPeriods(ctx, tenant.CompanyID, projectID)
		return err
	})
	return periods, err
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
