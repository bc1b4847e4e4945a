package httpx

import (
	"errors"
	"net/http"

	"github.com/cimiento/cimiento/internal/shared"
)

// Sentinel errors raised by the HTTP layer itself.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
)

// retryAfterSeconds is advertised when a transaction aborted on contention.
const retryAfterSeconds = "1"

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	ProblemWith(w, ProblemFor(w, err))
}

// ProblemFor builds the problem document for err. It may set response headers.
func ProblemFor(w http.ResponseWriter, err error) ProblemDetail {
	var (
		validation *shared.ValidationError
		unbalanced *shared.UnbalancedEntryError
		stock      *shared.InsufficientStockError
		funds      *shared.InsufficientFundsError
		transition *shared.InvalidStateTransitionError
		overBudget *shared.OverBudgetError
		notFound   *shared.NotFoundError
		conflict   *shared.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		return ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error(),
			Extensions: map[string]any{"field": validation.Field, "reason": validation.Reason}}
	case errors.Is(err, shared.ErrValidation), errors.Is(err, ErrBadRequest):
		return ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error()}
	case errors.As(err, &unbalanced):
		return ProblemDetail{Title: "Unbalanced Entry", Status: http.StatusUnprocessableEntity, Detail: err.Error(),
			Extensions: map[string]any{"debit": unbalanced.Debit, "credit": unbalanced.Credit, "delta": unbalanced.Delta}}
	case errors.As(err, &stock):
		return ProblemDetail{Title: "Insufficient Stock", Status: http.StatusUnprocessableEntity, Detail: err.Error(),
			Extensions: map[string]any{"product_id": stock.ProductID, "available": stock.Available, "requested": stock.Requested}}
	case errors.As(err, &funds):
		return ProblemDetail{Title: "Insufficient Funds", Status: http.StatusUnprocessableEntity, Detail: err.Error(),
			Extensions: map[string]any{"bank_account_id": funds.BankAccountID, "balance": funds.Balance, "requested": funds.Requested}}
	case errors.As(err, &overBudget):
		return ProblemDetail{Title: "Over Budget", Status: http.StatusUnprocessableEntity, Detail: err.Error(),
			Extensions: map[string]any{"budget_line_id": overBudget.BudgetLineID, "requested": overBudget.Requested, "limit": overBudget.Limit}}
	case errors.As(err, &transition):
		return ProblemDetail{Title: "Invalid State Transition", Status: http.StatusConflict, Detail: err.Error(),
			Extensions: map[string]any{"entity": transition.Entity, "from": transition.From, "to": transition.To}}
	case errors.As(err, &notFound):
		return ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error(),
			Extensions: map[string]any{"entity": notFound.Entity, "id": notFound.ID}}
	case errors.As(err, &conflict):
		return ProblemDetail{Title: "Conflict", Status: http.StatusConflict, Detail: err.Error(),
			Extensions: map[string]any{"entity": conflict.Entity}}
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return ProblemDetail{Title: "Duplicate Request", Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, shared.ErrTransactionAborted):
		w.Header().Set("Retry-After", retryAfterSeconds)
		return ProblemDetail{Title: "Transaction Aborted", Status: http.StatusServiceUnavailable, Detail: "concurrent update, retry the request"}
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, ErrUnauthorized):
		return ProblemDetail{Title: "Unauthorized", Status: http.StatusUnauthorized}
	default:
		return ProblemDetail{Title: "Internal Error", Status: http.StatusInternalServerError}
	}
}
