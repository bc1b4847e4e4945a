package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog is one row of audit_logs. ActorID 0 marks a system action such as
// an integrity repair and is stored as NULL.
type AuditLog struct {
	CompanyID int64
	ActorID   int64
	Action    string
	Entity    string
	EntityID  string
	Meta      map[string]any
	At        time.Time
}

// Validate reports the first missing field.
func (l AuditLog) Validate() error {
	switch {
	case l.CompanyID <= 0:
		return Invalid("company_id", "required")
	case l.Action == "":
		return Invalid("action", "required")
	case l.Entity == "":
		return Invalid("entity", "required")
	case l.EntityID == "":
		return Invalid("entity_id", "required")
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditTrail appends to audit_logs outside the caller's transaction, so a
// rolled back operation leaves no row and a failed audit write never rolls
// back an operation.
type AuditTrail struct {
	db execer
}

// NewAuditTrail accepts a *pgxpool.Pool or anything else that can Exec.
func NewAuditTrail(db execer) *AuditTrail {
	return &AuditTrail{db: db}
}

const insertAudit = `INSERT INTO audit_logs (company_id, actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`

func (a *AuditTrail) Record(ctx context.Context, log AuditLog) error {
	if a == nil || a.db == nil {
		return errors.New("audit trail not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	var actor, meta, at any
	if log.ActorID > 0 {
		actor = log.ActorID
	}
	if len(log.Meta) > 0 {
		body, err := json.Marshal(log.Meta)
		if err != nil {
			return fmt.Errorf("audit %s %s: encode meta: %w", log.Action, log.Entity, err)
		}
		meta = body
	}
	if !log.At.IsZero() {
		at = log.At.UTC()
	}
	if _, err := a.db.Exec(ctx, insertAudit, log.CompanyID, actor, log.Action, log.Entity, log.EntityID, meta, at); err != nil {
		return fmt.Errorf("audit %s %s: %w", log.Action, log.Entity, err)
	}
	return nil
}
