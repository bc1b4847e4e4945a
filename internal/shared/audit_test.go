package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExec struct {
	args []any
	err  error
}

func (r *recordingExec) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

func TestAuditRecordStoresSystemActorAsNull(t *testing.T) {
	db := &recordingExec{}
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.FixedZone("CST", -6*3600))
	err := NewAuditTrail(db).Record(context.Background(), AuditLog{
		CompanyID: 3, Action: "repair", Entity: "bank_account", EntityID: "12", At: at,
	})
	require.NoError(t, err)
	require.Len(t, db.args, 7)
	require.Nil(t, db.args[1])
	require.Nil(t, db.args[5])
	require.Equal(t, at.UTC(), db.args[6])
}

func TestAuditRecordEncodesMeta(t *testing.T) {
	db := &recordingExec{}
	err := NewAuditTrail(db).Record(context.Background(), AuditLog{
		CompanyID: 3, ActorID: 9, Action: "approve", Entity: "purchase_order", EntityID: "4",
		Meta: map[string]any{"folio": "PO-000004"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(9), db.args[1])
	require.JSONEq(t, `{"folio":"PO-000004"}`, string(db.args[5].([]byte)))
	require.Nil(t, db.args[6])
}

func TestAuditRecordRejectsIncompleteRows(t *testing.T) {
	db := &recordingExec{}
	err := NewAuditTrail(db).Record(context.Background(), AuditLog{CompanyID: 3, Action: "post"})
	require.ErrorIs(t, err, ErrValidation)
	require.Nil(t, db.args)

	var nilTrail *AuditTrail
	require.Error(t, nilTrail.Record(context.Background(), AuditLog{}))
}

func TestAuditRecordWrapsWriteFailure(t *testing.T) {
	boom := errors.New("connection reset")
	err := NewAuditTrail(&recordingExec{err: boom}).Record(context.Background(), AuditLog{
		CompanyID: 1, Action: "post", Entity: "journal_entry", EntityID: "1",
	})
	require.ErrorIs(t, err, boom)
}
