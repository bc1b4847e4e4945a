package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	info    *asynq.QueueInfo
	entries []*asynq.SchedulerEntry
	err     error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func (s stubInspector) SchedulerEntries() ([]*asynq.SchedulerEntry, error) { return s.entries, s.err }

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestQueueHealthWithoutInspector(t *testing.T) {
	rec := serve(NewHandler(nil, nil), "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestQueueHealthReportsCounts(t *testing.T) {
	h := NewHandler(stubInspector{info: &asynq.QueueInfo{
		Queue: QueueDefault, Pending: 2, Active: 1, Retry: 3, Processed: 9, Failed: 1,
	}}, nil)
	rec := serve(h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","paused":false,"pending":2,"active":1,"scheduled":0,
		"retry":3,"archived":0,"processed_today":9,"failed_today":1}`, rec.Body.String())
}

func TestQueueHealthInspectorError(t *testing.T) {
	rec := serve(NewHandler(stubInspector{err: errors.New("redis down")}, nil), "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScheduleListsIntegrityEntriesOnly(t *testing.T) {
	next := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	h := NewHandler(stubInspector{entries: []*asynq.SchedulerEntry{
		{ID: "a", Spec: "0 2 * * *", Task: asynq.NewTask(TaskIntegrityLedger, nil), Next: next},
		{ID: "b", Spec: "* * * * *", Task: asynq.NewTask("reports:refresh", nil), Next: next},
		{ID: "c", Spec: "20 2 * * *", Task: asynq.NewTask(TaskIntegrityStock, nil), Next: next, Prev: next.Add(-24 * time.Hour)},
	}}, nil)
	rec := serve(h, "/schedule")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []scheduleEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, TaskIntegrityLedger, got[0].Task)
	require.Nil(t, got[0].LastRun)
	require.Equal(t, TaskIntegrityStock, got[1].Task)
	require.NotNil(t, got[1].LastRun)
	require.True(t, got[1].LastRun.Equal(next.Add(-24*time.Hour)))
}
