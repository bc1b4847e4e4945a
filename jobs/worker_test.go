package jobs

import (
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestCronEntriesSortedByTask(t *testing.T) {
	entries, err := cronEntries(map[string]string{
		TaskIntegrityTreasury: "40 2 * * *",
		TaskIntegrityLedger:   "0 2 * * *",
	})
	require.NoError(t, err)
	require.Equal(t, []cronEntry{
		{spec: "0 2 * * *", taskType: TaskIntegrityLedger},
		{spec: "40 2 * * *", taskType: TaskIntegrityTreasury},
	}, entries)
}

func TestCronEntriesRejectsUnknownOrEmpty(t *testing.T) {
	_, err := cronEntries(map[string]string{"reports:refresh": "* * * * *"})
	require.Error(t, err)
	_, err = cronEntries(map[string]string{TaskIntegrityStock: ""})
	require.Error(t, err)
}

func TestNewWorkerRequiresIntegrityJob(t *testing.T) {
	_, err := NewWorker(WorkerConfig{Redis: asynq.RedisClientOpt{Addr: "localhost:6379"}})
	require.Error(t, err)
}
