package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cimiento/cimiento/internal/inventory"
	"github.com/cimiento/cimiento/jobs"
)

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "verify", "enqueue", "token"} {
		require.True(t, names[want], want)
	}
}

func TestEnqueueRejectsUnknownTask(t *testing.T) {
	require.Error(t, enqueueCmd.Args(enqueueCmd, []string{"integrity:nope"}))
	require.Error(t, enqueueCmd.Args(enqueueCmd, nil))
	require.NoError(t, enqueueCmd.Args(enqueueCmd, []string{jobs.TaskIntegrityStock}))
}

func TestAnomaliesError(t *testing.T) {
	require.NoError(t, anomaliesError([]jobs.Report{{CompanyID: 1}}))
	err := anomaliesError([]jobs.Report{{CompanyID: 1}, {CompanyID: 2, Stock: []inventory.StockDrift{{ProductID: 3}}}})
	require.EqualError(t, err, "1 anomalies found across 2 companies")
}

func TestWriteJSONIndents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, []jobs.Report{{CompanyID: 4}}))
	require.Contains(t, buf.String(), "\n  {\n    \"company_id\": 4\n  }")
}
