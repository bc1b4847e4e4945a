package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMainReturnsEarlyUnderTestEnv(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	require.NotPanics(t, main)
}
