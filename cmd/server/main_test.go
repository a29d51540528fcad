package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdConfigDefaultsToEnv(t *testing.T) {
	t.Setenv("LEDGER_CONFIG", "/etc/ledger/config.yaml")

	flag := newRootCmd().Flags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "/etc/ledger/config.yaml", flag.DefValue)
}

func TestRootCmdRejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
