package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()

	expected := []string{"submit", "status", "retry", "cancel", "serve"}
	for _, name := range expected {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestNewRootCmdHasConfigFlag(t *testing.T) {
	cmd := newRootCmd()
	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "./config.toml", flag.DefValue)
}

func TestSubmitCmdRequiresExactlyOneArg(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"submit"})
	err := cmd.Execute()
	assert.Error(t, err)
}

func TestStatusCmdRequiresExactlyOneArg(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"status", "a", "b"})
	err := cmd.Execute()
	assert.Error(t, err)
}

func TestServeCmdRejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "unexpected"})
	err := cmd.Execute()
	assert.Error(t, err)
}

func TestSubmitCmdDefaultFlags(t *testing.T) {
	cmd := newRootCmd()
	sub, _, err := cmd.Find([]string{"submit"})
	require.NoError(t, err)

	assert.Equal(t, "cli", sub.Flags().Lookup("owner").DefValue)
	assert.Equal(t, "full-pipeline", sub.Flags().Lookup("kind").DefValue)
	assert.Equal(t, "normal", sub.Flags().Lookup("priority").DefValue)
	assert.Equal(t, "true", sub.Flags().Lookup("wait").DefValue)
}
