package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rootstore", cmd.Use)
	assert.Contains(t, cmd.Long, "proof blocks")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"block", "create"},
		{"block", "verify"},
		{"block", "latest"},
		{"block", "show"},
		{"append"},
		{"aggregate"},
		{"events"},
		{"count"},
		{"roots"},
		{"proof"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestAppendCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	appendCmd, _, err := cmd.Find([]string{"append"})
	require.NoError(t, err)

	payloadFlag := appendCmd.Flags().Lookup("payload")
	require.NotNil(t, payloadFlag)
	assert.Equal(t, "p", payloadFlag.Shorthand)
	assert.Equal(t, "{}", payloadFlag.DefValue)

	require.NotNil(t, appendCmd.Flags().Lookup("number"))
}

func TestEventsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	eventsCmd, _, err := cmd.Find([]string{"events"})
	require.NoError(t, err)

	fromFlag := eventsCmd.Flags().Lookup("from")
	require.NotNil(t, fromFlag)
	assert.Equal(t, "0", fromFlag.DefValue)

	followFlag := eventsCmd.Flags().Lookup("follow")
	require.NotNil(t, followFlag)
	assert.Equal(t, "f", followFlag.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"count", "a", "--format", "yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
