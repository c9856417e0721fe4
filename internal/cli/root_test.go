package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "quarry", cmd.Use)
	assert.Contains(t, cmd.Long, "warehouse")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "audit", "lookup", "runs", "validate", "prune"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
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
	assert.Equal(t, "", configFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	dataFlag := runCmd.Flags().Lookup("data-dir")
	require.NotNil(t, dataFlag)

	warehouseFlag := runCmd.Flags().Lookup("warehouse-dir")
	require.NotNil(t, warehouseFlag)

	policyFlag := runCmd.Flags().Lookup("policy")
	require.NotNil(t, policyFlag)
	// empty means the embedded default policy
	assert.Equal(t, "", policyFlag.DefValue)

	keepFlag := runCmd.Flags().Lookup("keep")
	require.NotNil(t, keepFlag)
}

func TestAuditCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	auditCmd, _, err := cmd.Find([]string{"audit"})
	require.NoError(t, err)

	warehouseFlag := auditCmd.Flags().Lookup("warehouse-dir")
	require.NotNil(t, warehouseFlag)

	policyFlag := auditCmd.Flags().Lookup("policy")
	require.NotNil(t, policyFlag)
}

func TestLookupCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	lookupCmd, _, err := cmd.Find([]string{"lookup"})
	require.NoError(t, err)

	jobFlag := lookupCmd.Flags().Lookup("job")
	require.NotNil(t, jobFlag)

	materialFlag := lookupCmd.Flags().Lookup("material")
	require.NotNil(t, materialFlag)

	warehouseFlag := lookupCmd.Flags().Lookup("warehouse-dir")
	require.NotNil(t, warehouseFlag)
}

func TestRunsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runsCmd, _, err := cmd.Find([]string{"runs"})
	require.NoError(t, err)

	limitFlag := runsCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "0", limitFlag.DefValue)
}

func TestValidateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	validateCmd, _, err := cmd.Find([]string{"validate"})
	require.NoError(t, err)

	dataFlag := validateCmd.Flags().Lookup("data-dir")
	require.NotNil(t, dataFlag)

	policyFlag := validateCmd.Flags().Lookup("policy")
	require.NotNil(t, policyFlag)
}

func TestPruneCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	pruneCmd, _, err := cmd.Find([]string{"prune"})
	require.NoError(t, err)

	warehouseFlag := pruneCmd.Flags().Lookup("warehouse-dir")
	require.NotNil(t, warehouseFlag)

	keepFlag := pruneCmd.Flags().Lookup("keep")
	require.NotNil(t, keepFlag)
}

func TestCommandHelp(t *testing.T) {
	cmd := NewRootCommand()

	// Verify help text contains key elements
	assert.Contains(t, cmd.Short, "ETL")
	assert.Contains(t, cmd.Long, "one integrated row per job")
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "runs"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
