package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/ledger"
	"github.com/quarrylabs/quarry/internal/testutil"
	"github.com/quarrylabs/quarry/internal/warehouse"
)

// execute runs the CLI against a fresh command tree and captures both
// output streams.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// publishFixture runs the pipeline once over the canonical source fixture
// and returns the data and warehouse directories.
func publishFixture(t *testing.T) (string, string) {
	t.Helper()
	dataDir := t.TempDir()
	warehouseDir := t.TempDir()
	testutil.WriteSourceDir(t, dataDir)
	_, _, err := execute(t, "run", "--data-dir", dataDir, "--warehouse-dir", warehouseDir)
	require.NoError(t, err)
	return dataDir, warehouseDir
}

// decodeResponse parses a JSON envelope and returns its data as a map.
func decodeResponse(t *testing.T, raw string) (CLIResponse, map[string]any) {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp), "output should be one JSON envelope, got: %s", raw)
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

func TestRunCommand_PublishesSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	warehouseDir := t.TempDir()
	testutil.WriteSourceDir(t, dataDir)

	out, _, err := execute(t, "run", "--data-dir", dataDir, "--warehouse-dir", warehouseDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ published run")
	assert.Contains(t, out, "3 jobs, 1 rejected rows")
	assert.Contains(t, out, "quality audit: 3 records")

	runID, err := warehouse.CurrentRunID(warehouseDir)
	require.NoError(t, err)
	assert.Contains(t, out, runID)

	reader, err := warehouse.Open(warehouseDir)
	require.NoError(t, err)
	defer reader.Close()
	records, err := reader.FeatureRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRunCommand_JSONEnvelope(t *testing.T) {
	dataDir := t.TempDir()
	warehouseDir := t.TempDir()
	testutil.WriteSourceDir(t, dataDir)

	out, _, err := execute(t, "--format", "json", "run", "--data-dir", dataDir, "--warehouse-dir", warehouseDir)
	require.NoError(t, err)

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, data["run_id"])
	assert.Equal(t, float64(3), data["job_count"])
	assert.Equal(t, float64(1), data["rejected_rows"])
	// The fixture cannot satisfy the strict default policy; publishing
	// still succeeds.
	assert.Equal(t, false, data["audit_passed"])
	assert.NotNil(t, data["summary"])
}

func TestRunCommand_SourceFailureKeepsCurrent(t *testing.T) {
	dataDir, warehouseDir := publishFixture(t)
	firstRun, err := warehouse.CurrentRunID(warehouseDir)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dataDir, "erp_costs.csv")))

	out, _, err := execute(t, "run", "--data-dir", dataDir, "--warehouse-dir", warehouseDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E101]")

	current, err := warehouse.CurrentRunID(warehouseDir)
	require.NoError(t, err)
	assert.Equal(t, firstRun, current, "a failed run must not move current")

	led, err := ledger.Open(filepath.Join(warehouseDir, "runs.db"))
	require.NoError(t, err)
	defer led.Close()
	runs, err := led.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ledger.StatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
	assert.Equal(t, ledger.StatusPublished, runs[1].Status)
}

func TestRunCommand_ConfigFile(t *testing.T) {
	dataDir := t.TempDir()
	warehouseDir := t.TempDir()
	testutil.WriteSourceDir(t, dataDir)

	cfgPath := filepath.Join(t.TempDir(), "quarry.yaml")
	cfg := fmt.Sprintf("data_dir: %q\nwarehouse_dir: %q\n", dataDir, warehouseDir)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out, _, err := execute(t, "--config", cfgPath, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ published run")

	_, err = warehouse.CurrentRunID(warehouseDir)
	require.NoError(t, err)
}

func TestRunCommand_FlagOverridesConfig(t *testing.T) {
	dataDir := t.TempDir()
	warehouseA := t.TempDir()
	warehouseB := t.TempDir()
	testutil.WriteSourceDir(t, dataDir)

	cfgPath := filepath.Join(t.TempDir(), "quarry.yaml")
	cfg := fmt.Sprintf("data_dir: %q\nwarehouse_dir: %q\n", dataDir, warehouseA)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	_, _, err := execute(t, "--config", cfgPath, "run", "--warehouse-dir", warehouseB)
	require.NoError(t, err)

	_, err = warehouse.CurrentRunID(warehouseB)
	require.NoError(t, err, "the flag should win over the config file")
	_, err = warehouse.CurrentRunID(warehouseA)
	require.Error(t, err)
}

func TestRunCommand_BadConfigExitCode(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "quarry.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("keep_runs: 0\n"), 0o644))

	out, _, err := execute(t, "--config", cfgPath, "run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestRunCommand_BadPolicyExitCode(t *testing.T) {
	dataDir := t.TempDir()
	warehouseDir := t.TempDir()
	testutil.WriteSourceDir(t, dataDir)

	polPath := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(polPath, []byte("catalog: tools: []\n"), 0o644))

	out, _, err := execute(t, "run", "--data-dir", dataDir, "--warehouse-dir", warehouseDir, "--policy", polPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")

	_, err = warehouse.CurrentRunID(warehouseDir)
	require.Error(t, err, "nothing may publish under an invalid policy")
}

func TestRunCommand_KeepPrunesOldSnapshots(t *testing.T) {
	dataDir := t.TempDir()
	warehouseDir := t.TempDir()
	testutil.WriteSourceDir(t, dataDir)

	for i := 0; i < 3; i++ {
		_, _, err := execute(t, "run", "--data-dir", dataDir, "--warehouse-dir", warehouseDir, "--keep", "1")
		require.NoError(t, err)
	}

	snapshots, err := warehouse.ListSnapshots(warehouseDir)
	require.NoError(t, err)
	current, err := warehouse.CurrentRunID(warehouseDir)
	require.NoError(t, err)
	assert.Equal(t, []string{current}, snapshots, "retention keeps only the live snapshot")
}
