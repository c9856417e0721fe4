package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCommand_JobJSON(t *testing.T) {
	_, warehouseDir := publishFixture(t)

	out, _, err := execute(t, "--format", "json", "lookup", "--job", "J-1001", "--warehouse-dir", warehouseDir)
	require.NoError(t, err)

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "J-1001", data["job_id"])
	assert.Equal(t, "Granite", data["material"])
	assert.Equal(t, float64(1000), data["revenue_usd"])

	metrics, ok := data["metrics"].(map[string]any)
	require.True(t, ok)
	profit, ok := metrics["profit_margin"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "defined", profit["status"])
	assert.InDelta(t, 0.8, profit["value"].(float64), 1e-9)
}

func TestLookupCommand_MetricStatesSurvive(t *testing.T) {
	_, warehouseDir := publishFixture(t)

	// J-1003 has no toolpath: zero duration makes quality_vs_speed
	// undefined, the missing volume makes tool_efficiency absent, and
	// profit margin still computes from the cost row.
	out, _, err := execute(t, "--format", "json", "lookup", "--job", "J-1003", "--warehouse-dir", warehouseDir)
	require.NoError(t, err)

	_, data := decodeResponse(t, out)
	_, hasMaterial := data["material"]
	assert.False(t, hasMaterial, "a never-observed column is omitted, not null")

	metrics, ok := data["metrics"].(map[string]any)
	require.True(t, ok)

	qvs := metrics["quality_vs_speed"].(map[string]any)
	assert.Equal(t, "undefined", qvs["status"])
	_, hasValue := qvs["value"]
	assert.False(t, hasValue, "undefined metrics carry no value")

	eff := metrics["tool_efficiency"].(map[string]any)
	assert.Equal(t, "absent", eff["status"])

	profit := metrics["profit_margin"].(map[string]any)
	assert.Equal(t, "defined", profit["status"])
	assert.InDelta(t, 0.85, profit["value"].(float64), 1e-9)
}

func TestLookupCommand_JobNotFound(t *testing.T) {
	_, warehouseDir := publishFixture(t)

	out, _, err := execute(t, "lookup", "--job", "J-9999", "--warehouse-dir", warehouseDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E202")
	assert.Contains(t, out, "J-9999")
}

func TestLookupCommand_MaterialCaseInsensitive(t *testing.T) {
	_, warehouseDir := publishFixture(t)

	out, _, err := execute(t, "--format", "json", "lookup", "--material", "  GRANITE ", "--warehouse-dir", warehouseDir)
	require.NoError(t, err)

	_, data := decodeResponse(t, out)
	assert.Equal(t, "Granite", data["material"])
	assert.Equal(t, float64(1), data["count"])

	jobs, ok := data["jobs"].([]any)
	require.True(t, ok)
	require.Len(t, jobs, 1)
	first := jobs[0].(map[string]any)
	assert.Equal(t, "J-1001", first["job_id"])
}

func TestLookupCommand_MaterialNoMatches(t *testing.T) {
	_, warehouseDir := publishFixture(t)

	out, _, err := execute(t, "--format", "json", "lookup", "--material", "onyx", "--warehouse-dir", warehouseDir)
	require.NoError(t, err)

	_, data := decodeResponse(t, out)
	assert.Equal(t, float64(0), data["count"], "an unknown material is an empty result, not an error")
}

func TestLookupCommand_RequiresSelector(t *testing.T) {
	_, _, err := execute(t, "lookup", "--warehouse-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of the flags")
}

func TestLookupCommand_RejectsBothSelectors(t *testing.T) {
	_, _, err := execute(t, "lookup", "--job", "J-1001", "--material", "granite", "--warehouse-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestLookupCommand_TextOutput(t *testing.T) {
	_, warehouseDir := publishFixture(t)

	out, _, err := execute(t, "lookup", "--job", "J-1002", "--warehouse-dir", warehouseDir)
	require.NoError(t, err)
	assert.Contains(t, out, "job J-1002")
	assert.Contains(t, out, "material:   Marble")
	assert.Contains(t, out, "stone_type: marble")
	assert.Contains(t, out, "profit_margin")
	assert.Contains(t, out, "undefined")
}
