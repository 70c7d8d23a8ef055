package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lampScenario = `name: lamp_on
description: Turning the lamp on is visible in its cell.
definitions: |
  device: lamp: cells: on: {type: "switch", value: false}
steps:
  - set: lamp/on
    value: true
  - expect:
      lamp/on: true
`

const failingScenario = `name: lamp_wrong
description: Expects a value the lamp never takes.
definitions: |
  device: lamp: cells: on: {type: "switch", value: false}
steps:
  - expect:
      lamp/on: true
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	return dir
}

func executeTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := executeTest(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	_, err := executeTest(t, "text", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := executeTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandPassingScenario(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"lamp_on.yaml": lampScenario})

	out, err := executeTest(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ lamp_on")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"lamp_on.yaml":    lampScenario,
		"lamp_wrong.yaml": failingScenario,
	})

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ lamp_wrong")
	assert.Contains(t, out, "lamp/on = false, want true")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandJSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"lamp_wrong.yaml": failingScenario})

	out, err := executeTest(t, "json", dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "lamp_wrong", resp.Data.Scenarios[0].Name)
	assert.False(t, resp.Data.Scenarios[0].Pass)
}

func TestTestCommandUnloadableScenario(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"broken.yaml": "name: broken\nsteps: 3\n"})

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"lamp_on.yaml": lampScenario})
	scenario := filepath.Join(dir, "lamp_on.yaml")
	golden := filepath.Join(dir, "golden", "lamp_on.golden")

	_, err := executeTest(t, "text", "--update", scenario)
	require.NoError(t, err)

	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Equal(t, "step 1: set lamp/on = true\n  lamp/on: false -> true\nstep 2: expect lamp/on\n", string(data))

	_, err = executeTest(t, "text", scenario)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte("something else\n"), 0o644))
	out, err := executeTest(t, "text", scenario)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"a.yaml":          lampScenario,
		"b.yml":           lampScenario,
		"notes.txt":       "ignored",
		"nested/c.yaml":   lampScenario,
		"golden/a.golden": "ignored",
	})

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, files)

	files, err = findScenarioFiles(filepath.Join(dir, "a.yaml"), "zzz*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml")}, files, "an explicit file ignores the filter")
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"door_open.yaml":  lampScenario,
		"door_close.yaml": lampScenario,
		"boiler.yaml":     lampScenario,
	})

	files, err := findScenarioFiles(dir, "door_*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "door.golden"),
		goldenFilePath(filepath.Join("scenarios", "door.yaml")))
}
