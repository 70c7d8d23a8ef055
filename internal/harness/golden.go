package harness

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceText renders a result's trace as golden file content.
func TraceText(result *Result) []byte {
	return []byte(strings.Join(result.Trace, "\n") + "\n")
}

// RunWithGolden executes a scenario, fails the test on unmet
// expectations, and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) error {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		t.Error(e)
	}
	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares a result's trace against the golden file for
// name without re-running.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, TraceText(result))
}
