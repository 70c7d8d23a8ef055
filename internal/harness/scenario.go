package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cellrules/internal/cell"
)

// Scenario is a scripted run against definitions.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Definitions is inline CUE source.
	Definitions string `yaml:"definitions,omitempty"`

	// DefinitionsDir is a directory of CUE files, relative to the
	// scenario file.
	DefinitionsDir string `yaml:"definitions_dir,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`
}

// Step is one scenario step. Exactly one of Set, Advance, RunRules,
// Expect and ExpectNotifications must be given.
type Step struct {
	// Set is the cell path or alias to write; Value is written to it.
	Set   string `yaml:"set,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Advance is a duration such as "1500ms" or "10s".
	Advance string `yaml:"advance,omitempty"`

	RunRules bool `yaml:"run_rules,omitempty"`

	// Expect maps cell paths to expected values.
	Expect map[string]any `yaml:"expect,omitempty"`

	// ExpectNotifications lists "recipient: text" entries. An empty list
	// expects no notifications.
	ExpectNotifications *[]string `yaml:"expect_notifications,omitempty"`
}

func (s Step) kinds() int {
	n := 0
	for _, set := range []bool{
		s.Set != "",
		s.Advance != "",
		s.RunRules,
		s.Expect != nil,
		s.ExpectNotifications != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected. DefinitionsDir is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.DefinitionsDir != "" && !filepath.IsAbs(scenario.DefinitionsDir) {
		scenario.DefinitionsDir = filepath.Join(filepath.Dir(path), scenario.DefinitionsDir)
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Definitions == "") == (s.DefinitionsDir == "") {
		return fmt.Errorf("exactly one of definitions and definitions_dir is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.kinds() != 1 {
		return fmt.Errorf("exactly one of set, advance, run_rules, expect, expect_notifications is required")
	}
	switch {
	case step.Set != "":
		if step.Value == nil {
			return fmt.Errorf("set requires a value")
		}
		if _, err := cell.ParsePath(step.Set); err != nil && !cell.ValidName(step.Set) {
			return fmt.Errorf("set: %w", err)
		}
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("advance must be positive")
		}
	case step.Expect != nil:
		if len(step.Expect) == 0 {
			return fmt.Errorf("expect must name at least one cell")
		}
	}
	if step.Value != nil && step.Set == "" {
		return fmt.Errorf("value is only valid with set")
	}
	return nil
}
