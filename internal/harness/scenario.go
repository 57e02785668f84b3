package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test: a sequence of reconciliation passes
// plus assertions on the final state and provider journal.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// transcript file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Parallelism bounds concurrent provider calls. Defaults to 1, which
	// keeps the journal order stable for golden comparison.
	Parallelism int `yaml:"parallelism,omitempty"`

	// Steps are the passes to run, in order, against one shared backend
	// and provider.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final record set and journal after the
	// last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step runs exactly one pass. Exactly one of Plan, Apply, or Destroy must
// be set.
type Step struct {
	// Name labels the step in failures and the golden transcript.
	Name string `yaml:"name,omitempty"`

	// Plan computes a plan for the declaration without mutating anything.
	Plan map[string]Resource `yaml:"plan,omitempty"`

	// Apply reconciles the declaration.
	Apply map[string]Resource `yaml:"apply,omitempty"`

	// Destroy tears down everything on record.
	Destroy bool `yaml:"destroy,omitempty"`

	// Expect is a subset match on the pass outcome. Nil means the step
	// only has to finish without a pass-level error.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Resource is the YAML shape of one declared resource.
type Resource struct {
	Type    string         `yaml:"type"`
	Attrs   map[string]any `yaml:"attrs"`
	Protect bool           `yaml:"protect,omitempty"`
}

// Expect checks pass outcomes. Only non-nil fields are compared, so a
// scenario states just what it cares about.
type Expect struct {
	Create  *int `yaml:"create,omitempty"`
	Update  *int `yaml:"update,omitempty"`
	Replace *int `yaml:"replace,omitempty"`
	NoOp    *int `yaml:"no_op,omitempty"`
	Destroy *int `yaml:"destroy,omitempty"`
	Failed  *int `yaml:"failed,omitempty"`
	Skipped *int `yaml:"skipped,omitempty"`
}

// Assertion validates final state or the provider journal.
type Assertion struct {
	// Type selects the assertion:
	// record_exists, record_absent, journal_contains, journal_count,
	// journal_order, serial.
	Type string `yaml:"type"`

	// Name is the logical record name (record_exists, record_absent).
	Name string `yaml:"name,omitempty"`

	// Protect, Dependencies, and Inputs narrow record_exists. Inputs is
	// a subset match against the recorded input attributes.
	Protect      *bool          `yaml:"protect,omitempty"`
	Dependencies []string       `yaml:"dependencies,omitempty"`
	Inputs       map[string]any `yaml:"inputs,omitempty"`

	// Call matches one journal entry (journal_contains, journal_count).
	Call *CallPattern `yaml:"call,omitempty"`

	// Calls is the expected order (journal_order).
	Calls []CallPattern `yaml:"calls,omitempty"`

	// Count is the expected number of matches (journal_count).
	Count int `yaml:"count,omitempty"`

	// Value is the expected snapshot serial (serial).
	Value int64 `yaml:"value,omitempty"`
}

// CallPattern matches provider journal entries. Empty fields match
// anything.
type CallPattern struct {
	Op   string `yaml:"op,omitempty"`   // describe | create | update | destroy
	Type string `yaml:"type,omitempty"` // resource type
	Name string `yaml:"name,omitempty"` // display name ("name" input)
}

// Assertion type constants.
const (
	AssertRecordExists    = "record_exists"
	AssertRecordAbsent    = "record_absent"
	AssertJournalContains = "journal_contains"
	AssertJournalCount    = "journal_count"
	AssertJournalOrder    = "journal_order"
	AssertSerial          = "serial"
)

// LoadScenario reads and parses a scenario YAML file. Returns an error if
// the file doesn't exist, is malformed, contains unknown fields (typos),
// or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs
	// "assertions:".
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
	if s.Parallelism < 0 {
		return fmt.Errorf("parallelism must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	modes := 0
	if step.Plan != nil {
		modes++
	}
	if step.Apply != nil {
		modes++
	}
	if step.Destroy {
		modes++
	}
	if modes != 1 {
		return fmt.Errorf("steps[%d]: exactly one of plan, apply, or destroy is required", index)
	}

	for name, res := range step.Plan {
		if res.Type == "" {
			return fmt.Errorf("steps[%d].plan.%s: type is required", index, name)
		}
	}
	for name, res := range step.Apply {
		if res.Type == "" {
			return fmt.Errorf("steps[%d].apply.%s: type is required", index, name)
		}
	}

	if step.Expect != nil {
		for label, v := range map[string]*int{
			"create":  step.Expect.Create,
			"update":  step.Expect.Update,
			"replace": step.Expect.Replace,
			"no_op":   step.Expect.NoOp,
			"destroy": step.Expect.Destroy,
			"failed":  step.Expect.Failed,
			"skipped": step.Expect.Skipped,
		} {
			if v != nil && *v < 0 {
				return fmt.Errorf("steps[%d].expect.%s: must be non-negative", index, label)
			}
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRecordExists, AssertRecordAbsent:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for %s", index, a.Type)
		}
	case AssertJournalContains:
		if a.Call == nil {
			return fmt.Errorf("assertions[%d]: call is required for journal_contains", index)
		}
	case AssertJournalCount:
		if a.Call == nil {
			return fmt.Errorf("assertions[%d]: call is required for journal_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for journal_count", index)
		}
	case AssertJournalOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for journal_order", index)
		}
	case AssertSerial:
		if a.Value < 0 {
			return fmt.Errorf("assertions[%d]: value must be non-negative for serial", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
