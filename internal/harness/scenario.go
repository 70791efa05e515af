package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: a store configuration, a
// sequence of steps run against a fresh database, and assertions on the
// outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file
	// and prefixes generated ids.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Domain and Service default to DefaultDomain and DefaultService.
	Domain  string `yaml:"domain,omitempty"`
	Service string `yaml:"service,omitempty"`

	// Public commits canonical events instead of event hashes to snapshots.
	Public bool `yaml:"public,omitempty"`

	// Handlers maps each action to a built-in handler name.
	Handlers map[string]string `yaml:"handlers"`

	// Schemas are optional CUE payload schemas keyed by action.
	Schemas map[string]string `yaml:"schemas,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final store contents.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpAppend      = "append"
	OpCreateBlock = "create_block"
	OpAdvance     = "advance"
)

// Step is one operation against the store.
//
// The harness clock moves one millisecond before every append and one
// second before every block so boundaries always follow the events before
// them. Use an advance step to move it further.
type Step struct {
	// Op is one of append, create_block or advance.
	Op string `yaml:"op"`

	// Root, Action, Payload and Number describe an append.
	Root    string         `yaml:"root,omitempty"`
	Action  string         `yaml:"action,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`
	Number  *int64         `yaml:"number,omitempty"`

	// By is the advance duration, e.g. "1h".
	By string `yaml:"by,omitempty"`

	// Error is the text code the step must fail with. Empty means the step
	// must succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the store after all steps ran.
type Assertion struct {
	// Type specifies the assertion type:
	// - "aggregate": fold Root and compare State and LastEventNumber
	// - "count": Root has reserved exactly Count numbers
	// - "events": Root's events carry Actions, in order
	// - "chain_valid": the block chain verifies and holds Count blocks
	// - "trace_count": the trace holds Count entries of Op
	Type string `yaml:"type"`

	Root string `yaml:"root,omitempty"`

	// State is compared exactly against the folded state.
	State map[string]any `yaml:"state,omitempty"`

	// LastEventNumber is checked when set.
	LastEventNumber *int64 `yaml:"last_event_number,omitempty"`

	Count int `yaml:"count,omitempty"`

	Actions []string `yaml:"actions,omitempty"`

	Op string `yaml:"op,omitempty"`
}

// Assertion type constants.
const (
	AssertAggregate  = "aggregate"
	AssertCount      = "count"
	AssertEvents     = "events"
	AssertChainValid = "chain_valid"
	AssertTraceCount = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Handlers) == 0 {
		return fmt.Errorf("handlers map is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
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

func validateStep(index int, s *Step) error {
	switch s.Op {
	case OpAppend:
		if s.Root == "" {
			return fmt.Errorf("steps[%d]: root is required for append", index)
		}
		if s.Action == "" {
			return fmt.Errorf("steps[%d]: action is required for append", index)
		}
	case OpCreateBlock:
	case OpAdvance:
		d, err := time.ParseDuration(s.By)
		if err != nil {
			return fmt.Errorf("steps[%d]: by: %w", index, err)
		}
		if d <= 0 {
			return fmt.Errorf("steps[%d]: by must be positive", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertAggregate:
		if a.Root == "" {
			return fmt.Errorf("assertions[%d]: root is required for aggregate", index)
		}
		if a.State == nil && a.LastEventNumber == nil {
			return fmt.Errorf("assertions[%d]: state or last_event_number is required for aggregate", index)
		}
	case AssertCount, AssertEvents:
		if a.Root == "" {
			return fmt.Errorf("assertions[%d]: root is required for %s", index, a.Type)
		}
	case AssertChainValid:
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
