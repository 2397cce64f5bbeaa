package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one harness run: seeded containers, a sequence of steps,
// and assertions over the result.
type Scenario struct {
	// Name uniquely identifies this scenario; it doubles as the golden file
	// name.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// ThrottleIntervalMS overrides the engine's throttle interval. Scenarios
	// with burst steps keep this small so a run finishes quickly.
	ThrottleIntervalMS int `yaml:"throttle_interval_ms,omitempty"`

	// MaxRollbackAttempts overrides the per-container rollback budget.
	MaxRollbackAttempts int `yaml:"max_rollback_attempts,omitempty"`

	// Containers are seeded into the host before any step runs.
	Containers []ContainerSeed `yaml:"containers"`

	// Steps run strictly in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ContainerSeed describes one container's starting content.
type ContainerSeed struct {
	ID string `yaml:"id"`

	// Limit overrides the container's element limit. Zero keeps the default.
	Limit int `yaml:"limit,omitempty"`

	// Elements is the initial content, outermost level only.
	Elements []ElementSeed `yaml:"elements,omitempty"`
}

// ElementSeed is one seeded element.
type ElementSeed struct {
	Tag  string `yaml:"tag"`
	Text string `yaml:"text,omitempty"`
}

// Step ops.
const (
	OpUpdate        = "update"
	OpFailUpdate    = "fail-update"
	OpBurst         = "burst"
	OpEmergencyStop = "emergency-stop"
	OpResume        = "resume"
	OpHealthCheck   = "health-check"
)

// Step is one scripted operation.
type Step struct {
	// Op selects the operation; see the Op constants.
	Op string `yaml:"op"`

	// Container names the target; required for update, fail-update, burst.
	Container string `yaml:"container,omitempty"`

	// Append is how many generated elements the update adds. Defaults to 1.
	Append int `yaml:"append,omitempty"`

	// Error is the failure message for fail-update steps.
	Error string `yaml:"error,omitempty"`

	// Priority is normal, high or critical. Empty means normal.
	Priority string `yaml:"priority,omitempty"`

	// Rollback snapshots before the update so a failure restores content.
	Rollback bool `yaml:"rollback,omitempty"`

	// Count is the number of calls in a burst step. Defaults to 3.
	Count int `yaml:"count,omitempty"`

	// Reason annotates emergency-stop steps.
	Reason string `yaml:"reason,omitempty"`
}

// Assertion types.
const (
	AssertElementCount    = "element_count"
	AssertContentContains = "content_contains"
	AssertBand            = "band"
	AssertErrorLogged     = "error_logged"
	AssertLastOutcome     = "last_outcome"
)

// Assertion validates final state after all steps ran.
type Assertion struct {
	Type      string `yaml:"type"`
	Container string `yaml:"container,omitempty"`
	Count     int    `yaml:"count,omitempty"`
	Substring string `yaml:"substring,omitempty"`
	Band      string `yaml:"band,omitempty"`
	Code      string `yaml:"code,omitempty"`
	Outcome   string `yaml:"outcome,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping a step.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// Validate checks structural requirements before a run.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario needs at least one step")
	}
	for i, c := range s.Containers {
		if c.ID == "" {
			return fmt.Errorf("container %d: id is required", i)
		}
	}
	for i, step := range s.Steps {
		switch step.Op {
		case OpUpdate, OpFailUpdate, OpBurst:
			if step.Container == "" {
				return fmt.Errorf("step %d (%s): container is required", i, step.Op)
			}
		case OpEmergencyStop, OpResume, OpHealthCheck:
		default:
			return fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}
		switch step.Priority {
		case "", "normal", "high", "critical":
		default:
			return fmt.Errorf("step %d: unknown priority %q", i, step.Priority)
		}
	}
	for i, a := range s.Assertions {
		switch a.Type {
		case AssertElementCount, AssertContentContains, AssertBand, AssertLastOutcome:
			if a.Container == "" {
				return fmt.Errorf("assertion %d (%s): container is required", i, a.Type)
			}
		case AssertErrorLogged:
			if a.Code == "" {
				return fmt.Errorf("assertion %d: error code is required", i)
			}
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
	}
	return nil
}
