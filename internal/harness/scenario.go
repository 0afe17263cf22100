package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios deploy a topology, submit a flow of ingress calls, and assert on
// the resulting journal trace and final actor states.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Topology is the CUE topology directory to deploy.
	// Relative paths are resolved against the scenario file's directory.
	Topology string `yaml:"topology"`

	// FlowToken is the prefix for deterministic flow tokens: the n-th ingress
	// call of the scenario runs in flow "<flow_token>-<n>".
	// If empty, defaults to "test-flow".
	FlowToken string `yaml:"flow_token,omitempty"`

	// Setup contains calls that establish initial state. They must complete.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the calls under test, in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state,
	// commit_count, rollback_count
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one ingress call, or a group of calls submitted together.
type Step struct {
	// Actor is the target actor ID.
	Actor string `yaml:"actor,omitempty"`

	// Method is the target method.
	Method string `yaml:"method,omitempty"`

	// Args is the call argument. Any YAML value except null and floats.
	Args any `yaml:"args,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, no validation is performed.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Concurrent submits every listed call before waiting for any of them.
	// Mutually exclusive with Actor/Method.
	Concurrent []Step `yaml:"concurrent,omitempty"`
}

// ExpectClause specifies expected call behavior.
type ExpectClause struct {
	// Outcome is "completed", "failed" or "rejected".
	Outcome string `yaml:"outcome"`

	// Code is the expected failure code (e.g. TRAP, CALLEE_FAILED).
	Code string `yaml:"code,omitempty"`

	// Result is the expected return value. Compared exactly.
	Result any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an entry appears in the trace
	// - "trace_order": entries appear in order (not necessarily adjacent)
	// - "trace_count": an entry appears exactly Count times
	// - "final_state": an actor's state contains the expected fields
	// - "commit_count": number of commits, optionally for one actor
	// - "rollback_count": number of rollbacks, optionally for one actor
	Type string `yaml:"type"`

	// Entry is a trace line such as "commit a.inc return"
	// (used by trace_contains, trace_count).
	Entry string `yaml:"entry,omitempty"`

	// Entries is the expected order (used by trace_order).
	Entries []string `yaml:"entries,omitempty"`

	// Actor scopes final_state, commit_count and rollback_count.
	Actor string `yaml:"actor,omitempty"`

	// Expect contains expected state fields (used by final_state).
	// Subset match: only listed fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertCommitCount   = "commit_count"
	AssertRollbackCount = "rollback_count"
)

// Outcome values for ExpectClause.Outcome.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The topology path is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Topology != "" && !filepath.IsAbs(scenario.Topology) {
		scenario.Topology = filepath.Join(filepath.Dir(path), scenario.Topology)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files under dir whose base name
// matches filter (a filepath.Match pattern, empty for all), sorted by path.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Topology == "" {
		return fmt.Errorf("topology is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	info, err := os.Stat(s.Topology)
	if err != nil {
		return fmt.Errorf("topology not found: %s", s.Topology)
	}
	if !info.IsDir() {
		return fmt.Errorf("topology must be a directory: %s", s.Topology)
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step, false); err != nil {
			return err
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step, true); err != nil {
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

// validateStep validates a call or a concurrent group. Groups cannot nest.
func validateStep(where string, step Step, allowGroup bool) error {
	if len(step.Concurrent) > 0 {
		if !allowGroup {
			return fmt.Errorf("%s: concurrent groups are not allowed here", where)
		}
		if step.Actor != "" || step.Method != "" || step.Expect != nil {
			return fmt.Errorf("%s: concurrent group cannot also set actor, method or expect", where)
		}
		for i, inner := range step.Concurrent {
			if err := validateStep(fmt.Sprintf("%s.concurrent[%d]", where, i), inner, false); err != nil {
				return err
			}
		}
		return nil
	}

	if step.Actor == "" {
		return fmt.Errorf("%s: actor is required", where)
	}
	if step.Method == "" {
		return fmt.Errorf("%s: method is required", where)
	}
	if step.Expect != nil {
		switch step.Expect.Outcome {
		case OutcomeCompleted, OutcomeFailed, OutcomeRejected:
		case "":
			return fmt.Errorf("%s.expect: outcome is required", where)
		default:
			return fmt.Errorf("%s.expect: unknown outcome %q", where, step.Expect.Outcome)
		}
		if step.Expect.Outcome == OutcomeCompleted && step.Expect.Code != "" {
			return fmt.Errorf("%s.expect: code is only valid for failed or rejected outcomes", where)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Entry == "" {
			return fmt.Errorf("assertions[%d]: entry is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Entries) == 0 {
			return fmt.Errorf("assertions[%d]: entries list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Entry == "" {
			return fmt.Errorf("assertions[%d]: entry is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Actor == "" {
			return fmt.Errorf("assertions[%d]: actor is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertCommitCount, AssertRollbackCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
