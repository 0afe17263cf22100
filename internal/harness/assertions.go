package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/ckpt/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event)
		}
	}

	return buf.String()
}

// assertTraceContains checks that some trace entry renders as assertion.Entry.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.String() == assertion.Entry {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: assertion.Entry,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the entries appear in the specified order.
// Entries don't need to be consecutive (intervening entries are allowed), and
// a repeated entry must appear again after its previous match.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for i, want := range assertion.Entries {
		found := false
		for pos < len(trace) {
			line := trace[pos].String()
			pos++
			if line == want {
				found = true
				break
			}
		}
		if !found {
			actual := fmt.Sprintf("%q not found after %q", want, previous(assertion.Entries, i))
			if i == 0 {
				actual = fmt.Sprintf("%q not found", want)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entries in order: %v", assertion.Entries),
				Actual:   actual,
				Trace:    trace,
			}
		}
	}
	return nil
}

func previous(entries []string, i int) string {
	if i == 0 {
		return ""
	}
	return entries[i-1]
}

// assertTraceCount checks that the entry appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.String() == assertion.Entry {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %q", assertion.Count, assertion.Entry),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertEntryCount counts entries of one type, optionally for one actor.
func assertEntryCount(trace []TraceEvent, assertion Assertion, entryType ir.EntryType) error {
	count := 0
	for _, event := range trace {
		if event.Type != string(entryType) {
			continue
		}
		if assertion.Actor != "" && event.Actor != assertion.Actor {
			continue
		}
		count++
	}

	if count != assertion.Count {
		scope := "all actors"
		if assertion.Actor != "" {
			scope = assertion.Actor
		}
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("%d %s entries for %s", assertion.Count, entryType, scope),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks that an actor's final state contains the expected
// fields (subset semantics: only fields in Expect are checked).
func assertFinalState(states map[string]ir.IRObject, assertion Assertion) error {
	state, ok := states[assertion.Actor]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("actor %s to be deployed", assertion.Actor),
			Actual:   "actor not found",
		}
	}

	for _, key := range sortedKeys(assertion.Expect) {
		want, err := ir.FromGo(assertion.Expect[key])
		if err != nil {
			return fmt.Errorf("final_state %s: field %q: %w", assertion.Actor, key, err)
		}

		got, exists := state[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist on %s", key, assertion.Actor),
				Actual:   fmt.Sprintf("fields present: %v", state.SortedKeys()),
			}
		}
		if !ir.Equal(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", assertion.Actor, key, ir.ToGo(want)),
				Actual:   fmt.Sprintf("%s.%s = %v", assertion.Actor, key, ir.ToGo(got)),
			}
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertCommitCount:
			err = assertEntryCount(result.Trace, assertion, ir.EntryCommit)
		case AssertRollbackCount:
			err = assertEntryCount(result.Trace, assertion, ir.EntryRollback)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
