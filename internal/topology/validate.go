package topology

import (
	"fmt"
	"sort"
	"strings"
)

// Validation error codes (E200-E299)
const (
	ErrUnknownProgram = "E201" // program not registered
	ErrUnknownPeer    = "E202" // peer names an actor that is not deployed
	ErrEmptyDeny      = "E203" // blank deny entry
	ErrDuplicateDeny  = "E204" // method denied twice
	ErrEmptyPeerName  = "E205" // blank peer name
)

// ValidationError represents a topology validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks cross-actor rules CUE cannot express on its own. known
// reports whether a program name is registered; nil skips that check.
// Returns all errors found (does not fail-fast).
func Validate(t *Topology, known func(program string) bool) []ValidationError {
	var errs []ValidationError

	deployed := make(map[string]bool, len(t.Actors))
	for _, a := range t.Actors {
		deployed[string(a.ID)] = true
	}

	for _, a := range t.Actors {
		prefix := "actor." + string(a.ID)

		if known != nil && !known(a.Program) {
			errs = append(errs, ValidationError{
				Field:   prefix + ".program",
				Message: fmt.Sprintf("unknown program %q", a.Program),
				Code:    ErrUnknownProgram,
			})
		}

		seen := make(map[string]bool, len(a.Deny))
		for _, m := range a.Deny {
			switch {
			case strings.TrimSpace(m) == "":
				errs = append(errs, ValidationError{Field: prefix + ".deny", Message: "method name is empty", Code: ErrEmptyDeny})
			case seen[m]:
				errs = append(errs, ValidationError{Field: prefix + ".deny", Message: fmt.Sprintf("method %q denied twice", m), Code: ErrDuplicateDeny})
			}
			seen[m] = true
		}

		for _, name := range sortedKeys(a.Peers) {
			if strings.TrimSpace(name) == "" {
				errs = append(errs, ValidationError{Field: prefix + ".peers", Message: "peer name is empty", Code: ErrEmptyPeerName})
				continue
			}
			if target := a.Peers[name]; !deployed[string(target)] {
				errs = append(errs, ValidationError{
					Field:   prefix + ".peers." + name,
					Message: fmt.Sprintf("actor %q is not deployed", target),
					Code:    ErrUnknownPeer,
				})
			}
		}
	}

	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
