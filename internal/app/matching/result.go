package matching

import (
	"fmt"
	"strings"
)

type Mismatch struct {
	Path     string      `json:"path"`
	Expected interface{} `json:"expected,omitempty"`
	Actual   interface{} `json:"actual,omitempty"`
	Reason   string      `json:"reason"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s", m.Path, m.Reason)
}

// Result lists every failing path of a comparison; it is matched when the list is empty.
type Result struct {
	Matched    bool       `json:"matched"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

func newResult() *Result {
	return &Result{Matched: true}
}

func (r *Result) add(path string, expected, actual interface{}, format string, args ...interface{}) {
	r.Matched = false
	r.Mismatches = append(r.Mismatches, Mismatch{
		Path:     path,
		Expected: expected,
		Actual:   actual,
		Reason:   fmt.Sprintf(format, args...),
	})
}

func (r *Result) merge(other Result) {
	if !other.Matched {
		r.Matched = false
	}
	r.Mismatches = append(r.Mismatches, other.Mismatches...)
}

// Paths returns the path of every mismatch in report order.
func (r Result) Paths() []string {
	paths := make([]string, 0, len(r.Mismatches))
	for _, m := range r.Mismatches {
		paths = append(paths, m.Path)
	}
	return paths
}

func (r Result) String() string {
	if r.Matched {
		return "matched"
	}
	lines := make([]string, 0, len(r.Mismatches))
	for _, m := range r.Mismatches {
		lines = append(lines, m.String())
	}
	return strings.Join(lines, "\n")
}

// MismatchError carries the full comparison result of a message that did not
// satisfy the interaction it was compared with.
type MismatchError struct {
	Description   string
	ProviderState string
	Result        Result
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("interaction '%s' (given '%s') does not match:\n%s", e.Description, e.ProviderState, e.Result)
}
