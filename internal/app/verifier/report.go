package verifier

import (
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/matching"
)

type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of replaying one interaction.
type Result struct {
	Interaction contract.Identity   `json:"interaction"`
	Status      Status              `json:"status"`
	Mismatches  []matching.Mismatch `json:"mismatches,omitempty"`
	Error       string              `json:"error,omitempty"`
	Attempts    int                 `json:"attempts,omitempty"`
	Duration    time.Duration       `json:"duration"`

	err error
}

// Err is the failure of the interaction, a *matching.MismatchError when the provider
// answered but not as declared.
func (r Result) Err() error {
	return r.err
}

func (r *Result) fail(err error) {
	r.Status = StatusFailed
	r.Error = err.Error()
	r.err = err
}

// Report holds one result per interaction of an artifact, in artifact order.
type Report struct {
	Consumer string   `json:"consumer"`
	Provider string   `json:"provider"`
	Source   string   `json:"source,omitempty"`
	Results  []Result `json:"results"`
}

// Failed is true if any interaction failed. Skipped interactions do not fail a report.
func (r Report) Failed() bool {
	for _, result := range r.Results {
		if result.Status == StatusFailed {
			return true
		}
	}
	return false
}

func (r Report) Count(status Status) int {
	n := 0
	for _, result := range r.Results {
		if result.Status == status {
			n++
		}
	}
	return n
}

func (r Report) Err() error {
	var errs []error
	for _, result := range r.Results {
		if result.err != nil {
			errs = append(errs, result.err)
		}
	}
	return stderrors.Join(errs...)
}

// Write prints the report for people reading CI output.
func (r Report) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Verifying a pact between %s and %s\n", r.Consumer, r.Provider); err != nil {
		return err
	}
	for _, result := range r.Results {
		if _, err := fmt.Fprintf(w, "  %s ... %s\n", result.Interaction, result.Status); err != nil {
			return err
		}
		if len(result.Mismatches) > 0 {
			for _, m := range result.Mismatches {
				if _, err := fmt.Fprintf(w, "      %s\n", m); err != nil {
					return err
				}
			}
		} else if result.Error != "" {
			if _, err := fmt.Fprintf(w, "      %s\n", result.Error); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintf(w, "%d interactions, %d passed, %d failed, %d skipped\n",
		len(r.Results), r.Count(StatusPassed), r.Count(StatusFailed), r.Count(StatusSkipped))
	return err
}
