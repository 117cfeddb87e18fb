package mockserver

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/matching"
)

type RecordedResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    interface{}       `json:"body,omitempty"`
}

// CandidateMismatch is why an interaction registered for a route rejected a call.
type CandidateMismatch struct {
	Interaction contract.Identity   `json:"interaction"`
	Mismatches  []matching.Mismatch `json:"mismatches"`
}

// RecordedCall is one request received by the server and what was served for it.
type RecordedCall struct {
	ID          string                                `json:"id"`
	Time        time.Time                             `json:"time"`
	Interaction *contract.Identity                    `json:"interaction,omitempty"`
	Request     RecordedRequest                       `json:"request"`
	Response    RecordedResponse                      `json:"response"`
	Result      matching.Result                       `json:"result"`
	Candidates  []CandidateMismatch                   `json:"candidates,omitempty"`
	Warning     *contract.AmbiguousInteractionWarning `json:"warning,omitempty"`
}

func (c RecordedCall) Matched() bool {
	return c.Interaction != nil
}

// closest returns the candidate with the fewest mismatches.
func (c RecordedCall) closest() *CandidateMismatch {
	var best *CandidateMismatch
	for i := range c.Candidates {
		if best == nil || len(c.Candidates[i].Mismatches) < len(best.Mismatches) {
			best = &c.Candidates[i]
		}
	}
	return best
}

// callLog is appended to by concurrent requests and read when reporting.
type callLog struct {
	mu    sync.Mutex
	calls []RecordedCall
}

func (l *callLog) append(call RecordedCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []RecordedCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RecordedCall(nil), l.calls...)
}

type InteractionCalls struct {
	contract.Identity
	Calls int `json:"calls"`
}

// Report is the record of a server run.
type Report struct {
	Interactions []InteractionCalls                     `json:"interactions"`
	Calls        []RecordedCall                         `json:"calls"`
	Unmatched    []RecordedCall                         `json:"unmatched,omitempty"`
	Unused       []contract.Identity                    `json:"unused,omitempty"`
	Warnings     []contract.AmbiguousInteractionWarning `json:"warnings,omitempty"`
}

func (r Report) Failed() bool {
	return len(r.Unmatched) > 0 || len(r.Unused) > 0
}

// Err returns every failure of the run, or nil.
func (r Report) Err() error {
	var errs []error
	for _, call := range r.Unmatched {
		errs = append(errs, unmatchedError(call))
	}
	for _, id := range r.Unused {
		errs = append(errs, &contract.UnusedInteractionError{Description: id.Description, ProviderState: id.ProviderState})
	}
	return stderrors.Join(errs...)
}

// UnmatchedRequestError reports a call no interaction matched. It wraps the mismatch
// against the closest candidate when the route had candidates.
type UnmatchedRequestError struct {
	ID      string
	Method  string
	Path    string
	Closest *matching.MismatchError
}

func (e *UnmatchedRequestError) Error() string {
	if e.Closest == nil {
		return fmt.Sprintf("no interaction registered for %s %s", e.Method, e.Path)
	}
	return fmt.Sprintf("unmatched request %s %s: %s", e.Method, e.Path, e.Closest)
}

func (e *UnmatchedRequestError) Unwrap() error {
	if e.Closest == nil {
		return nil
	}
	return e.Closest
}

func unmatchedError(call RecordedCall) error {
	err := &UnmatchedRequestError{ID: call.ID, Method: call.Request.Method, Path: call.Request.Path}
	if closest := call.closest(); closest != nil {
		err.Closest = &matching.MismatchError{
			Description:   closest.Interaction.Description,
			ProviderState: closest.Interaction.ProviderState,
			Result:        matching.Result{Mismatches: closest.Mismatches},
		}
	}
	return err
}
