package contract

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var ErrNoInteractions = errors.New("no interactions")

type DuplicateInteractionError struct {
	Description   string
	ProviderState string
}

func (e *DuplicateInteractionError) Error() string {
	return fmt.Sprintf("a different interaction '%s' (given '%s') has already been added", e.Description, e.ProviderState)
}

// NoInteractionsError is returned when a pact is finalized before any interaction was added.
type NoInteractionsError struct {
	Consumer string
	Provider string
}

func (e *NoInteractionsError) Error() string {
	return fmt.Sprintf("pact between %s and %s has no interactions", e.Consumer, e.Provider)
}

func (e *NoInteractionsError) Is(target error) bool {
	return target == ErrNoInteractions
}

// UnusedInteractionError reports an interaction that was registered with a mock
// server but never received a matching request.
type UnusedInteractionError struct {
	Description   string
	ProviderState string
}

func (e *UnusedInteractionError) Error() string {
	return fmt.Sprintf("interaction '%s' (given '%s') was never called", e.Description, e.ProviderState)
}

// AmbiguousInteractionWarning is recorded, never returned, when a request fully matches
// more than one interaction. The first registered interaction is served.
type AmbiguousInteractionWarning struct {
	Method     string   `json:"method"`
	Path       string   `json:"path"`
	Served     string   `json:"served"`
	Candidates []string `json:"candidates"`
}

func (w *AmbiguousInteractionWarning) Error() string {
	return fmt.Sprintf("%s %s matches %d interactions (%s), serving '%s'",
		w.Method, w.Path, len(w.Candidates), strings.Join(w.Candidates, ", "), w.Served)
}

type ArtifactFormatError struct {
	Source string
	Err    error
}

func (e *ArtifactFormatError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("malformed contract: %s", e.Err)
	}
	return fmt.Sprintf("malformed contract %s: %s", e.Source, e.Err)
}

func (e *ArtifactFormatError) Unwrap() error {
	return e.Err
}
