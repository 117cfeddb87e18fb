package verifier

import (
	"fmt"
)

// ProviderUnreachableError is recorded for an interaction whose request kept failing
// with network errors until every attempt was used.
type ProviderUnreachableError struct {
	Description   string
	ProviderState string
	URL           string
	Attempts      int
	Err           error
}

func (e *ProviderUnreachableError) Error() string {
	return fmt.Sprintf("interaction '%s' (given '%s'): provider unreachable at %s after %d attempts: %s",
		e.Description, e.ProviderState, e.URL, e.Attempts, e.Err)
}

func (e *ProviderUnreachableError) Unwrap() error {
	return e.Err
}

// ProviderStateError is recorded when the provider could not be put into the state an
// interaction requires. The interaction is not replayed.
type ProviderStateError struct {
	Description   string
	ProviderState string
	Err           error
}

func (e *ProviderStateError) Error() string {
	return fmt.Sprintf("interaction '%s': unable to set up provider state '%s': %s", e.Description, e.ProviderState, e.Err)
}

func (e *ProviderStateError) Unwrap() error {
	return e.Err
}
