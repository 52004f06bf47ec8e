package catalog

import (
	"errors"
	"fmt"
)

// ErrNoMatchingProducts reports that a query completed successfully but
// matched zero product pairs. This is a valid outcome, distinct from a
// transport failure.
var ErrNoMatchingProducts = errors.New("no products match the configuration")

// UnavailableError reports that the remote catalog could not be queried
// after exhausting retries. Fatal to a run: no units are dispatched.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("catalog unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
