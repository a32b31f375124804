package domain

import (
	"errors"
	"fmt"
)

// ErrNoDataAvailable is returned when every upstream bucket attempt failed
// and the last-known-good cache is empty. It is fatal for the poll but the
// next tick retries from scratch.
var ErrNoDataAvailable = errors.New("no snapshot data available")

// UnrecognizedShapeError reports a payload whose top-level structure matches
// none of the known feed shapes. Preview is a bounded textual rendering of
// the offending payload for diagnosis.
type UnrecognizedShapeError struct {
	Preview string
}

func (e *UnrecognizedShapeError) Error() string {
	return fmt.Sprintf("unrecognized payload shape: %s", e.Preview)
}
