package tier

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownTier is returned by Lookup when a name is absent from the table.
	// Callers should log it as a data-integrity warning; engine primitives
	// degrade to safe defaults instead of returning it.
	ErrUnknownTier = errors.New("unknown tier")

	// ErrNegativeTickets is returned when a ticket or passenger count is negative.
	ErrNegativeTickets = errors.New("negative ticket count")

	// ErrInvalidDate is returned when a required date is missing.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidTable is returned when a tier table is malformed.
	ErrInvalidTable = errors.New("invalid tier table")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InputError reports a caller contract violation on a single field.
type InputError struct {
	Field string
	Value any
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Err, e.Value)
}

func (e *InputError) Unwrap() error { return e.Err }

// UnknownTierError names the tier that could not be resolved.
type UnknownTierError struct {
	Name Name
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("unknown tier %q", string(e.Name))
}

func (e *UnknownTierError) Unwrap() error { return ErrUnknownTier }

func negative(field string, v int) error {
	return &InputError{Field: field, Value: v, Err: ErrNegativeTickets}
}

// IsInputError reports whether err is a caller contract violation.
func IsInputError(err error) bool {
	return errors.Is(err, ErrNegativeTickets) || errors.Is(err, ErrInvalidDate)
}
