package agent

import (
	"errors"
	"fmt"

	"github.com/skyagent/tier-engine/tier"
)

var (
	ErrAgentNotFound   = errors.New("agent not found")
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAlreadyCredited is returned when a booking's commission was already
	// recorded. Retries can treat it as success.
	ErrAlreadyCredited = errors.New("booking already credited")

	// ErrNotCompleted is returned when a booking does not yet satisfy the
	// completion rule.
	ErrNotCompleted = errors.New("booking not completed")

	// ErrInvalidTransition is returned for a booking status change that the
	// lifecycle does not allow, e.g. cancelling a credited booking.
	ErrInvalidTransition = errors.New("invalid booking status transition")

	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports a bad request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// TransitionError names the refused booking status change.
type TransitionError struct {
	BookingID string
	From      BookingStatus
	To        BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking %s: cannot move from %s to %s", e.BookingID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// IsNotFound reports whether err means a missing agent or booking.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAgentNotFound) || errors.Is(err, ErrBookingNotFound)
}

// IsConflict reports whether err means the request clashes with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyCredited) ||
		errors.Is(err, ErrNotCompleted) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsInvalid reports whether err is a caller input error.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidInput) || tier.IsInputError(err)
}
