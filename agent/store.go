package agent

import "context"

// =============================================================================
// STORE - Persistence for agents, bookings, ledger and history
// =============================================================================

// Store persists agents and bookings. Commission entries and tier changes
// are append-only: there is no update or delete for them.
type Store interface {
	// SaveAgent inserts or replaces an agent.
	SaveAgent(ctx context.Context, a Agent) error
	// GetAgent returns ErrAgentNotFound when id is unknown.
	GetAgent(ctx context.Context, id string) (*Agent, error)
	// ListAgents returns agents ordered by name.
	ListAgents(ctx context.Context) ([]Agent, error)

	// SaveBooking inserts or replaces a booking.
	SaveBooking(ctx context.Context, b Booking) error
	// GetBooking returns ErrBookingNotFound when id is unknown.
	GetBooking(ctx context.Context, id string) (*Booking, error)
	// ListBookings returns bookings ordered by creation time.
	ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error)

	// AppendCommission returns ErrAlreadyCredited when the booking already
	// has an entry.
	AppendCommission(ctx context.Context, e CommissionEntry) error
	// ListCommissions returns entries oldest first; an empty agentID lists all.
	ListCommissions(ctx context.Context, agentID string) ([]CommissionEntry, error)

	AppendTierChange(ctx context.Context, c TierChange) error
	ListTierChanges(ctx context.Context, agentID string) ([]TierChange, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
