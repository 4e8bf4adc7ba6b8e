/*
Package agent applies Tier Engine recommendations to stored agents.

PURPOSE:
  The tier package is pure: it reads a standing and recommends a new one.
  This package is the caller that loads agents and bookings, asks the engine,
  and persists the result atomically together with the commission ledger
  and the tier history.

FLOW:
  RecordBooking → IssueTicket → (departure + 1 day) → CompleteBooking
                                                       ├─ roll quarter forward
                                                       ├─ ProcessAgentBooking
                                                       ├─ ApplyCredit
                                                       └─ ledger + history + agent (one tx)

  Quarter boundaries: RolloverAgent / RunRollover evaluate each finished
  quarter with EvaluateQuarter and reset the quarter counter.

SEE ALSO:
  - tier/: the rules
  - store/sqlite, store/memory: Store implementations
*/
package agent

import (
	"time"

	"github.com/skyagent/tier-engine/tier"
)

// Agent is a booking agent and its stored standing.
type Agent struct {
	ID       string
	Name     string
	Email    string
	Standing tier.Standing
	// QuarterStart is the first day of the quarter that
	// Standing.CurrentQuarterTickets belongs to.
	QuarterStart time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAgent is the input to RegisterAgent.
type NewAgent struct {
	Name  string
	Email string
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingIssued    BookingStatus = "issued"
	BookingCompleted BookingStatus = "completed" // credited to the agent
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is a stored booking. The embedded tier.Booking holds what the
// completion rule reads.
type Booking struct {
	tier.Booking
	ID          string
	AgentID     string
	Reference   string
	TotalPrice  tier.VND
	Status      BookingStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// BookingInput is the input to RecordBooking.
type BookingInput struct {
	Reference      string
	Flights        []tier.Flight
	PassengerCount int
	TotalPrice     tier.VND
	TicketIssued   bool
}

// BookingFilter narrows ListBookings. Zero fields match everything.
type BookingFilter struct {
	AgentID string
	Status  BookingStatus
}

// CommissionEntry is one line of the append-only commission ledger.
// There is at most one entry per booking.
type CommissionEntry struct {
	ID        string
	AgentID   string
	BookingID string
	Tier      tier.Name
	Tickets   int
	Amount    tier.VND
	Quarter   string
	CreatedAt time.Time
}

// TierChange is one line of an agent's tier history.
type TierChange struct {
	ID              string
	AgentID         string
	Kind            tier.ChangeKind
	From            tier.Name
	To              tier.Name
	Quarter         string
	LifetimeTickets int
	QuarterTickets  int
	OccurredAt      time.Time
}

// CompletionResult reports what CompleteBooking did.
type CompletionResult struct {
	Booking  Booking
	Agent    Agent
	Credit   tier.Credit
	Change   *tier.Change
	Rollover []tier.QuarterOutcome
}

// RolloverResult reports what rolling one agent forward did.
type RolloverResult struct {
	AgentID  string
	Outcomes []tier.QuarterOutcome
}

// SweepResult summarizes a SweepCompletions run.
type SweepResult struct {
	Checked   int
	Completed int
	Failed    int
}
