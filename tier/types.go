/*
Package tier provides the agent tier and commission progression engine.

PURPOSE:
  Travel agents selling airline tickets are paid a commission per completed
  ticket. The rate depends on the agent's tier, and the tier depends on two
  volumes: lifetime tickets (promotion) and tickets in the current calendar
  quarter (maintenance). This package holds the rules; it never touches
  storage, the network or the system clock.

KEY CONCEPTS IN THIS FILE (types.go):
  - Name:       Tier identifier (starter, growth, prime, elite, legend)
  - Definition: Thresholds and commission rate for one tier
  - VND:        Money in Vietnamese đồng (no fractional unit)
  - Standing:   Counters and tier of one agent, owned by the caller's store
  - Booking:    The part of a booking the completion rule needs

TIER LADDER (DefaultTable):
  starter  →  growth  →  prime  →  elite  →  legend
     0          3         15        40        100    lifetime tickets
  15.000 ₫   20.000 ₫  25.000 ₫  30.000 ₫  40.000 ₫  per ticket
     0          3         8         15        25     tickets per quarter

QUARTERLY OUTCOMES:
  on track              → maintain
  shortfall ≤ 10%       → grace period for one quarter (first miss only)
  shortfall > 10%       → demote one level
  any shortfall, grace  → demote one level

USAGE:
  engine := tier.NewEngine(tier.DefaultTable())
  credit, err := engine.ProcessAgentBooking(standing, booking, now)
  next, change, err := engine.ApplyCredit(standing, credit)

SEE ALSO:
  - table.go:      Ordered tier table
  - engine.go:     Promotion, grace, demotion and commission primitives
  - booking.go:    Ticket completion and crediting
  - progress.go:   Progress snapshot and status messages
  - evaluation.go: Quarter-end state machine
*/
package tier

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// =============================================================================
// TIER NAMES
// =============================================================================

// Name identifies a tier. Ordering is defined by the Table, not by the string.
type Name string

const (
	Starter Name = "starter"
	Growth  Name = "growth"
	Prime   Name = "prime"
	Elite   Name = "elite"
	Legend  Name = "legend"
)

func (n Name) String() string { return string(n) }

// =============================================================================
// MONEY
// =============================================================================

// VND is an amount in Vietnamese đồng.
type VND int64

var vndPrinter = message.NewPrinter(language.Vietnamese)

// String formats the amount with Vietnamese digit grouping, e.g. "25.000 ₫".
func (v VND) String() string {
	return vndPrinter.Sprintf("%d ₫", int64(v))
}

// =============================================================================
// DEFINITION - One row of the tier table
// =============================================================================

// Definition is the static configuration of a single tier.
type Definition struct {
	Name                Name
	Label               string
	MinLifetimeTickets  int
	CommissionPerTicket VND
	QuarterlyTarget     int // 0 = no maintenance requirement
}

// =============================================================================
// STANDING - Agent state owned by the agent-profile store
// =============================================================================

// Standing is an agent's position on the ladder. The engine reads it and
// returns recommended replacements; it never mutates one in place.
type Standing struct {
	AgentID               string
	LifetimeTickets       int
	CurrentTier           Name
	CurrentQuarterTickets int
	GraceEndDate          *time.Time // set only while in grace
}

// InGrace reports whether a grace window is recorded.
func (s Standing) InGrace() bool { return s.GraceEndDate != nil }

// Validate rejects counters no bookkeeping path can produce.
func (s Standing) Validate() error {
	if s.LifetimeTickets < 0 {
		return &InputError{Field: "lifetime_tickets", Value: s.LifetimeTickets, Err: ErrNegativeTickets}
	}
	if s.CurrentQuarterTickets < 0 {
		return &InputError{Field: "current_quarter_tickets", Value: s.CurrentQuarterTickets, Err: ErrNegativeTickets}
	}
	if s.GraceEndDate != nil && s.GraceEndDate.IsZero() {
		return &InputError{Field: "grace_end_date", Value: *s.GraceEndDate, Err: ErrInvalidDate}
	}
	return nil
}

// =============================================================================
// BOOKING - Read-only input to the completion rule
// =============================================================================

// Flight is one segment of a booking.
type Flight struct {
	FlightNumber string
	Origin       string
	Destination  string
	DepartDate   time.Time
}

// Booking carries the fields the engine needs to decide completion.
type Booking struct {
	TicketIssued   bool
	Flights        []Flight
	PassengerCount int
}

// Validate rejects negative passenger counts and missing departure dates.
func (b Booking) Validate() error {
	if b.PassengerCount < 0 {
		return &InputError{Field: "passenger_count", Value: b.PassengerCount, Err: ErrNegativeTickets}
	}
	for i, f := range b.Flights {
		if f.DepartDate.IsZero() {
			return &InputError{Field: "flights.depart_date", Value: i, Err: ErrInvalidDate}
		}
	}
	return nil
}
