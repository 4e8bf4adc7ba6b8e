package tier

import "time"

// =============================================================================
// COMPLETION RULE
// =============================================================================

// IsTicketCompleted reports whether a booking counts toward commission:
// the ticket is issued and at least one segment departed more than one full
// day before now. A booking without flights never completes, and a segment
// with no departure date never counts.
func IsTicketCompleted(b Booking, now time.Time) bool {
	if !b.TicketIssued {
		return false
	}
	cutoff := now.AddDate(0, 0, -1)
	for _, f := range b.Flights {
		if !f.DepartDate.IsZero() && f.DepartDate.Before(cutoff) {
			return true
		}
	}
	return false
}

// =============================================================================
// CREDIT - What a completed booking earns
// =============================================================================

// Credit is the recommended effect of one booking on an agent.
type Credit struct {
	AgentID              string
	Tier                 Name
	TicketsEarned        int
	CommissionEarned     VND
	ShouldCheckPromotion bool
}

// IsZero reports whether the credit changes nothing.
func (c Credit) IsZero() bool { return c.TicketsEarned == 0 && !c.ShouldCheckPromotion }

// ProcessAgentBooking computes what booking earns the agent at its current
// tier. A booking that is not completed earns nothing. Each passenger on a
// completed booking is one ticket.
func (e *Engine) ProcessAgentBooking(s Standing, b Booking, now time.Time) (Credit, error) {
	if err := b.Validate(); err != nil {
		return Credit{}, err
	}
	credit := Credit{AgentID: s.AgentID, Tier: s.CurrentTier}
	if !IsTicketCompleted(b, now) {
		return credit, nil
	}

	commission, err := e.ComputeCommission(b.PassengerCount, s.CurrentTier)
	if err != nil {
		return Credit{}, err
	}
	credit.TicketsEarned = b.PassengerCount
	credit.CommissionEarned = commission
	credit.ShouldCheckPromotion = true
	return credit, nil
}

// =============================================================================
// APPLY - Recommended standing after a credit
// =============================================================================

// ChangeKind classifies a tier change.
type ChangeKind string

const (
	ChangePromoted     ChangeKind = "promoted"
	ChangeDemoted      ChangeKind = "demoted"
	ChangeGraceStarted ChangeKind = "grace_started"
	ChangeGraceCleared ChangeKind = "grace_cleared"
)

// Change describes a recommended transition of an agent's tier or grace state.
type Change struct {
	Kind ChangeKind
	From Name
	To   Name
}

// ApplyCredit returns s with both counters incremented by the credit and,
// when the credit asks for it, the promotion check applied. A promotion
// clears any grace window. The returned Change is nil when the tier is
// unchanged.
func (e *Engine) ApplyCredit(s Standing, c Credit) (Standing, *Change, error) {
	if err := s.Validate(); err != nil {
		return s, nil, err
	}
	if c.TicketsEarned < 0 {
		return s, nil, negative("tickets_earned", c.TicketsEarned)
	}

	next := s
	next.LifetimeTickets += c.TicketsEarned
	next.CurrentQuarterTickets += c.TicketsEarned
	if !c.ShouldCheckPromotion {
		return next, nil, nil
	}

	to, ok, err := e.QualifyingTierForLifetime(next.LifetimeTickets, next.CurrentTier)
	if err != nil || !ok {
		return next, nil, err
	}
	change := &Change{Kind: ChangePromoted, From: next.CurrentTier, To: to}
	next.CurrentTier = to
	// A grace window belongs to the tier being left.
	next.GraceEndDate = nil
	return next, change, nil
}
