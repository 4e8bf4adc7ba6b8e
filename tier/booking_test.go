package tier_test

import (
	"testing"
	"time"

	"github.com/skyagent/tier-engine/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.August, 20, 10, 0, 0, 0, time.UTC)

func booking(issued bool, passengers int, departures ...time.Time) tier.Booking {
	b := tier.Booking{TicketIssued: issued, PassengerCount: passengers}
	for i, d := range departures {
		b.Flights = append(b.Flights, tier.Flight{
			FlightNumber: "VN" + string(rune('1'+i)),
			Origin:       "SGN",
			Destination:  "HAN",
			DepartDate:   d,
		})
	}
	return b
}

// =============================================================================
// COMPLETION RULE
// =============================================================================

func TestIsTicketCompleted_NotIssued(t *testing.T) {
	// Flight dates are irrelevant when the ticket is not issued.
	b := booking(false, 1, now.AddDate(0, 0, -30), now.AddDate(-1, 0, 0))
	assert.False(t, tier.IsTicketCompleted(b, now))
}

func TestIsTicketCompleted_DepartedTwoDaysAgo(t *testing.T) {
	b := booking(true, 1, now.AddDate(0, 0, -2))
	assert.True(t, tier.IsTicketCompleted(b, now))
}

func TestIsTicketCompleted_RecentOrFutureDepartures(t *testing.T) {
	cases := map[string]time.Time{
		"departed 12h ago":     now.Add(-12 * time.Hour),
		"departed exactly 24h": now.AddDate(0, 0, -1),
		"departs tomorrow":     now.AddDate(0, 0, 1),
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, tier.IsTicketCompleted(booking(true, 1, d), now))
		})
	}
}

func TestIsTicketCompleted_AnySegmentCounts(t *testing.T) {
	// Outbound departed last week, return is next week.
	b := booking(true, 2, now.AddDate(0, 0, -7), now.AddDate(0, 0, 7))
	assert.True(t, tier.IsTicketCompleted(b, now))
}

func TestIsTicketCompleted_NoFlights(t *testing.T) {
	assert.False(t, tier.IsTicketCompleted(booking(true, 3), now))
}

func TestIsTicketCompleted_MissingDepartureDate(t *testing.T) {
	assert.False(t, tier.IsTicketCompleted(booking(true, 1, time.Time{}), now))
	assert.False(t, tier.IsTicketCompleted(booking(true, 1, time.Time{}, now.AddDate(0, 0, 5)), now))
	assert.True(t, tier.IsTicketCompleted(booking(true, 1, time.Time{}, now.AddDate(0, 0, -2)), now))
}

// =============================================================================
// PROCESS BOOKING
// =============================================================================

func TestProcessAgentBooking_CompletedPrimeBooking(t *testing.T) {
	// GIVEN: Prime agent, issued booking for 2 passengers departed 2 days ago
	// WHEN: Processing the booking
	// THEN: 2 tickets, 50.000 ₫, promotion check requested
	e := newEngine()
	standing := tier.Standing{AgentID: "agent-1", CurrentTier: tier.Prime, LifetimeTickets: 20}

	credit, err := e.ProcessAgentBooking(standing, booking(true, 2, now.AddDate(0, 0, -2)), now)
	require.NoError(t, err)

	assert.Equal(t, "agent-1", credit.AgentID)
	assert.Equal(t, 2, credit.TicketsEarned)
	assert.Equal(t, tier.VND(50000), credit.CommissionEarned)
	assert.True(t, credit.ShouldCheckPromotion)
}

func TestProcessAgentBooking_NotCompleted(t *testing.T) {
	e := newEngine()
	standing := tier.Standing{AgentID: "agent-1", CurrentTier: tier.Prime}

	credit, err := e.ProcessAgentBooking(standing, booking(true, 2, now.AddDate(0, 0, 3)), now)
	require.NoError(t, err)

	assert.True(t, credit.IsZero())
	assert.Equal(t, tier.VND(0), credit.CommissionEarned)
	assert.False(t, credit.ShouldCheckPromotion)
}

func TestProcessAgentBooking_InvalidBooking(t *testing.T) {
	e := newEngine()
	standing := tier.Standing{AgentID: "agent-1", CurrentTier: tier.Prime}

	_, err := e.ProcessAgentBooking(standing, booking(true, -1, now.AddDate(0, 0, -3)), now)
	assert.ErrorIs(t, err, tier.ErrNegativeTickets)

	_, err = e.ProcessAgentBooking(standing, booking(true, 1, time.Time{}), now)
	assert.ErrorIs(t, err, tier.ErrInvalidDate)
}

func TestProcessAgentBooking_UnknownTierEarnsNothing(t *testing.T) {
	e := newEngine()
	standing := tier.Standing{AgentID: "agent-1", CurrentTier: "platinum"}

	credit, err := e.ProcessAgentBooking(standing, booking(true, 4, now.AddDate(0, 0, -3)), now)
	require.NoError(t, err)
	assert.Equal(t, 4, credit.TicketsEarned)
	assert.Equal(t, tier.VND(0), credit.CommissionEarned)
}

// =============================================================================
// APPLY CREDIT
// =============================================================================

func TestApplyCredit_IncrementsAndPromotes(t *testing.T) {
	// GIVEN: Starter with 2 lifetime tickets
	// WHEN: A 1-passenger booking completes
	// THEN: Counters move to 3 and the agent is promoted to growth
	e := newEngine()
	standing := tier.Standing{AgentID: "a", CurrentTier: tier.Starter, LifetimeTickets: 2, CurrentQuarterTickets: 2}

	credit, err := e.ProcessAgentBooking(standing, booking(true, 1, now.AddDate(0, 0, -5)), now)
	require.NoError(t, err)

	next, change, err := e.ApplyCredit(standing, credit)
	require.NoError(t, err)
	require.NotNil(t, change)

	assert.Equal(t, 3, next.LifetimeTickets)
	assert.Equal(t, 3, next.CurrentQuarterTickets)
	assert.Equal(t, tier.Growth, next.CurrentTier)
	assert.Equal(t, tier.ChangePromoted, change.Kind)
	assert.Equal(t, tier.Starter, change.From)
	assert.Equal(t, tier.Growth, change.To)

	// Input standing is untouched.
	assert.Equal(t, 2, standing.LifetimeTickets)
}

func TestApplyCredit_PromotionClearsGrace(t *testing.T) {
	e := newEngine()
	graceEnd := day(2025, time.September, 30)
	standing := tier.Standing{AgentID: "a", CurrentTier: tier.Prime, LifetimeTickets: 39, GraceEndDate: &graceEnd}

	next, change, err := e.ApplyCredit(standing, tier.Credit{TicketsEarned: 1, ShouldCheckPromotion: true})
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, tier.Elite, next.CurrentTier)
	assert.Nil(t, next.GraceEndDate)
}

func TestApplyCredit_ZeroCreditNoChange(t *testing.T) {
	e := newEngine()
	standing := tier.Standing{AgentID: "a", CurrentTier: tier.Growth, LifetimeTickets: 10}

	next, change, err := e.ApplyCredit(standing, tier.Credit{})
	require.NoError(t, err)
	assert.Nil(t, change)
	assert.Equal(t, standing, next)
}
