// Package storetest holds the behaviour every agent.TxStore must share.
// Implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/skyagent/tier-engine/agent"
	"github.com/skyagent/tier-engine/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, time.August, 20, 9, 0, 0, 0, time.UTC)

// Run executes the suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) agent.TxStore) {
	t.Run("AgentRoundTrip", func(t *testing.T) { testAgentRoundTrip(t, newStore(t)) })
	t.Run("AgentNotFound", func(t *testing.T) { testAgentNotFound(t, newStore(t)) })
	t.Run("ListAgentsSorted", func(t *testing.T) { testListAgentsSorted(t, newStore(t)) })
	t.Run("BookingRoundTrip", func(t *testing.T) { testBookingRoundTrip(t, newStore(t)) })
	t.Run("ListBookingsFilter", func(t *testing.T) { testListBookingsFilter(t, newStore(t)) })
	t.Run("CommissionIdempotent", func(t *testing.T) { testCommissionIdempotent(t, newStore(t)) })
	t.Run("TierChanges", func(t *testing.T) { testTierChanges(t, newStore(t)) })
	t.Run("WithTxCommits", func(t *testing.T) { testWithTxCommits(t, newStore(t)) })
	t.Run("WithTxRollsBack", func(t *testing.T) { testWithTxRollsBack(t, newStore(t)) })
	t.Run("ConcurrentCompletions", func(t *testing.T) { testConcurrentCompletions(t, newStore(t)) })
}

func newAgent(id, name string) agent.Agent {
	return agent.Agent{
		ID:           id,
		Name:         name,
		Email:        name + "@skyagent.vn",
		Standing:     tier.Standing{AgentID: id, CurrentTier: tier.Starter},
		QuarterStart: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func newBooking(id, agentID string, created time.Time, status agent.BookingStatus) agent.Booking {
	return agent.Booking{
		Booking: tier.Booking{
			TicketIssued:   status != agent.BookingPending,
			PassengerCount: 2,
			Flights: []tier.Flight{{
				FlightNumber: "VN220",
				Origin:       "SGN",
				Destination:  "HAN",
				DepartDate:   time.Date(2025, time.August, 10, 6, 30, 0, 0, time.UTC),
			}},
		},
		ID:         id,
		AgentID:    agentID,
		Reference:  "REF-" + id,
		TotalPrice: 3_200_000,
		Status:     status,
		CreatedAt:  created,
	}
}

func testAgentRoundTrip(t *testing.T, s agent.TxStore) {
	ctx := context.Background()
	a := newAgent("a1", "lan")
	grace := time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)
	a.Standing = tier.Standing{
		AgentID:               "a1",
		CurrentTier:           tier.Elite,
		LifetimeTickets:       52,
		CurrentQuarterTickets: 7,
		GraceEndDate:          &grace,
	}
	require.NoError(t, s.SaveAgent(ctx, a))

	got, err := s.GetAgent(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "lan", got.Name)
	assert.Equal(t, "lan@skyagent.vn", got.Email)
	assert.Equal(t, tier.Elite, got.Standing.CurrentTier)
	assert.Equal(t, 52, got.Standing.LifetimeTickets)
	assert.Equal(t, 7, got.Standing.CurrentQuarterTickets)
	assert.Equal(t, "a1", got.Standing.AgentID)
	require.NotNil(t, got.Standing.GraceEndDate)
	assert.True(t, grace.Equal(*got.Standing.GraceEndDate))
	assert.True(t, a.QuarterStart.Equal(got.QuarterStart))
	assert.True(t, base.Equal(got.CreatedAt))

	// Update clears grace.
	got.Standing.GraceEndDate = nil
	got.Standing.CurrentTier = tier.Prime
	require.NoError(t, s.SaveAgent(ctx, *got))

	again, err := s.GetAgent(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, again.Standing.GraceEndDate)
	assert.Equal(t, tier.Prime, again.Standing.CurrentTier)
}

func testAgentNotFound(t *testing.T, s agent.TxStore) {
	_, err := s.GetAgent(context.Background(), "missing")
	assert.ErrorIs(t, err, agent.ErrAgentNotFound)

	_, err = s.GetBooking(context.Background(), "missing")
	assert.ErrorIs(t, err, agent.ErrBookingNotFound)
}

func testListAgentsSorted(t *testing.T, s agent.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveAgent(ctx, newAgent("a2", "minh")))
	require.NoError(t, s.SaveAgent(ctx, newAgent("a1", "hoa")))

	agents, err := s.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "hoa", agents[0].Name)
	assert.Equal(t, "minh", agents[1].Name)
}

func testBookingRoundTrip(t *testing.T, s agent.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveAgent(ctx, newAgent("a1", "lan")))

	b := newBooking("b1", "a1", base, agent.BookingIssued)
	require.NoError(t, s.SaveBooking(ctx, b))

	got, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AgentID)
	assert.Equal(t, "REF-b1", got.Reference)
	assert.True(t, got.TicketIssued)
	assert.Equal(t, 2, got.PassengerCount)
	assert.Equal(t, tier.VND(3_200_000), got.TotalPrice)
	assert.Equal(t, agent.BookingIssued, got.Status)
	assert.Nil(t, got.CompletedAt)
	require.Len(t, got.Flights, 1)
	assert.Equal(t, "VN220", got.Flights[0].FlightNumber)
	assert.True(t, b.Flights[0].DepartDate.Equal(got.Flights[0].DepartDate))

	done := base.Add(48 * time.Hour)
	got.Status = agent.BookingCompleted
	got.CompletedAt = &done
	require.NoError(t, s.SaveBooking(ctx, *got))

	again, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, agent.BookingCompleted, again.Status)
	require.NotNil(t, again.CompletedAt)
	assert.True(t, done.Equal(*again.CompletedAt))
}

func testListBookingsFilter(t *testing.T, s agent.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveAgent(ctx, newAgent("a1", "lan")))
	require.NoError(t, s.SaveAgent(ctx, newAgent("a2", "minh")))

	require.NoError(t, s.SaveBooking(ctx, newBooking("b3", "a1", base.Add(2*time.Hour), agent.BookingIssued)))
	require.NoError(t, s.SaveBooking(ctx, newBooking("b1", "a1", base, agent.BookingPending)))
	require.NoError(t, s.SaveBooking(ctx, newBooking("b2", "a2", base.Add(time.Hour), agent.BookingIssued)))

	all, err := s.ListBookings(ctx, agent.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b1", "b2", "b3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	mine, err := s.ListBookings(ctx, agent.BookingFilter{AgentID: "a1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	issued, err := s.ListBookings(ctx, agent.BookingFilter{AgentID: "a1", Status: agent.BookingIssued})
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, "b3", issued[0].ID)
}

func testCommissionIdempotent(t *testing.T, s agent.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveAgent(ctx, newAgent("a1", "lan")))
	require.NoError(t, s.SaveBooking(ctx, newBooking("b1", "a1", base, agent.BookingIssued)))

	entry := agent.CommissionEntry{
		ID: "c1", AgentID: "a1", BookingID: "b1", Tier: tier.Prime,
		Tickets: 2, Amount: 50000, Quarter: "Q3 2025", CreatedAt: base,
	}
	require.NoError(t, s.AppendCommission(ctx, entry))

	entry.ID = "c2"
	assert.ErrorIs(t, s.AppendCommission(ctx, entry), agent.ErrAlreadyCredited)

	entries, err := s.ListCommissions(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, tier.VND(50000), entries[0].Amount)
	assert.Equal(t, tier.Prime, entries[0].Tier)

	all, err := s.ListCommissions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testTierChanges(t *testing.T, s agent.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveAgent(ctx, newAgent("a1", "lan")))

	require.NoError(t, s.AppendTierChange(ctx, agent.TierChange{
		ID: "t1", AgentID: "a1", Kind: tier.ChangePromoted, From: tier.Starter, To: tier.Growth,
		Quarter: "Q3 2025", LifetimeTickets: 3, QuarterTickets: 3, OccurredAt: base,
	}))
	require.NoError(t, s.AppendTierChange(ctx, agent.TierChange{
		ID: "t2", AgentID: "a1", Kind: tier.ChangeGraceStarted, From: tier.Growth, To: tier.Growth,
		Quarter: "Q3 2025", LifetimeTickets: 5, QuarterTickets: 2, OccurredAt: base.Add(time.Hour),
	}))

	changes, err := s.ListTierChanges(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, tier.ChangePromoted, changes[0].Kind)
	assert.Equal(t, tier.Growth, changes[0].To)
	assert.Equal(t, tier.ChangeGraceStarted, changes[1].Kind)
}

func testWithTxCommits(t *testing.T, s agent.TxStore) {
	ctx := context.Background()
	err := s.WithTx(ctx, func(st agent.Store) error {
		if err := st.SaveAgent(ctx, newAgent("a1", "lan")); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes.
		_, err := st.GetAgent(ctx, "a1")
		return err
	})
	require.NoError(t, err)

	_, err = s.GetAgent(ctx, "a1")
	assert.NoError(t, err)
}

func testWithTxRollsBack(t *testing.T, s agent.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveAgent(ctx, newAgent("a1", "lan")))
	require.NoError(t, s.SaveBooking(ctx, newBooking("b1", "a1", base, agent.BookingIssued)))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(st agent.Store) error {
		a, err := st.GetAgent(ctx, "a1")
		if err != nil {
			return err
		}
		a.Standing.LifetimeTickets = 99
		if err := st.SaveAgent(ctx, *a); err != nil {
			return err
		}
		if err := st.AppendCommission(ctx, agent.CommissionEntry{
			ID: "c1", AgentID: "a1", BookingID: "b1", Tier: tier.Starter,
			Tickets: 2, Amount: 30000, Quarter: "Q3 2025", CreatedAt: base,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := s.GetAgent(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Standing.LifetimeTickets)

	entries, err := s.ListCommissions(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testConcurrentCompletions(t *testing.T, s agent.TxStore) {
	// GIVEN: A starter agent with 20 issued, departed 1-passenger bookings
	// WHEN: All 20 are completed at once
	// THEN: Every ticket and every ledger entry lands exactly once
	const n = 20
	ctx := context.Background()
	require.NoError(t, s.SaveAgent(ctx, newAgent("a1", "lan")))
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("b%02d", i)
		b := newBooking(ids[i], "a1", base.Add(time.Duration(i)*time.Minute), agent.BookingIssued)
		b.PassengerCount = 1
		require.NoError(t, s.SaveBooking(ctx, b))
	}

	log, _ := logtest.NewNullLogger()
	svc := agent.NewService(s, tier.NewEngine(nil),
		agent.WithClock(func() time.Time { return base }),
		agent.WithLogger(log),
	)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.CompleteBooking(ctx, id)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, ids[i])
	}

	a, err := s.GetAgent(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, n, a.Standing.LifetimeTickets)
	assert.Equal(t, n, a.Standing.CurrentQuarterTickets)
	assert.Equal(t, tier.Prime, a.Standing.CurrentTier)

	entries, err := s.ListCommissions(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, entries, n)

	changes, err := s.ListTierChanges(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, changes, 2)

	completed, err := s.ListBookings(ctx, agent.BookingFilter{AgentID: "a1", Status: agent.BookingCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, n)
}
