package stats_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skyagent/tier-engine/agent"
	"github.com/skyagent/tier-engine/stats"
	"github.com/skyagent/tier-engine/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.August, 20, 10, 0, 0, 0, time.UTC)

func booking(status agent.BookingStatus, pax int, price tier.VND, created time.Time, legs ...[2]string) agent.Booking {
	b := agent.Booking{
		Booking:    tier.Booking{PassengerCount: pax},
		TotalPrice: price,
		Status:     status,
		CreatedAt:  created,
	}
	for _, l := range legs {
		b.Flights = append(b.Flights, tier.Flight{Origin: l[0], Destination: l[1], DepartDate: created})
	}
	return b
}

func TestCompute(t *testing.T) {
	july := time.Date(2025, time.July, 3, 0, 0, 0, 0, time.UTC)
	june := time.Date(2025, time.June, 28, 0, 0, 0, 0, time.UTC)
	sgnHan := [2]string{"SGN", "HAN"}
	hanSgn := [2]string{"HAN", "SGN"}
	sgnDad := [2]string{"SGN", "DAD"}

	bookings := []agent.Booking{
		booking(agent.BookingCompleted, 2, 3_000_000, july, sgnHan, hanSgn),
		booking(agent.BookingIssued, 1, 1_000_000, june, sgnDad),
		booking(agent.BookingPending, 3, 2_000_000, july, sgnHan),
		booking(agent.BookingCancelled, 9, 9_000_000, july, sgnDad),
	}
	commissions := []agent.CommissionEntry{
		{Tier: tier.Prime, Amount: 50000},
		{Tier: tier.Prime, Amount: 25000},
		{Tier: tier.Starter, Amount: 15000},
	}

	s := stats.Compute(bookings, commissions, now)

	assert.Equal(t, 4, s.TotalBookings)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.Issued)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 1, s.Cancelled)
	assert.Equal(t, 6, s.Passengers)
	assert.Equal(t, tier.VND(6_000_000), s.Revenue)
	assert.True(t, decimal.NewFromInt(2_000_000).Equal(s.AverageBookingValue), s.AverageBookingValue.String())

	assert.Equal(t, tier.VND(90000), s.CommissionTotal)
	assert.Equal(t, tier.VND(75000), s.CommissionByTier[tier.Prime])
	assert.Equal(t, tier.VND(15000), s.CommissionByTier[tier.Starter])

	assert.Equal(t, "Q3 2025", s.Quarter)
	assert.Equal(t, 2, s.BookingsThisQuarter)

	require.Len(t, s.TopRoutes, 3)
	assert.Equal(t, stats.Route{Origin: "SGN", Destination: "HAN", Passengers: 5, Bookings: 2}, s.TopRoutes[0])
	assert.Equal(t, "HAN", s.TopRoutes[1].Origin)
	assert.Equal(t, "SGN", s.TopRoutes[2].Origin)
	assert.Equal(t, "DAD", s.TopRoutes[2].Destination)
}

func TestCompute_Empty(t *testing.T) {
	s := stats.Compute(nil, nil, now)

	assert.Equal(t, 0, s.TotalBookings)
	assert.True(t, s.AverageBookingValue.IsZero())
	assert.Empty(t, s.TopRoutes)
	assert.NotNil(t, s.CommissionByTier)
}

func TestCompute_TopRoutesCapped(t *testing.T) {
	var bookings []agent.Booking
	for i, dest := range []string{"HAN", "DAD", "PQC", "CXR", "HUI", "VII", "DLI"} {
		bookings = append(bookings, booking(agent.BookingIssued, i+1, 0, now, [2]string{"SGN", dest}))
	}

	s := stats.Compute(bookings, nil, now)
	require.Len(t, s.TopRoutes, 5)
	assert.Equal(t, "DLI", s.TopRoutes[0].Destination)
	assert.Equal(t, 7, s.TopRoutes[0].Passengers)
}
