// Package stats computes admin aggregates over bookings and the commission
// ledger.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skyagent/tier-engine/agent"
	"github.com/skyagent/tier-engine/tier"
)

// topRoutes is how many routes the summary lists.
const topRoutes = 5

// Summary is the admin dashboard aggregate.
type Summary struct {
	TotalBookings       int
	Pending             int
	Issued              int
	Completed           int
	Cancelled           int
	Passengers          int
	Revenue             tier.VND        // cancelled bookings excluded
	AverageBookingValue decimal.Decimal // Revenue over non-cancelled bookings
	CommissionTotal     tier.VND
	CommissionByTier    map[tier.Name]tier.VND
	TopRoutes           []Route
	Quarter             string
	BookingsThisQuarter int
}

// Route counts passengers flown between two airports across bookings.
type Route struct {
	Origin      string
	Destination string
	Passengers  int
	Bookings    int
}

// Compute aggregates bookings and commissions as of now.
func Compute(bookings []agent.Booking, commissions []agent.CommissionEntry, now time.Time) Summary {
	q := tier.ClassifyQuarter(now)
	s := Summary{
		TotalBookings:    len(bookings),
		CommissionByTier: make(map[tier.Name]tier.VND),
		Quarter:          q.Label,
	}

	type routeKey struct{ from, to string }
	routes := make(map[routeKey]*Route)
	active := 0

	for _, b := range bookings {
		switch b.Status {
		case agent.BookingPending:
			s.Pending++
		case agent.BookingIssued:
			s.Issued++
		case agent.BookingCompleted:
			s.Completed++
		case agent.BookingCancelled:
			s.Cancelled++
			continue
		}
		active++
		s.Passengers += b.PassengerCount
		s.Revenue += b.TotalPrice
		if q.Contains(b.CreatedAt) {
			s.BookingsThisQuarter++
		}

		for _, f := range b.Flights {
			k := routeKey{f.Origin, f.Destination}
			r, ok := routes[k]
			if !ok {
				r = &Route{Origin: f.Origin, Destination: f.Destination}
				routes[k] = r
			}
			r.Passengers += b.PassengerCount
			r.Bookings++
		}
	}

	if active > 0 {
		s.AverageBookingValue = decimal.NewFromInt(int64(s.Revenue)).
			Div(decimal.NewFromInt(int64(active))).
			Round(0)
	}

	for _, c := range commissions {
		s.CommissionTotal += c.Amount
		s.CommissionByTier[c.Tier] += c.Amount
	}

	s.TopRoutes = rankRoutes(routes)
	return s
}

func rankRoutes[K comparable](routes map[K]*Route) []Route {
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Passengers != out[j].Passengers {
			return out[i].Passengers > out[j].Passengers
		}
		if out[i].Origin != out[j].Origin {
			return out[i].Origin < out[j].Origin
		}
		return out[i].Destination < out[j].Destination
	})
	if len(out) > topRoutes {
		out = out[:topRoutes]
	}
	return out
}
