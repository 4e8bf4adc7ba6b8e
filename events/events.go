/*
Package events publishes tier changes and commission credits to downstream
consumers (notifications, payouts, analytics).

EVENT TYPES:
  tier.promoted        lifetime threshold crossed
  tier.demoted         quarterly target missed
  tier.grace_started   small shortfall, one quarter to recover
  tier.grace_cleared   target met while in grace
  commission.earned    completed booking credited

PUBLISHERS:
  KafkaPublisher: JSON messages keyed by agent id (ordering per agent)
  LogPublisher:   logrus lines, used when Kafka is disabled
*/
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/skyagent/tier-engine/tier"
)

// Type names an event on the wire.
type Type string

const (
	TierPromoted     Type = "tier.promoted"
	TierDemoted      Type = "tier.demoted"
	GraceStarted     Type = "tier.grace_started"
	GraceCleared     Type = "tier.grace_cleared"
	CommissionEarned Type = "commission.earned"
)

// Event is one published fact about an agent.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	AgentID    string    `json:"agent_id"`
	FromTier   tier.Name `json:"from_tier,omitempty"`
	ToTier     tier.Name `json:"to_tier,omitempty"`
	Amount     tier.VND  `json:"amount,omitempty"`
	Tickets    int       `json:"tickets,omitempty"`
	BookingID  string    `json:"booking_id,omitempty"`
	Quarter    string    `json:"quarter,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// New creates an event with a fresh id.
func New(t Type, agentID string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		AgentID:    agentID,
		OccurredAt: at.UTC(),
	}
}

var changeTypes = map[tier.ChangeKind]Type{
	tier.ChangePromoted:     TierPromoted,
	tier.ChangeDemoted:      TierDemoted,
	tier.ChangeGraceStarted: GraceStarted,
	tier.ChangeGraceCleared: GraceCleared,
}

// FromChange maps an engine tier change to its event.
func FromChange(agentID string, c tier.Change, at time.Time) Event {
	e := New(changeTypes[c.Kind], agentID, at)
	e.FromTier = c.From
	e.ToTier = c.To
	return e
}

// Commission builds a commission.earned event.
func Commission(agentID, bookingID string, t tier.Name, tickets int, amount tier.VND, at time.Time) Event {
	e := New(CommissionEarned, agentID, at)
	e.ToTier = t
	e.Tickets = tickets
	e.Amount = amount
	e.BookingID = bookingID
	return e
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
func (Nop) Close() error                            { return nil }
