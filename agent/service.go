package agent

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skyagent/tier-engine/events"
	"github.com/skyagent/tier-engine/metrics"
	"github.com/skyagent/tier-engine/tier"
)

// Service orchestrates the engine and the store.
type Service struct {
	store     TxStore
	engine    *tier.Engine
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
	clock     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }
func WithMetrics(m *metrics.Metrics) Option   { return func(s *Service) { s.metrics = m } }
func WithLogger(l logrus.FieldLogger) Option  { return func(s *Service) { s.log = l } }

// WithClock replaces time.Now. Tests and scenario replays use it to pin
// the evaluation date.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.clock = now } }

func NewService(store TxStore, engine *tier.Engine, opts ...Option) *Service {
	s := &Service{
		store:     store,
		engine:    engine,
		publisher: events.Nop{},
		log:       logrus.StandardLogger(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = tier.NewEngine(nil)
	}
	return s
}

// Engine returns the engine the service evaluates with.
func (s *Service) Engine() *tier.Engine { return s.engine }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.clock() }

// =============================================================================
// AGENTS
// =============================================================================

// RegisterAgent creates an agent on the base tier with empty counters.
func (s *Service) RegisterAgent(ctx context.Context, in NewAgent) (*Agent, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return nil, &ValidationError{Field: "email", Message: "is not a valid address"}
		}
	}

	now := s.Now()
	id := uuid.NewString()
	a := Agent{
		ID:    id,
		Name:  name,
		Email: in.Email,
		Standing: tier.Standing{
			AgentID:     id,
			CurrentTier: s.engine.Table().Base().Name,
		},
		QuarterStart: tier.ClassifyQuarter(now).Start,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveAgent(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save agent: %w", err)
	}

	s.log.WithFields(logrus.Fields{"agent_id": a.ID, "tier": a.Standing.CurrentTier}).Info("agent registered")
	return &a, nil
}

func (s *Service) GetAgent(ctx context.Context, id string) (*Agent, error) {
	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.checkTier(a)
	return a, nil
}

func (s *Service) ListAgents(ctx context.Context) ([]Agent, error) {
	return s.store.ListAgents(ctx)
}

// Progress evaluates the agent's standing as of now. A quarter that has
// ended but not been rolled over yet is shown as rolled: the snapshot always
// describes the current quarter.
func (s *Service) Progress(ctx context.Context, agentID string) (tier.Progress, error) {
	a, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return tier.Progress{}, err
	}
	now := s.Now()
	if _, err := s.rollForward(a, now); err != nil {
		return tier.Progress{}, err
	}
	return s.engine.EvaluateAgentProgress(a.Standing, now)
}

func (s *Service) Commissions(ctx context.Context, agentID string) ([]CommissionEntry, error) {
	if _, err := s.store.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return s.store.ListCommissions(ctx, agentID)
}

func (s *Service) TierHistory(ctx context.Context, agentID string) ([]TierChange, error) {
	if _, err := s.store.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return s.store.ListTierChanges(ctx, agentID)
}

// checkTier logs stored tier names missing from the table. The engine
// degrades gracefully for them; the warning surfaces the bad data.
func (s *Service) checkTier(a *Agent) {
	if _, err := s.engine.Lookup(a.Standing.CurrentTier); err != nil {
		s.log.WithFields(logrus.Fields{
			"agent_id": a.ID,
			"tier":     a.Standing.CurrentTier,
		}).WithError(err).Warn("agent has a tier missing from the tier table")
	}
}

// =============================================================================
// BOOKINGS
// =============================================================================

// RecordBooking stores a new booking for an agent.
func (s *Service) RecordBooking(ctx context.Context, agentID string, in BookingInput) (*Booking, error) {
	if _, err := s.store.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	if in.PassengerCount < 1 {
		return nil, &ValidationError{Field: "passenger_count", Message: "must be at least 1"}
	}
	if len(in.Flights) == 0 {
		return nil, &ValidationError{Field: "flights", Message: "at least one flight is required"}
	}
	if in.TotalPrice < 0 {
		return nil, &ValidationError{Field: "total_price", Message: "must not be negative"}
	}

	b := Booking{
		Booking: tier.Booking{
			TicketIssued:   in.TicketIssued,
			Flights:        in.Flights,
			PassengerCount: in.PassengerCount,
		},
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Reference:  in.Reference,
		TotalPrice: in.TotalPrice,
		Status:     BookingPending,
		CreatedAt:  s.Now(),
	}
	if err := b.Booking.Validate(); err != nil {
		return nil, err
	}
	if b.Reference == "" {
		b.Reference = newReference(b.ID)
	}
	if b.TicketIssued {
		b.Status = BookingIssued
	}

	if err := s.store.SaveBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"agent_id":   agentID,
		"booking_id": b.ID,
		"passengers": b.PassengerCount,
	}).Info("booking recorded")
	return &b, nil
}

func (s *Service) GetBooking(ctx context.Context, id string) (*Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *Service) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	return s.store.ListBookings(ctx, f)
}

// IssueTicket marks a pending booking's ticket as issued. Issuing twice is
// a no-op.
func (s *Service) IssueTicket(ctx context.Context, bookingID string) (*Booking, error) {
	return s.transition(ctx, bookingID, BookingIssued, func(b *Booking) error {
		switch b.Status {
		case BookingIssued, BookingCompleted:
			return errNoop
		case BookingCancelled:
			return &TransitionError{BookingID: b.ID, From: b.Status, To: BookingIssued}
		}
		b.TicketIssued = true
		return nil
	})
}

// CancelBooking cancels a booking that has not been credited yet.
func (s *Service) CancelBooking(ctx context.Context, bookingID string) (*Booking, error) {
	return s.transition(ctx, bookingID, BookingCancelled, func(b *Booking) error {
		switch b.Status {
		case BookingCancelled:
			return errNoop
		case BookingCompleted:
			return &TransitionError{BookingID: b.ID, From: b.Status, To: BookingCancelled}
		}
		return nil
	})
}

var errNoop = errors.New("noop")

func (s *Service) transition(ctx context.Context, id string, to BookingStatus, apply func(*Booking) error) (*Booking, error) {
	var out *Booking
	err := s.store.WithTx(ctx, func(st Store) error {
		b, err := st.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		out = b
		if err := apply(b); err != nil {
			return err
		}
		from := b.Status
		b.Status = to
		if err := st.SaveBooking(ctx, *b); err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{"booking_id": id, "from": from, "to": to}).Info("booking status changed")
		return nil
	})
	if errors.Is(err, errNoop) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func newReference(id string) string {
	return "SKY-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8])
}

// =============================================================================
// COMPLETION - Credit a completed booking
// =============================================================================

// CompleteBooking credits a completed booking to its agent: tickets,
// commission at the agent's tier, promotion check. The agent's quarter is
// rolled forward first so the credit lands in the current quarter.
//
// Everything is written in one transaction; events and metrics follow the
// commit. A second call for the same booking returns ErrAlreadyCredited.
func (s *Service) CompleteBooking(ctx context.Context, bookingID string) (*CompletionResult, error) {
	now := s.Now()
	res := &CompletionResult{}

	err := s.store.WithTx(ctx, func(st Store) error {
		b, err := st.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		switch b.Status {
		case BookingCompleted:
			return ErrAlreadyCredited
		case BookingCancelled:
			return &TransitionError{BookingID: b.ID, From: b.Status, To: BookingCompleted}
		}

		a, err := st.GetAgent(ctx, b.AgentID)
		if err != nil {
			return err
		}
		s.checkTier(a)

		outcomes, err := s.rollForward(a, now)
		if err != nil {
			return err
		}
		if err := s.recordOutcomes(ctx, st, a, outcomes, now); err != nil {
			return err
		}

		credit, err := s.engine.ProcessAgentBooking(a.Standing, b.Booking, now)
		if err != nil {
			return err
		}
		if !credit.ShouldCheckPromotion {
			return ErrNotCompleted
		}
		next, change, err := s.engine.ApplyCredit(a.Standing, credit)
		if err != nil {
			return err
		}

		quarter := tier.ClassifyQuarter(now).Label
		if err := st.AppendCommission(ctx, CommissionEntry{
			ID:        uuid.NewString(),
			AgentID:   a.ID,
			BookingID: b.ID,
			Tier:      credit.Tier,
			Tickets:   credit.TicketsEarned,
			Amount:    credit.CommissionEarned,
			Quarter:   quarter,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		a.Standing = next
		a.UpdatedAt = now
		if change != nil {
			if err := st.AppendTierChange(ctx, newTierChange(a, *change, quarter, now)); err != nil {
				return err
			}
		}
		if err := st.SaveAgent(ctx, *a); err != nil {
			return err
		}

		b.Status = BookingCompleted
		b.CompletedAt = &now
		if err := st.SaveBooking(ctx, *b); err != nil {
			return err
		}

		*res = CompletionResult{Booking: *b, Agent: *a, Credit: credit, Change: change, Rollover: outcomes}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCompletion(ctx, res, now)
	return res, nil
}

func (s *Service) afterCompletion(ctx context.Context, res *CompletionResult, now time.Time) {
	log := s.log.WithFields(logrus.Fields{
		"agent_id":   res.Agent.ID,
		"booking_id": res.Booking.ID,
		"tier":       res.Credit.Tier,
		"tickets":    res.Credit.TicketsEarned,
		"commission": int64(res.Credit.CommissionEarned),
	})
	log.Info("booking credited")

	evs := s.outcomeEvents(res.Agent.ID, res.Rollover, now)
	evs = append(evs, events.Commission(res.Agent.ID, res.Booking.ID, res.Credit.Tier,
		res.Credit.TicketsEarned, res.Credit.CommissionEarned, now))
	s.metrics.ObserveCredit(res.Credit.Tier, res.Credit.TicketsEarned, res.Credit.CommissionEarned)

	if c := res.Change; c != nil {
		log.WithFields(logrus.Fields{"from": c.From, "to": c.To}).Info("agent promoted")
		evs = append(evs, events.FromChange(res.Agent.ID, *c, now))
		s.metrics.ObserveChange(*c)
	}
	s.publish(ctx, evs)
}

// publish never fails the caller: the state change is already committed.
func (s *Service) publish(ctx context.Context, evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.log.WithError(err).WithField("count", len(evs)).Error("failed to publish events")
	}
}

// SweepCompletions credits every issued booking that now satisfies the
// completion rule.
func (s *Service) SweepCompletions(ctx context.Context) (SweepResult, error) {
	bookings, err := s.store.ListBookings(ctx, BookingFilter{Status: BookingIssued})
	if err != nil {
		return SweepResult{}, err
	}

	now := s.Now()
	var res SweepResult
	for _, b := range bookings {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		if !tier.IsTicketCompleted(b.Booking, now) {
			continue
		}
		_, err := s.CompleteBooking(ctx, b.ID)
		switch {
		case err == nil:
			res.Completed++
		case errors.Is(err, ErrAlreadyCredited), errors.Is(err, ErrNotCompleted):
		default:
			res.Failed++
			s.log.WithError(err).WithField("booking_id", b.ID).Error("failed to complete booking")
		}
	}

	s.metrics.ObserveSwept(res.Completed)
	s.log.WithFields(logrus.Fields{
		"checked":   res.Checked,
		"completed": res.Completed,
		"failed":    res.Failed,
	}).Info("completion sweep finished")
	return res, nil
}

func newTierChange(a *Agent, c tier.Change, quarter string, at time.Time) TierChange {
	return TierChange{
		ID:              uuid.NewString(),
		AgentID:         a.ID,
		Kind:            c.Kind,
		From:            c.From,
		To:              c.To,
		Quarter:         quarter,
		LifetimeTickets: a.Standing.LifetimeTickets,
		QuarterTickets:  a.Standing.CurrentQuarterTickets,
		OccurredAt:      at,
	}
}
