package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skyagent/tier-engine/events"
	"github.com/skyagent/tier-engine/tier"
)

// =============================================================================
// QUARTER ROLLOVER
// =============================================================================
//
// An agent's quarter counter belongs to the quarter starting at
// Agent.QuarterStart. Once now is past that quarter, every finished quarter
// is evaluated in order. A quarter with no activity still counts: an agent
// idle for two quarters is evaluated twice, the second time with zero
// tickets.

// rollForward evaluates every quarter that finished before now and updates
// a in place. It returns the outcomes in quarter order.
func (s *Service) rollForward(a *Agent, now time.Time) ([]tier.QuarterOutcome, error) {
	current := tier.ClassifyQuarter(now)
	if a.QuarterStart.IsZero() {
		a.QuarterStart = current.Start
		return nil, nil
	}

	// Stored dates come back in UTC; reinterpret the calendar day in the
	// clock's location.
	qs := a.QuarterStart
	q := tier.ClassifyQuarter(time.Date(qs.Year(), qs.Month(), qs.Day(), 0, 0, 0, 0, now.Location()))

	var outcomes []tier.QuarterOutcome
	for q.Before(current) {
		out, err := s.engine.EvaluateQuarter(a.Standing, q)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out)
		a.Standing = out.Standing
		q = q.Next()
	}
	a.QuarterStart = current.Start
	return outcomes, nil
}

func (s *Service) recordOutcomes(ctx context.Context, st Store, a *Agent, outcomes []tier.QuarterOutcome, now time.Time) error {
	for _, out := range outcomes {
		log := s.log.WithFields(logrus.Fields{
			"agent_id":  a.ID,
			"quarter":   out.Quarter.Label,
			"outcome":   out.Outcome,
			"tickets":   out.Tickets,
			"target":    out.Target,
			"shortfall": out.Shortfall,
		})
		if out.Change == nil {
			log.Debug("quarter evaluated")
			continue
		}
		log.WithField("tier", out.Standing.CurrentTier).Info("quarter evaluated")

		if err := st.AppendTierChange(ctx, TierChange{
			ID:              uuid.NewString(),
			AgentID:         a.ID,
			Kind:            out.Change.Kind,
			From:            out.Change.From,
			To:              out.Change.To,
			Quarter:         out.Quarter.Label,
			LifetimeTickets: out.Standing.LifetimeTickets,
			QuarterTickets:  out.Tickets,
			OccurredAt:      now,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) outcomeEvents(agentID string, outcomes []tier.QuarterOutcome, now time.Time) []events.Event {
	var evs []events.Event
	for _, out := range outcomes {
		if out.Change == nil {
			continue
		}
		e := events.FromChange(agentID, *out.Change, now)
		e.Quarter = out.Quarter.Label
		e.Tickets = out.Tickets
		evs = append(evs, e)
		s.metrics.ObserveChange(*out.Change)
	}
	return evs
}

// RolloverAgent evaluates the agent's finished quarters and persists the
// result. It is a no-op inside the agent's current quarter.
func (s *Service) RolloverAgent(ctx context.Context, agentID string) (*RolloverResult, error) {
	now := s.Now()
	res := &RolloverResult{AgentID: agentID}

	err := s.store.WithTx(ctx, func(st Store) error {
		a, err := st.GetAgent(ctx, agentID)
		if err != nil {
			return err
		}
		s.checkTier(a)

		before := a.QuarterStart
		outcomes, err := s.rollForward(a, now)
		if err != nil {
			return err
		}
		if len(outcomes) == 0 && a.QuarterStart.Equal(before) {
			return nil
		}
		if err := s.recordOutcomes(ctx, st, a, outcomes, now); err != nil {
			return err
		}
		a.UpdatedAt = now
		res.Outcomes = outcomes
		return st.SaveAgent(ctx, *a)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, s.outcomeEvents(agentID, res.Outcomes, now))
	return res, nil
}

// RunRollover rolls every agent forward. One agent failing does not stop
// the run; the first error is returned after all agents were tried.
func (s *Service) RunRollover(ctx context.Context) ([]RolloverResult, error) {
	start := time.Now()
	defer s.metrics.ObserveRollover(start)

	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	var (
		results  []RolloverResult
		firstErr error
	)
	for _, a := range agents {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.RolloverAgent(ctx, a.ID)
		if err != nil {
			s.log.WithError(err).WithField("agent_id", a.ID).Error("rollover failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(res.Outcomes) > 0 {
			results = append(results, *res)
		}
	}

	s.log.WithFields(logrus.Fields{
		"agents": len(agents),
		"rolled": len(results),
	}).Info("quarter rollover finished")
	return results, firstErr
}
