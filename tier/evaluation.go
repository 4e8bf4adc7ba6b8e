package tier

// =============================================================================
// QUARTER-END EVALUATION - Per-agent state machine
// =============================================================================
//
//   on_track ──(no shortfall)──────────────────────→ maintain
//   on_track ──(shortfall ≤ 10%, not in grace)─────→ grace_started
//   grace    ──(gap closed)────────────────────────→ grace_cleared
//   grace    ──(any shortfall)─────────────────────→ demoted
//   on_track ──(shortfall > 10%)───────────────────→ demoted
//
// Demotion is one level. The recommended standing always has the quarter
// counter reset; applying the reset is the caller's job.

// Outcome is the result of evaluating one finished quarter.
type Outcome string

const (
	OutcomeMaintain     Outcome = "maintain"
	OutcomeGraceStarted Outcome = "grace_started"
	OutcomeGraceCleared Outcome = "grace_cleared"
	OutcomeDemoted      Outcome = "demoted"
)

// QuarterOutcome is the recommendation for one agent at one quarter end.
type QuarterOutcome struct {
	Quarter   Quarter
	Outcome   Outcome
	Tickets   int
	Target    int
	Shortfall int
	Standing  Standing // recommended standing for the next quarter
	Change    *Change  // nil for OutcomeMaintain
}

// EvaluateQuarter decides what the finished quarter q means for s.
// s.CurrentQuarterTickets must hold the tickets completed during q.
// A grace period started here runs until the end of the following quarter.
func (e *Engine) EvaluateQuarter(s Standing, q Quarter) (QuarterOutcome, error) {
	if err := s.Validate(); err != nil {
		return QuarterOutcome{}, err
	}

	target := e.QuarterlyTarget(s.CurrentTier)
	out := QuarterOutcome{
		Quarter:   q,
		Outcome:   OutcomeMaintain,
		Tickets:   s.CurrentQuarterTickets,
		Target:    target,
		Shortfall: shortfallOf(s.CurrentQuarterTickets, target),
		Standing:  s,
	}
	out.Standing.CurrentQuarterTickets = 0

	demote, err := e.ShouldDemote(s.CurrentQuarterTickets, target, s.InGrace())
	if err != nil {
		return QuarterOutcome{}, err
	}
	grace, err := e.NeedsGracePeriod(s.CurrentQuarterTickets, target)
	if err != nil {
		return QuarterOutcome{}, err
	}

	switch {
	case demote:
		prev, ok := e.PreviousTier(s.CurrentTier)
		if !ok {
			break
		}
		out.Outcome = OutcomeDemoted
		out.Standing.CurrentTier = prev.Name
		out.Standing.GraceEndDate = nil
		out.Change = &Change{Kind: ChangeDemoted, From: s.CurrentTier, To: prev.Name}
		return out, nil

	case grace && !s.InGrace():
		end := q.Next().End
		out.Outcome = OutcomeGraceStarted
		out.Standing.GraceEndDate = &end
		out.Change = &Change{Kind: ChangeGraceStarted, From: s.CurrentTier, To: s.CurrentTier}
		return out, nil
	}

	if s.InGrace() {
		out.Outcome = OutcomeGraceCleared
		out.Standing.GraceEndDate = nil
		out.Change = &Change{Kind: ChangeGraceCleared, From: s.CurrentTier, To: s.CurrentTier}
	}
	return out, nil
}
