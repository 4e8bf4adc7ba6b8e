package tier

// =============================================================================
// ENGINE - Stateless rules over an injected table
// =============================================================================

// gracePercent is the largest quarterly shortfall, as a percentage of the
// target, that earns a grace period instead of an immediate demotion.
const gracePercent = 10

// Engine evaluates tier rules against a fixed Table.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	table *Table
}

// NewEngine creates an engine over table. A nil table selects DefaultTable.
func NewEngine(table *Table) *Engine {
	if table == nil {
		table = DefaultTable()
	}
	return &Engine{table: table}
}

// Table returns the engine's tier table.
func (e *Engine) Table() *Table { return e.table }

// Lookup returns the definition for name, or an *UnknownTierError.
func (e *Engine) Lookup(name Name) (Definition, error) {
	d, ok := e.table.get(name)
	if !ok {
		return Definition{}, &UnknownTierError{Name: name}
	}
	return d, nil
}

// =============================================================================
// ADJACENCY
// =============================================================================

// NextTier returns the tier directly above name. Unknown names are treated
// as already at the top.
func (e *Engine) NextTier(name Name) (Definition, bool) {
	i, ok := e.table.position(name)
	if !ok || i+1 >= len(e.table.tiers) {
		return Definition{}, false
	}
	return e.table.tiers[i+1], true
}

// PreviousTier returns the tier directly below name.
func (e *Engine) PreviousTier(name Name) (Definition, bool) {
	i, ok := e.table.position(name)
	if !ok || i == 0 {
		return Definition{}, false
	}
	return e.table.tiers[i-1], true
}

// =============================================================================
// PROMOTION
// =============================================================================

// QualifyingTierForLifetime returns the highest tier above current whose
// threshold lifetime reaches, or false when no promotion is warranted.
// A jump across several tiers reports the highest one reached. This never
// recommends a lower tier.
func (e *Engine) QualifyingTierForLifetime(lifetime int, current Name) (Name, bool, error) {
	if lifetime < 0 {
		return "", false, negative("lifetime_tickets", lifetime)
	}
	i, ok := e.table.position(current)
	if !ok {
		return "", false, nil
	}

	reached := i
	for j := i + 1; j < len(e.table.tiers); j++ {
		if lifetime < e.table.tiers[j].MinLifetimeTickets {
			break
		}
		reached = j
	}
	if reached == i {
		return "", false, nil
	}
	return e.table.tiers[reached].Name, true, nil
}

// =============================================================================
// QUARTERLY MAINTENANCE
// =============================================================================

// QuarterlyTarget returns the tickets per quarter required to keep name, or 0.
func (e *Engine) QuarterlyTarget(name Name) int {
	d, ok := e.table.get(name)
	if !ok {
		return 0
	}
	return d.QuarterlyTarget
}

// NeedsGracePeriod reports whether a shortfall is small enough (at most 10%
// of a nonzero target) to defer demotion by one quarter.
func (e *Engine) NeedsGracePeriod(current, target int) (bool, error) {
	if err := checkQuarterInputs(current, target); err != nil {
		return false, err
	}
	shortfall := target - current
	return target > 0 && shortfall > 0 && shortfall*100 <= target*gracePercent, nil
}

// ShouldDemote reports whether the quarter's result costs the agent a tier.
// In grace any shortfall demotes; otherwise only a shortfall above 10% does.
func (e *Engine) ShouldDemote(current, target int, inGrace bool) (bool, error) {
	if err := checkQuarterInputs(current, target); err != nil {
		return false, err
	}
	if target == 0 {
		return false, nil
	}
	shortfall := target - current
	if shortfall <= 0 {
		return false, nil
	}
	if inGrace {
		return true, nil
	}
	return shortfall*100 > target*gracePercent, nil
}

func checkQuarterInputs(current, target int) error {
	if current < 0 {
		return negative("current_quarter_tickets", current)
	}
	if target < 0 {
		return negative("quarterly_target", target)
	}
	return nil
}

func shortfallOf(current, target int) int {
	if current >= target {
		return 0
	}
	return target - current
}

// =============================================================================
// COMMISSION
// =============================================================================

// ComputeCommission returns tickets × the tier's per-ticket rate, or 0 for
// an unknown tier.
func (e *Engine) ComputeCommission(tickets int, name Name) (VND, error) {
	if tickets < 0 {
		return 0, negative("tickets", tickets)
	}
	d, ok := e.table.get(name)
	if !ok {
		return 0, nil
	}
	return VND(tickets) * d.CommissionPerTicket, nil
}
