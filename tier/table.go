package tier

import "fmt"

// =============================================================================
// TABLE - Immutable ordered tier configuration
// =============================================================================

// Table is the ordered list of tiers, lowest first. Adjacency comes from
// slice position; the index map only speeds up name lookups.
type Table struct {
	tiers []Definition
	index map[Name]int
}

// NewTable validates and freezes a tier table.
// Tiers must be non-empty, uniquely named and strictly ascending by
// MinLifetimeTickets; the first tier must start at 0 with no quarterly target.
func NewTable(defs ...Definition) (*Table, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no tiers", ErrInvalidTable)
	}
	if defs[0].MinLifetimeTickets != 0 {
		return nil, fmt.Errorf("%w: base tier %q must start at 0 lifetime tickets", ErrInvalidTable, defs[0].Name)
	}
	if defs[0].QuarterlyTarget != 0 {
		return nil, fmt.Errorf("%w: base tier %q cannot have a quarterly target", ErrInvalidTable, defs[0].Name)
	}

	t := &Table{
		tiers: make([]Definition, len(defs)),
		index: make(map[Name]int, len(defs)),
	}
	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: tier %d has no name", ErrInvalidTable, i)
		}
		if _, dup := t.index[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tier %q", ErrInvalidTable, d.Name)
		}
		if d.CommissionPerTicket < 0 || d.QuarterlyTarget < 0 || d.MinLifetimeTickets < 0 {
			return nil, fmt.Errorf("%w: tier %q has negative values", ErrInvalidTable, d.Name)
		}
		if i > 0 && d.MinLifetimeTickets <= defs[i-1].MinLifetimeTickets {
			return nil, fmt.Errorf("%w: tier %q threshold %d not above %q",
				ErrInvalidTable, d.Name, d.MinLifetimeTickets, defs[i-1].Name)
		}
		if d.Label == "" {
			d.Label = string(d.Name)
		}
		t.tiers[i] = d
		t.index[d.Name] = i
	}
	return t, nil
}

// MustNewTable is NewTable for static tables known to be valid.
func MustNewTable(defs ...Definition) *Table {
	t, err := NewTable(defs...)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultTable returns the production tier ladder.
func DefaultTable() *Table {
	return MustNewTable(
		Definition{Name: Starter, Label: "Starter", MinLifetimeTickets: 0, CommissionPerTicket: 15000, QuarterlyTarget: 0},
		Definition{Name: Growth, Label: "Growth", MinLifetimeTickets: 3, CommissionPerTicket: 20000, QuarterlyTarget: 3},
		Definition{Name: Prime, Label: "Prime", MinLifetimeTickets: 15, CommissionPerTicket: 25000, QuarterlyTarget: 8},
		Definition{Name: Elite, Label: "Elite", MinLifetimeTickets: 40, CommissionPerTicket: 30000, QuarterlyTarget: 15},
		Definition{Name: Legend, Label: "Legend", MinLifetimeTickets: 100, CommissionPerTicket: 40000, QuarterlyTarget: 25},
	)
}

// Tiers returns a copy of the definitions, lowest first.
func (t *Table) Tiers() []Definition {
	out := make([]Definition, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Len returns the number of tiers.
func (t *Table) Len() int { return len(t.tiers) }

// Base returns the lowest tier.
func (t *Table) Base() Definition { return t.tiers[0] }

// Top returns the highest tier.
func (t *Table) Top() Definition { return t.tiers[len(t.tiers)-1] }

func (t *Table) position(name Name) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

func (t *Table) get(name Name) (Definition, bool) {
	i, ok := t.index[name]
	if !ok {
		return Definition{}, false
	}
	return t.tiers[i], true
}
