package tier_test

import (
	"errors"
	"testing"
	"time"

	"github.com/skyagent/tier-engine/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newEngine() *tier.Engine {
	return tier.NewEngine(tier.DefaultTable())
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

var allTiers = []tier.Name{tier.Starter, tier.Growth, tier.Prime, tier.Elite, tier.Legend}

// =============================================================================
// ADJACENCY
// =============================================================================

func TestNextTier_Ladder(t *testing.T) {
	e := newEngine()

	for i, name := range allTiers[:len(allTiers)-1] {
		next, ok := e.NextTier(name)
		require.True(t, ok, "next of %s", name)
		assert.Equal(t, allTiers[i+1], next.Name)
	}

	_, ok := e.NextTier(tier.Legend)
	assert.False(t, ok, "legend is the top tier")

	_, ok = e.NextTier("platinum")
	assert.False(t, ok, "unknown tier is treated as already at the top")
}

func TestPreviousTier_Ladder(t *testing.T) {
	e := newEngine()

	_, ok := e.PreviousTier(tier.Starter)
	assert.False(t, ok)

	prev, ok := e.PreviousTier(tier.Elite)
	require.True(t, ok)
	assert.Equal(t, tier.Prime, prev.Name)

	_, ok = e.PreviousTier("platinum")
	assert.False(t, ok)
}

func TestAdjacency_InverseConsistency(t *testing.T) {
	e := newEngine()

	for _, name := range allTiers {
		if prev, ok := e.PreviousTier(name); ok {
			back, ok := e.NextTier(prev.Name)
			require.True(t, ok)
			assert.Equal(t, name, back.Name, "next(previous(%s))", name)
		}
		if next, ok := e.NextTier(name); ok {
			back, ok := e.PreviousTier(next.Name)
			require.True(t, ok)
			assert.Equal(t, name, back.Name, "previous(next(%s))", name)
		}
	}
}

// =============================================================================
// PROMOTION
// =============================================================================

func TestQualifyingTier_StarterReachesGrowth(t *testing.T) {
	// GIVEN: Starter agent with 3 lifetime tickets (growth threshold)
	// WHEN: Checking promotion
	// THEN: Growth is recommended
	e := newEngine()

	to, ok, err := e.QualifyingTierForLifetime(3, tier.Starter)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tier.Growth, to)
}

func TestQualifyingTier_BelowThreshold(t *testing.T) {
	e := newEngine()

	_, ok, err := e.QualifyingTierForLifetime(2, tier.Starter)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = e.QualifyingTierForLifetime(39, tier.Prime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQualifyingTier_MultiLevelJump(t *testing.T) {
	// GIVEN: Starter agent whose lifetime count was backfilled to 45
	// WHEN: Checking promotion
	// THEN: Elite (the highest reached), not merely Growth
	e := newEngine()

	to, ok, err := e.QualifyingTierForLifetime(45, tier.Starter)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tier.Elite, to)
}

func TestQualifyingTier_ReachesLegend(t *testing.T) {
	e := newEngine()

	to, ok, err := e.QualifyingTierForLifetime(100, tier.Prime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tier.Legend, to)

	_, ok, err = e.QualifyingTierForLifetime(500, tier.Legend)
	require.NoError(t, err)
	assert.False(t, ok, "already at legend")
}

func TestQualifyingTier_NeverDemotes(t *testing.T) {
	// GIVEN: Elite agent whose lifetime count is below the elite threshold
	// THEN: No change is recommended (lifetime volume only promotes)
	e := newEngine()

	_, ok, err := e.QualifyingTierForLifetime(5, tier.Elite)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQualifyingTier_UnknownCurrentTier(t *testing.T) {
	e := newEngine()

	_, ok, err := e.QualifyingTierForLifetime(1000, "platinum")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQualifyingTier_NegativeLifetimeRejected(t *testing.T) {
	e := newEngine()

	_, _, err := e.QualifyingTierForLifetime(-1, tier.Starter)
	require.Error(t, err)
	assert.ErrorIs(t, err, tier.ErrNegativeTickets)

	var inputErr *tier.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "lifetime_tickets", inputErr.Field)
}

func TestQualifyingTier_NeverExceedsLifetime(t *testing.T) {
	e := newEngine()
	table := e.Table()

	for _, current := range allTiers {
		for lifetime := 0; lifetime <= 150; lifetime++ {
			to, ok, err := e.QualifyingTierForLifetime(lifetime, current)
			require.NoError(t, err)
			if !ok {
				continue
			}
			for _, d := range table.Tiers() {
				if d.Name == to {
					assert.LessOrEqual(t, d.MinLifetimeTickets, lifetime,
						"recommended %s for lifetime %d", to, lifetime)
				}
			}
		}
	}
}

func TestQualifyingTier_Monotonic(t *testing.T) {
	e := newEngine()
	rank := make(map[tier.Name]int)
	for i, n := range allTiers {
		rank[n] = i
	}
	effective := func(lifetime int, current tier.Name) int {
		to, ok, err := e.QualifyingTierForLifetime(lifetime, current)
		require.NoError(t, err)
		if !ok {
			return rank[current]
		}
		return rank[to]
	}

	for _, current := range allTiers {
		prev := effective(0, current)
		for lifetime := 1; lifetime <= 150; lifetime++ {
			got := effective(lifetime, current)
			assert.GreaterOrEqual(t, got, prev, "lifetime %d from %s", lifetime, current)
			prev = got
		}
	}
}

// =============================================================================
// QUARTERLY MAINTENANCE
// =============================================================================

func TestQuarterlyTarget_Lookup(t *testing.T) {
	e := newEngine()

	assert.Equal(t, 0, e.QuarterlyTarget(tier.Starter))
	assert.Equal(t, 15, e.QuarterlyTarget(tier.Elite))
	assert.Equal(t, 0, e.QuarterlyTarget("platinum"))
}

func TestGraceAndDemotion_EliteScenarios(t *testing.T) {
	// GIVEN: Elite agent, target 15, not in grace
	e := newEngine()
	target := e.QuarterlyTarget(tier.Elite)
	require.Equal(t, 15, target)

	// WHEN: 13 tickets (shortfall 2 = 13.3%)
	// THEN: No grace; immediate demotion
	grace, err := e.NeedsGracePeriod(13, target)
	require.NoError(t, err)
	assert.False(t, grace)
	demote, err := e.ShouldDemote(13, target, false)
	require.NoError(t, err)
	assert.True(t, demote)

	// WHEN: 14 tickets (shortfall 1 = 6.7%)
	// THEN: Grace, no demotion yet
	grace, err = e.NeedsGracePeriod(14, target)
	require.NoError(t, err)
	assert.True(t, grace)
	demote, err = e.ShouldDemote(14, target, false)
	require.NoError(t, err)
	assert.False(t, demote)

	// WHEN: 14 tickets while already in grace
	// THEN: Demote
	demote, err = e.ShouldDemote(14, target, true)
	require.NoError(t, err)
	assert.True(t, demote)
}

func TestNeedsGracePeriod_ExactlyTenPercent(t *testing.T) {
	e := newEngine()

	// Shortfall 2 of 20 is exactly 10%: grace.
	grace, err := e.NeedsGracePeriod(18, 20)
	require.NoError(t, err)
	assert.True(t, grace)
	demote, err := e.ShouldDemote(18, 20, false)
	require.NoError(t, err)
	assert.False(t, demote)

	// Shortfall 3 of 20 is 15%: demotion.
	grace, err = e.NeedsGracePeriod(17, 20)
	require.NoError(t, err)
	assert.False(t, grace)
	demote, err = e.ShouldDemote(17, 20, false)
	require.NoError(t, err)
	assert.True(t, demote)
}

func TestNeedsGracePeriod_EdgeCases(t *testing.T) {
	e := newEngine()

	cases := []struct {
		name    string
		current int
		target  int
		want    bool
	}{
		{"zero target", 0, 0, false},
		{"on target", 15, 15, false},
		{"above target", 20, 15, false},
		{"small target any miss is over 10%", 2, 3, false},
		{"boundary at ten percent", 18, 20, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.NeedsGracePeriod(tc.current, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestShouldDemote_ZeroTargetNeverDemotes(t *testing.T) {
	e := newEngine()

	for current := 0; current <= 10; current++ {
		for _, inGrace := range []bool{false, true} {
			demote, err := e.ShouldDemote(current, e.QuarterlyTarget(tier.Starter), inGrace)
			require.NoError(t, err)
			assert.False(t, demote)
		}
	}
}

func TestGraceAndOutrightDemotion_MutuallyExclusive(t *testing.T) {
	e := newEngine()

	for target := 0; target <= 40; target++ {
		for current := 0; current <= target+2; current++ {
			grace, err := e.NeedsGracePeriod(current, target)
			require.NoError(t, err)
			demote, err := e.ShouldDemote(current, target, false)
			require.NoError(t, err)
			assert.False(t, grace && demote, "current=%d target=%d", current, target)
		}
	}
}

func TestQuarterInputs_NegativeRejected(t *testing.T) {
	e := newEngine()

	_, err := e.NeedsGracePeriod(-1, 10)
	assert.ErrorIs(t, err, tier.ErrNegativeTickets)

	_, err = e.ShouldDemote(5, -3, false)
	assert.ErrorIs(t, err, tier.ErrNegativeTickets)
}

// =============================================================================
// COMMISSION
// =============================================================================

func TestComputeCommission_Linear(t *testing.T) {
	e := newEngine()

	for _, d := range e.Table().Tiers() {
		for n := 0; n <= 20; n++ {
			got, err := e.ComputeCommission(n, d.Name)
			require.NoError(t, err)
			assert.Equal(t, tier.VND(n)*d.CommissionPerTicket, got)
		}
	}
}

func TestComputeCommission_UnknownTierIsZero(t *testing.T) {
	e := newEngine()

	got, err := e.ComputeCommission(7, "unknown")
	require.NoError(t, err)
	assert.Equal(t, tier.VND(0), got)
}

func TestComputeCommission_NegativeRejected(t *testing.T) {
	e := newEngine()

	_, err := e.ComputeCommission(-2, tier.Prime)
	assert.True(t, tier.IsInputError(err))
}

func TestLookup_UnknownTier(t *testing.T) {
	e := newEngine()

	_, err := e.Lookup("platinum")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tier.ErrUnknownTier))

	d, err := e.Lookup(tier.Prime)
	require.NoError(t, err)
	assert.Equal(t, tier.VND(25000), d.CommissionPerTicket)
}

func TestEngine_Idempotent(t *testing.T) {
	e := newEngine()

	a1, ok1, _ := e.QualifyingTierForLifetime(42, tier.Growth)
	a2, ok2, _ := e.QualifyingTierForLifetime(42, tier.Growth)
	assert.Equal(t, a1, a2)
	assert.Equal(t, ok1, ok2)

	c1, _ := e.ComputeCommission(9, tier.Elite)
	c2, _ := e.ComputeCommission(9, tier.Elite)
	assert.Equal(t, c1, c2)

	q1 := tier.ClassifyQuarter(day(2025, time.May, 5))
	q2 := tier.ClassifyQuarter(day(2025, time.May, 5))
	assert.Equal(t, q1, q2)
}

func TestNewEngine_NilTableUsesDefault(t *testing.T) {
	e := tier.NewEngine(nil)
	assert.Equal(t, 5, e.Table().Len())
}
