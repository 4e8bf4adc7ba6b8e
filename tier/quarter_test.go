package tier_test

import (
	"testing"
	"time"

	"github.com/skyagent/tier-engine/tier"
	"github.com/stretchr/testify/assert"
)

func TestClassifyQuarter_MidSummer(t *testing.T) {
	// GIVEN: 2025-07-31
	// THEN: Q3 2025, July 1 to September 30
	q := tier.ClassifyQuarter(day(2025, time.July, 31))

	assert.Equal(t, 2025, q.Year)
	assert.Equal(t, 3, q.Number)
	assert.Equal(t, "Q3 2025", q.Label)
	assert.Equal(t, day(2025, time.July, 1), q.Start)
	assert.Equal(t, day(2025, time.September, 30), q.End)
}

func TestClassifyQuarter_AllQuarters(t *testing.T) {
	cases := []struct {
		at    time.Time
		num   int
		start time.Time
		end   time.Time
	}{
		{day(2024, time.January, 1), 1, day(2024, time.January, 1), day(2024, time.March, 31)},
		{day(2024, time.February, 29), 1, day(2024, time.January, 1), day(2024, time.March, 31)},
		{day(2024, time.April, 1), 2, day(2024, time.April, 1), day(2024, time.June, 30)},
		{day(2024, time.June, 30), 2, day(2024, time.April, 1), day(2024, time.June, 30)},
		{day(2024, time.October, 1), 4, day(2024, time.October, 1), day(2024, time.December, 31)},
		{time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC), 4, day(2024, time.October, 1), day(2024, time.December, 31)},
	}
	for _, tc := range cases {
		q := tier.ClassifyQuarter(tc.at)
		assert.Equal(t, tc.num, q.Number, tc.at.String())
		assert.Equal(t, tc.start, q.Start, tc.at.String())
		assert.Equal(t, tc.end, q.End, tc.at.String())
	}
}

func TestClassifyQuarter_KeepsLocation(t *testing.T) {
	hcm := time.FixedZone("ICT", 7*3600)
	q := tier.ClassifyQuarter(time.Date(2025, time.March, 31, 23, 30, 0, 0, hcm))

	assert.Equal(t, 1, q.Number)
	assert.Equal(t, hcm, q.Start.Location())
}

func TestQuarter_NextAndPrevious(t *testing.T) {
	q4 := tier.ClassifyQuarter(day(2025, time.November, 15))

	next := q4.Next()
	assert.Equal(t, "Q1 2026", next.Label)
	assert.Equal(t, day(2026, time.March, 31), next.End)

	assert.Equal(t, q4, next.Previous())
	assert.Equal(t, "Q4 2024", tier.ClassifyQuarter(day(2025, time.February, 1)).Previous().Label)
}

func TestQuarter_Contains(t *testing.T) {
	q := tier.ClassifyQuarter(day(2025, time.April, 10))

	assert.True(t, q.Contains(day(2025, time.April, 1)))
	assert.True(t, q.Contains(time.Date(2025, time.June, 30, 22, 0, 0, 0, time.UTC)))
	assert.False(t, q.Contains(day(2025, time.July, 1)))
	assert.False(t, q.Contains(day(2025, time.March, 31)))
}

func TestQuarter_Before(t *testing.T) {
	q := tier.ClassifyQuarter(day(2025, time.April, 10))

	assert.True(t, q.Previous().Before(q))
	assert.False(t, q.Before(q))
	assert.True(t, q.Before(q.Next().Next().Next().Next()))
}
