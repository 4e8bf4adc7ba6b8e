package tier

import (
	"fmt"
	"time"
)

// =============================================================================
// QUARTER - Calendar quarter window, computed on demand
// =============================================================================

// Quarter is one of Q1 (Jan–Mar), Q2 (Apr–Jun), Q3 (Jul–Sep), Q4 (Oct–Dec).
// Start and End are midnight of the first and last calendar day.
type Quarter struct {
	Year   int
	Number int
	Start  time.Time
	End    time.Time
	Label  string
}

// ClassifyQuarter returns the quarter containing t, in t's location.
func ClassifyQuarter(t time.Time) Quarter {
	return quarterOf(t.Year(), (int(t.Month())-1)/3+1, t.Location())
}

func quarterOf(year, number int, loc *time.Location) Quarter {
	firstMonth := time.Month((number-1)*3 + 1)
	start := time.Date(year, firstMonth, 1, 0, 0, 0, 0, loc)
	// Day 0 of the month after the quarter is the quarter's last day.
	end := time.Date(year, firstMonth+3, 0, 0, 0, 0, 0, loc)
	return Quarter{
		Year:   year,
		Number: number,
		Start:  start,
		End:    end,
		Label:  fmt.Sprintf("Q%d %d", number, year),
	}
}

// Next returns the following quarter.
func (q Quarter) Next() Quarter {
	if q.Number == 4 {
		return quarterOf(q.Year+1, 1, q.Start.Location())
	}
	return quarterOf(q.Year, q.Number+1, q.Start.Location())
}

// Previous returns the preceding quarter.
func (q Quarter) Previous() Quarter {
	if q.Number == 1 {
		return quarterOf(q.Year-1, 4, q.Start.Location())
	}
	return quarterOf(q.Year, q.Number-1, q.Start.Location())
}

// Contains reports whether t falls on any day of the quarter.
func (q Quarter) Contains(t time.Time) bool {
	t = t.In(q.Start.Location())
	return !t.Before(q.Start) && t.Before(q.End.AddDate(0, 0, 1))
}

// Before reports whether q ends before other starts.
func (q Quarter) Before(other Quarter) bool {
	return q.Year < other.Year || (q.Year == other.Year && q.Number < other.Number)
}

func (q Quarter) String() string { return q.Label }
