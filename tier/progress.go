package tier

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROGRESS SNAPSHOT
// =============================================================================

// promotionWindow is how close (in tickets) the next tier must be for the
// "promotion imminent" message.
const promotionWindow = 3

var hundred = decimal.NewFromInt(100)

// LifetimeProgress tracks the way to the next tier.
type LifetimeProgress struct {
	Current       int
	Target        int  // current tier's threshold
	NextTier      Name // empty at the top
	NextThreshold int
	Percentage    decimal.Decimal // toward NextThreshold, capped at 100
	TicketsToNext int
}

// QuarterlyProgress tracks the current quarter's maintenance target.
type QuarterlyProgress struct {
	Quarter    Quarter
	Current    int
	Target     int
	Percentage decimal.Decimal // 100 when Target is 0
	Shortfall  int
	OnTrack    bool
}

// GraceStatus is reported only while a grace end date is recorded.
type GraceStatus struct {
	EndDate       time.Time
	IsActive      bool
	DaysLeft      int
	TicketsNeeded int
}

// MessageType tags a status message for the presentation layer.
type MessageType string

const (
	MessagePromotion MessageType = "promotion"
	MessageGrace     MessageType = "grace"
	MessageWarning   MessageType = "warning"
	MessageLegend    MessageType = "legend"
	MessageInfo      MessageType = "info"
)

// Status message priorities, 1 highest.
const (
	PriorityPromotion = 1
	PriorityGrace     = 2
	PriorityShortfall = 3
	PriorityLegend    = 4
	PriorityDefault   = 5
)

// StatusMessage is the single headline shown to an agent.
type StatusMessage struct {
	Type     MessageType
	Title    string
	Message  string
	Icon     string
	Priority int
}

// Progress is a read-only snapshot of an agent's standing.
type Progress struct {
	AgentID     string
	Tier        Definition
	Lifetime    LifetimeProgress
	Quarterly   QuarterlyProgress
	Grace       *GraceStatus
	Status      StatusMessage
	EvaluatedAt time.Time
}

// EvaluateAgentProgress builds the progress snapshot for s as of now.
func (e *Engine) EvaluateAgentProgress(s Standing, now time.Time) (Progress, error) {
	if err := s.Validate(); err != nil {
		return Progress{}, err
	}

	current, ok := e.table.get(s.CurrentTier)
	if !ok {
		current = Definition{Name: s.CurrentTier, Label: string(s.CurrentTier)}
	}

	p := Progress{
		AgentID:     s.AgentID,
		Tier:        current,
		Lifetime:    e.lifetimeProgress(s, current),
		Quarterly:   quarterlyProgress(s, current, now),
		EvaluatedAt: now,
	}
	if s.GraceEndDate != nil {
		p.Grace = graceStatus(*s.GraceEndDate, p.Quarterly.Shortfall, now)
	}
	p.Status = e.statusMessage(p)
	return p, nil
}

func (e *Engine) lifetimeProgress(s Standing, current Definition) LifetimeProgress {
	lp := LifetimeProgress{
		Current:    s.LifetimeTickets,
		Target:     current.MinLifetimeTickets,
		Percentage: hundred,
	}
	next, ok := e.NextTier(s.CurrentTier)
	if !ok {
		return lp
	}
	lp.NextTier = next.Name
	lp.NextThreshold = next.MinLifetimeTickets
	lp.TicketsToNext = max(0, next.MinLifetimeTickets-s.LifetimeTickets)
	lp.Percentage = percentOf(s.LifetimeTickets, next.MinLifetimeTickets)
	return lp
}

func quarterlyProgress(s Standing, current Definition, now time.Time) QuarterlyProgress {
	target := current.QuarterlyTarget
	shortfall := shortfallOf(s.CurrentQuarterTickets, target)
	qp := QuarterlyProgress{
		Quarter:    ClassifyQuarter(now),
		Current:    s.CurrentQuarterTickets,
		Target:     target,
		Percentage: hundred,
		Shortfall:  shortfall,
		OnTrack:    shortfall == 0,
	}
	if target > 0 {
		qp.Percentage = percentOf(s.CurrentQuarterTickets, target)
	}
	return qp
}

// graceStatus counts whole days left; the end date itself is the last day
// of grace. The end date is a calendar day in now's location, whatever
// location it was stored in.
func graceStatus(end time.Time, shortfall int, now time.Time) *GraceStatus {
	deadline := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	days := 0
	if remaining := deadline.Sub(now); remaining > 0 {
		days = int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	}
	return &GraceStatus{
		EndDate:       end,
		IsActive:      days > 0,
		DaysLeft:      days,
		TicketsNeeded: shortfall,
	}
}

func percentOf(part, whole int) decimal.Decimal {
	if whole <= 0 {
		return hundred
	}
	pct := decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))).Round(1)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// =============================================================================
// STATUS MESSAGE - First matching rule wins
// =============================================================================

func (e *Engine) statusMessage(p Progress) StatusMessage {
	lp, qp := p.Lifetime, p.Quarterly

	if lp.NextTier != "" && lp.TicketsToNext > 0 && lp.TicketsToNext <= promotionWindow {
		next, _ := e.table.get(lp.NextTier)
		return StatusMessage{
			Type:  MessagePromotion,
			Title: fmt.Sprintf("Sắp lên hạng %s!", next.Label),
			Message: fmt.Sprintf("Chỉ còn %d vé nữa để lên hạng %s, hoa hồng tăng lên %s mỗi vé.",
				lp.TicketsToNext, next.Label, next.CommissionPerTicket),
			Icon:     "🚀",
			Priority: PriorityPromotion,
		}
	}

	if p.Grace != nil && p.Grace.IsActive {
		return StatusMessage{
			Type:  MessageGrace,
			Title: "Đang trong thời gian ân hạn",
			Message: fmt.Sprintf("Còn %d ngày để hoàn thành thêm %d vé và giữ hạng %s.",
				p.Grace.DaysLeft, p.Grace.TicketsNeeded, p.Tier.Label),
			Icon:     "⏳",
			Priority: PriorityGrace,
		}
	}

	if qp.Shortfall > 0 && qp.Target > 0 {
		return StatusMessage{
			Type:  MessageWarning,
			Title: "Chưa đạt chỉ tiêu quý",
			Message: fmt.Sprintf("Cần thêm %d vé trong %s để giữ hạng %s (chỉ tiêu %d vé).",
				qp.Shortfall, qp.Quarter.Label, p.Tier.Label, qp.Target),
			Icon:     "⚠️",
			Priority: PriorityShortfall,
		}
	}

	if p.Tier.Name == e.table.Top().Name {
		return StatusMessage{
			Type:  MessageLegend,
			Title: fmt.Sprintf("Hạng %s", p.Tier.Label),
			Message: fmt.Sprintf("Bạn đang ở hạng cao nhất. Duy trì tối thiểu %d vé mỗi quý để giữ hạng, hoa hồng %s mỗi vé.",
				qp.Target, p.Tier.CommissionPerTicket),
			Icon:     "👑",
			Priority: PriorityLegend,
		}
	}

	return StatusMessage{
		Type:  MessageInfo,
		Title: "Tiến độ của bạn",
		Message: fmt.Sprintf("Hạng %s · %d vé tích lũy · %d/%d vé trong %s · hoa hồng %s mỗi vé.",
			p.Tier.Label, lp.Current, qp.Current, qp.Target, qp.Quarter.Label, p.Tier.CommissionPerTicket),
		Icon:     "📊",
		Priority: PriorityDefault,
	}
}
