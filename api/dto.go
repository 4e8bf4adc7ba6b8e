/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in tier/ and agent/ from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  - Dates:       "2006-01-02"
  - Timestamps:  RFC 3339
  - Money:       integer đồng plus a "*_display" string ("50.000 ₫")
  - Percentages: float, one decimal place

VALIDATION:
  Validation is done by agent.Service, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/skyagent/tier-engine/agent"
	"github.com/skyagent/tier-engine/stats"
	"github.com/skyagent/tier-engine/tier"
)

const dateLayout = "2006-01-02"

// =============================================================================
// TIERS & QUARTERS
// =============================================================================

// TierDTO represents one row of the tier table.
type TierDTO struct {
	Name                string `json:"name"`
	Label               string `json:"label"`
	MinLifetimeTickets  int    `json:"min_lifetime_tickets"`
	CommissionPerTicket int64  `json:"commission_per_ticket"`
	CommissionDisplay   string `json:"commission_display"`
	QuarterlyTarget     int    `json:"quarterly_target"`
}

// QuarterDTO represents a calendar quarter.
type QuarterDTO struct {
	Label  string `json:"label"`
	Year   int    `json:"year"`
	Number int    `json:"number"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// =============================================================================
// AGENTS
// =============================================================================

// AgentDTO represents an agent and its standing.
type AgentDTO struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	Email                 string  `json:"email,omitempty"`
	Tier                  string  `json:"tier"`
	LifetimeTickets       int     `json:"lifetime_tickets"`
	CurrentQuarterTickets int     `json:"current_quarter_tickets"`
	GraceEndDate          *string `json:"grace_end_date,omitempty"`
	QuarterStart          string  `json:"quarter_start"`
	CreatedAt             string  `json:"created_at"`
}

// CreateAgentRequest is the request to register an agent.
type CreateAgentRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// =============================================================================
// BOOKINGS
// =============================================================================

// FlightDTO is one flight segment.
type FlightDTO struct {
	FlightNumber string `json:"flight_number,omitempty"`
	Origin       string `json:"origin"`
	Destination  string `json:"destination"`
	DepartDate   string `json:"depart_date"` // RFC 3339
}

// CreateBookingRequest is the request to record a booking for an agent.
type CreateBookingRequest struct {
	Reference      string      `json:"reference,omitempty"`
	Flights        []FlightDTO `json:"flights"`
	PassengerCount int         `json:"passenger_count"`
	TotalPrice     int64       `json:"total_price"`
	TicketIssued   bool        `json:"ticket_issued"`
}

// BookingDTO represents a booking in API responses.
type BookingDTO struct {
	ID             string      `json:"id"`
	AgentID        string      `json:"agent_id"`
	Reference      string      `json:"reference"`
	Status         string      `json:"status"`
	TicketIssued   bool        `json:"ticket_issued"`
	PassengerCount int         `json:"passenger_count"`
	TotalPrice     int64       `json:"total_price"`
	Flights        []FlightDTO `json:"flights"`
	CreatedAt      string      `json:"created_at"`
	CompletedAt    *string     `json:"completed_at,omitempty"`
}

// ChangeDTO is a tier or grace transition.
type ChangeDTO struct {
	Kind string `json:"kind"`
	From string `json:"from"`
	To   string `json:"to"`
}

// OutcomeDTO is the evaluation of one finished quarter.
type OutcomeDTO struct {
	Quarter   string     `json:"quarter"`
	Outcome   string     `json:"outcome"`
	Tickets   int        `json:"tickets"`
	Target    int        `json:"target"`
	Shortfall int        `json:"shortfall"`
	Change    *ChangeDTO `json:"change,omitempty"`
}

// CompletionDTO is the response to completing a booking.
type CompletionDTO struct {
	Booking           BookingDTO   `json:"booking"`
	Agent             AgentDTO     `json:"agent"`
	TicketsEarned     int          `json:"tickets_earned"`
	CommissionEarned  int64        `json:"commission_earned"`
	CommissionDisplay string       `json:"commission_display"`
	Change            *ChangeDTO   `json:"change,omitempty"`
	Rollover          []OutcomeDTO `json:"rollover,omitempty"`
}

// =============================================================================
// LEDGER & HISTORY
// =============================================================================

// CommissionDTO is one commission ledger entry.
type CommissionDTO struct {
	ID        string `json:"id"`
	BookingID string `json:"booking_id"`
	Tier      string `json:"tier"`
	Tickets   int    `json:"tickets"`
	Amount    int64  `json:"amount"`
	Display   string `json:"amount_display"`
	Quarter   string `json:"quarter"`
	CreatedAt string `json:"created_at"`
}

// TierChangeDTO is one tier history entry.
type TierChangeDTO struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	From            string `json:"from"`
	To              string `json:"to"`
	Quarter         string `json:"quarter"`
	LifetimeTickets int    `json:"lifetime_tickets"`
	QuarterTickets  int    `json:"quarter_tickets"`
	OccurredAt      string `json:"occurred_at"`
}

// =============================================================================
// PROGRESS
// =============================================================================

// ProgressDTO is the agent dashboard snapshot.
type ProgressDTO struct {
	AgentID   string               `json:"agent_id"`
	Tier      TierDTO              `json:"tier"`
	Lifetime  LifetimeProgressDTO  `json:"lifetime"`
	Quarterly QuarterlyProgressDTO `json:"quarterly"`
	Grace     *GraceStatusDTO      `json:"grace,omitempty"`
	Status    StatusMessageDTO     `json:"status"`
}

type LifetimeProgressDTO struct {
	Current       int     `json:"current"`
	Target        int     `json:"target"`
	NextTier      string  `json:"next_tier,omitempty"`
	NextThreshold int     `json:"next_threshold,omitempty"`
	Percentage    float64 `json:"percentage"`
	TicketsToNext int     `json:"tickets_to_next"`
}

type QuarterlyProgressDTO struct {
	Quarter    QuarterDTO `json:"quarter"`
	Current    int        `json:"current"`
	Target     int        `json:"target"`
	Percentage float64    `json:"percentage"`
	Shortfall  int        `json:"shortfall"`
	OnTrack    bool       `json:"on_track"`
}

type GraceStatusDTO struct {
	EndDate       string `json:"end_date"`
	IsActive      bool   `json:"is_active"`
	DaysLeft      int    `json:"days_left"`
	TicketsNeeded int    `json:"tickets_needed"`
}

type StatusMessageDTO struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Icon     string `json:"icon"`
	Priority int    `json:"priority"`
}

// =============================================================================
// ADMIN
// =============================================================================

// RolloverDTO is the response to a rollover run.
type RolloverDTO struct {
	AgentsRolled int                `json:"agents_rolled"`
	Results      []AgentRolloverDTO `json:"results"`
	Error        string             `json:"error,omitempty"`
}

type AgentRolloverDTO struct {
	AgentID  string       `json:"agent_id"`
	Outcomes []OutcomeDTO `json:"outcomes"`
}

// SweepDTO is the response to a completion sweep.
type SweepDTO struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// StatsDTO is the admin aggregate.
type StatsDTO struct {
	TotalBookings       int              `json:"total_bookings"`
	Pending             int              `json:"pending"`
	Issued              int              `json:"issued"`
	Completed           int              `json:"completed"`
	Cancelled           int              `json:"cancelled"`
	Passengers          int              `json:"passengers"`
	Revenue             int64            `json:"revenue"`
	AverageBookingValue string           `json:"average_booking_value"`
	CommissionTotal     int64            `json:"commission_total"`
	CommissionByTier    map[string]int64 `json:"commission_by_tier"`
	TopRoutes           []RouteDTO       `json:"top_routes"`
	Quarter             string           `json:"quarter"`
	BookingsThisQuarter int              `json:"bookings_this_quarter"`
}

type RouteDTO struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Passengers  int    `json:"passengers"`
	Bookings    int    `json:"bookings"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTierDTO(d tier.Definition) TierDTO {
	return TierDTO{
		Name:                string(d.Name),
		Label:               d.Label,
		MinLifetimeTickets:  d.MinLifetimeTickets,
		CommissionPerTicket: int64(d.CommissionPerTicket),
		CommissionDisplay:   d.CommissionPerTicket.String(),
		QuarterlyTarget:     d.QuarterlyTarget,
	}
}

func toQuarterDTO(q tier.Quarter) QuarterDTO {
	return QuarterDTO{
		Label:  q.Label,
		Year:   q.Year,
		Number: q.Number,
		Start:  q.Start.Format(dateLayout),
		End:    q.End.Format(dateLayout),
	}
}

func toAgentDTO(a agent.Agent) AgentDTO {
	dto := AgentDTO{
		ID:                    a.ID,
		Name:                  a.Name,
		Email:                 a.Email,
		Tier:                  string(a.Standing.CurrentTier),
		LifetimeTickets:       a.Standing.LifetimeTickets,
		CurrentQuarterTickets: a.Standing.CurrentQuarterTickets,
		QuarterStart:          a.QuarterStart.Format(dateLayout),
		CreatedAt:             a.CreatedAt.Format(time.RFC3339),
	}
	if g := a.Standing.GraceEndDate; g != nil {
		dto.GraceEndDate = strPtr(g.Format(dateLayout))
	}
	return dto
}

func toBookingDTO(b agent.Booking) BookingDTO {
	dto := BookingDTO{
		ID:             b.ID,
		AgentID:        b.AgentID,
		Reference:      b.Reference,
		Status:         string(b.Status),
		TicketIssued:   b.TicketIssued,
		PassengerCount: b.PassengerCount,
		TotalPrice:     int64(b.TotalPrice),
		Flights:        make([]FlightDTO, len(b.Flights)),
		CreatedAt:      b.CreatedAt.Format(time.RFC3339),
	}
	for i, f := range b.Flights {
		dto.Flights[i] = FlightDTO{
			FlightNumber: f.FlightNumber,
			Origin:       f.Origin,
			Destination:  f.Destination,
			DepartDate:   f.DepartDate.Format(time.RFC3339),
		}
	}
	if b.CompletedAt != nil {
		dto.CompletedAt = strPtr(b.CompletedAt.Format(time.RFC3339))
	}
	return dto
}

func toChangeDTO(c *tier.Change) *ChangeDTO {
	if c == nil {
		return nil
	}
	return &ChangeDTO{Kind: string(c.Kind), From: string(c.From), To: string(c.To)}
}

func toOutcomeDTOs(outcomes []tier.QuarterOutcome) []OutcomeDTO {
	dtos := make([]OutcomeDTO, len(outcomes))
	for i, o := range outcomes {
		dtos[i] = OutcomeDTO{
			Quarter:   o.Quarter.Label,
			Outcome:   string(o.Outcome),
			Tickets:   o.Tickets,
			Target:    o.Target,
			Shortfall: o.Shortfall,
			Change:    toChangeDTO(o.Change),
		}
	}
	return dtos
}

func toCompletionDTO(r *agent.CompletionResult) CompletionDTO {
	return CompletionDTO{
		Booking:           toBookingDTO(r.Booking),
		Agent:             toAgentDTO(r.Agent),
		TicketsEarned:     r.Credit.TicketsEarned,
		CommissionEarned:  int64(r.Credit.CommissionEarned),
		CommissionDisplay: r.Credit.CommissionEarned.String(),
		Change:            toChangeDTO(r.Change),
		Rollover:          toOutcomeDTOs(r.Rollover),
	}
}

func toProgressDTO(p tier.Progress) ProgressDTO {
	dto := ProgressDTO{
		AgentID: p.AgentID,
		Tier:    toTierDTO(p.Tier),
		Lifetime: LifetimeProgressDTO{
			Current:       p.Lifetime.Current,
			Target:        p.Lifetime.Target,
			NextTier:      string(p.Lifetime.NextTier),
			NextThreshold: p.Lifetime.NextThreshold,
			Percentage:    p.Lifetime.Percentage.Round(1).InexactFloat64(),
			TicketsToNext: p.Lifetime.TicketsToNext,
		},
		Quarterly: QuarterlyProgressDTO{
			Quarter:    toQuarterDTO(p.Quarterly.Quarter),
			Current:    p.Quarterly.Current,
			Target:     p.Quarterly.Target,
			Percentage: p.Quarterly.Percentage.Round(1).InexactFloat64(),
			Shortfall:  p.Quarterly.Shortfall,
			OnTrack:    p.Quarterly.OnTrack,
		},
		Status: StatusMessageDTO{
			Type:     string(p.Status.Type),
			Title:    p.Status.Title,
			Message:  p.Status.Message,
			Icon:     p.Status.Icon,
			Priority: p.Status.Priority,
		},
	}
	if g := p.Grace; g != nil {
		dto.Grace = &GraceStatusDTO{
			EndDate:       g.EndDate.Format(dateLayout),
			IsActive:      g.IsActive,
			DaysLeft:      g.DaysLeft,
			TicketsNeeded: g.TicketsNeeded,
		}
	}
	return dto
}

func toCommissionDTO(e agent.CommissionEntry) CommissionDTO {
	return CommissionDTO{
		ID:        e.ID,
		BookingID: e.BookingID,
		Tier:      string(e.Tier),
		Tickets:   e.Tickets,
		Amount:    int64(e.Amount),
		Display:   e.Amount.String(),
		Quarter:   e.Quarter,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func toTierChangeDTO(c agent.TierChange) TierChangeDTO {
	return TierChangeDTO{
		ID:              c.ID,
		Kind:            string(c.Kind),
		From:            string(c.From),
		To:              string(c.To),
		Quarter:         c.Quarter,
		LifetimeTickets: c.LifetimeTickets,
		QuarterTickets:  c.QuarterTickets,
		OccurredAt:      c.OccurredAt.Format(time.RFC3339),
	}
}

func toStatsDTO(s stats.Summary) StatsDTO {
	dto := StatsDTO{
		TotalBookings:       s.TotalBookings,
		Pending:             s.Pending,
		Issued:              s.Issued,
		Completed:           s.Completed,
		Cancelled:           s.Cancelled,
		Passengers:          s.Passengers,
		Revenue:             int64(s.Revenue),
		AverageBookingValue: s.AverageBookingValue.String(),
		CommissionTotal:     int64(s.CommissionTotal),
		CommissionByTier:    make(map[string]int64, len(s.CommissionByTier)),
		TopRoutes:           make([]RouteDTO, len(s.TopRoutes)),
		Quarter:             s.Quarter,
		BookingsThisQuarter: s.BookingsThisQuarter,
	}
	for name, amount := range s.CommissionByTier {
		dto.CommissionByTier[string(name)] = int64(amount)
	}
	for i, r := range s.TopRoutes {
		dto.TopRoutes[i] = RouteDTO(r)
	}
	return dto
}

func strPtr(s string) *string {
	return &s
}
