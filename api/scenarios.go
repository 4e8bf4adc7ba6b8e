/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with agents at
	interesting points on the tier ladder, plus the bookings that move them.
	Each scenario is relative to the service clock: "departed two days ago"
	means two days before the moment the scenario is loaded.

AVAILABLE SCENARIOS:

	promotion:     Starter one booking away from Growth
	commission:    Prime agent with a completed 2-passenger booking (50.000 ₫)
	grace:         Elite agent 1 ticket short at quarter end (grace on rollover)
	demotion:      Elite agent 2 tickets short at quarter end (demoted on rollover)
	grace-active:  Prime agent inside a grace window
	legend:        Top-tier agent above target
	agency:        All of the above together

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Write agents with their standing directly to the store
 3. Write their bookings
 4. Completion, rollover and promotion happen through the normal API
    (POST /api/admin/sweep, /api/admin/rollover, /api/bookings/{id}/complete)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "grace"}

NOTE:

	Scenarios reset the database and assume the default tier table.
	Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/skyagent/tier-engine/agent"
	"github.com/skyagent/tier-engine/tier"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type seedAgent struct {
	name     string
	email    string
	tier     tier.Name
	lifetime int
	quarter  int
	// previousQuarter puts the quarter counter in the quarter before now,
	// so the next rollover evaluates it.
	previousQuarter bool
	// inGrace opens a grace window ending with the current quarter.
	inGrace  bool
	bookings []seedBooking
}

type seedBooking struct {
	flight        string
	origin        string
	destination   string
	passengers    int
	price         tier.VND
	departDaysAgo int // negative departs in the future
	issued        bool
}

type scenario struct {
	ScenarioDTO
	agents []seedAgent
}

var (
	promotionAgent = seedAgent{
		name: "Nguyễn Thị Lan", email: "lan@skyagent.vn",
		tier: tier.Starter, lifetime: 2, quarter: 2,
		bookings: []seedBooking{
			{flight: "VN213", origin: "SGN", destination: "HAN", passengers: 2, price: 3_200_000, departDaysAgo: 2, issued: true},
		},
	}
	commissionAgent = seedAgent{
		name: "Trần Văn Minh", email: "minh@skyagent.vn",
		tier: tier.Prime, lifetime: 20, quarter: 5,
		bookings: []seedBooking{
			{flight: "VN1557", origin: "HAN", destination: "DAD", passengers: 2, price: 2_400_000, departDaysAgo: 2, issued: true},
			{flight: "VJ322", origin: "SGN", destination: "PQC", passengers: 4, price: 5_600_000, departDaysAgo: -5, issued: true},
			{flight: "QH201", origin: "HAN", destination: "SGN", passengers: 1, price: 1_900_000, departDaysAgo: -10},
		},
	}
	graceAgent = seedAgent{
		name: "Phạm Thu Hoa", email: "hoa@skyagent.vn",
		tier: tier.Elite, lifetime: 55, quarter: 14, previousQuarter: true,
	}
	demotionAgent = seedAgent{
		name: "Lê Quốc Tuấn", email: "tuan@skyagent.vn",
		tier: tier.Elite, lifetime: 48, quarter: 13, previousQuarter: true,
	}
	graceActiveAgent = seedAgent{
		name: "Võ Ngọc Mai", email: "mai@skyagent.vn",
		tier: tier.Prime, lifetime: 30, quarter: 5, inGrace: true,
		bookings: []seedBooking{
			{flight: "VN7240", origin: "DAD", destination: "SGN", passengers: 1, price: 1_350_000, departDaysAgo: 3, issued: true},
		},
	}
	legendAgent = seedAgent{
		name: "Hoàng Minh Đức", email: "duc@skyagent.vn",
		tier: tier.Legend, lifetime: 130, quarter: 27,
		bookings: []seedBooking{
			{flight: "VN31", origin: "SGN", destination: "NRT", passengers: 3, price: 27_000_000, departDaysAgo: 4, issued: true},
		},
	}
)

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{ID: "promotion", Name: "First Promotion", Description: "Starter with 2 tickets; completing a 2-passenger booking promotes to Growth"},
		agents:      []seedAgent{promotionAgent},
	},
	{
		ScenarioDTO: ScenarioDTO{ID: "commission", Name: "Prime Commission", Description: "Prime agent with a completed 2-passenger booking worth 50.000 ₫, plus upcoming bookings"},
		agents:      []seedAgent{commissionAgent},
	},
	{
		ScenarioDTO: ScenarioDTO{ID: "grace", Name: "Grace Period", Description: "Elite agent finished last quarter at 14/15; rollover starts a grace period"},
		agents:      []seedAgent{graceAgent},
	},
	{
		ScenarioDTO: ScenarioDTO{ID: "demotion", Name: "Demotion", Description: "Elite agent finished last quarter at 13/15; rollover demotes to Prime"},
		agents:      []seedAgent{demotionAgent},
	},
	{
		ScenarioDTO: ScenarioDTO{ID: "grace-active", Name: "Inside Grace", Description: "Prime agent in grace until the end of this quarter, 3 tickets short"},
		agents:      []seedAgent{graceActiveAgent},
	},
	{
		ScenarioDTO: ScenarioDTO{ID: "legend", Name: "Legend", Description: "Top-tier agent above the quarterly target"},
		agents:      []seedAgent{legendAgent},
	},
	{
		ScenarioDTO: ScenarioDTO{ID: "agency", Name: "Whole Agency", Description: "Every agent from the other scenarios"},
		agents:      []seedAgent{promotionAgent, commissionAgent, graceAgent, demotionAgent, graceActiveAgent, legendAgent},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	for _, a := range s.agents {
		if _, err := h.svc.Engine().Lookup(a.tier); err != nil {
			writeError(w, http.StatusBadRequest, "Scenario requires the default tier table", err)
			return
		}
	}

	agents, err := h.loadScenario(r.Context(), s)
	if err != nil {
		h.writeServiceError(w, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = s.ID
	h.mu.Unlock()
	h.log.WithField("scenario", s.ID).Info("scenario loaded")

	dtos := make([]AgentDTO, len(agents))
	for i, a := range agents {
		dtos[i] = toAgentDTO(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"scenario": s.ScenarioDTO,
		"agents":   dtos,
	})
}

// =============================================================================
// LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, s scenario) ([]agent.Agent, error) {
	if err := h.store.Reset(ctx); err != nil {
		return nil, err
	}

	now := h.svc.Now()
	current := tier.ClassifyQuarter(now)
	agents := make([]agent.Agent, 0, len(s.agents))

	err := h.store.WithTx(ctx, func(st agent.Store) error {
		for _, sa := range s.agents {
			a := sa.build(now, current)
			if err := st.SaveAgent(ctx, a); err != nil {
				return err
			}
			for _, sb := range sa.bookings {
				if err := st.SaveBooking(ctx, sb.build(a.ID, now)); err != nil {
					return err
				}
			}
			agents = append(agents, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agents, nil
}

func (sa seedAgent) build(now time.Time, current tier.Quarter) agent.Agent {
	id := uuid.NewString()
	a := agent.Agent{
		ID:    id,
		Name:  sa.name,
		Email: sa.email,
		Standing: tier.Standing{
			AgentID:               id,
			CurrentTier:           sa.tier,
			LifetimeTickets:       sa.lifetime,
			CurrentQuarterTickets: sa.quarter,
		},
		QuarterStart: current.Start,
		CreatedAt:    now.AddDate(0, -6, 0),
		UpdatedAt:    now,
	}
	if sa.previousQuarter {
		a.QuarterStart = current.Previous().Start
	}
	if sa.inGrace {
		end := current.End
		a.Standing.GraceEndDate = &end
	}
	return a
}

func (sb seedBooking) build(agentID string, now time.Time) agent.Booking {
	id := uuid.NewString()
	depart := now.AddDate(0, 0, -sb.departDaysAgo)
	b := agent.Booking{
		Booking: tier.Booking{
			TicketIssued: sb.issued,
			Flights: []tier.Flight{{
				FlightNumber: sb.flight,
				Origin:       sb.origin,
				Destination:  sb.destination,
				DepartDate:   depart,
			}},
			PassengerCount: sb.passengers,
		},
		ID:         id,
		AgentID:    agentID,
		Reference:  fmt.Sprintf("DEMO-%s", id[:8]),
		TotalPrice: sb.price,
		Status:     agent.BookingPending,
		CreatedAt:  depart.AddDate(0, 0, -14),
	}
	if sb.issued {
		b.Status = agent.BookingIssued
	}
	return b
}
