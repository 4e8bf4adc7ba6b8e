/*
handlers.go - HTTP API handlers for the agent tier engine

PURPOSE:
  Exposes agent.Service and the tier rules via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the service.

ENDPOINTS:
  Tiers:
    GET    /api/tiers                     Tier table
    GET    /api/quarters/{date}           Quarter containing a date

  Agents:
    GET    /api/agents                    List agents
    POST   /api/agents                    Register agent
    GET    /api/agents/{id}               Agent and standing
    GET    /api/agents/{id}/progress      Dashboard snapshot
    GET    /api/agents/{id}/commissions   Commission ledger
    GET    /api/agents/{id}/history       Tier history
    GET    /api/agents/{id}/bookings      Agent bookings
    POST   /api/agents/{id}/bookings      Record booking

  Bookings:
    GET    /api/bookings/{id}             Booking details
    POST   /api/bookings/{id}/issue       Issue ticket
    POST   /api/bookings/{id}/complete    Credit completed booking
    POST   /api/bookings/{id}/cancel      Cancel booking

  Admin:
    POST   /api/admin/rollover            Roll every agent to the current quarter
    POST   /api/admin/sweep               Credit every completed booking
    GET    /api/admin/stats               Aggregate statistics

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Agent or booking not found
  - 409: Already credited, not completed yet, invalid status transition
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/skyagent/tier-engine/agent"
	"github.com/skyagent/tier-engine/stats"
	"github.com/skyagent/tier-engine/tier"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers need beyond agent.Service: scenario loading
// writes agents directly and resets the database.
type Store interface {
	agent.TxStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc   *agent.Service
	store Store
	log   logrus.FieldLogger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. store must be the store svc was built on.
func NewHandler(svc *agent.Service, store Store, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{svc: svc, store: store, log: log}
}

// =============================================================================
// TIER HANDLERS
// =============================================================================

// ListTiers returns the tier table, lowest first.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	defs := h.svc.Engine().Table().Tiers()
	dtos := make([]TierDTO, len(defs))
	for i, d := range defs {
		dtos[i] = toTierDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetQuarter classifies a date (YYYY-MM-DD) into its calendar quarter.
func (h *Handler) GetQuarter(w http.ResponseWriter, r *http.Request) {
	date, err := time.ParseInLocation(dateLayout, chi.URLParam(r, "date"), h.svc.Now().Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	writeJSON(w, http.StatusOK, toQuarterDTO(tier.ClassifyQuarter(date)))
}

// =============================================================================
// AGENT HANDLERS
// =============================================================================

// ListAgents returns all agents.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.svc.ListAgents(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list agents", err)
		return
	}

	dtos := make([]AgentDTO, len(agents))
	for i, a := range agents {
		dtos[i] = toAgentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAgent registers a new agent on the base tier.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := h.svc.RegisterAgent(r.Context(), agent.NewAgent{Name: req.Name, Email: req.Email})
	if err != nil {
		h.writeServiceError(w, "Failed to register agent", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgentDTO(*a))
}

// GetAgent returns a single agent.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to get agent", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentDTO(*a))
}

// GetProgress returns the agent's dashboard snapshot.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to evaluate progress", err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(p))
}

// GetCommissions returns the agent's commission ledger.
func (h *Handler) GetCommissions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Commissions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to list commissions", err)
		return
	}

	dtos := make([]CommissionDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toCommissionDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetHistory returns the agent's tier history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	changes, err := h.svc.TierHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to list tier history", err)
		return
	}

	dtos := make([]TierChangeDTO, len(changes))
	for i, c := range changes {
		dtos[i] = toTierChangeDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// ListAgentBookings returns the agent's bookings, optionally filtered by
// ?status=.
func (h *Handler) ListAgentBookings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.GetAgent(r.Context(), id); err != nil {
		h.writeServiceError(w, "Failed to get agent", err)
		return
	}

	bookings, err := h.svc.ListBookings(r.Context(), agent.BookingFilter{
		AgentID: id,
		Status:  agent.BookingStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		h.writeServiceError(w, "Failed to list bookings", err)
		return
	}

	dtos := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		dtos[i] = toBookingDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBooking records a booking for the agent.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	flights := make([]tier.Flight, len(req.Flights))
	for i, f := range req.Flights {
		depart, err := time.Parse(time.RFC3339, f.DepartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid depart_date format (use RFC 3339)", err)
			return
		}
		flights[i] = tier.Flight{
			FlightNumber: f.FlightNumber,
			Origin:       f.Origin,
			Destination:  f.Destination,
			DepartDate:   depart,
		}
	}

	b, err := h.svc.RecordBooking(r.Context(), chi.URLParam(r, "id"), agent.BookingInput{
		Reference:      req.Reference,
		Flights:        flights,
		PassengerCount: req.PassengerCount,
		TotalPrice:     tier.VND(req.TotalPrice),
		TicketIssued:   req.TicketIssued,
	})
	if err != nil {
		h.writeServiceError(w, "Failed to record booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(*b))
}

// GetBooking returns a single booking.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to get booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// IssueTicket marks the booking's ticket as issued.
func (h *Handler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.IssueTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to issue ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// CompleteBooking credits a completed booking to its agent.
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.CompleteBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to complete booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toCompletionDTO(res))
}

// CancelBooking cancels a booking that has not been credited.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.CancelBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRollover rolls every agent forward to the current quarter. Agents
// that fail are skipped; the first error is reported alongside the results.
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.RunRollover(r.Context())

	dto := RolloverDTO{AgentsRolled: len(results), Results: make([]AgentRolloverDTO, len(results))}
	for i, res := range results {
		dto.Results[i] = AgentRolloverDTO{AgentID: res.AgentID, Outcomes: toOutcomeDTOs(res.Outcomes)}
	}
	if err != nil {
		dto.Error = err.Error()
		h.log.WithError(err).Warn("rollover finished with errors")
	}
	writeJSON(w, http.StatusOK, dto)
}

// TriggerSweep credits every issued booking that has completed.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SweepCompletions(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to sweep completions", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepDTO(res))
}

// GetStats returns aggregate booking and commission statistics.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.svc.ListBookings(r.Context(), agent.BookingFilter{})
	if err != nil {
		h.writeServiceError(w, "Failed to list bookings", err)
		return
	}
	commissions, err := h.store.ListCommissions(r.Context(), "")
	if err != nil {
		h.writeServiceError(w, "Failed to list commissions", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(stats.Compute(bookings, commissions, h.svc.Now())))
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reset(r.Context()); err != nil {
		h.writeServiceError(w, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps service errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case agent.IsInvalid(err):
		writeError(w, http.StatusBadRequest, message, err)
	case agent.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case agent.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		h.log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
