/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Tier table and quarter lookup
- Agent registration and lookup
- Booking lifecycle: record, issue, complete, cancel
- Error mapping to 400/404/409
- Admin stats, health and metrics endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/skyagent/tier-engine/agent"
	"github.com/skyagent/tier-engine/metrics"
	"github.com/skyagent/tier-engine/store/sqlite"
	"github.com/skyagent/tier-engine/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.August, 20, 10, 0, 0, 0, time.UTC)

type testServer struct {
	router  http.Handler
	handler *Handler
	svc     *agent.Service
	store   *sqlite.Store
	logs    *logtest.Hook
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	svc := agent.NewService(store, tier.NewEngine(nil),
		agent.WithClock(func() time.Time { return now }),
		agent.WithLogger(logger),
	)
	h := NewHandler(svc, store, logger)
	return &testServer{
		router:  NewRouter(h, RouterConfig{Metrics: metrics.New(prometheus.NewRegistry())}),
		handler: h,
		svc:     svc,
		store:   store,
		logs:    hook,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createAgent(t *testing.T, name string) AgentDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/agents", CreateAgentRequest{Name: name, Email: "agent@skyagent.vn"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AgentDTO](t, rec)
}

func bookingRequest(passengers int, depart time.Time, issued bool) CreateBookingRequest {
	return CreateBookingRequest{
		Flights: []FlightDTO{{
			FlightNumber: "VN213",
			Origin:       "SGN",
			Destination:  "HAN",
			DepartDate:   depart.Format(time.RFC3339),
		}},
		PassengerCount: passengers,
		TotalPrice:     1_500_000 * int64(passengers),
		TicketIssued:   issued,
	}
}

func (s *testServer) createBooking(t *testing.T, agentID string, req CreateBookingRequest) BookingDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/agents/"+agentID+"/bookings", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[BookingDTO](t, rec)
}

// =============================================================================
// TIERS & QUARTERS
// =============================================================================

func TestListTiers(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/tiers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	tiers := decode[[]TierDTO](t, rec)
	require.Len(t, tiers, 5)
	assert.Equal(t, "starter", tiers[0].Name)
	assert.Equal(t, "prime", tiers[2].Name)
	assert.Equal(t, int64(25000), tiers[2].CommissionPerTicket)
	assert.Equal(t, 15, tiers[2].MinLifetimeTickets)
	assert.Equal(t, 8, tiers[2].QuarterlyTarget)
	assert.NotEmpty(t, tiers[2].CommissionDisplay)
}

func TestGetQuarter(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/quarters/2025-07-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, QuarterDTO{Label: "Q3 2025", Year: 2025, Number: 3, Start: "2025-07-01", End: "2025-09-30"}, decode[QuarterDTO](t, rec))

	rec = s.do(t, http.MethodGet, "/api/quarters/31-07-2025", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// AGENTS
// =============================================================================

func TestCreateAgent(t *testing.T) {
	s := newTestServer(t)

	a := s.createAgent(t, "Nguyễn Thị Lan")
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "starter", a.Tier)
	assert.Equal(t, 0, a.LifetimeTickets)
	assert.Equal(t, "2025-07-01", a.QuarterStart)
	assert.Nil(t, a.GraceEndDate)

	rec := s.do(t, http.MethodGet, "/api/agents/"+a.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, a, decode[AgentDTO](t, rec))

	rec = s.do(t, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AgentDTO](t, rec), 1)
}

func TestCreateAgent_Invalid(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/agents", CreateAgentRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Failed to register agent", resp.Error)
	assert.Contains(t, resp.Details, "name")

	req := httptest.NewRequest(http.MethodPost, "/api/agents", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAgent_NotFound(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/agents/missing",
		"/api/agents/missing/progress",
		"/api/agents/missing/commissions",
		"/api/agents/missing/history",
		"/api/agents/missing/bookings",
	} {
		rec := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

// =============================================================================
// BOOKINGS
// =============================================================================

func TestBookingLifecycle_CompletePromotes(t *testing.T) {
	// GIVEN: A new starter agent and an issued 3-passenger booking that
	//        departed two days ago
	// WHEN: The booking is completed
	// THEN: 3 tickets at 15.000 ₫ are credited and the agent reaches Growth
	s := newTestServer(t)
	a := s.createAgent(t, "Lan")
	b := s.createBooking(t, a.ID, bookingRequest(3, now.Add(-48*time.Hour), true))
	assert.Equal(t, "issued", b.Status)
	assert.Regexp(t, `^SKY-[0-9A-F]{8}$`, b.Reference)

	rec := s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[CompletionDTO](t, rec)
	assert.Equal(t, 3, res.TicketsEarned)
	assert.Equal(t, int64(45000), res.CommissionEarned)
	assert.Equal(t, &ChangeDTO{Kind: "promoted", From: "starter", To: "growth"}, res.Change)
	assert.Equal(t, "completed", res.Booking.Status)
	assert.NotNil(t, res.Booking.CompletedAt)
	assert.Equal(t, "growth", res.Agent.Tier)
	assert.Equal(t, 3, res.Agent.LifetimeTickets)
	assert.Equal(t, 3, res.Agent.CurrentQuarterTickets)

	// Completing again is a conflict
	rec = s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/agents/"+a.ID+"/commissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]CommissionDTO](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(45000), entries[0].Amount)
	assert.Equal(t, "starter", entries[0].Tier)
	assert.Equal(t, "Q3 2025", entries[0].Quarter)

	rec = s.do(t, http.MethodGet, "/api/agents/"+a.ID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]TierChangeDTO](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "promoted", history[0].Kind)
	assert.Equal(t, "growth", history[0].To)

	rec = s.do(t, http.MethodGet, "/api/agents/"+a.ID+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[ProgressDTO](t, rec)
	assert.Equal(t, "growth", p.Tier.Name)
	assert.Equal(t, 3, p.Lifetime.Current)
	assert.Equal(t, "prime", p.Lifetime.NextTier)
	assert.Equal(t, 12, p.Lifetime.TicketsToNext)
	assert.Equal(t, 20.0, p.Lifetime.Percentage)
	assert.Equal(t, "Q3 2025", p.Quarterly.Quarter.Label)
	assert.True(t, p.Quarterly.OnTrack)
	assert.Nil(t, p.Grace)
}

func TestCompleteBooking_NotYetCompleted(t *testing.T) {
	s := newTestServer(t)
	a := s.createAgent(t, "Minh")

	future := s.createBooking(t, a.ID, bookingRequest(2, now.Add(72*time.Hour), true))
	rec := s.do(t, http.MethodPost, "/api/bookings/"+future.ID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Departed long ago but never issued
	pending := s.createBooking(t, a.ID, bookingRequest(2, now.Add(-72*time.Hour), false))
	assert.Equal(t, "pending", pending.Status)
	rec = s.do(t, http.MethodPost, "/api/bookings/"+pending.ID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Once issued it completes
	rec = s.do(t, http.MethodPost, "/api/bookings/"+pending.ID+"/issue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[BookingDTO](t, rec).TicketIssued)

	rec = s.do(t, http.MethodPost, "/api/bookings/"+pending.ID+"/complete", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCreateBooking_Invalid(t *testing.T) {
	s := newTestServer(t)
	a := s.createAgent(t, "Hoa")

	bad := bookingRequest(2, now, true)
	bad.Flights[0].DepartDate = "2025-08-01"
	rec := s.do(t, http.MethodPost, "/api/agents/"+a.ID+"/bookings", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/agents/"+a.ID+"/bookings", bookingRequest(0, now, true))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	noFlights := bookingRequest(1, now, true)
	noFlights.Flights = nil
	rec = s.do(t, http.MethodPost, "/api/agents/"+a.ID+"/bookings", noFlights)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/agents/missing/bookings", bookingRequest(1, now, true))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelBooking(t *testing.T) {
	s := newTestServer(t)
	a := s.createAgent(t, "Tuan")
	b := s.createBooking(t, a.ID, bookingRequest(1, now.Add(24*time.Hour*7), false))

	rec := s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[BookingDTO](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/issue", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/bookings/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/agents/"+a.ID+"/bookings?status=cancelled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]BookingDTO](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/agents/"+a.ID+"/bookings?status=issued", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]BookingDTO](t, rec))
}

// =============================================================================
// ADMIN
// =============================================================================

func TestSweepAndStats(t *testing.T) {
	s := newTestServer(t)
	a := s.createAgent(t, "Mai")
	s.createBooking(t, a.ID, bookingRequest(2, now.Add(-48*time.Hour), true))
	s.createBooking(t, a.ID, bookingRequest(1, now.Add(48*time.Hour), true))

	rec := s.do(t, http.MethodPost, "/api/admin/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SweepDTO{Checked: 2, Completed: 1}, decode[SweepDTO](t, rec))

	rec = s.do(t, http.MethodGet, "/api/admin/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StatsDTO](t, rec)
	assert.Equal(t, 2, st.TotalBookings)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.Issued)
	assert.Equal(t, 3, st.Passengers)
	assert.Equal(t, int64(4_500_000), st.Revenue)
	assert.Equal(t, "2250000", st.AverageBookingValue)
	assert.Equal(t, int64(30000), st.CommissionTotal)
	assert.Equal(t, map[string]int64{"starter": 30000}, st.CommissionByTier)
	require.Len(t, st.TopRoutes, 1)
	assert.Equal(t, RouteDTO{Origin: "SGN", Destination: "HAN", Passengers: 3, Bookings: 2}, st.TopRoutes[0])
	assert.Equal(t, "Q3 2025", st.Quarter)
}

func TestTriggerRollover_NothingToDo(t *testing.T) {
	s := newTestServer(t)
	s.createAgent(t, "Duc")

	rec := s.do(t, http.MethodPost, "/api/admin/rollover", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[RolloverDTO](t, rec)
	assert.Equal(t, 0, res.AgentsRolled)
	assert.Empty(t, res.Error)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.do(t, http.MethodGet, "/api/agents/missing", nil)

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/agents/{id}"`)
}

func TestHealth_DatabaseClosed(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.store.Close())

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	s := newTestServer(t)
	s.logs.Reset()

	s.do(t, http.MethodGet, "/api/tiers", nil)

	var found bool
	for _, e := range s.logs.AllEntries() {
		if e.Message == "request completed" {
			found = true
			assert.Equal(t, "/api/tiers", e.Data["path"])
			assert.Equal(t, http.StatusOK, e.Data["status"])
		}
	}
	assert.True(t, found)
}

func TestWriteServiceError_Internal(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()

	s.handler.writeServiceError(rec, "boom", context.DeadlineExceeded)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, logrus.ErrorLevel, s.logs.LastEntry().Level)
}
