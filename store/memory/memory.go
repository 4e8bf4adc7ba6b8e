// Package memory provides an in-memory agent.TxStore for tests and dev.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/skyagent/tier-engine/agent"
	"github.com/skyagent/tier-engine/tier"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

var _ agent.TxStore = (*Store)(nil)

type Store struct {
	mu   sync.RWMutex
	data state
}

type state struct {
	agents      map[string]agent.Agent
	bookings    map[string]agent.Booking
	commissions []agent.CommissionEntry
	credited    map[string]bool // booking id → has commission entry
	changes     []agent.TierChange
}

func New() *Store {
	return &Store{data: state{
		agents:   make(map[string]agent.Agent),
		bookings: make(map[string]agent.Booking),
		credited: make(map[string]bool),
	}}
}

func (m *Store) SaveAgent(_ context.Context, a agent.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.saveAgent(a)
	return nil
}

func (m *Store) GetAgent(_ context.Context, id string) (*agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getAgent(id)
}

func (m *Store) ListAgents(_ context.Context) ([]agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listAgents(), nil
}

func (m *Store) SaveBooking(_ context.Context, b agent.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.saveBooking(b)
	return nil
}

func (m *Store) GetBooking(_ context.Context, id string) (*agent.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getBooking(id)
}

func (m *Store) ListBookings(_ context.Context, f agent.BookingFilter) ([]agent.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listBookings(f), nil
}

func (m *Store) AppendCommission(_ context.Context, e agent.CommissionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.appendCommission(e)
}

func (m *Store) ListCommissions(_ context.Context, agentID string) ([]agent.CommissionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listCommissions(agentID), nil
}

func (m *Store) AppendTierChange(_ context.Context, c agent.TierChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.changes = append(m.data.changes, c)
	return nil
}

func (m *Store) ListTierChanges(_ context.Context, agentID string) ([]agent.TierChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listChanges(agentID), nil
}

// Reset drops all data.
func (m *Store) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = New().data
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Store) WithTx(_ context.Context, fn func(agent.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&txView{data: &m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// txView runs against the locked state of its parent.
type txView struct {
	data *state
}

func (tv *txView) SaveAgent(_ context.Context, a agent.Agent) error {
	tv.data.saveAgent(a)
	return nil
}

func (tv *txView) GetAgent(_ context.Context, id string) (*agent.Agent, error) {
	return tv.data.getAgent(id)
}

func (tv *txView) ListAgents(_ context.Context) ([]agent.Agent, error) {
	return tv.data.listAgents(), nil
}

func (tv *txView) SaveBooking(_ context.Context, b agent.Booking) error {
	tv.data.saveBooking(b)
	return nil
}

func (tv *txView) GetBooking(_ context.Context, id string) (*agent.Booking, error) {
	return tv.data.getBooking(id)
}

func (tv *txView) ListBookings(_ context.Context, f agent.BookingFilter) ([]agent.Booking, error) {
	return tv.data.listBookings(f), nil
}

func (tv *txView) AppendCommission(_ context.Context, e agent.CommissionEntry) error {
	return tv.data.appendCommission(e)
}

func (tv *txView) ListCommissions(_ context.Context, agentID string) ([]agent.CommissionEntry, error) {
	return tv.data.listCommissions(agentID), nil
}

func (tv *txView) AppendTierChange(_ context.Context, c agent.TierChange) error {
	tv.data.changes = append(tv.data.changes, c)
	return nil
}

func (tv *txView) ListTierChanges(_ context.Context, agentID string) ([]agent.TierChange, error) {
	return tv.data.listChanges(agentID), nil
}

// =============================================================================
// STATE - Callers hold the lock
// =============================================================================

func (s *state) clone() state {
	c := state{
		agents:      make(map[string]agent.Agent, len(s.agents)),
		bookings:    make(map[string]agent.Booking, len(s.bookings)),
		commissions: append([]agent.CommissionEntry(nil), s.commissions...),
		credited:    make(map[string]bool, len(s.credited)),
		changes:     append([]agent.TierChange(nil), s.changes...),
	}
	for k, v := range s.agents {
		c.agents[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.credited {
		c.credited[k] = v
	}
	return c
}

func (s *state) saveAgent(a agent.Agent) {
	if a.Standing.GraceEndDate != nil {
		end := *a.Standing.GraceEndDate
		a.Standing.GraceEndDate = &end
	}
	s.agents[a.ID] = a
}

func (s *state) getAgent(id string) (*agent.Agent, error) {
	a, ok := s.agents[id]
	if !ok {
		return nil, agent.ErrAgentNotFound
	}
	if a.Standing.GraceEndDate != nil {
		end := *a.Standing.GraceEndDate
		a.Standing.GraceEndDate = &end
	}
	return &a, nil
}

func (s *state) listAgents() []agent.Agent {
	out := make([]agent.Agent, 0, len(s.agents))
	for id := range s.agents {
		a, _ := s.getAgent(id)
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) saveBooking(b agent.Booking) {
	b.Flights = append([]tier.Flight(nil), b.Flights...)
	s.bookings[b.ID] = b
}

func (s *state) getBooking(id string) (*agent.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return nil, agent.ErrBookingNotFound
	}
	b.Flights = append([]tier.Flight(nil), b.Flights...)
	return &b, nil
}

func (s *state) listBookings(f agent.BookingFilter) []agent.Booking {
	var out []agent.Booking
	for id, b := range s.bookings {
		if f.AgentID != "" && b.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		cp, _ := s.getBooking(id)
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) appendCommission(e agent.CommissionEntry) error {
	if s.credited[e.BookingID] {
		return agent.ErrAlreadyCredited
	}
	s.credited[e.BookingID] = true
	s.commissions = append(s.commissions, e)
	return nil
}

func (s *state) listCommissions(agentID string) []agent.CommissionEntry {
	var out []agent.CommissionEntry
	for _, e := range s.commissions {
		if agentID == "" || e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out
}

func (s *state) listChanges(agentID string) []agent.TierChange {
	var out []agent.TierChange
	for _, c := range s.changes {
		if c.AgentID == agentID {
			out = append(out, c)
		}
	}
	return out
}
