/*
Package sqlite provides a SQLite-backed implementation of agent.TxStore.

KEY TABLES:
  agents:        Agent records with their tier standing
  bookings:      Bookings the completion rule runs against
  commissions:   Append-only commission ledger, one row per booking
  tier_changes:  Append-only tier history

IDEMPOTENCY:
  commissions.booking_id is UNIQUE. A second credit for the same booking
  fails with agent.ErrAlreadyCredited, even across processes.

CONCURRENCY:
  Uses sync.RWMutex around a single connection. SQLite allows one writer
  at a time; WithTx holds the write lock for the whole transaction so a
  read-modify-write of an agent's standing cannot interleave.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging) so readers
  don't block the writer.

USAGE:
  store, err := sqlite.New("./data/tiers.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := agent.NewService(store, tier.NewEngine(nil))
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/skyagent/tier-engine/agent"
	"github.com/skyagent/tier-engine/tier"
)

const (
	// fixed width so stored timestamps sort as text
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	dateLayout = "2006-01-02"
)

var _ agent.TxStore = (*Store)(nil)

// Store implements agent.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: queries{db: db}}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		current_tier TEXT NOT NULL,
		lifetime_tickets INTEGER NOT NULL DEFAULT 0 CHECK (lifetime_tickets >= 0),
		quarter_tickets INTEGER NOT NULL DEFAULT 0 CHECK (quarter_tickets >= 0),
		grace_end_date TEXT,
		quarter_start TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_tier ON agents(current_tier);

	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id),
		reference TEXT NOT NULL,
		ticket_issued INTEGER NOT NULL DEFAULT 0,
		passenger_count INTEGER NOT NULL CHECK (passenger_count >= 0),
		flights_json TEXT NOT NULL,
		total_price INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_agent ON bookings(agent_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);

	-- Append-only ledger. UNIQUE booking_id makes crediting idempotent.
	CREATE TABLE IF NOT EXISTS commissions (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id),
		booking_id TEXT NOT NULL UNIQUE REFERENCES bookings(id),
		tier TEXT NOT NULL,
		tickets INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		quarter TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commissions_agent ON commissions(agent_id, created_at);

	CREATE TABLE IF NOT EXISTS tier_changes (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id),
		kind TEXT NOT NULL,
		from_tier TEXT NOT NULL,
		to_tier TEXT NOT NULL,
		quarter TEXT NOT NULL,
		lifetime_tickets INTEGER NOT NULL,
		quarter_tickets INTEGER NOT NULL,
		occurred_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tier_changes_agent ON tier_changes(agent_id, occurred_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// agent.Store
// =============================================================================

func (s *Store) SaveAgent(ctx context.Context, a agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveAgent(ctx, a)
}

func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getAgent(ctx, id)
}

func (s *Store) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listAgents(ctx)
}

func (s *Store) SaveBooking(ctx context.Context, b agent.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveBooking(ctx, b)
}

func (s *Store) GetBooking(ctx context.Context, id string) (*agent.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getBooking(ctx, id)
}

func (s *Store) ListBookings(ctx context.Context, f agent.BookingFilter) ([]agent.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listBookings(ctx, f)
}

func (s *Store) AppendCommission(ctx context.Context, e agent.CommissionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.appendCommission(ctx, e)
}

func (s *Store) ListCommissions(ctx context.Context, agentID string) ([]agent.CommissionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listCommissions(ctx, agentID)
}

func (s *Store) AppendTierChange(ctx context.Context, c agent.TierChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.appendTierChange(ctx, c)
}

func (s *Store) ListTierChanges(ctx context.Context, agentID string) ([]agent.TierChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listTierChanges(ctx, agentID)
}

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Children first for the foreign keys.
	tables := []string{"commissions", "tier_changes", "bookings", "agents"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (agent.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(agent.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: queries{db: sqlTx}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every statement on the open transaction.
type txStore struct {
	q queries
}

func (ts *txStore) SaveAgent(ctx context.Context, a agent.Agent) error {
	return ts.q.saveAgent(ctx, a)
}

func (ts *txStore) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	return ts.q.getAgent(ctx, id)
}

func (ts *txStore) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	return ts.q.listAgents(ctx)
}

func (ts *txStore) SaveBooking(ctx context.Context, b agent.Booking) error {
	return ts.q.saveBooking(ctx, b)
}

func (ts *txStore) GetBooking(ctx context.Context, id string) (*agent.Booking, error) {
	return ts.q.getBooking(ctx, id)
}

func (ts *txStore) ListBookings(ctx context.Context, f agent.BookingFilter) ([]agent.Booking, error) {
	return ts.q.listBookings(ctx, f)
}

func (ts *txStore) AppendCommission(ctx context.Context, e agent.CommissionEntry) error {
	return ts.q.appendCommission(ctx, e)
}

func (ts *txStore) ListCommissions(ctx context.Context, agentID string) ([]agent.CommissionEntry, error) {
	return ts.q.listCommissions(ctx, agentID)
}

func (ts *txStore) AppendTierChange(ctx context.Context, c agent.TierChange) error {
	return ts.q.appendTierChange(ctx, c)
}

func (ts *txStore) ListTierChanges(ctx context.Context, agentID string) ([]agent.TierChange, error) {
	return ts.q.listTierChanges(ctx, agentID)
}

// =============================================================================
// QUERIES - Shared by Store and txStore
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const agentColumns = `id, name, email, current_tier, lifetime_tickets, quarter_tickets,
	grace_end_date, quarter_start, created_at, updated_at`

func (q queries) saveAgent(ctx context.Context, a agent.Agent) error {
	var grace sql.NullString
	if a.Standing.GraceEndDate != nil {
		grace = sql.NullString{String: a.Standing.GraceEndDate.Format(dateLayout), Valid: true}
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			current_tier = excluded.current_tier,
			lifetime_tickets = excluded.lifetime_tickets,
			quarter_tickets = excluded.quarter_tickets,
			grace_end_date = excluded.grace_end_date,
			quarter_start = excluded.quarter_start,
			updated_at = excluded.updated_at
	`,
		a.ID, a.Name, nullString(a.Email),
		string(a.Standing.CurrentTier),
		a.Standing.LifetimeTickets,
		a.Standing.CurrentQuarterTickets,
		grace,
		a.QuarterStart.Format(dateLayout),
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}
	return nil
}

func (q queries) getAgent(ctx context.Context, id string) (*agent.Agent, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE id = ?", id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, agent.ErrAgentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (q queries) listAgents(ctx context.Context) ([]agent.Agent, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT "+agentColumns+" FROM agents ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func scanAgent(row scanner) (agent.Agent, error) {
	var (
		a                                        agent.Agent
		email, grace                             sql.NullString
		tierName, quarterStart, created, updated string
	)
	err := row.Scan(&a.ID, &a.Name, &email, &tierName,
		&a.Standing.LifetimeTickets, &a.Standing.CurrentQuarterTickets,
		&grace, &quarterStart, &created, &updated)
	if err != nil {
		return a, err
	}

	a.Email = email.String
	a.Standing.AgentID = a.ID
	a.Standing.CurrentTier = tier.Name(tierName)
	if grace.Valid {
		end, err := time.Parse(dateLayout, grace.String)
		if err != nil {
			return a, fmt.Errorf("agent %s: bad grace_end_date: %w", a.ID, err)
		}
		a.Standing.GraceEndDate = &end
	}
	if a.QuarterStart, err = time.Parse(dateLayout, quarterStart); err != nil {
		return a, fmt.Errorf("agent %s: bad quarter_start: %w", a.ID, err)
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return a, fmt.Errorf("agent %s: bad created_at: %w", a.ID, err)
	}
	if a.UpdatedAt, err = parseTime(updated); err != nil {
		return a, fmt.Errorf("agent %s: bad updated_at: %w", a.ID, err)
	}
	return a, nil
}

const bookingColumns = `id, agent_id, reference, ticket_issued, passenger_count, flights_json,
	total_price, status, created_at, completed_at`

func (q queries) saveBooking(ctx context.Context, b agent.Booking) error {
	flights, err := json.Marshal(b.Flights)
	if err != nil {
		return fmt.Errorf("failed to encode flights: %w", err)
	}
	var completed sql.NullString
	if b.CompletedAt != nil {
		completed = sql.NullString{String: formatTime(*b.CompletedAt), Valid: true}
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			reference = excluded.reference,
			ticket_issued = excluded.ticket_issued,
			passenger_count = excluded.passenger_count,
			flights_json = excluded.flights_json,
			total_price = excluded.total_price,
			status = excluded.status,
			completed_at = excluded.completed_at
	`,
		b.ID, b.AgentID, b.Reference, b.TicketIssued, b.PassengerCount,
		string(flights), int64(b.TotalPrice), string(b.Status),
		formatTime(b.CreatedAt), completed,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return agent.ErrAgentNotFound
		}
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

func (q queries) getBooking(ctx context.Context, id string) (*agent.Booking, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, agent.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (q queries) listBookings(ctx context.Context, f agent.BookingFilter) ([]agent.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	query := "SELECT " + bookingColumns + " FROM bookings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []agent.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func scanBooking(row scanner) (agent.Booking, error) {
	var (
		b               agent.Booking
		flights, status string
		price           int64
		created         string
		completed       sql.NullString
	)
	err := row.Scan(&b.ID, &b.AgentID, &b.Reference, &b.TicketIssued, &b.PassengerCount,
		&flights, &price, &status, &created, &completed)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal([]byte(flights), &b.Flights); err != nil {
		return b, fmt.Errorf("booking %s: bad flights_json: %w", b.ID, err)
	}
	b.TotalPrice = tier.VND(price)
	b.Status = agent.BookingStatus(status)
	if b.CreatedAt, err = parseTime(created); err != nil {
		return b, fmt.Errorf("booking %s: bad created_at: %w", b.ID, err)
	}
	if completed.Valid {
		t, err := parseTime(completed.String)
		if err != nil {
			return b, fmt.Errorf("booking %s: bad completed_at: %w", b.ID, err)
		}
		b.CompletedAt = &t
	}
	return b, nil
}

func (q queries) appendCommission(ctx context.Context, e agent.CommissionEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO commissions (id, agent_id, booking_id, tier, tickets, amount, quarter, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.AgentID, e.BookingID, string(e.Tier), e.Tickets, int64(e.Amount),
		e.Quarter, formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return agent.ErrAlreadyCredited
		}
		return fmt.Errorf("failed to append commission: %w", err)
	}
	return nil
}

func (q queries) listCommissions(ctx context.Context, agentID string) ([]agent.CommissionEntry, error) {
	query := `SELECT id, agent_id, booking_id, tier, tickets, amount, quarter, created_at FROM commissions`
	var args []any
	if agentID != "" {
		query += " WHERE agent_id = ?"
		args = append(args, agentID)
	}
	query += " ORDER BY created_at, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commissions: %w", err)
	}
	defer rows.Close()

	var entries []agent.CommissionEntry
	for rows.Next() {
		var (
			e        agent.CommissionEntry
			tierName string
			amount   int64
			created  string
		)
		if err := rows.Scan(&e.ID, &e.AgentID, &e.BookingID, &tierName, &e.Tickets, &amount, &e.Quarter, &created); err != nil {
			return nil, err
		}
		e.Tier = tier.Name(tierName)
		e.Amount = tier.VND(amount)
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("commission %s: bad created_at: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (q queries) appendTierChange(ctx context.Context, c agent.TierChange) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tier_changes
		(id, agent_id, kind, from_tier, to_tier, quarter, lifetime_tickets, quarter_tickets, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.AgentID, string(c.Kind), string(c.From), string(c.To), c.Quarter,
		c.LifetimeTickets, c.QuarterTickets, formatTime(c.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append tier change: %w", err)
	}
	return nil
}

func (q queries) listTierChanges(ctx context.Context, agentID string) ([]agent.TierChange, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, agent_id, kind, from_tier, to_tier, quarter, lifetime_tickets, quarter_tickets, occurred_at
		FROM tier_changes
		WHERE agent_id = ?
		ORDER BY occurred_at, rowid
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tier changes: %w", err)
	}
	defer rows.Close()

	var changes []agent.TierChange
	for rows.Next() {
		var (
			c                    agent.TierChange
			kind, from, to, when string
		)
		if err := rows.Scan(&c.ID, &c.AgentID, &kind, &from, &to, &c.Quarter,
			&c.LifetimeTickets, &c.QuarterTickets, &when); err != nil {
			return nil, err
		}
		c.Kind = tier.ChangeKind(kind)
		c.From = tier.Name(from)
		c.To = tier.Name(to)
		if c.OccurredAt, err = parseTime(when); err != nil {
			return nil, fmt.Errorf("tier change %s: bad occurred_at: %w", c.ID, err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// =============================================================================
// Helpers
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
