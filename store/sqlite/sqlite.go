/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements attendance.Store plus the account, session/occurrence
  management, and reporting queries the HTTP layer needs. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

INTERFACES IMPLEMENTED:
  attendance.SessionStore:    Session lookups
  attendance.OccurrenceStore: Occurrence lookups (ID and QR token)
  attendance.PolicyStore:     Per-session billing policy
  attendance.LedgerStore:     Attendance and penalty writes

APPEND-ONLY ENFORCEMENT:
  attendance_logs and penalties have no UPDATE or DELETE statements.
  A check-in, once recorded, stands.

KEY TABLES:
  users:               Accounts (participant/admin)
  sessions:            Recurring meetings
  attendance_settings: One policy row per session
  occurrences:         Scheduled instances with unique QR tokens
  attendance_logs:     Check-in ledger, UNIQUE(user_id, occurrence_id)
  penalties:           Late fees, UNIQUE(user_id, occurrence_id)

ATOMIC DUPLICATE REJECTION:
  The UNIQUE index on (user_id, occurrence_id) makes the insert attempt
  itself the duplicate check. Two racing check-ins for the same pair:
  one row, one constraint violation. No application-level read-then-write.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/odcheck.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := attendance.NewService(store)

SEE ALSO:
  - attendance/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/odcheck/attendance-engine/attendance"
)

// ErrDuplicateEmail is returned when registering an email that already
// has an account.
var ErrDuplicateEmail = errors.New("email already registered")

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'participant',
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Sessions (recurring meetings)
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		timezone TEXT NOT NULL DEFAULT 'Asia/Seoul',
		created_at TEXT NOT NULL
	);

	-- Exactly one policy row per session, created with the session
	CREATE TABLE IF NOT EXISTS attendance_settings (
		session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
		grace_minutes INTEGER NOT NULL,
		billing_unit_minutes INTEGER NOT NULL,
		fee_per_unit TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'KRW',
		updated_at TEXT NOT NULL
	);

	-- Scheduled instances. qr_token is globally unique and immutable.
	CREATE TABLE IF NOT EXISTS occurrences (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		scheduled_start TEXT NOT NULL,
		scheduled_end TEXT NOT NULL,
		qr_token TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(session_id, scheduled_start)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_occurrences_token
		ON occurrences(qr_token);
	CREATE INDEX IF NOT EXISTS idx_occurrences_session
		ON occurrences(session_id);

	-- CRITICAL: the insert attempt doubles as the duplicate check.
	-- One check-in per (user, occurrence), enforced by the index.
	CREATE TABLE IF NOT EXISTS attendance_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		occurrence_id TEXT NOT NULL REFERENCES occurrences(id),
		check_in_time TEXT NOT NULL,
		origin_addr TEXT,
		client_id TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(user_id, occurrence_id)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_logs_occurrence
		ON attendance_logs(occurrence_id);
	CREATE INDEX IF NOT EXISTS idx_attendance_logs_check_in_time
		ON attendance_logs(check_in_time);

	-- At most one penalty per pair, only for late check-ins
	CREATE TABLE IF NOT EXISTS penalties (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		occurrence_id TEXT NOT NULL REFERENCES occurrences(id),
		minutes_late INTEGER NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'KRW',
		created_at TEXT NOT NULL,
		UNIQUE(user_id, occurrence_id)
	);

	CREATE INDEX IF NOT EXISTS idx_penalties_user
		ON penalties(user_id);
	CREATE INDEX IF NOT EXISTS idx_penalties_occurrence
		ON penalties(occurrence_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SESSION STORE (attendance.SessionStore interface)
// =============================================================================

// SaveSession inserts a session together with its policy row. A session
// never exists without a policy.
func (s *Store) SaveSession(ctx context.Context, sess attendance.Session, policy attendance.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, title, description, timezone, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.Description, sess.Timezone, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	p := policy.Normalized()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO attendance_settings (session_id, grace_minutes, billing_unit_minutes, fee_per_unit, currency, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, p.GraceMinutes, p.BillingUnitMinutes, p.FeePerUnit.Value.String(), p.FeePerUnit.Currency, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}

	return tx.Commit()
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id attendance.SessionID) (*attendance.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sess attendance.Session
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, description, timezone, created_at FROM sessions WHERE id = ?",
		id,
	).Scan(&sess.ID, &sess.Title, &sess.Description, &sess.Timezone, &createdAt)

	if err == sql.ErrNoRows {
		return nil, attendance.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]attendance.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, description, timezone, created_at FROM sessions ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []attendance.Session
	for rows.Next() {
		var sess attendance.Session
		var createdAt string
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Description, &sess.Timezone, &createdAt); err != nil {
			return nil, err
		}
		sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// =============================================================================
// POLICY STORE (attendance.PolicyStore interface)
// =============================================================================

// GetPolicy retrieves the policy for a session.
func (s *Store) GetPolicy(ctx context.Context, sessionID attendance.SessionID) (*attendance.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p attendance.Policy
	var fee, currency string

	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, grace_minutes, billing_unit_minutes, fee_per_unit, currency
		 FROM attendance_settings WHERE session_id = ?`,
		sessionID,
	).Scan(&p.SessionID, &p.GraceMinutes, &p.BillingUnitMinutes, &fee, &currency)

	if err == sql.ErrNoRows {
		return nil, attendance.ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}

	p.FeePerUnit = attendance.MustParseMoney(fee, attendance.Currency(currency))
	return &p, nil
}

// SavePolicy upserts the policy for a session. Policy edits are
// allowed; the row itself is never absent while the session exists.
func (s *Store) SavePolicy(ctx context.Context, policy attendance.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := policy.Normalized()
	query := `
		INSERT INTO attendance_settings (session_id, grace_minutes, billing_unit_minutes, fee_per_unit, currency, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			grace_minutes = excluded.grace_minutes,
			billing_unit_minutes = excluded.billing_unit_minutes,
			fee_per_unit = excluded.fee_per_unit,
			currency = excluded.currency,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		p.SessionID, p.GraceMinutes, p.BillingUnitMinutes,
		p.FeePerUnit.Value.String(), p.FeePerUnit.Currency,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// OCCURRENCE STORE (attendance.OccurrenceStore interface)
// =============================================================================

// SaveOccurrence inserts an occurrence. Returns ErrDuplicateOccurrence
// when the session already has one at the same scheduled start.
func (s *Store) SaveOccurrence(ctx context.Context, occ attendance.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO occurrences (id, session_id, scheduled_start, scheduled_end, qr_token, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		occ.ID, occ.SessionID,
		occ.ScheduledStart.UTC().Format(time.RFC3339),
		occ.ScheduledEnd.UTC().Format(time.RFC3339),
		occ.Token,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return attendance.ErrDuplicateOccurrence
		}
		return fmt.Errorf("failed to insert occurrence: %w", err)
	}
	return nil
}

// GetOccurrence retrieves an occurrence by ID.
func (s *Store) GetOccurrence(ctx context.Context, id attendance.OccurrenceID) (*attendance.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryOccurrence(ctx,
		`SELECT id, session_id, scheduled_start, scheduled_end, qr_token, created_at
		 FROM occurrences WHERE id = ?`, id)
}

// GetOccurrenceByToken resolves a QR token by exact match.
func (s *Store) GetOccurrenceByToken(ctx context.Context, token string) (*attendance.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryOccurrence(ctx,
		`SELECT id, session_id, scheduled_start, scheduled_end, qr_token, created_at
		 FROM occurrences WHERE qr_token = ?`, token)
}

func (s *Store) queryOccurrence(ctx context.Context, query string, arg any) (*attendance.Occurrence, error) {
	var occ attendance.Occurrence
	var start, end, createdAt string

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&occ.ID, &occ.SessionID, &start, &end, &occ.Token, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, attendance.ErrOccurrenceNotFound
	}
	if err != nil {
		return nil, err
	}

	occ.ScheduledStart, _ = time.Parse(time.RFC3339, start)
	occ.ScheduledEnd, _ = time.Parse(time.RFC3339, end)
	occ.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &occ, nil
}

// ListOccurrences returns all occurrences for a session, chronologically.
func (s *Store) ListOccurrences(ctx context.Context, sessionID attendance.SessionID) ([]attendance.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, scheduled_start, scheduled_end, qr_token, created_at
		 FROM occurrences WHERE session_id = ? ORDER BY scheduled_start ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var occs []attendance.Occurrence
	for rows.Next() {
		var occ attendance.Occurrence
		var start, end, createdAt string
		if err := rows.Scan(&occ.ID, &occ.SessionID, &start, &end, &occ.Token, &createdAt); err != nil {
			return nil, err
		}
		occ.ScheduledStart, _ = time.Parse(time.RFC3339, start)
		occ.ScheduledEnd, _ = time.Parse(time.RFC3339, end)
		occ.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		occs = append(occs, occ)
	}
	return occs, rows.Err()
}

// =============================================================================
// LEDGER STORE (attendance.LedgerStore interface)
// =============================================================================

// TryInsertAttendance atomically records a check-in. The UNIQUE index on
// (user_id, occurrence_id) rejects duplicates inside the insert itself;
// there is no separate existence check to race against.
func (s *Store) TryInsertAttendance(ctx context.Context, userID attendance.UserID, occurrenceID attendance.OccurrenceID, at time.Time, meta attendance.RequestMetadata) (*attendance.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := attendance.AttendanceRecord{
		ID:            attendance.RecordID(uuid.NewString()),
		UserID:        userID,
		OccurrenceID:  occurrenceID,
		CheckInAt:     at.UTC(),
		OriginAddress: meta.OriginAddress,
		ClientID:      meta.ClientID,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance_logs (id, user_id, occurrence_id, check_in_time, origin_addr, client_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.OccurrenceID,
		rec.CheckInAt.Format(time.RFC3339),
		nullString(rec.OriginAddress), nullString(rec.ClientID),
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			existingID, lookupErr := s.attendanceID(ctx, userID, occurrenceID)
			if lookupErr != nil {
				existingID = ""
			}
			return nil, &attendance.AlreadyCheckedInError{
				UserID:       userID,
				OccurrenceID: occurrenceID,
				ExistingID:   existingID,
			}
		}
		return nil, fmt.Errorf("failed to insert attendance: %w", err)
	}

	return &rec, nil
}

func (s *Store) attendanceID(ctx context.Context, userID attendance.UserID, occurrenceID attendance.OccurrenceID) (attendance.RecordID, error) {
	var id attendance.RecordID
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM attendance_logs WHERE user_id = ? AND occurrence_id = ?",
		userID, occurrenceID,
	).Scan(&id)
	return id, err
}

// InsertPenalty records the late fee for a pair.
func (s *Store) InsertPenalty(ctx context.Context, userID attendance.UserID, occurrenceID attendance.OccurrenceID, minutesLate int, amount attendance.Money) (*attendance.PenaltyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pen := attendance.PenaltyRecord{
		ID:           attendance.RecordID(uuid.NewString()),
		UserID:       userID,
		OccurrenceID: occurrenceID,
		MinutesLate:  minutesLate,
		Amount:       amount,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO penalties (id, user_id, occurrence_id, minutes_late, amount, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pen.ID, pen.UserID, pen.OccurrenceID, pen.MinutesLate,
		pen.Amount.Value.String(), pen.Amount.Currency,
		pen.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// Retry after a partial failure: the penalty is already
			// recorded, return the existing row.
			return s.penaltyByPair(ctx, userID, occurrenceID)
		}
		return nil, fmt.Errorf("failed to insert penalty: %w", err)
	}

	return &pen, nil
}

func (s *Store) penaltyByPair(ctx context.Context, userID attendance.UserID, occurrenceID attendance.OccurrenceID) (*attendance.PenaltyRecord, error) {
	var pen attendance.PenaltyRecord
	var amount, currency, createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, occurrence_id, minutes_late, amount, currency, created_at
		 FROM penalties WHERE user_id = ? AND occurrence_id = ?`,
		userID, occurrenceID,
	).Scan(&pen.ID, &pen.UserID, &pen.OccurrenceID, &pen.MinutesLate, &amount, &currency, &createdAt)
	if err != nil {
		return nil, err
	}

	pen.Amount = attendance.MustParseMoney(amount, attendance.Currency(currency))
	pen.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &pen, nil
}

// =============================================================================
// USER STORE
// =============================================================================

// User represents an account record.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string // "participant" or "admin"
	PasswordHash string
	CreatedAt    time.Time
}

// SaveUser inserts a user. Returns ErrDuplicateEmail when the email is
// already registered.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.Role, u.PasswordHash,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryUser(ctx,
		"SELECT id, email, name, role, password_hash, created_at FROM users WHERE id = ?", id)
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryUser(ctx,
		"SELECT id, email, name, role, password_hash, created_at FROM users WHERE email = ?", email)
}

func (s *Store) queryUser(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	var createdAt string

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, attendance.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

// =============================================================================
// REPORTING QUERIES
// =============================================================================

// AttendanceEntry is an attendance row joined with user and schedule
// context for reports.
type AttendanceEntry struct {
	Record         attendance.AttendanceRecord
	UserName       string
	UserEmail      string
	SessionTitle   string
	ScheduledStart time.Time
}

// AttendanceFilter narrows ListAttendance. Zero values mean "no filter".
type AttendanceFilter struct {
	From   *time.Time
	To     *time.Time
	UserID attendance.UserID
}

// AttendanceByOccurrence returns the check-ins for one occurrence in
// arrival order.
func (s *Store) AttendanceByOccurrence(ctx context.Context, occurrenceID attendance.OccurrenceID) ([]AttendanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT al.id, al.user_id, al.occurrence_id, al.check_in_time, al.origin_addr, al.client_id, al.created_at,
		       u.name, u.email, s.title, o.scheduled_start
		FROM attendance_logs al
		JOIN users u ON al.user_id = u.id
		JOIN occurrences o ON al.occurrence_id = o.id
		JOIN sessions s ON o.session_id = s.id
		WHERE al.occurrence_id = ?
		ORDER BY al.check_in_time ASC
	`

	return s.queryAttendanceEntries(ctx, query, occurrenceID)
}

// ListAttendance returns check-ins matching the filter, newest first.
func (s *Store) ListAttendance(ctx context.Context, filter AttendanceFilter) ([]AttendanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT al.id, al.user_id, al.occurrence_id, al.check_in_time, al.origin_addr, al.client_id, al.created_at,
		       u.name, u.email, s.title, o.scheduled_start
		FROM attendance_logs al
		JOIN users u ON al.user_id = u.id
		JOIN occurrences o ON al.occurrence_id = o.id
		JOIN sessions s ON o.session_id = s.id
		WHERE 1=1
	`
	var args []any

	if filter.From != nil {
		query += " AND al.check_in_time >= ?"
		args = append(args, filter.From.UTC().Format(time.RFC3339))
	}
	if filter.To != nil {
		query += " AND al.check_in_time <= ?"
		args = append(args, filter.To.UTC().Format(time.RFC3339))
	}
	if filter.UserID != "" {
		query += " AND al.user_id = ?"
		args = append(args, filter.UserID)
	}

	query += " ORDER BY al.check_in_time DESC"

	return s.queryAttendanceEntries(ctx, query, args...)
}

func (s *Store) queryAttendanceEntries(ctx context.Context, query string, args ...any) ([]AttendanceEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var entries []AttendanceEntry
	for rows.Next() {
		var e AttendanceEntry
		var checkIn, createdAt, scheduledStart string
		var origin, client sql.NullString

		if err := rows.Scan(
			&e.Record.ID, &e.Record.UserID, &e.Record.OccurrenceID,
			&checkIn, &origin, &client, &createdAt,
			&e.UserName, &e.UserEmail, &e.SessionTitle, &scheduledStart,
		); err != nil {
			return nil, err
		}

		e.Record.CheckInAt, _ = time.Parse(time.RFC3339, checkIn)
		e.Record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		e.Record.OriginAddress = origin.String
		e.Record.ClientID = client.String
		e.ScheduledStart, _ = time.Parse(time.RFC3339, scheduledStart)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PenaltyEntry is a penalty row joined with user and schedule context.
type PenaltyEntry struct {
	Record         attendance.PenaltyRecord
	UserName       string
	UserEmail      string
	SessionTitle   string
	ScheduledStart time.Time
}

// PenaltyFilter narrows ListPenalties. Zero values mean "no filter".
type PenaltyFilter struct {
	UserID       attendance.UserID
	OccurrenceID attendance.OccurrenceID
}

// ListPenalties returns penalties matching the filter, newest first.
func (s *Store) ListPenalties(ctx context.Context, filter PenaltyFilter) ([]PenaltyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT p.id, p.user_id, p.occurrence_id, p.minutes_late, p.amount, p.currency, p.created_at,
		       u.name, u.email, s.title, o.scheduled_start
		FROM penalties p
		JOIN users u ON p.user_id = u.id
		JOIN occurrences o ON p.occurrence_id = o.id
		JOIN sessions s ON o.session_id = s.id
		WHERE 1=1
	`
	var args []any

	if filter.UserID != "" {
		query += " AND p.user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.OccurrenceID != "" {
		query += " AND p.occurrence_id = ?"
		args = append(args, filter.OccurrenceID)
	}

	query += " ORDER BY p.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query penalties: %w", err)
	}
	defer rows.Close()

	var entries []PenaltyEntry
	for rows.Next() {
		var e PenaltyEntry
		var amount, currency, createdAt, scheduledStart string

		if err := rows.Scan(
			&e.Record.ID, &e.Record.UserID, &e.Record.OccurrenceID,
			&e.Record.MinutesLate, &amount, &currency, &createdAt,
			&e.UserName, &e.UserEmail, &e.SessionTitle, &scheduledStart,
		); err != nil {
			return nil, err
		}

		e.Record.Amount = attendance.MustParseMoney(amount, attendance.Currency(currency))
		e.Record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		e.ScheduledStart, _ = time.Parse(time.RFC3339, scheduledStart)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PenaltySummaryRow aggregates penalties per participant.
type PenaltySummaryRow struct {
	UserID       attendance.UserID
	UserName     string
	UserEmail    string
	PenaltyCount int
	TotalAmount  attendance.Money
}

// PenaltySummary returns per-participant penalty totals, largest first.
// Participants without penalties are included with zero totals.
func (s *Store) PenaltySummary(ctx context.Context) ([]PenaltySummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT u.id, u.name, u.email, p.amount
		FROM users u
		LEFT JOIN penalties p ON u.id = p.user_id
		WHERE u.role = 'participant'
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return sumPenaltyRows(rows)
}

// sumPenaltyRows accumulates per-user totals with decimal arithmetic
// and orders the result largest first. Summing in SQL would go through
// REAL and lose precision on fractional amounts.
func sumPenaltyRows(rows *sql.Rows) ([]PenaltySummaryRow, error) {
	var order []string
	byUser := make(map[string]*PenaltySummaryRow)

	for rows.Next() {
		var id, name, email string
		var amount sql.NullString
		if err := rows.Scan(&id, &name, &email, &amount); err != nil {
			return nil, err
		}

		row, ok := byUser[id]
		if !ok {
			row = &PenaltySummaryRow{
				UserID:      attendance.UserID(id),
				UserName:    name,
				UserEmail:   email,
				TotalAmount: attendance.NewMoney(0, attendance.CurrencyKRW),
			}
			byUser[id] = row
			order = append(order, id)
		}
		if amount.Valid {
			row.PenaltyCount++
			row.TotalAmount = row.TotalAmount.Add(attendance.MustParseMoney(amount.String, attendance.CurrencyKRW))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summary := make([]PenaltySummaryRow, 0, len(order))
	for _, id := range order {
		summary = append(summary, *byUser[id])
	}
	sort.SliceStable(summary, func(i, j int) bool {
		return summary[i].TotalAmount.GreaterThan(summary[j].TotalAmount)
	})
	return summary, nil
}

// DashboardStats holds the admin landing-page aggregates.
type DashboardStats struct {
	TodayCheckIns     int
	TotalParticipants int
	WeekAttendees     int // distinct users who checked in since the week start
	TopPenalties      []PenaltySummaryRow
}

// Dashboard computes today's and this week's attendance aggregates.
// The week starts on Sunday, matching the report conventions.
func (s *Store) Dashboard(ctx context.Context, now time.Time) (*DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	weekStart := dayStart.AddDate(0, 0, -int(dayStart.Weekday()))

	var stats DashboardStats

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance_logs WHERE check_in_time >= ? AND check_in_time < ?",
		dayStart.Format(time.RFC3339), dayEnd.Format(time.RFC3339),
	).Scan(&stats.TodayCheckIns)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE role = 'participant'",
	).Scan(&stats.TotalParticipants)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT user_id) FROM attendance_logs WHERE check_in_time >= ?",
		weekStart.Format(time.RFC3339),
	).Scan(&stats.WeekAttendees)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT u.id, u.name, u.email, p.amount
		FROM penalties p
		JOIN users u ON p.user_id = u.id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top, err := sumPenaltyRows(rows)
	if err != nil {
		return nil, err
	}
	if len(top) > 10 {
		top = top[:10]
	}
	stats.TopPenalties = top

	return &stats, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
