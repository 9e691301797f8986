/*
store.go - Persistence interfaces for the attendance engine

PURPOSE:
  Defines the contract between the orchestrator and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage; the engine only sees these interfaces.

KEY INTERFACES:
  SessionStore:    Session lookups
  OccurrenceStore: Occurrence lookups (by ID and by QR token)
  PolicyStore:     Per-session grace/billing policy
  LedgerStore:     Attendance and penalty writes
  Store:           All of the above (what a full backend implements)

ATOMICITY CONTRACT:
  TryInsertAttendance is the uniqueness check AND the insert in one
  atomic operation. Implementations enforce a uniqueness constraint on
  (user, occurrence) at the storage layer; the insert attempt itself
  serves as the check. A race between two concurrent check-ins for the
  same pair yields exactly one success and one AlreadyCheckedInError,
  never two rows. A read-then-write in the application would race.

APPEND-ONLY CONTRACT:
  Attendance and penalty rows are written once. No Update or Delete
  methods exist on the ledger.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite (UNIQUE index on the pair)
  - attendance/store: In-memory for testing/dev

SEE ALSO:
  - checkin.go: The only consumer of these interfaces
*/
package attendance

import (
	"context"
	"time"
)

// =============================================================================
// READ-SIDE STORES
// =============================================================================

// SessionStore resolves sessions. Read-only from the engine's side.
type SessionStore interface {
	// GetSession returns the session or ErrSessionNotFound.
	GetSession(ctx context.Context, id SessionID) (*Session, error)
}

// OccurrenceStore resolves occurrences. Read-only from the engine's side.
type OccurrenceStore interface {
	// GetOccurrence returns the occurrence or ErrOccurrenceNotFound.
	GetOccurrence(ctx context.Context, id OccurrenceID) (*Occurrence, error)

	// GetOccurrenceByToken resolves a QR token by exact match.
	// Returns ErrOccurrenceNotFound for unknown tokens.
	GetOccurrenceByToken(ctx context.Context, token string) (*Occurrence, error)
}

// PolicyStore resolves the per-session billing policy.
type PolicyStore interface {
	// GetPolicy returns the policy or ErrPolicyNotFound. A missing
	// policy never blocks a check-in; the orchestrator substitutes
	// the defaults.
	GetPolicy(ctx context.Context, sessionID SessionID) (*Policy, error)
}

// =============================================================================
// LEDGER STORE - Append-only writes
// =============================================================================

// LedgerStore records check-ins and penalties.
type LedgerStore interface {
	// TryInsertAttendance atomically inserts the check-in row unless one
	// already exists for (userID, occurrenceID), in which case it
	// returns an *AlreadyCheckedInError. This is the uniqueness check
	// and the insert as a single unit.
	TryInsertAttendance(ctx context.Context, userID UserID, occurrenceID OccurrenceID, at time.Time, meta RequestMetadata) (*AttendanceRecord, error)

	// InsertPenalty records the fee for a late check-in. Called at most
	// once per pair, after the attendance row committed.
	InsertPenalty(ctx context.Context, userID UserID, occurrenceID OccurrenceID, minutesLate int, amount Money) (*PenaltyRecord, error)
}

// =============================================================================
// COMPOSITE STORE
// =============================================================================

// Store is everything the orchestrator needs from a backend.
type Store interface {
	SessionStore
	OccurrenceStore
	PolicyStore
	LedgerStore
}
