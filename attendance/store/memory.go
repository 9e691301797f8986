// Package store provides attendance.Store implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/odcheck/attendance-engine/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	sessions    map[attendance.SessionID]attendance.Session
	occurrences map[attendance.OccurrenceID]attendance.Occurrence
	byToken     map[string]attendance.OccurrenceID
	policies    map[attendance.SessionID]attendance.Policy
	attendance  map[pairKey]attendance.AttendanceRecord
	penalties   map[pairKey]attendance.PenaltyRecord
}

type pairKey struct {
	UserID       attendance.UserID
	OccurrenceID attendance.OccurrenceID
}

func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[attendance.SessionID]attendance.Session),
		occurrences: make(map[attendance.OccurrenceID]attendance.Occurrence),
		byToken:     make(map[string]attendance.OccurrenceID),
		policies:    make(map[attendance.SessionID]attendance.Policy),
		attendance:  make(map[pairKey]attendance.AttendanceRecord),
		penalties:   make(map[pairKey]attendance.PenaltyRecord),
	}
}

// =============================================================================
// FIXTURE SETUP - Not part of the attendance.Store contract
// =============================================================================

func (m *Memory) PutSession(s attendance.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *Memory) PutOccurrence(o attendance.Occurrence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.occurrences[o.ID] = o
	if o.Token != "" {
		m.byToken[o.Token] = o.ID
	}
}

func (m *Memory) PutPolicy(p attendance.Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.SessionID] = p
}

// =============================================================================
// READ SIDE
// =============================================================================

func (m *Memory) GetSession(_ context.Context, id attendance.SessionID) (*attendance.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, attendance.ErrSessionNotFound
	}
	return &s, nil
}

func (m *Memory) GetOccurrence(_ context.Context, id attendance.OccurrenceID) (*attendance.Occurrence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.occurrences[id]
	if !ok {
		return nil, attendance.ErrOccurrenceNotFound
	}
	return &o, nil
}

func (m *Memory) GetOccurrenceByToken(_ context.Context, token string) (*attendance.Occurrence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byToken[token]
	if !ok {
		return nil, attendance.ErrOccurrenceNotFound
	}
	o := m.occurrences[id]
	return &o, nil
}

func (m *Memory) GetPolicy(_ context.Context, sessionID attendance.SessionID) (*attendance.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[sessionID]
	if !ok {
		return nil, attendance.ErrPolicyNotFound
	}
	return &p, nil
}

// =============================================================================
// LEDGER - Uniqueness check and insert under one lock
// =============================================================================

func (m *Memory) TryInsertAttendance(_ context.Context, userID attendance.UserID, occurrenceID attendance.OccurrenceID, at time.Time, meta attendance.RequestMetadata) (*attendance.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := pairKey{UserID: userID, OccurrenceID: occurrenceID}
	if existing, ok := m.attendance[k]; ok {
		return nil, &attendance.AlreadyCheckedInError{
			UserID:       userID,
			OccurrenceID: occurrenceID,
			ExistingID:   existing.ID,
		}
	}

	rec := attendance.AttendanceRecord{
		ID:            attendance.RecordID(uuid.NewString()),
		UserID:        userID,
		OccurrenceID:  occurrenceID,
		CheckInAt:     at,
		OriginAddress: meta.OriginAddress,
		ClientID:      meta.ClientID,
		CreatedAt:     time.Now().UTC(),
	}
	m.attendance[k] = rec
	return &rec, nil
}

func (m *Memory) InsertPenalty(_ context.Context, userID attendance.UserID, occurrenceID attendance.OccurrenceID, minutesLate int, amount attendance.Money) (*attendance.PenaltyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := pairKey{UserID: userID, OccurrenceID: occurrenceID}
	if existing, ok := m.penalties[k]; ok {
		// At most one penalty per pair; returning the existing row keeps
		// retries after a partial failure idempotent.
		return &existing, nil
	}

	pen := attendance.PenaltyRecord{
		ID:           attendance.RecordID(uuid.NewString()),
		UserID:       userID,
		OccurrenceID: occurrenceID,
		MinutesLate:  minutesLate,
		Amount:       amount,
		CreatedAt:    time.Now().UTC(),
	}
	m.penalties[k] = pen
	return &pen, nil
}

// Penalties returns all penalty rows (for assertions in tests).
func (m *Memory) Penalties() []attendance.PenaltyRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]attendance.PenaltyRecord, 0, len(m.penalties))
	for _, p := range m.penalties {
		out = append(out, p)
	}
	return out
}

// AttendanceCount returns the number of attendance rows.
func (m *Memory) AttendanceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.attendance)
}
