/*
Package attendance provides the core check-in and late-fee engine.

PURPOSE:
  This package contains the domain types and algorithms for QR-code
  attendance tracking: resolving a scheduled occurrence, recording a
  check-in exactly once per (user, occurrence) pair, and deriving a
  tiered monetary penalty from the lateness and the session's policy.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A currency amount backed by decimal.Decimal
  - Session/Occurrence: A recurring meeting and its scheduled instances
  - Policy: Per-session grace period and billing configuration
  - AttendanceRecord/PenaltyRecord: Append-only ledger rows
  - CheckInReport: The combined result returned to callers

DESIGN PRINCIPLES:
  1. Immutability: Attendance and penalty rows are written once, never
     updated or deleted
  2. Precision: Uses decimal.Decimal for fees to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing user/occurrence IDs
  4. Purity: Penalty assessment is a pure function over instants and policy

USAGE:
  svc := attendance.NewService(store)
  report, err := svc.CheckIn(ctx, userID, occurrenceID, meta)

SEE ALSO:
  - penalty.go: The lateness and fee computation
  - checkin.go: The check-in orchestration
  - store.go: Persistence interfaces
*/
package attendance

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency amount
// =============================================================================

type Currency string

const CurrencyKRW Currency = "KRW"

type Money struct {
	Value    decimal.Decimal
	Currency Currency
}

func NewMoney(value int64, currency Currency) Money {
	return Money{Value: decimal.NewFromInt(value), Currency: currency}
}

// ParseMoney parses a decimal amount string.
func ParseMoney(s string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money{Value: d, Currency: currency}, nil
}

// MustParseMoney parses a stored amount. An unparseable string falls
// back to the default fee: a garbled fee must never turn into a free
// pass.
func MustParseMoney(s string, currency Currency) Money {
	m, err := ParseMoney(s, currency)
	if err != nil {
		return NewMoney(DefaultFeePerUnit, currency)
	}
	return m
}

func (m Money) MulInt(n int64) Money {
	return Money{Value: m.Value.Mul(decimal.NewFromInt(n)), Currency: m.Currency}
}

func (m Money) Add(o Money) Money          { return Money{Value: m.Value.Add(o.Value), Currency: m.Currency} }
func (m Money) IsZero() bool               { return m.Value.IsZero() }
func (m Money) IsNegative() bool           { return m.Value.IsNegative() }
func (m Money) IsPositive() bool           { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool         { return m.Value.Equal(o.Value) && m.Currency == o.Currency }
func (m Money) GreaterThan(o Money) bool   { return m.Value.GreaterThan(o.Value) }
func (m Money) String() string             { return m.Value.String() + " " + string(m.Currency) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type SessionID string
type OccurrenceID string
type RecordID string

// =============================================================================
// SESSION & OCCURRENCE - What participants check in to
// =============================================================================

// Session is a recurring meeting. It owns its occurrences and has
// exactly one attendance policy for its whole lifetime.
type Session struct {
	ID          SessionID
	Title       string
	Description string
	Timezone    string
	CreatedAt   time.Time
}

// Occurrence is one scheduled instance of a session. Token is the
// opaque QR check-in token: globally unique, immutable once issued.
type Occurrence struct {
	ID             OccurrenceID
	SessionID      SessionID
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	Token          string
	CreatedAt      time.Time
}

// NewCheckInToken generates a fresh opaque check-in token: 32 random
// bytes, hex-encoded. Collisions are guarded by the storage-level
// uniqueness constraint on the token column.
func NewCheckInToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; an
		// unpredictable-but-unique fallback keeps tokens usable.
		return hex.EncodeToString([]byte(time.Now().UTC().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(buf)
}

// OccurrenceSummary is what a QR token resolves to for the
// self-service check-in page. Read-only view, no mutation.
type OccurrenceSummary struct {
	OccurrenceID   OccurrenceID
	SessionTitle   string
	Description    string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
}

// =============================================================================
// POLICY - Grace and billing configuration per session
// =============================================================================

// Defaults applied when a policy row is missing or carries invalid
// fields. Policy absence must never block a check-in.
const (
	DefaultGraceMinutes       = 5
	DefaultBillingUnitMinutes = 60
	DefaultFeePerUnit         = 5000
)

// Policy controls how lateness is converted into a fee.
type Policy struct {
	SessionID          SessionID
	GraceMinutes       int   // arrival within this many minutes is free
	BillingUnitMinutes int   // tier size; partial units round up
	FeePerUnit         Money // charged per started unit
}

// DefaultPolicy returns the documented default policy for a session.
func DefaultPolicy(sessionID SessionID) Policy {
	return Policy{
		SessionID:          sessionID,
		GraceMinutes:       DefaultGraceMinutes,
		BillingUnitMinutes: DefaultBillingUnitMinutes,
		FeePerUnit:         NewMoney(DefaultFeePerUnit, CurrencyKRW),
	}
}

// Normalized returns a copy with invalid fields replaced by the
// defaults. Grace may be zero; the billing unit must be positive and
// the fee non-negative.
func (p Policy) Normalized() Policy {
	if p.GraceMinutes < 0 {
		p.GraceMinutes = DefaultGraceMinutes
	}
	if p.BillingUnitMinutes <= 0 {
		p.BillingUnitMinutes = DefaultBillingUnitMinutes
	}
	if p.FeePerUnit.IsNegative() {
		p.FeePerUnit = NewMoney(DefaultFeePerUnit, CurrencyKRW)
	}
	if p.FeePerUnit.Currency == "" {
		p.FeePerUnit.Currency = CurrencyKRW
	}
	return p
}

// =============================================================================
// LEDGER ROWS - Append-only attendance and penalty records
// =============================================================================

// RequestMetadata is captured with each check-in for auditing.
type RequestMetadata struct {
	OriginAddress string // remote address of the check-in request
	ClientID      string // client identifier string (e.g. user agent)
}

// AttendanceRecord is the check-in fact. Exactly one exists per
// (user, occurrence) pair; it is never updated or deleted.
type AttendanceRecord struct {
	ID            RecordID
	UserID        UserID
	OccurrenceID  OccurrenceID
	CheckInAt     time.Time
	OriginAddress string
	ClientID      string
	CreatedAt     time.Time
}

// PenaltyRecord is the fee charged for a late check-in. At most one
// exists per (user, occurrence) pair, created only when the lateness
// exceeds the grace period and the assessed amount is positive.
// MinutesLate is the whole-minute portion beyond grace.
type PenaltyRecord struct {
	ID           RecordID
	UserID       UserID
	OccurrenceID OccurrenceID
	MinutesLate  int
	Amount       Money
	CreatedAt    time.Time
}

// =============================================================================
// CHECK-IN REPORT - Combined result of a check-in
// =============================================================================

// CheckInReport is what CheckIn returns on success. Penalty is nil for
// on-time arrivals. PenaltyPending is set when the attendance row
// committed but the penalty write failed; the attendance fact is never
// rolled back in that case.
type CheckInReport struct {
	Attendance     AttendanceRecord
	MinutesLate    int
	Penalty        *PenaltyRecord
	PenaltyPending bool
}
