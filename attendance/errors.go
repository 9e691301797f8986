/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The storage layer and the HTTP boundary both classify failures
  through these.

ERROR CATEGORIES:
  1. Not-found errors - Occurrence, session, or token does not resolve
  2. Rejection errors - Business rule violations (duplicate check-in)
  3. Partial-success errors - Attendance committed, penalty write failed

USAGE:
  Callers match with errors.Is / errors.As:

    if errors.Is(err, attendance.ErrAlreadyCheckedIn) {
        // user-visible rejection, not a server fault
    }

SEE ALSO:
  - checkin.go: Produces these errors
  - store.go: Storage contract referencing them
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrOccurrenceNotFound is returned when an occurrence ID or QR token
	// does not resolve. Surfaced to the caller verbatim, no retry.
	ErrOccurrenceNotFound = errors.New("occurrence not found")

	// ErrSessionNotFound is returned when a referenced session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPolicyNotFound is returned when a session has no policy row.
	// The orchestrator applies the documented defaults instead of failing.
	ErrPolicyNotFound = errors.New("attendance policy not found")

	// ErrAlreadyCheckedIn is returned on a duplicate (user, occurrence)
	// check-in. Idempotent rejection, never an overwrite.
	ErrAlreadyCheckedIn = errors.New("already checked in")

	// ErrPenaltyPending is returned when the attendance row committed but
	// the penalty write failed. The check-in stands; the penalty must be
	// reconciled out of band.
	ErrPenaltyPending = errors.New("penalty recording pending")

	// ErrDuplicateOccurrence is returned when creating an occurrence in a
	// slot the session already has one for.
	ErrDuplicateOccurrence = errors.New("occurrence already exists for this time slot")

	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AlreadyCheckedInError identifies the existing record that blocked a
// duplicate check-in.
type AlreadyCheckedInError struct {
	UserID       UserID
	OccurrenceID OccurrenceID
	ExistingID   RecordID
}

func (e *AlreadyCheckedInError) Error() string {
	return fmt.Sprintf("user %s already checked in to occurrence %s (record: %s)",
		e.UserID, e.OccurrenceID, e.ExistingID)
}

func (e *AlreadyCheckedInError) Unwrap() error {
	return ErrAlreadyCheckedIn
}

// PenaltyPendingError carries the committed report alongside the cause
// of the failed penalty write.
type PenaltyPendingError struct {
	UserID       UserID
	OccurrenceID OccurrenceID
	Cause        error
}

func (e *PenaltyPendingError) Error() string {
	return fmt.Sprintf("check-in recorded for user %s on occurrence %s but penalty write failed: %v",
		e.UserID, e.OccurrenceID, e.Cause)
}

func (e *PenaltyPendingError) Unwrap() error {
	return ErrPenaltyPending
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOccurrenceNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsClientError returns true if the error is a user-visible rejection
// rather than a server fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAlreadyCheckedIn) ||
		errors.Is(err, ErrDuplicateOccurrence)
}
