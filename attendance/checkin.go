/*
checkin.go - Check-in orchestration

PURPOSE:
  Composes occurrence lookup, policy lookup, the attendance ledger, and
  the penalty calculator into the check-in operation. This is the only
  place the pieces meet; each collaborator stays independently simple.

CONTROL FLOW:
  CheckIn: resolve occurrence -> load policy (defaults if absent) ->
  atomic attendance insert -> assess lateness -> persist penalty ->
  combined report.

GUARANTEES:
  - After a successful call the pair has exactly one attendance row and
    at most one penalty row.
  - A failed precondition leaves no new rows.
  - If the penalty write fails after the attendance row committed, the
    attendance fact is kept and the failure surfaces as a
    PenaltyPendingError carrying the partial report. Check-in recording
    takes priority over penalty bookkeeping.

SEE ALSO:
  - penalty.go: The pure computation
  - store.go: The storage contract this relies on
*/
package attendance

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// SERVICE - The check-in orchestrator
// =============================================================================

// Service exposes the check-in and token-resolution operations.
type Service struct {
	store Store

	// Now supplies the check-in instant. Overridable in tests.
	Now func() time.Time
}

// NewService creates a Service over the given backend.
func NewService(store Store) *Service {
	return &Service{store: store, Now: time.Now}
}

// CheckIn records a check-in for userID on occurrenceID and assesses
// the late fee. The userID is trusted as given; authentication is the
// boundary layer's concern.
//
// Errors: ErrOccurrenceNotFound if the occurrence doesn't resolve,
// *AlreadyCheckedInError on a duplicate pair, *PenaltyPendingError on
// partial success, otherwise storage failures verbatim.
func (s *Service) CheckIn(ctx context.Context, userID UserID, occurrenceID OccurrenceID, meta RequestMetadata) (*CheckInReport, error) {
	occ, err := s.store.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}

	policy, err := s.store.GetPolicy(ctx, occ.SessionID)
	switch {
	case errors.Is(err, ErrPolicyNotFound):
		// Policy absence never blocks a check-in.
		p := DefaultPolicy(occ.SessionID)
		policy = &p
	case err != nil:
		return nil, err
	}

	rec, err := s.store.TryInsertAttendance(ctx, userID, occurrenceID, s.Now().UTC(), meta)
	if err != nil {
		return nil, err
	}

	result := Assess(rec.CheckInAt, occ.ScheduledStart, *policy)
	report := &CheckInReport{
		Attendance:  *rec,
		MinutesLate: result.MinutesLate,
	}
	if !result.Late() {
		return report, nil
	}
	if result.Amount.IsZero() {
		// A zero-fee policy bills nothing; no penalty row is written.
		return report, nil
	}

	pen, err := s.store.InsertPenalty(ctx, userID, occurrenceID, result.MinutesLate, *result.Amount)
	if err != nil {
		// The attendance row is committed; do not roll it back.
		report.PenaltyPending = true
		return report, &PenaltyPendingError{
			UserID:       userID,
			OccurrenceID: occurrenceID,
			Cause:        err,
		}
	}

	report.Penalty = pen
	return report, nil
}

// ResolveByToken resolves a QR token to the occurrence summary shown
// on the self-service check-in page. Pure lookup, exact token match.
func (s *Service) ResolveByToken(ctx context.Context, token string) (*OccurrenceSummary, error) {
	occ, err := s.store.GetOccurrenceByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	sess, err := s.store.GetSession(ctx, occ.SessionID)
	if err != nil {
		return nil, err
	}

	return &OccurrenceSummary{
		OccurrenceID:   occ.ID,
		SessionTitle:   sess.Title,
		Description:    sess.Description,
		ScheduledStart: occ.ScheduledStart,
		ScheduledEnd:   occ.ScheduledEnd,
	}, nil
}
