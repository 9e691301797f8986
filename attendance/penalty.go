/*
penalty.go - Lateness and fee computation

PURPOSE:
  Pure, deterministic assessment of a check-in against a schedule and a
  policy. No store access, no clock access: the caller supplies both
  instants. This keeps the computation trivially testable.

ALGORITHM:
  1. lateness = max(0, checkInAt - scheduledStart)
     Early and on-time arrivals are never negative.
  2. Within grace (inclusive): no penalty. Reported minutes are the
     floored raw lateness.
  3. Beyond grace: billable = lateness - grace. Units are the billable
     span divided by the billing unit, any partial unit rounded UP to a
     full unit. Rounding down would under-charge, which is disallowed.
     Reported minutes are the floored billable span.

TIMEZONES:
  time.Time subtraction is absolute, so instants from any zone compare
  on a single timeline. Callers should still store instants in UTC.

SEE ALSO:
  - types.go: Policy and its defaulting rules
  - checkin.go: The orchestrator invoking this
*/
package attendance

import "time"

// =============================================================================
// ASSESSMENT - Result of the pure computation
// =============================================================================

// Assessment is the outcome of evaluating one check-in. Amount is nil
// when the arrival is within grace. When a penalty applies,
// MinutesLate is the whole-minute portion beyond grace; otherwise it
// is the whole-minute raw lateness.
type Assessment struct {
	MinutesLate int
	Units       int64
	Amount      *Money
}

// Late reports whether a penalty applies.
func (a Assessment) Late() bool { return a.Amount != nil }

// =============================================================================
// ASSESS - The penalty calculator
// =============================================================================

// Assess computes lateness and penalty for a check-in. It is total:
// invalid policy fields fall back to the documented defaults, so it
// never fails.
func Assess(checkInAt, scheduledStart time.Time, policy Policy) Assessment {
	p := policy.Normalized()

	lateness := checkInAt.Sub(scheduledStart)
	if lateness < 0 {
		lateness = 0
	}

	grace := time.Duration(p.GraceMinutes) * time.Minute
	if lateness <= grace {
		// Boundary is inclusive: exactly grace minutes late is free.
		return Assessment{MinutesLate: int(lateness / time.Minute)}
	}

	billable := lateness - grace // strictly positive here
	unit := time.Duration(p.BillingUnitMinutes) * time.Minute

	units := int64(billable / unit)
	if billable%unit != 0 {
		units++
	}

	amount := p.FeePerUnit.MulInt(units)
	return Assessment{
		MinutesLate: int(billable / time.Minute),
		Units:       units,
		Amount:      &amount,
	}
}
