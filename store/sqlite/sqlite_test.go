package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odcheck/attendance-engine/attendance"
	"github.com/odcheck/attendance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var sessionStart = time.Date(2025, time.March, 10, 19, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seedSchedule creates a session with its default policy and one
// occurrence, returning the occurrence.
func seedSchedule(t *testing.T, store *sqlite.Store) attendance.Occurrence {
	t.Helper()
	ctx := context.Background()

	sess := attendance.Session{
		ID:       "sess-1",
		Title:    "Weekly Study Group",
		Timezone: "Asia/Seoul",
	}
	require.NoError(t, store.SaveSession(ctx, sess, attendance.DefaultPolicy(sess.ID)))

	occ := attendance.Occurrence{
		ID:             "occ-1",
		SessionID:      sess.ID,
		ScheduledStart: sessionStart,
		ScheduledEnd:   sessionStart.Add(2 * time.Hour),
		Token:          attendance.NewCheckInToken(),
	}
	require.NoError(t, store.SaveOccurrence(ctx, occ))
	return occ
}

func seedUser(t *testing.T, store *sqlite.Store, id, role string) {
	t.Helper()
	require.NoError(t, store.SaveUser(context.Background(), sqlite.User{
		ID:           id,
		Email:        id + "@example.com",
		Name:         "User " + id,
		Role:         role,
		PasswordHash: "x",
	}))
}

var testMeta = attendance.RequestMetadata{OriginAddress: "10.0.0.1:5000", ClientID: "test-agent"}

// =============================================================================
// SESSIONS & POLICIES
// =============================================================================

func TestSaveSession_CreatesPolicyRow(t *testing.T) {
	// GIVEN: A new session saved with the default policy
	// WHEN: Reading the session and its policy back
	// THEN: Both exist; a session never lacks a policy

	store := newTestStore(t)
	ctx := context.Background()

	sess := attendance.Session{ID: "sess-1", Title: "Book Club", Timezone: "Asia/Seoul"}
	require.NoError(t, store.SaveSession(ctx, sess, attendance.DefaultPolicy(sess.ID)))

	got, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Book Club", got.Title)

	policy, err := store.GetPolicy(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, attendance.DefaultGraceMinutes, policy.GraceMinutes)
	assert.Equal(t, attendance.DefaultBillingUnitMinutes, policy.BillingUnitMinutes)
	assert.True(t, policy.FeePerUnit.Equal(attendance.NewMoney(5000, attendance.CurrencyKRW)))
}

func TestGetSession_Unknown_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSession(context.Background(), "nope")

	assert.ErrorIs(t, err, attendance.ErrSessionNotFound)
}

func TestGetPolicy_Unknown_PolicyNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetPolicy(context.Background(), "nope")

	assert.ErrorIs(t, err, attendance.ErrPolicyNotFound)
}

func TestSavePolicy_UpdatesExisting(t *testing.T) {
	// GIVEN: A session with the default policy
	// WHEN: The admin tightens the policy
	// THEN: The updated values are stored, normalized

	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)

	update := attendance.Policy{
		SessionID:          "sess-1",
		GraceMinutes:       0,
		BillingUnitMinutes: 30,
		FeePerUnit:         attendance.NewMoney(10000, attendance.CurrencyKRW),
	}
	require.NoError(t, store.SavePolicy(ctx, update))

	got, err := store.GetPolicy(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.GraceMinutes, "zero grace is valid and must not default")
	assert.Equal(t, 30, got.BillingUnitMinutes)
	assert.True(t, got.FeePerUnit.Equal(attendance.NewMoney(10000, attendance.CurrencyKRW)))
}

func TestSavePolicy_NormalizesInvalidFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)

	require.NoError(t, store.SavePolicy(ctx, attendance.Policy{
		SessionID:          "sess-1",
		GraceMinutes:       -1,
		BillingUnitMinutes: 0,
		FeePerUnit:         attendance.NewMoney(-5, attendance.CurrencyKRW),
	}))

	got, err := store.GetPolicy(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, attendance.DefaultGraceMinutes, got.GraceMinutes)
	assert.Equal(t, attendance.DefaultBillingUnitMinutes, got.BillingUnitMinutes)
	assert.True(t, got.FeePerUnit.Equal(attendance.NewMoney(5000, attendance.CurrencyKRW)))
}

// =============================================================================
// OCCURRENCES & TOKENS
// =============================================================================

func TestSaveOccurrence_DuplicateSlot_Rejected(t *testing.T) {
	// GIVEN: A session already has an occurrence at 19:00 March 10
	// WHEN: Creating another occurrence at the same scheduled start
	// THEN: ErrDuplicateOccurrence

	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)

	err := store.SaveOccurrence(ctx, attendance.Occurrence{
		ID:             "occ-2",
		SessionID:      "sess-1",
		ScheduledStart: sessionStart,
		ScheduledEnd:   sessionStart.Add(time.Hour),
		Token:          attendance.NewCheckInToken(),
	})

	assert.ErrorIs(t, err, attendance.ErrDuplicateOccurrence)
}

func TestGetOccurrenceByToken_ExactMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	occ := seedSchedule(t, store)

	got, err := store.GetOccurrenceByToken(ctx, occ.Token)
	require.NoError(t, err)
	assert.Equal(t, occ.ID, got.ID)
	assert.True(t, got.ScheduledStart.Equal(sessionStart))

	_, err = store.GetOccurrenceByToken(ctx, occ.Token[:10])
	assert.ErrorIs(t, err, attendance.ErrOccurrenceNotFound, "prefix must not resolve")
}

func TestListOccurrences_Chronological(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)

	later := attendance.Occurrence{
		ID:             "occ-2",
		SessionID:      "sess-1",
		ScheduledStart: sessionStart.AddDate(0, 0, 7),
		ScheduledEnd:   sessionStart.AddDate(0, 0, 7).Add(2 * time.Hour),
		Token:          attendance.NewCheckInToken(),
	}
	require.NoError(t, store.SaveOccurrence(ctx, later))

	occs, err := store.ListOccurrences(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, occs, 2)
	assert.Equal(t, attendance.OccurrenceID("occ-1"), occs[0].ID)
	assert.Equal(t, attendance.OccurrenceID("occ-2"), occs[1].ID)
}

// =============================================================================
// LEDGER - Atomic duplicate rejection
// =============================================================================

func TestTryInsertAttendance_Duplicate_Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)
	seedUser(t, store, "user-1", "participant")

	first, err := store.TryInsertAttendance(ctx, "user-1", "occ-1", sessionStart.Add(2*time.Minute), testMeta)
	require.NoError(t, err)

	_, err = store.TryInsertAttendance(ctx, "user-1", "occ-1", sessionStart.Add(3*time.Minute), testMeta)

	var dup *attendance.AlreadyCheckedInError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)
}

func TestTryInsertAttendance_Concurrent_OneRow(t *testing.T) {
	// GIVEN: The same (user, occurrence) pair
	// WHEN: Concurrent inserts race against the UNIQUE index
	// THEN: Exactly one succeeds

	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)
	seedUser(t, store, "user-1", "participant")

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.TryInsertAttendance(ctx, "user-1", "occ-1", sessionStart, testMeta)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, attendance.ErrAlreadyCheckedIn)
	}
	assert.Equal(t, 1, successes)

	entries, err := store.AttendanceByOccurrence(ctx, "occ-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestInsertPenalty_Retry_ReturnsExistingRow(t *testing.T) {
	// A retry after a partial failure must not create a second penalty.
	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)
	seedUser(t, store, "user-1", "participant")

	amount := attendance.NewMoney(10000, attendance.CurrencyKRW)
	first, err := store.InsertPenalty(ctx, "user-1", "occ-1", 61, amount)
	require.NoError(t, err)

	again, err := store.InsertPenalty(ctx, "user-1", "occ-1", 61, amount)
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.Amount.Equal(amount))
	assert.Equal(t, 61, again.MinutesLate)
}

// =============================================================================
// USERS
// =============================================================================

func TestSaveUser_DuplicateEmail_Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := sqlite.User{ID: "u1", Email: "kim@example.com", Name: "Kim", Role: "participant", PasswordHash: "x"}
	require.NoError(t, store.SaveUser(ctx, u))

	u2 := sqlite.User{ID: "u2", Email: "kim@example.com", Name: "Other Kim", Role: "participant", PasswordHash: "y"}
	err := store.SaveUser(ctx, u2)

	assert.True(t, errors.Is(err, sqlite.ErrDuplicateEmail))
}

func TestGetUserByEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1", "admin")

	got, err := store.GetUserByEmail(ctx, "user-1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)
	assert.Equal(t, "admin", got.Role)

	_, err = store.GetUserByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, attendance.ErrUserNotFound)
}

// =============================================================================
// REPORTING
// =============================================================================

func TestListAttendance_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)
	seedUser(t, store, "user-1", "participant")
	seedUser(t, store, "user-2", "participant")

	_, err := store.TryInsertAttendance(ctx, "user-1", "occ-1", sessionStart.Add(time.Minute), testMeta)
	require.NoError(t, err)
	_, err = store.TryInsertAttendance(ctx, "user-2", "occ-1", sessionStart.Add(10*time.Minute), testMeta)
	require.NoError(t, err)

	all, err := store.ListAttendance(ctx, sqlite.AttendanceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byUser, err := store.ListAttendance(ctx, sqlite.AttendanceFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "User user-1", byUser[0].UserName)
	assert.Equal(t, "Weekly Study Group", byUser[0].SessionTitle)

	from := sessionStart.Add(5 * time.Minute)
	windowed, err := store.ListAttendance(ctx, sqlite.AttendanceFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, attendance.UserID("user-2"), windowed[0].Record.UserID)
}

func TestPenaltySummary_IncludesZeroPenaltyParticipants(t *testing.T) {
	// GIVEN: Two participants, one with penalties and one without
	// WHEN: Summarizing
	// THEN: Both appear, the indebted one first

	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)
	seedUser(t, store, "user-1", "participant")
	seedUser(t, store, "user-2", "participant")
	seedUser(t, store, "boss", "admin")

	_, err := store.InsertPenalty(ctx, "user-1", "occ-1", 61, attendance.NewMoney(10000, attendance.CurrencyKRW))
	require.NoError(t, err)

	summary, err := store.PenaltySummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2, "admins are excluded")

	assert.Equal(t, attendance.UserID("user-1"), summary[0].UserID)
	assert.Equal(t, 1, summary[0].PenaltyCount)
	assert.True(t, summary[0].TotalAmount.Equal(attendance.NewMoney(10000, attendance.CurrencyKRW)))

	assert.Equal(t, attendance.UserID("user-2"), summary[1].UserID)
	assert.Equal(t, 0, summary[1].PenaltyCount)
	assert.True(t, summary[1].TotalAmount.IsZero())
}

func TestPenaltySummary_FractionalAmountsSumExactly(t *testing.T) {
	// GIVEN: Two fractional penalty amounts for one participant
	// WHEN: Summarizing
	// THEN: The total is exact decimal arithmetic, not a float round-trip

	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)
	seedUser(t, store, "user-1", "participant")

	second := attendance.Occurrence{
		ID:             "occ-2",
		SessionID:      "sess-1",
		ScheduledStart: sessionStart.AddDate(0, 0, 7),
		ScheduledEnd:   sessionStart.AddDate(0, 0, 7).Add(time.Hour),
		Token:          attendance.NewCheckInToken(),
	}
	require.NoError(t, store.SaveOccurrence(ctx, second))

	_, err := store.InsertPenalty(ctx, "user-1", "occ-1", 30, attendance.MustParseMoney("2500.25", attendance.CurrencyKRW))
	require.NoError(t, err)
	_, err = store.InsertPenalty(ctx, "user-1", "occ-2", 45, attendance.MustParseMoney("2500.50", attendance.CurrencyKRW))
	require.NoError(t, err)

	summary, err := store.PenaltySummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, 2, summary[0].PenaltyCount)
	assert.True(t, summary[0].TotalAmount.Equal(attendance.MustParseMoney("5000.75", attendance.CurrencyKRW)),
		"got %s", summary[0].TotalAmount)
}

func TestListPenalties_ByOccurrence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)
	seedUser(t, store, "user-1", "participant")

	_, err := store.InsertPenalty(ctx, "user-1", "occ-1", 30, attendance.NewMoney(5000, attendance.CurrencyKRW))
	require.NoError(t, err)

	entries, err := store.ListPenalties(ctx, sqlite.PenaltyFilter{OccurrenceID: "occ-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 30, entries[0].Record.MinutesLate)
	assert.True(t, entries[0].Record.Amount.Equal(attendance.NewMoney(5000, attendance.CurrencyKRW)))

	none, err := store.ListPenalties(ctx, sqlite.PenaltyFilter{OccurrenceID: "occ-other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDashboard_Aggregates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, store)
	seedUser(t, store, "user-1", "participant")
	seedUser(t, store, "user-2", "participant")

	now := time.Now().UTC()
	_, err := store.TryInsertAttendance(ctx, "user-1", "occ-1", now, testMeta)
	require.NoError(t, err)
	_, err = store.InsertPenalty(ctx, "user-1", "occ-1", 61, attendance.NewMoney(10000, attendance.CurrencyKRW))
	require.NoError(t, err)

	stats, err := store.Dashboard(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TodayCheckIns)
	assert.Equal(t, 2, stats.TotalParticipants)
	assert.Equal(t, 1, stats.WeekAttendees)
	require.Len(t, stats.TopPenalties, 1)
	assert.Equal(t, attendance.UserID("user-1"), stats.TopPenalties[0].UserID)
}

// =============================================================================
// STORE IMPLEMENTS THE ENGINE CONTRACT
// =============================================================================

var _ attendance.Store = (*sqlite.Store)(nil)

func TestStore_WorksWithService(t *testing.T) {
	// End-to-end through the orchestrator on the real backend.
	store := newTestStore(t)
	seedSchedule(t, store)
	seedUser(t, store, "user-1", "participant")

	svc := attendance.NewService(store)
	svc.Now = func() time.Time { return sessionStart.Add(66 * time.Minute) }

	report, err := svc.CheckIn(context.Background(), "user-1", "occ-1", testMeta)
	require.NoError(t, err)
	require.NotNil(t, report.Penalty)
	assert.Equal(t, 61, report.MinutesLate)
	assert.True(t, report.Penalty.Amount.Equal(attendance.NewMoney(10000, attendance.CurrencyKRW)))

	_, err = svc.CheckIn(context.Background(), "user-1", "occ-1", testMeta)
	assert.ErrorIs(t, err, attendance.ErrAlreadyCheckedIn)
}
