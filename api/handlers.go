/*
handlers.go - HTTP API handlers for the attendance system

PURPOSE:
  Exposes the attendance engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Check-in:
    GET    /api/checkin/{token}                  Resolve QR token (public)
    POST   /api/checkin                          Check in (authenticated)
    GET    /api/checkin/attendance/{occurrenceID} Attendance for one occurrence

  Auth:
    POST   /api/auth/register                    Create account
    POST   /api/auth/login                       Authenticate, issue token
    GET    /api/auth/me                          Current account

  Admin:
    GET    /api/admin/dashboard                  Attendance/penalty aggregates
    POST   /api/admin/sessions                   Create session (+default policy)
    GET    /api/admin/sessions                   List sessions
    PUT    /api/admin/sessions/{id}/policy       Edit billing policy
    POST   /api/admin/occurrences                Schedule occurrence (+QR token)
    GET    /api/admin/occurrences                List occurrences for a session
    GET    /api/admin/attendance                 Attendance report (filters)
    GET    /api/admin/penalties                  Penalty report (filters)
    GET    /api/admin/penalties/summary          Per-user totals

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401/403: Authentication/authorization failures
  - 404: Occurrence, token, session, or user not found
  - 409: Duplicate check-in, duplicate occurrence slot, duplicate email
  - 500: Internal errors
  A penalty-pending partial success is still a 200; the report flags it.

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Account handlers, JWT middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odcheck/attendance-engine/attendance"
	"github.com/odcheck/attendance-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Service   *attendance.Service
	JWTSecret []byte
}

// NewHandler creates a new handler over the given store.
func NewHandler(store *sqlite.Store, jwtSecret []byte) *Handler {
	return &Handler{
		Store:     store,
		Service:   attendance.NewService(store),
		JWTSecret: jwtSecret,
	}
}

// =============================================================================
// CHECK-IN HANDLERS
// =============================================================================

// ResolveToken resolves a QR token to its occurrence summary. Public:
// the check-in page renders this before the participant logs in.
// GET /api/checkin/{token}
func (h *Handler) ResolveToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	summary, err := h.Service.ResolveByToken(r.Context(), token)
	if err != nil {
		if attendance.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Invalid QR code", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to resolve token", err)
		return
	}

	writeJSON(w, http.StatusOK, OccurrenceSummaryDTO{
		OccurrenceID:   string(summary.OccurrenceID),
		SessionTitle:   summary.SessionTitle,
		Description:    summary.Description,
		ScheduledStart: summary.ScheduledStart.Format(time.RFC3339),
		ScheduledEnd:   summary.ScheduledEnd.Format(time.RFC3339),
	})
}

// CheckIn records attendance for the authenticated user.
// POST /api/checkin
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var req CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OccurrenceID == "" {
		writeError(w, http.StatusBadRequest, "occurrence_id is required", nil)
		return
	}

	meta := attendance.RequestMetadata{
		OriginAddress: r.RemoteAddr,
		ClientID:      r.UserAgent(),
	}

	report, err := h.Service.CheckIn(r.Context(),
		attendance.UserID(claims.UserID),
		attendance.OccurrenceID(req.OccurrenceID),
		meta,
	)
	switch {
	case errors.Is(err, attendance.ErrPenaltyPending):
		// Attendance committed; surface the partial report.
	case attendance.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Occurrence not found", nil)
		return
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		writeError(w, http.StatusConflict, "Already checked in", nil)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Check-in failed", err)
		return
	}

	dto := CheckInReportDTO{
		CheckIn:        toAttendanceDTO(report.Attendance),
		MinutesLate:    report.MinutesLate,
		PenaltyPending: report.PenaltyPending,
	}
	if report.Penalty != nil {
		p := toPenaltyDTO(*report.Penalty)
		dto.Penalty = &p
	}

	writeJSON(w, http.StatusOK, dto)
}

// AttendanceByOccurrence lists check-ins for one occurrence.
// GET /api/checkin/attendance/{occurrenceID}
func (h *Handler) AttendanceByOccurrence(w http.ResponseWriter, r *http.Request) {
	occurrenceID := attendance.OccurrenceID(chi.URLParam(r, "occurrenceID"))

	entries, err := h.Store.AttendanceByOccurrence(r.Context(), occurrenceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attendance", err)
		return
	}

	dtos := make([]AttendanceDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAttendanceEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SESSION HANDLERS (admin)
// =============================================================================

// CreateSession creates a session with the default attendance policy.
// POST /api/admin/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required", nil)
		return
	}
	if req.Timezone == "" {
		req.Timezone = "Asia/Seoul"
	}

	sess := attendance.Session{
		ID:          attendance.SessionID(uuid.NewString()),
		Title:       req.Title,
		Description: req.Description,
		Timezone:    req.Timezone,
	}
	if err := h.Store.SaveSession(r.Context(), sess, attendance.DefaultPolicy(sess.ID)); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionDTO(sess))
}

// ListSessions returns all sessions.
// GET /api/admin/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Store.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}

	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = toSessionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdatePolicy edits a session's billing policy.
// PUT /api/admin/sessions/{id}/policy
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	sessionID := attendance.SessionID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetSession(r.Context(), sessionID); err != nil {
		if attendance.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Session not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to look up session", err)
		return
	}

	var req UpdatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fee, err := attendance.ParseMoney(req.FeePerUnit, attendance.CurrencyKRW)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid fee_per_unit", err)
		return
	}

	policy := attendance.Policy{
		SessionID:          sessionID,
		GraceMinutes:       req.GraceMinutes,
		BillingUnitMinutes: req.BillingUnitMinutes,
		FeePerUnit:         fee,
	}
	if err := h.Store.SavePolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}

	writeJSON(w, http.StatusOK, toPolicyDTO(policy.Normalized()))
}

// =============================================================================
// OCCURRENCE HANDLERS (admin)
// =============================================================================

// CreateOccurrence schedules one instance of a session and issues its
// QR token.
// POST /api/admin/occurrences
func (h *Handler) CreateOccurrence(w http.ResponseWriter, r *http.Request) {
	var req CreateOccurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.SessionID == "" || req.ScheduledStart == "" || req.ScheduledEnd == "" {
		writeError(w, http.StatusBadRequest, "session_id, scheduled_start and scheduled_end are required", nil)
		return
	}

	start, err := time.Parse(time.RFC3339, req.ScheduledStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scheduled_start (use RFC 3339)", err)
		return
	}
	end, err := time.Parse(time.RFC3339, req.ScheduledEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scheduled_end (use RFC 3339)", err)
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "scheduled_end must be after scheduled_start", nil)
		return
	}

	sessionID := attendance.SessionID(req.SessionID)
	if _, err := h.Store.GetSession(r.Context(), sessionID); err != nil {
		if attendance.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Session not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to look up session", err)
		return
	}

	occ := attendance.Occurrence{
		ID:             attendance.OccurrenceID(uuid.NewString()),
		SessionID:      sessionID,
		ScheduledStart: start.UTC(),
		ScheduledEnd:   end.UTC(),
		Token:          attendance.NewCheckInToken(),
	}
	if err := h.Store.SaveOccurrence(r.Context(), occ); err != nil {
		if errors.Is(err, attendance.ErrDuplicateOccurrence) {
			writeError(w, http.StatusConflict, "An occurrence already exists for this time slot", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create occurrence", err)
		return
	}

	writeJSON(w, http.StatusCreated, OccurrenceDTO{
		ID:             string(occ.ID),
		SessionID:      string(occ.SessionID),
		ScheduledStart: occ.ScheduledStart.Format(time.RFC3339),
		ScheduledEnd:   occ.ScheduledEnd.Format(time.RFC3339),
		Token:          occ.Token,
		CheckInURL:     "/checkin/" + occ.Token,
	})
}

// ListOccurrences returns the occurrences of a session.
// GET /api/admin/occurrences?session_id=...
func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	sessionID := attendance.SessionID(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required", nil)
		return
	}

	occs, err := h.Store.ListOccurrences(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list occurrences", err)
		return
	}

	dtos := make([]OccurrenceDTO, len(occs))
	for i, occ := range occs {
		dtos[i] = OccurrenceDTO{
			ID:             string(occ.ID),
			SessionID:      string(occ.SessionID),
			ScheduledStart: occ.ScheduledStart.Format(time.RFC3339),
			ScheduledEnd:   occ.ScheduledEnd.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REPORT HANDLERS (admin)
// =============================================================================

// ListAttendance returns check-ins filtered by date range and user.
// GET /api/admin/attendance?start_date=...&end_date=...&user_id=...
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	var filter sqlite.AttendanceFilter

	if v := r.URL.Query().Get("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date (use RFC 3339)", err)
			return
		}
		filter.From = &t
	}
	if v := r.URL.Query().Get("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date (use RFC 3339)", err)
			return
		}
		filter.To = &t
	}
	filter.UserID = attendance.UserID(r.URL.Query().Get("user_id"))

	entries, err := h.Store.ListAttendance(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attendance", err)
		return
	}

	dtos := make([]AttendanceDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAttendanceEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPenalties returns penalties filtered by user and occurrence.
// GET /api/admin/penalties?user_id=...&occurrence_id=...
func (h *Handler) ListPenalties(w http.ResponseWriter, r *http.Request) {
	filter := sqlite.PenaltyFilter{
		UserID:       attendance.UserID(r.URL.Query().Get("user_id")),
		OccurrenceID: attendance.OccurrenceID(r.URL.Query().Get("occurrence_id")),
	}

	entries, err := h.Store.ListPenalties(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list penalties", err)
		return
	}

	dtos := make([]PenaltyDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toPenaltyEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PenaltySummary returns per-participant penalty totals.
// GET /api/admin/penalties/summary
func (h *Handler) PenaltySummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.PenaltySummary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to summarize penalties", err)
		return
	}

	dtos := make([]PenaltySummaryDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toPenaltySummaryDTO(row)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Dashboard returns the admin landing-page aggregates.
// GET /api/admin/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Dashboard(r.Context(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute dashboard", err)
		return
	}

	dto := DashboardDTO{
		TodayCheckIns:     stats.TodayCheckIns,
		TotalParticipants: stats.TotalParticipants,
		WeekAttendees:     stats.WeekAttendees,
		TopPenalties:      make([]PenaltySummaryDTO, len(stats.TopPenalties)),
	}
	for i, row := range stats.TopPenalties {
		dto.TopPenalties[i] = toPenaltySummaryDTO(row)
	}
	writeJSON(w, http.StatusOK, dto)
}

// Health is the root liveness endpoint.
// GET /
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
