/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - auth.go: Auth request/response types live here too
*/
package api

import (
	"time"

	"github.com/odcheck/attendance-engine/attendance"
	"github.com/odcheck/attendance-engine/store/sqlite"
)

// =============================================================================
// AUTH TYPES
// =============================================================================

// RegisterRequest is the request to create an account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"` // defaults to "participant"
}

// LoginRequest is the request to authenticate.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserDTO represents an account in API responses. Never carries the
// password hash.
type UserDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResponse carries the bearer token and the authenticated user.
type LoginResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

// =============================================================================
// SESSION & OCCURRENCE TYPES
// =============================================================================

// CreateSessionRequest is the request to create a session. The default
// attendance policy is created alongside it.
type CreateSessionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Timezone    string `json:"timezone,omitempty"` // defaults to Asia/Seoul
}

// SessionDTO represents a session in API responses.
type SessionDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Timezone    string `json:"timezone"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// PolicyDTO represents a session's attendance policy.
type PolicyDTO struct {
	SessionID          string `json:"session_id"`
	GraceMinutes       int    `json:"grace_minutes"`
	BillingUnitMinutes int    `json:"billing_unit_minutes"`
	FeePerUnit         string `json:"fee_per_unit"`
	Currency           string `json:"currency"`
}

// UpdatePolicyRequest edits the grace/billing configuration.
type UpdatePolicyRequest struct {
	GraceMinutes       int    `json:"grace_minutes"`
	BillingUnitMinutes int    `json:"billing_unit_minutes"`
	FeePerUnit         string `json:"fee_per_unit"`
}

// CreateOccurrenceRequest schedules one instance of a session.
type CreateOccurrenceRequest struct {
	SessionID      string `json:"session_id"`
	ScheduledStart string `json:"scheduled_start"` // RFC 3339
	ScheduledEnd   string `json:"scheduled_end"`   // RFC 3339
}

// OccurrenceDTO represents an occurrence in API responses. Token is
// only included on creation (it is the QR secret).
type OccurrenceDTO struct {
	ID             string `json:"id"`
	SessionID      string `json:"session_id"`
	ScheduledStart string `json:"scheduled_start"`
	ScheduledEnd   string `json:"scheduled_end"`
	Token          string `json:"qr_token,omitempty"`
	CheckInURL     string `json:"checkin_url,omitempty"`
}

// OccurrenceSummaryDTO is what a QR token resolves to.
type OccurrenceSummaryDTO struct {
	OccurrenceID   string `json:"occurrence_id"`
	SessionTitle   string `json:"session_title"`
	Description    string `json:"description,omitempty"`
	ScheduledStart string `json:"scheduled_start"`
	ScheduledEnd   string `json:"scheduled_end"`
}

// =============================================================================
// CHECK-IN TYPES
// =============================================================================

// CheckInRequest records attendance for the authenticated user.
type CheckInRequest struct {
	OccurrenceID string `json:"occurrence_id"`
}

// AttendanceDTO represents a check-in row.
type AttendanceDTO struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	OccurrenceID string `json:"occurrence_id"`
	CheckInTime  string `json:"check_in_time"`
	UserName     string `json:"user_name,omitempty"`
	UserEmail    string `json:"user_email,omitempty"`
	SessionTitle string `json:"session_title,omitempty"`
}

// PenaltyDTO represents a late fee row.
type PenaltyDTO struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	OccurrenceID string `json:"occurrence_id"`
	MinutesLate  int    `json:"minutes_late"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	UserName     string `json:"user_name,omitempty"`
	UserEmail    string `json:"user_email,omitempty"`
	SessionTitle string `json:"session_title,omitempty"`
}

// CheckInReportDTO is the combined check-in result.
type CheckInReportDTO struct {
	CheckIn        AttendanceDTO `json:"check_in"`
	MinutesLate    int           `json:"minutes_late"`
	Penalty        *PenaltyDTO   `json:"penalty"`
	PenaltyPending bool          `json:"penalty_pending,omitempty"`
}

// =============================================================================
// REPORT TYPES
// =============================================================================

// PenaltySummaryDTO aggregates penalties per participant.
type PenaltySummaryDTO struct {
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	UserEmail    string `json:"user_email"`
	PenaltyCount int    `json:"penalty_count"`
	TotalAmount  string `json:"total_amount"`
}

// DashboardDTO holds the admin landing-page aggregates.
type DashboardDTO struct {
	TodayCheckIns     int                 `json:"today_check_ins"`
	TotalParticipants int                 `json:"total_participants"`
	WeekAttendees     int                 `json:"week_attendees"`
	TopPenalties      []PenaltySummaryDTO `json:"top_penalties"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserDTO(u *sqlite.User) UserDTO {
	return UserDTO{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

func toSessionDTO(s attendance.Session) SessionDTO {
	return SessionDTO{
		ID:          string(s.ID),
		Title:       s.Title,
		Description: s.Description,
		Timezone:    s.Timezone,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
}

func toPolicyDTO(p attendance.Policy) PolicyDTO {
	return PolicyDTO{
		SessionID:          string(p.SessionID),
		GraceMinutes:       p.GraceMinutes,
		BillingUnitMinutes: p.BillingUnitMinutes,
		FeePerUnit:         p.FeePerUnit.Value.String(),
		Currency:           string(p.FeePerUnit.Currency),
	}
}

func toAttendanceDTO(rec attendance.AttendanceRecord) AttendanceDTO {
	return AttendanceDTO{
		ID:           string(rec.ID),
		UserID:       string(rec.UserID),
		OccurrenceID: string(rec.OccurrenceID),
		CheckInTime:  rec.CheckInAt.Format(time.RFC3339),
	}
}

func toPenaltyDTO(pen attendance.PenaltyRecord) PenaltyDTO {
	return PenaltyDTO{
		ID:           string(pen.ID),
		UserID:       string(pen.UserID),
		OccurrenceID: string(pen.OccurrenceID),
		MinutesLate:  pen.MinutesLate,
		Amount:       pen.Amount.Value.String(),
		Currency:     string(pen.Amount.Currency),
	}
}

func toAttendanceEntryDTO(e sqlite.AttendanceEntry) AttendanceDTO {
	dto := toAttendanceDTO(e.Record)
	dto.UserName = e.UserName
	dto.UserEmail = e.UserEmail
	dto.SessionTitle = e.SessionTitle
	return dto
}

func toPenaltyEntryDTO(e sqlite.PenaltyEntry) PenaltyDTO {
	dto := toPenaltyDTO(e.Record)
	dto.UserName = e.UserName
	dto.UserEmail = e.UserEmail
	dto.SessionTitle = e.SessionTitle
	return dto
}

func toPenaltySummaryDTO(row sqlite.PenaltySummaryRow) PenaltySummaryDTO {
	return PenaltySummaryDTO{
		UserID:       string(row.UserID),
		UserName:     row.UserName,
		UserEmail:    row.UserEmail,
		PenaltyCount: row.PenaltyCount,
		TotalAmount:  row.TotalAmount.Value.String(),
	}
}
