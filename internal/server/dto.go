package server

import (
	"servicelog/internal/domain"
)

// Request payloads

type CreatePlanRequest struct {
	ServiceType    string  `json:"service_type" enum:"individual,group"`
	PlannedDate    string  `json:"planned_date" format:"date"`
	PlannedTime    *string `json:"planned_time,omitempty"`
	PlannedMinutes int     `json:"planned_duration_minutes"`
	Setting        string  `json:"setting" enum:"outpatient,community,telehealth,home,residential"`
	ServiceCode    *string `json:"service_code,omitempty"`
	ParticipantID  *string `json:"participant_id,omitempty"`
	LessonID       *string `json:"lesson_id,omitempty"`
	GoalID         *string `json:"goal_id,omitempty"`
	PlanningNotes  *string `json:"planning_notes,omitempty"`
	// Schedule skips draft and creates the plan directly in planned.
	Schedule bool `json:"schedule,omitempty"`
}

type UpdatePlanRequest struct {
	ServiceType    *string `json:"service_type,omitempty" enum:"individual,group"`
	PlannedDate    *string `json:"planned_date,omitempty" format:"date"`
	PlannedTime    *string `json:"planned_time,omitempty"`
	PlannedMinutes *int    `json:"planned_duration_minutes,omitempty"`
	Setting        *string `json:"setting,omitempty" enum:"outpatient,community,telehealth,home,residential"`
	ServiceCode    *string `json:"service_code,omitempty"`
	ParticipantID  *string `json:"participant_id,omitempty"`
	LessonID       *string `json:"lesson_id,omitempty"`
	GoalID         *string `json:"goal_id,omitempty"`
	PlanningNotes  *string `json:"planning_notes,omitempty"`
}

type DecisionRequest struct {
	Comment *string `json:"comment,omitempty"`
}

type CompletePlanRequest struct {
	ActualMinutes      int     `json:"actual_duration_minutes"`
	AttendanceCount    int     `json:"attendance_count"`
	DeliveredAsPlanned bool    `json:"delivered_as_planned"`
	DeviationNotes     *string `json:"deviation_notes,omitempty"`
}

type LinkSessionNoteRequest struct {
	SessionNoteID string `json:"session_note_id"`
}

type UpsertActorRequest struct {
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role" enum:"peer,supervisor"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID        string `json:"actor_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role" enum:"peer,supervisor"`
}

// Response payloads

type PlanListResponse struct {
	Items []domain.ServicePlan `json:"items"`
}

type HistoryResponse struct {
	Items []domain.AuditEvent `json:"items"`
}

type ReviewQueueResponse struct {
	Items []domain.ReviewItem `json:"items"`
}

type ActorListResponse struct {
	Items []domain.Actor `json:"items"`
}

type APIKeyResponse struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	// Key is the plaintext key; only returned once at creation time.
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKeyListResponse struct {
	Items []APIKeyResponse `json:"items"`
}

type MeResponse struct {
	ActorID        string `json:"actor_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
	DisplayName    string `json:"display_name,omitempty"`
	Source         string `json:"source"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
