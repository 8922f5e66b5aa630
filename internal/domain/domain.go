package domain

// Status is the lifecycle state of a service plan. It is only ever written by
// the transition engine.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPlanned   Status = "planned"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusVerified  Status = "verified"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusPlanned, StatusApproved, StatusCompleted, StatusVerified:
		return true
	}
	return false
}

// Role is an actor's role within an organization.
type Role string

const (
	RolePeer       Role = "peer"
	RoleSupervisor Role = "supervisor"
)

func ValidRole(r Role) bool {
	return r == RolePeer || r == RoleSupervisor
}

// Action identifies a state-changing operation recorded in the audit trail.
type Action string

const (
	ActionCreated         Action = "created"
	ActionSubmitted       Action = "submitted"
	ActionApproved        Action = "approved"
	ActionChangeRequested Action = "change_requested"
	ActionCommented       Action = "commented"
	ActionCompleted       Action = "completed"
	ActionVerified        Action = "verified"
	ActionDeleted         Action = "deleted"
	ActionNoteLinked      Action = "note_linked"
	ActionUpdated         Action = "updated"
)

type ServiceType string

const (
	ServiceIndividual ServiceType = "individual"
	ServiceGroup      ServiceType = "group"
)

func ValidServiceType(t ServiceType) bool {
	return t == ServiceIndividual || t == ServiceGroup
}

// Setting is where a service is delivered.
type Setting string

const (
	SettingOutpatient  Setting = "outpatient"
	SettingCommunity   Setting = "community"
	SettingTelehealth  Setting = "telehealth"
	SettingHome        Setting = "home"
	SettingResidential Setting = "residential"
)

func ValidSetting(s Setting) bool {
	switch s {
	case SettingOutpatient, SettingCommunity, SettingTelehealth, SettingHome, SettingResidential:
		return true
	}
	return false
}

// ServicePlan is one billable peer-support service, from plan through delivery
// and verification.
type ServicePlan struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	CreatedBy      string `json:"created_by"`

	// Planning attributes, mutable only while in draft.
	ServiceType    ServiceType `json:"service_type" enum:"individual,group"`
	PlannedDate    string      `json:"planned_date" format:"date"`
	PlannedTime    *string     `json:"planned_time,omitempty"`
	PlannedMinutes int         `json:"planned_duration_minutes"`
	Setting        Setting     `json:"setting" enum:"outpatient,community,telehealth,home,residential"`
	ServiceCode    *string     `json:"service_code,omitempty"`
	ParticipantID  *string     `json:"participant_id,omitempty"`
	LessonID       *string     `json:"lesson_id,omitempty"`
	GoalID         *string     `json:"goal_id,omitempty"`
	PlanningNotes  *string     `json:"planning_notes,omitempty"`

	// Delivery attributes, written exactly once by the complete transition.
	ActualMinutes   *int    `json:"actual_duration_minutes,omitempty"`
	AttendanceCount *int    `json:"attendance_count,omitempty"`
	DeliveredAsPlan *bool   `json:"delivered_as_planned,omitempty"`
	DeviationNotes  *string `json:"deviation_notes,omitempty"`
	CompletedAt     *string `json:"completed_at,omitempty" format:"date-time"`
	CompletedBy     *string `json:"completed_by,omitempty"`

	// Verification attributes, written once by the verify transition.
	VerifiedAt *string `json:"verified_at,omitempty" format:"date-time"`
	VerifiedBy *string `json:"verified_by,omitempty"`

	SessionNoteID *string `json:"session_note_id,omitempty"`

	Status    Status `json:"status" enum:"draft,planned,approved,completed,verified"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// AuditEvent is one append-only record of a state-changing action on a plan.
// Insertion order (ID ascending) is the authoritative history.
type AuditEvent struct {
	ID         int64   `json:"id"`
	PlanID     string  `json:"service_plan_id"`
	Action     Action  `json:"action" enum:"created,submitted,approved,change_requested,commented,completed,verified,deleted,note_linked,updated"`
	ActorID    string  `json:"actor_id"`
	ActorRole  Role    `json:"actor_role" enum:"peer,supervisor"`
	Comment    *string `json:"comment,omitempty"`
	OccurredAt string  `json:"occurred_at" format:"date-time"`
}

type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Timezone  string `json:"timezone,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Actor is a known member of an organization.
type Actor struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	DisplayName    string `json:"display_name,omitempty"`
	Role           Role   `json:"role" enum:"peer,supervisor"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ReviewItem is a review-queue entry: a plan awaiting a supervisor decision,
// annotated with the acting peer and any supervisor comments so far.
type ReviewItem struct {
	Plan     ServicePlan `json:"plan"`
	PeerName string      `json:"peer_name"`
	Comments []string    `json:"comments,omitempty"`
	Overdue  bool        `json:"overdue"`
}

// Dashboard is a peer's per-status summary within one organization.
type Dashboard struct {
	ActorID   string         `json:"actor_id"`
	Counts    map[Status]int `json:"counts"`
	ThisWeek  int            `json:"this_week"`
	Overdue   int            `json:"overdue"`
	WeekStart string         `json:"week_start" format:"date"`
	WeekEnd   string         `json:"week_end" format:"date"`
}
