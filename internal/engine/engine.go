package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"

	"servicelog/internal/audit"
	"servicelog/internal/domain"
	"servicelog/internal/store"
)

// Engine validates and applies service plan transitions. It is the only
// writer of plan status: every successful transition mutates the plan row and
// appends an audit event inside one transaction.
type Engine struct {
	DB    *sql.DB
	Store store.Store
	Audit audit.Recorder
	Now   func() time.Time

	// locks serializes transitions per plan id, so racing actors are
	// evaluated one after the other against committed state.
	locks *kmutex.Kmutex
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:    db,
		Store: store.Store{DB: db},
		Audit: audit.Recorder{DB: db},
		Now:   time.Now,
		locks: kmutex.New(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Actor is the authenticated caller context threaded through every operation.
// Organization scope is always explicit, never inferred.
type Actor struct {
	OrganizationID string
	ID             string
	Role           domain.Role
}

func (a Actor) validate() error {
	if a.OrganizationID == "" {
		return validationErr("organization_id", "required")
	}
	if a.ID == "" {
		return validationErr("actor_id", "required")
	}
	if !domain.ValidRole(a.Role) {
		return validationErr("actor_role", fmt.Sprintf("unknown role %q", a.Role))
	}
	return nil
}

// CreateOptions are the planning attributes for a new service plan.
type CreateOptions struct {
	ServiceType    domain.ServiceType
	PlannedDate    string
	PlannedTime    string
	PlannedMinutes int
	Setting        domain.Setting
	ServiceCode    string
	ParticipantID  string
	LessonID       string
	GoalID         string
	PlanningNotes  string
	// Schedule creates the plan directly in planned, skipping draft.
	Schedule bool
}

func (o CreateOptions) validate() error {
	if !domain.ValidServiceType(o.ServiceType) {
		return validationErr("service_type", fmt.Sprintf("unknown value %q", o.ServiceType))
	}
	if o.PlannedDate == "" {
		return validationErr("planned_date", "required")
	}
	if _, err := time.Parse("2006-01-02", o.PlannedDate); err != nil {
		return validationErr("planned_date", "must be YYYY-MM-DD")
	}
	if o.PlannedTime != "" {
		if _, err := time.Parse("15:04", o.PlannedTime); err != nil {
			return validationErr("planned_time", "must be HH:MM")
		}
	}
	if o.PlannedMinutes <= 0 {
		return validationErr("planned_duration_minutes", "must be a positive integer")
	}
	if !domain.ValidSetting(o.Setting) {
		return validationErr("setting", fmt.Sprintf("unknown value %q", o.Setting))
	}
	return nil
}

// CreatePlan inserts a plan in draft, or in planned when opts.Schedule is
// set. Only peers create plans; the creating peer owns the plan.
func (e Engine) CreatePlan(ctx context.Context, actor Actor, opts CreateOptions) (domain.ServicePlan, error) {
	if err := actor.validate(); err != nil {
		return domain.ServicePlan{}, err
	}
	if actor.Role != domain.RolePeer {
		return domain.ServicePlan{}, InvalidTransitionError{Action: domain.ActionCreated, Reason: "only a peer can create a service plan"}
	}
	if err := opts.validate(); err != nil {
		return domain.ServicePlan{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.ServicePlan{
		ID:             uuid.New().String(),
		OrganizationID: actor.OrganizationID,
		CreatedBy:      actor.ID,
		ServiceType:    opts.ServiceType,
		PlannedDate:    opts.PlannedDate,
		PlannedTime:    optionalString(opts.PlannedTime),
		PlannedMinutes: opts.PlannedMinutes,
		Setting:        opts.Setting,
		ServiceCode:    optionalString(opts.ServiceCode),
		ParticipantID:  optionalString(opts.ParticipantID),
		LessonID:       optionalString(opts.LessonID),
		GoalID:         optionalString(opts.GoalID),
		PlanningNotes:  optionalString(opts.PlanningNotes),
		Status:         domain.StatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if opts.Schedule {
		p.Status = domain.StatusPlanned
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ServicePlan{}, persistErr("begin create", err)
	}
	defer tx.Rollback()
	if err := e.Store.InsertPlan(ctx, tx, p); err != nil {
		return domain.ServicePlan{}, persistErr("insert plan", err)
	}
	if err := e.Audit.Append(ctx, tx, p.ID, domain.ActionCreated, actor.ID, actor.Role, nil); err != nil {
		return domain.ServicePlan{}, persistErr("audit create", err)
	}
	if opts.Schedule {
		// Direct scheduling is modeled as create followed by submit so the
		// audit trail replays to the same status.
		if err := e.Audit.Append(ctx, tx, p.ID, domain.ActionSubmitted, actor.ID, actor.Role, nil); err != nil {
			return domain.ServicePlan{}, persistErr("audit submit", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.ServicePlan{}, persistErr("commit create", err)
	}
	return p, nil
}

// DraftUpdate carries planning-attribute edits, legal only while in draft.
type DraftUpdate struct {
	ServiceType    *domain.ServiceType
	PlannedDate    *string
	PlannedTime    *string
	PlannedMinutes *int
	Setting        *domain.Setting
	ServiceCode    *string
	ParticipantID  *string
	LessonID       *string
	GoalID         *string
	PlanningNotes  *string
}

// UpdateDraft edits planning attributes. Past draft, planning attributes are
// read-only until a supervisor requests changes.
func (e Engine) UpdateDraft(ctx context.Context, actor Actor, planID string, upd DraftUpdate) (domain.ServicePlan, error) {
	return e.transition(ctx, actor, planID, domain.ActionUpdated, nil, func(p *domain.ServicePlan) error {
		if actor.Role != domain.RolePeer || p.CreatedBy != actor.ID {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionUpdated, Reason: "only the owning peer can edit a plan"}
		}
		if p.Status != domain.StatusDraft {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionUpdated, Reason: fmt.Sprintf("cannot edit a plan in status %s; planning fields are only editable in draft", p.Status)}
		}
		if upd.ServiceType != nil {
			p.ServiceType = *upd.ServiceType
		}
		if upd.PlannedDate != nil {
			p.PlannedDate = *upd.PlannedDate
		}
		if upd.PlannedTime != nil {
			p.PlannedTime = optionalString(*upd.PlannedTime)
		}
		if upd.PlannedMinutes != nil {
			p.PlannedMinutes = *upd.PlannedMinutes
		}
		if upd.Setting != nil {
			p.Setting = *upd.Setting
		}
		if upd.ServiceCode != nil {
			p.ServiceCode = optionalString(*upd.ServiceCode)
		}
		if upd.ParticipantID != nil {
			p.ParticipantID = optionalString(*upd.ParticipantID)
		}
		if upd.LessonID != nil {
			p.LessonID = optionalString(*upd.LessonID)
		}
		if upd.GoalID != nil {
			p.GoalID = optionalString(*upd.GoalID)
		}
		if upd.PlanningNotes != nil {
			p.PlanningNotes = optionalString(*upd.PlanningNotes)
		}
		return (CreateOptions{
			ServiceType:    p.ServiceType,
			PlannedDate:    p.PlannedDate,
			PlannedTime:    deref(p.PlannedTime),
			PlannedMinutes: p.PlannedMinutes,
			Setting:        p.Setting,
		}).validate()
	})
}

// Submit moves an owned draft to planned.
func (e Engine) Submit(ctx context.Context, actor Actor, planID string) (domain.ServicePlan, error) {
	return e.transition(ctx, actor, planID, domain.ActionSubmitted, nil, func(p *domain.ServicePlan) error {
		if actor.Role != domain.RolePeer || p.CreatedBy != actor.ID {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionSubmitted, Reason: "only the owning peer can submit a plan"}
		}
		if p.Status != domain.StatusDraft {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionSubmitted}
		}
		p.Status = domain.StatusPlanned
		return nil
	})
}

// Approve records a supervisor decision on a planned plan.
func (e Engine) Approve(ctx context.Context, actor Actor, planID, comment string) (domain.ServicePlan, error) {
	return e.transition(ctx, actor, planID, domain.ActionApproved, optionalString(comment), func(p *domain.ServicePlan) error {
		if actor.Role != domain.RoleSupervisor {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionApproved, Reason: "only a supervisor can approve a plan"}
		}
		if p.Status != domain.StatusPlanned {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionApproved, Reason: fmt.Sprintf("cannot approve a plan in status %s; it must be planned", p.Status)}
		}
		p.Status = domain.StatusApproved
		return nil
	})
}

// Comment records a supervisor comment without changing status. Allowed while
// a plan awaits a decision (planned or completed).
func (e Engine) Comment(ctx context.Context, actor Actor, planID, comment string) (domain.ServicePlan, error) {
	if comment == "" {
		return domain.ServicePlan{}, validationErr("comment", "required")
	}
	return e.transition(ctx, actor, planID, domain.ActionCommented, &comment, func(p *domain.ServicePlan) error {
		if actor.Role != domain.RoleSupervisor {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionCommented, Reason: "only a supervisor can comment on a plan"}
		}
		if p.Status != domain.StatusPlanned && p.Status != domain.StatusCompleted {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionCommented}
		}
		return nil
	})
}

// RequestChange returns a planned plan to draft. The comment is mandatory: it
// tells the peer what must change.
func (e Engine) RequestChange(ctx context.Context, actor Actor, planID, comment string) (domain.ServicePlan, error) {
	if comment == "" {
		return domain.ServicePlan{}, validationErr("comment", "required when requesting changes")
	}
	return e.transition(ctx, actor, planID, domain.ActionChangeRequested, &comment, func(p *domain.ServicePlan) error {
		if actor.Role != domain.RoleSupervisor {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionChangeRequested, Reason: "only a supervisor can request changes"}
		}
		if p.Status != domain.StatusPlanned {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionChangeRequested, Reason: fmt.Sprintf("cannot request changes on a plan in status %s; it must be planned", p.Status)}
		}
		p.Status = domain.StatusDraft
		return nil
	})
}

// CompleteOptions are the delivery attributes recorded by Complete. They are
// written exactly once and never altered afterwards.
type CompleteOptions struct {
	ActualMinutes      int
	AttendanceCount    int
	DeliveredAsPlanned bool
	DeviationNotes     string
}

func (o CompleteOptions) validate() error {
	if o.ActualMinutes <= 0 {
		return validationErr("actual_duration_minutes", "must be a positive integer")
	}
	if o.AttendanceCount < 1 {
		return validationErr("attendance_count", "must be at least 1")
	}
	// deviation notes are coupled to the delivered-as-planned flag and
	// validated together, in the engine, not left to clients.
	if !o.DeliveredAsPlanned && o.DeviationNotes == "" {
		return validationErr("deviation_notes", "required when the service was not delivered as planned")
	}
	if o.DeliveredAsPlanned && o.DeviationNotes != "" {
		return validationErr("deviation_notes", "forbidden when the service was delivered as planned")
	}
	return nil
}

// Complete records delivery of a planned or approved plan by its owning peer.
func (e Engine) Complete(ctx context.Context, actor Actor, planID string, opts CompleteOptions) (domain.ServicePlan, error) {
	if err := opts.validate(); err != nil {
		return domain.ServicePlan{}, err
	}
	return e.transition(ctx, actor, planID, domain.ActionCompleted, nil, func(p *domain.ServicePlan) error {
		if actor.Role != domain.RolePeer || p.CreatedBy != actor.ID {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionCompleted, Reason: "only the owning peer can complete a plan"}
		}
		if p.Status != domain.StatusPlanned && p.Status != domain.StatusApproved {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionCompleted, Reason: fmt.Sprintf("cannot complete a plan in status %s; it must be planned or approved", p.Status)}
		}
		now := e.now().UTC().Format(time.RFC3339)
		p.ActualMinutes = &opts.ActualMinutes
		p.AttendanceCount = &opts.AttendanceCount
		delivered := opts.DeliveredAsPlanned
		p.DeliveredAsPlan = &delivered
		p.DeviationNotes = optionalString(opts.DeviationNotes)
		p.CompletedAt = &now
		p.CompletedBy = &actor.ID
		p.Status = domain.StatusCompleted
		return nil
	})
}

// Verify is the supervisor's final sign-off on a completed plan.
func (e Engine) Verify(ctx context.Context, actor Actor, planID, comment string) (domain.ServicePlan, error) {
	return e.transition(ctx, actor, planID, domain.ActionVerified, optionalString(comment), func(p *domain.ServicePlan) error {
		if actor.Role != domain.RoleSupervisor {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionVerified, Reason: "only a supervisor can verify a plan"}
		}
		if p.Status != domain.StatusCompleted {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionVerified, Reason: fmt.Sprintf("cannot verify a plan in status %s; it has not been completed", p.Status)}
		}
		now := e.now().UTC().Format(time.RFC3339)
		p.VerifiedAt = &now
		p.VerifiedBy = &actor.ID
		p.Status = domain.StatusVerified
		return nil
	})
}

// SetSessionNote links an externally produced session note to a completed
// plan. The link is set once.
func (e Engine) SetSessionNote(ctx context.Context, actor Actor, planID, noteID string) (domain.ServicePlan, error) {
	if noteID == "" {
		return domain.ServicePlan{}, validationErr("session_note_id", "required")
	}
	return e.transition(ctx, actor, planID, domain.ActionNoteLinked, nil, func(p *domain.ServicePlan) error {
		if p.Status != domain.StatusCompleted && p.Status != domain.StatusVerified {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionNoteLinked, Reason: "a session note can only be linked once a plan is completed"}
		}
		if p.SessionNoteID != nil {
			return InvalidTransitionError{Current: p.Status, Action: domain.ActionNoteLinked, Reason: "a session note is already linked to this plan"}
		}
		p.SessionNoteID = &noteID
		return nil
	})
}

// Cancel removes a plan that has not been worked yet. The audit event is
// written before the row is soft-deleted, so the trail for a cancelled plan
// is retained.
func (e Engine) Cancel(ctx context.Context, actor Actor, planID, comment string) error {
	if err := actor.validate(); err != nil {
		return err
	}
	e.locks.Lock(planID)
	defer e.locks.Unlock(planID)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin cancel", err)
	}
	defer tx.Rollback()
	p, err := e.Store.GetPlanTx(ctx, tx, actor.OrganizationID, planID)
	if err != nil {
		return err
	}
	if actor.Role != domain.RolePeer || p.CreatedBy != actor.ID {
		return InvalidTransitionError{Current: p.Status, Action: domain.ActionDeleted, Reason: "only the owning peer can cancel a plan"}
	}
	if p.Status != domain.StatusDraft && p.Status != domain.StatusPlanned {
		return InvalidTransitionError{Current: p.Status, Action: domain.ActionDeleted, Reason: fmt.Sprintf("cannot cancel a plan in status %s; delivered services cannot be removed", p.Status)}
	}
	if err := e.Audit.Append(ctx, tx, p.ID, domain.ActionDeleted, actor.ID, actor.Role, optionalString(comment)); err != nil {
		return persistErr("audit cancel", err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Store.SoftDeletePlan(ctx, tx, actor.OrganizationID, p.ID, now); err != nil {
		return persistErr("delete plan", err)
	}
	if err := tx.Commit(); err != nil {
		return persistErr("commit cancel", err)
	}
	return nil
}

// History returns the plan's audit trail, org-scoped. Cancelled plans still
// resolve here: the trail outlives the soft-deleted row.
func (e Engine) History(ctx context.Context, orgID, planID string) ([]domain.AuditEvent, error) {
	if err := e.Store.PlanExists(ctx, orgID, planID); err != nil {
		return nil, err
	}
	return e.Audit.History(ctx, planID)
}

// transition runs one mutation under the plan lock: read inside the
// transaction, apply, persist plan and audit event, commit. On any error
// neither the plan update nor the event is applied.
func (e Engine) transition(ctx context.Context, actor Actor, planID string, action domain.Action, comment *string, apply func(*domain.ServicePlan) error) (domain.ServicePlan, error) {
	if err := actor.validate(); err != nil {
		return domain.ServicePlan{}, err
	}
	if planID == "" {
		return domain.ServicePlan{}, validationErr("plan_id", "required")
	}
	e.locks.Lock(planID)
	defer e.locks.Unlock(planID)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ServicePlan{}, persistErr("begin transition", err)
	}
	defer tx.Rollback()

	p, err := e.Store.GetPlanTx(ctx, tx, actor.OrganizationID, planID)
	if err != nil {
		return domain.ServicePlan{}, err
	}
	if err := apply(&p); err != nil {
		return domain.ServicePlan{}, err
	}
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Store.UpdatePlan(ctx, tx, p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ServicePlan{}, err
		}
		return domain.ServicePlan{}, persistErr("update plan", err)
	}
	if err := e.Audit.Append(ctx, tx, p.ID, action, actor.ID, actor.Role, comment); err != nil {
		return domain.ServicePlan{}, persistErr("audit "+string(action), err)
	}
	if err := tx.Commit(); err != nil {
		return domain.ServicePlan{}, persistErr("commit "+string(action), err)
	}
	return p, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
