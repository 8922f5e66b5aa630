package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"servicelog/internal/domain"
)

// Store is the authoritative persisted state of service plans. Every read is
// organization-scoped; a plan from another organization is indistinguishable
// from a missing one.
type Store struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// View names for ListFilter.
const (
	ViewUpcoming  = "upcoming"
	ViewCompleted = "completed"
	ViewReview    = "review"
	ViewAll       = "all"
)

type ListFilter struct {
	View          string
	Status        domain.Status
	CreatedBy     string
	ParticipantID string
	Limit         int
}

func viewStatuses(view string) []domain.Status {
	switch view {
	case ViewUpcoming:
		return []domain.Status{domain.StatusDraft, domain.StatusPlanned, domain.StatusApproved}
	case ViewCompleted:
		return []domain.Status{domain.StatusCompleted, domain.StatusVerified}
	case ViewReview:
		return []domain.Status{domain.StatusPlanned, domain.StatusCompleted}
	default:
		return nil
	}
}

const planColumns = `id,org_id,created_by,service_type,planned_date,planned_time,planned_minutes,setting,service_code,participant_id,lesson_id,goal_id,planning_notes,actual_minutes,attendance_count,delivered_as_planned,deviation_notes,completed_at,completed_by,verified_at,verified_by,session_note_id,status,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (domain.ServicePlan, error) {
	var p domain.ServicePlan
	var plannedTime, serviceCode, participantID, lessonID, goalID, planningNotes sql.NullString
	var deviationNotes, completedAt, completedBy, verifiedAt, verifiedBy, sessionNoteID sql.NullString
	var actualMinutes, attendanceCount sql.NullInt64
	var delivered sql.NullBool
	err := row.Scan(&p.ID, &p.OrganizationID, &p.CreatedBy, &p.ServiceType, &p.PlannedDate, &plannedTime,
		&p.PlannedMinutes, &p.Setting, &serviceCode, &participantID, &lessonID, &goalID, &planningNotes,
		&actualMinutes, &attendanceCount, &delivered, &deviationNotes, &completedAt, &completedBy,
		&verifiedAt, &verifiedBy, &sessionNoteID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.PlannedTime = strPtr(plannedTime)
	p.ServiceCode = strPtr(serviceCode)
	p.ParticipantID = strPtr(participantID)
	p.LessonID = strPtr(lessonID)
	p.GoalID = strPtr(goalID)
	p.PlanningNotes = strPtr(planningNotes)
	p.DeviationNotes = strPtr(deviationNotes)
	p.CompletedAt = strPtr(completedAt)
	p.CompletedBy = strPtr(completedBy)
	p.VerifiedAt = strPtr(verifiedAt)
	p.VerifiedBy = strPtr(verifiedBy)
	p.SessionNoteID = strPtr(sessionNoteID)
	if actualMinutes.Valid {
		v := int(actualMinutes.Int64)
		p.ActualMinutes = &v
	}
	if attendanceCount.Valid {
		v := int(attendanceCount.Int64)
		p.AttendanceCount = &v
	}
	if delivered.Valid {
		v := delivered.Bool
		p.DeliveredAsPlan = &v
	}
	return p, nil
}

// InsertPlan writes a new plan row inside tx.
func (s Store) InsertPlan(ctx context.Context, tx *sql.Tx, p domain.ServicePlan) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO service_plans(`+planColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.OrganizationID, p.CreatedBy, string(p.ServiceType), p.PlannedDate, nullableStringPtr(p.PlannedTime),
		p.PlannedMinutes, string(p.Setting), nullableStringPtr(p.ServiceCode), nullableStringPtr(p.ParticipantID),
		nullableStringPtr(p.LessonID), nullableStringPtr(p.GoalID), nullableStringPtr(p.PlanningNotes),
		nullableIntPtr(p.ActualMinutes), nullableIntPtr(p.AttendanceCount), nullableBoolPtr(p.DeliveredAsPlan),
		nullableStringPtr(p.DeviationNotes), nullableStringPtr(p.CompletedAt), nullableStringPtr(p.CompletedBy),
		nullableStringPtr(p.VerifiedAt), nullableStringPtr(p.VerifiedBy), nullableStringPtr(p.SessionNoteID),
		string(p.Status), p.CreatedAt, p.UpdatedAt)
	return err
}

// UpdatePlan rewrites all mutable fields inside tx. The engine is the only
// caller; nothing else writes plan rows.
func (s Store) UpdatePlan(ctx context.Context, tx *sql.Tx, p domain.ServicePlan) error {
	res, err := tx.ExecContext(ctx, `UPDATE service_plans SET service_type=?, planned_date=?, planned_time=?, planned_minutes=?, setting=?, service_code=?, participant_id=?, lesson_id=?, goal_id=?, planning_notes=?, actual_minutes=?, attendance_count=?, delivered_as_planned=?, deviation_notes=?, completed_at=?, completed_by=?, verified_at=?, verified_by=?, session_note_id=?, status=?, updated_at=? WHERE id=? AND org_id=? AND deleted_at IS NULL`,
		string(p.ServiceType), p.PlannedDate, nullableStringPtr(p.PlannedTime), p.PlannedMinutes, string(p.Setting),
		nullableStringPtr(p.ServiceCode), nullableStringPtr(p.ParticipantID), nullableStringPtr(p.LessonID),
		nullableStringPtr(p.GoalID), nullableStringPtr(p.PlanningNotes), nullableIntPtr(p.ActualMinutes),
		nullableIntPtr(p.AttendanceCount), nullableBoolPtr(p.DeliveredAsPlan), nullableStringPtr(p.DeviationNotes),
		nullableStringPtr(p.CompletedAt), nullableStringPtr(p.CompletedBy), nullableStringPtr(p.VerifiedAt),
		nullableStringPtr(p.VerifiedBy), nullableStringPtr(p.SessionNoteID), string(p.Status), p.UpdatedAt,
		p.ID, p.OrganizationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeletePlan hides a cancelled plan while keeping its audit trail.
func (s Store) SoftDeletePlan(ctx context.Context, tx *sql.Tx, orgID, planID, deletedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE service_plans SET deleted_at=? WHERE id=? AND org_id=? AND deleted_at IS NULL`, deletedAt, planID, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s Store) GetPlan(ctx context.Context, orgID, planID string) (domain.ServicePlan, error) {
	return scanPlan(s.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM service_plans WHERE id=? AND org_id=? AND deleted_at IS NULL`, planID, orgID))
}

// PlanExists reports whether a plan id belongs to the organization, including
// soft-deleted rows. Cancelled plans keep their audit trail, so history
// lookups must still resolve them.
func (s Store) PlanExists(ctx context.Context, orgID, planID string) error {
	var one int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM service_plans WHERE id=? AND org_id=?`, planID, orgID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

// GetPlanTx reads a plan inside the transition transaction so the state check
// and the update observe the same row.
func (s Store) GetPlanTx(ctx context.Context, tx *sql.Tx, orgID, planID string) (domain.ServicePlan, error) {
	return scanPlan(tx.QueryRowContext(ctx, `SELECT `+planColumns+` FROM service_plans WHERE id=? AND org_id=? AND deleted_at IS NULL`, planID, orgID))
}

func (s Store) ListPlans(ctx context.Context, orgID string, f ListFilter) ([]domain.ServicePlan, error) {
	clauses := []string{"org_id=?", "deleted_at IS NULL"}
	args := []any{orgID}
	if statuses := viewStatuses(f.View); len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		clauses = append(clauses, "status IN ("+strings.Join(marks, ",")+")")
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, f.CreatedBy)
	}
	if f.ParticipantID != "" {
		clauses = append(clauses, "participant_id=?")
		args = append(args, f.ParticipantID)
	}
	query := `SELECT ` + planColumns + ` FROM service_plans WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY planned_date ASC, created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ServicePlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// CountPlansByStatus returns per-status counts for one peer's plans.
func (s Store) CountPlansByStatus(ctx context.Context, orgID, createdBy string) (map[domain.Status]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, count(*) FROM service_plans WHERE org_id=? AND created_by=? AND deleted_at IS NULL GROUP BY status`, orgID, createdBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.Status]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[domain.Status(status)] = count
	}
	return res, rows.Err()
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBoolPtr(v *bool) any {
	if v == nil {
		return nil
	}
	if *v {
		return 1
	}
	return 0
}
