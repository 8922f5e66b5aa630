package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"servicelog/internal/domain"
)

// Recorder appends immutable audit events. Appends always run inside the
// transaction that mutates the plan row, so a plan can never show a status
// with no corresponding event.
type Recorder struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append writes one audit event inside tx. Events are never updated or
// deleted afterwards.
func (r Recorder) Append(ctx context.Context, tx *sql.Tx, planID string, action domain.Action, actorID string, actorRole domain.Role, comment *string) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	var c any
	if comment != nil && *comment != "" {
		c = *comment
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO audit_events(plan_id,action,actor_id,actor_role,comment,occurred_at) VALUES (?,?,?,?,?,?)`,
		planID, string(action), actorID, string(actorRole), c, ts)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// History returns the full event sequence for a plan in insertion order.
func (r Recorder) History(ctx context.Context, planID string) ([]domain.AuditEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,plan_id,action,actor_id,actor_role,comment,occurred_at FROM audit_events WHERE plan_id=? ORDER BY id ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var comment sql.NullString
		if err := rows.Scan(&e.ID, &e.PlanID, &e.Action, &e.ActorID, &e.ActorRole, &comment, &e.OccurredAt); err != nil {
			return nil, err
		}
		if comment.Valid {
			e.Comment = &comment.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ReplayStatus folds an event sequence into the status it produces. For any
// plan, replaying its history must reproduce the stored status exactly; a
// mismatch means the trail has been tampered with or a write bypassed the
// engine. A trail ending in a deleted event yields an empty status: the plan
// was cancelled and its row is gone.
func ReplayStatus(events []domain.AuditEvent) (domain.Status, error) {
	var status domain.Status
	for i, e := range events {
		switch e.Action {
		case domain.ActionCreated:
			if i != 0 {
				return "", fmt.Errorf("event %d: created must be first", e.ID)
			}
			// Plans scheduled directly get a submitted event in the same
			// transaction, so created always means draft here.
			status = domain.StatusDraft
		case domain.ActionSubmitted:
			if status != domain.StatusDraft {
				return "", replayErr(e, status)
			}
			status = domain.StatusPlanned
		case domain.ActionApproved:
			if status != domain.StatusPlanned {
				return "", replayErr(e, status)
			}
			status = domain.StatusApproved
		case domain.ActionChangeRequested:
			if status != domain.StatusPlanned {
				return "", replayErr(e, status)
			}
			status = domain.StatusDraft
		case domain.ActionCompleted:
			if status != domain.StatusPlanned && status != domain.StatusApproved {
				return "", replayErr(e, status)
			}
			status = domain.StatusCompleted
		case domain.ActionVerified:
			if status != domain.StatusCompleted {
				return "", replayErr(e, status)
			}
			status = domain.StatusVerified
		case domain.ActionCommented, domain.ActionNoteLinked, domain.ActionUpdated:
			// no status effect
		case domain.ActionDeleted:
			if status != domain.StatusDraft && status != domain.StatusPlanned {
				return "", replayErr(e, status)
			}
			return "", nil
		default:
			return "", fmt.Errorf("event %d: unknown action %s", e.ID, e.Action)
		}
	}
	if status == "" {
		return "", fmt.Errorf("empty or truncated event sequence")
	}
	return status, nil
}

func replayErr(e domain.AuditEvent, status domain.Status) error {
	return fmt.Errorf("event %d: action %s not reachable from status %s", e.ID, e.Action, status)
}
