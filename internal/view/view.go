package view

import (
	"context"
	"time"

	"servicelog/internal/audit"
	"servicelog/internal/domain"
	"servicelog/internal/store"
)

// View builds read-only, role-scoped projections over the store and the
// audit trail. It never mutates anything and never crosses organizations.
type View struct {
	Store store.Store
	Audit audit.Recorder
	Now   func() time.Time
}

func (v View) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// orgLocation resolves the organization's reporting timezone. Dashboard weeks
// and overdue checks are computed in this zone; UTC when unset or invalid.
func (v View) orgLocation(ctx context.Context, orgID string) *time.Location {
	org, err := v.Store.GetOrg(ctx, orgID)
	if err != nil || org.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// weekBounds returns the organization's current reporting week around now:
// Sunday 00:00 through the following Saturday, inclusive, as date strings.
func weekBounds(now time.Time) (string, string) {
	start := now.AddDate(0, 0, -int(now.Weekday()))
	end := start.AddDate(0, 0, 6)
	return start.Format("2006-01-02"), end.Format("2006-01-02")
}

// overdue reports whether a plan is past its planned date without having been
// delivered. Derived, never stored; advisory only.
func overdue(p domain.ServicePlan, today string) bool {
	if p.Status != domain.StatusPlanned && p.Status != domain.StatusApproved {
		return false
	}
	return p.PlannedDate < today
}

// PeerDashboard summarizes one peer's plans within their organization.
func (v View) PeerDashboard(ctx context.Context, orgID, actorID string) (domain.Dashboard, error) {
	counts, err := v.Store.CountPlansByStatus(ctx, orgID, actorID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	plans, err := v.Store.ListPlans(ctx, orgID, store.ListFilter{CreatedBy: actorID})
	if err != nil {
		return domain.Dashboard{}, err
	}
	now := v.now().In(v.orgLocation(ctx, orgID))
	weekStart, weekEnd := weekBounds(now)
	today := now.Format("2006-01-02")
	d := domain.Dashboard{
		ActorID:   actorID,
		Counts:    counts,
		WeekStart: weekStart,
		WeekEnd:   weekEnd,
	}
	for _, p := range plans {
		if p.PlannedDate >= weekStart && p.PlannedDate <= weekEnd {
			d.ThisWeek++
		}
		if overdue(p, today) {
			d.Overdue++
		}
	}
	return d, nil
}

// ReviewQueue returns the organization's plans awaiting a supervisor
// decision: planned (pending approval) and completed (pending verification),
// annotated with the acting peer's display name and any supervisor comments.
func (v View) ReviewQueue(ctx context.Context, orgID string) ([]domain.ReviewItem, error) {
	plans, err := v.Store.ListPlans(ctx, orgID, store.ListFilter{View: store.ViewReview})
	if err != nil {
		return nil, err
	}
	names, err := v.Store.ActorNames(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := v.now().In(v.orgLocation(ctx, orgID))
	today := now.Format("2006-01-02")
	items := make([]domain.ReviewItem, 0, len(plans))
	for _, p := range plans {
		comments, err := v.planComments(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		name := names[p.CreatedBy]
		if name == "" {
			name = p.CreatedBy
		}
		items = append(items, domain.ReviewItem{
			Plan:     p,
			PeerName: name,
			Comments: comments,
			Overdue:  overdue(p, today),
		})
	}
	return items, nil
}

func (v View) planComments(ctx context.Context, planID string) ([]string, error) {
	events, err := v.Audit.History(ctx, planID)
	if err != nil {
		return nil, err
	}
	var comments []string
	for _, e := range events {
		if e.Comment != nil && *e.Comment != "" {
			comments = append(comments, *e.Comment)
		}
	}
	return comments, nil
}
