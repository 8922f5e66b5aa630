package view_test

import (
	"context"
	"testing"
	"time"

	"servicelog/internal/app"
	"servicelog/internal/db"
	"servicelog/internal/domain"
	"servicelog/internal/engine"
	"servicelog/internal/migrate"
	"servicelog/internal/view"
)

// fixedNow is a Thursday; the surrounding Sunday-start week is
// 2026-03-01 through 2026-03-07.
var fixedNow = time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

var (
	peer       = engine.Actor{OrganizationID: "org-1", ID: "peer-1", Role: domain.RolePeer}
	supervisor = engine.Actor{OrganizationID: "org-1", ID: "sup-1", Role: domain.RoleSupervisor}
)

type testEnv struct {
	Engine engine.Engine
	View   view.View
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return fixedNow }
	ctx := context.Background()
	for _, org := range []string{"org-1", "org-2"} {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := eng.Store.EnsureOrg(ctx, tx, org, org, "UTC", "2026-01-01T00:00:00Z"); err != nil {
			t.Fatalf("seed org: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	if err := app.EnsureMember(ctx, eng.Store, "org-1", "peer-1", "Jordan Reyes", domain.RolePeer); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	v := view.View{Store: eng.Store, Audit: eng.Audit, Now: func() time.Time { return fixedNow }}
	return testEnv{Engine: eng, View: v, Ctx: ctx}
}

func create(t *testing.T, env testEnv, actor engine.Actor, date string, schedule bool) domain.ServicePlan {
	t.Helper()
	p, err := env.Engine.CreatePlan(env.Ctx, actor, engine.CreateOptions{
		ServiceType:    domain.ServiceIndividual,
		PlannedDate:    date,
		PlannedMinutes: 60,
		Setting:        domain.SettingOutpatient,
		Schedule:       schedule,
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return p
}

func TestPeerDashboardWeekAndOverdue(t *testing.T) {
	env := newTestEnv(t)
	create(t, env, peer, "2026-03-03", true)  // this week
	create(t, env, peer, "2026-03-10", true)  // next week
	create(t, env, peer, "2026-02-20", true)  // past, planned: overdue
	create(t, env, peer, "2026-02-21", false) // past but still draft: not overdue

	d, err := env.View.PeerDashboard(env.Ctx, "org-1", "peer-1")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.WeekStart != "2026-03-01" || d.WeekEnd != "2026-03-07" {
		t.Fatalf("unexpected week bounds %s..%s", d.WeekStart, d.WeekEnd)
	}
	if d.ThisWeek != 1 {
		t.Fatalf("expected 1 plan this week, got %d", d.ThisWeek)
	}
	if d.Overdue != 1 {
		t.Fatalf("expected 1 overdue plan, got %d", d.Overdue)
	}
	if d.Counts[domain.StatusPlanned] != 3 || d.Counts[domain.StatusDraft] != 1 {
		t.Fatalf("unexpected counts: %+v", d.Counts)
	}
}

func TestDashboardScopedToActor(t *testing.T) {
	env := newTestEnv(t)
	create(t, env, peer, "2026-03-03", true)
	other := engine.Actor{OrganizationID: "org-1", ID: "peer-2", Role: domain.RolePeer}
	create(t, env, other, "2026-03-03", true)

	d, err := env.View.PeerDashboard(env.Ctx, "org-1", "peer-1")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.ThisWeek != 1 || d.Counts[domain.StatusPlanned] != 1 {
		t.Fatalf("dashboard leaked another peer's plans: %+v", d)
	}
}

func TestReviewQueueAnnotations(t *testing.T) {
	env := newTestEnv(t)
	p := create(t, env, peer, "2026-02-20", true)
	if _, err := env.Engine.Comment(env.Ctx, supervisor, p.ID, "confirm the site"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	// a completed plan awaits verification and belongs in the queue too
	done := create(t, env, peer, "2026-03-02", true)
	if _, err := env.Engine.Complete(env.Ctx, peer, done.ID, engine.CompleteOptions{
		ActualMinutes: 60, AttendanceCount: 1, DeliveredAsPlanned: true,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// approved plans await the peer, not the supervisor
	appr := create(t, env, peer, "2026-03-04", true)
	if _, err := env.Engine.Approve(env.Ctx, supervisor, appr.ID, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	items, err := env.View.ReviewQueue(env.Ctx, "org-1")
	if err != nil {
		t.Fatalf("review queue: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 queue items, got %d", len(items))
	}
	byID := map[string]domain.ReviewItem{}
	for _, it := range items {
		byID[it.Plan.ID] = it
	}
	first, ok := byID[p.ID]
	if !ok {
		t.Fatalf("planned item missing from queue")
	}
	if first.PeerName != "Jordan Reyes" {
		t.Fatalf("expected display name, got %q", first.PeerName)
	}
	if len(first.Comments) != 1 || first.Comments[0] != "confirm the site" {
		t.Fatalf("unexpected comments: %+v", first.Comments)
	}
	if !first.Overdue {
		t.Fatalf("expected overdue flag for past planned item")
	}
	if _, ok := byID[done.ID]; !ok {
		t.Fatalf("completed item missing from queue")
	}
}

func TestReviewQueueDoesNotCrossOrgs(t *testing.T) {
	env := newTestEnv(t)
	create(t, env, peer, "2026-03-03", true)
	foreign := engine.Actor{OrganizationID: "org-2", ID: "peer-9", Role: domain.RolePeer}
	create(t, env, foreign, "2026-03-03", true)

	items, err := env.View.ReviewQueue(env.Ctx, "org-2")
	if err != nil {
		t.Fatalf("review queue: %v", err)
	}
	if len(items) != 1 || items[0].Plan.OrganizationID != "org-2" {
		t.Fatalf("queue crossed organizations: %+v", items)
	}
}
