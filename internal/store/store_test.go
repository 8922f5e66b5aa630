package store_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"servicelog/internal/db"
	"servicelog/internal/domain"
	"servicelog/internal/migrate"
	"servicelog/internal/store"
)

func newTestStore(t *testing.T) (store.Store, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := store.Store{DB: conn}
	ctx := context.Background()
	inTx(t, s, func(tx *sql.Tx) error {
		if err := s.EnsureOrg(ctx, tx, "org-1", "Org One", "UTC", "2026-01-01T00:00:00Z"); err != nil {
			return err
		}
		return s.EnsureOrg(ctx, tx, "org-2", "Org Two", "UTC", "2026-01-01T00:00:00Z")
	})
	return s, ctx
}

func inTx(t *testing.T, s store.Store, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := s.DB.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		t.Fatalf("tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func seedPlan(t *testing.T, s store.Store, id, orgID, createdBy, date string, status domain.Status) domain.ServicePlan {
	t.Helper()
	p := domain.ServicePlan{
		ID:             id,
		OrganizationID: orgID,
		CreatedBy:      createdBy,
		ServiceType:    domain.ServiceIndividual,
		PlannedDate:    date,
		PlannedMinutes: 60,
		Setting:        domain.SettingOutpatient,
		Status:         status,
		CreatedAt:      "2026-03-01T00:00:00Z",
		UpdatedAt:      "2026-03-01T00:00:00Z",
	}
	inTx(t, s, func(tx *sql.Tx) error {
		return s.InsertPlan(context.Background(), tx, p)
	})
	return p
}

func TestGetPlanIsOrgScoped(t *testing.T) {
	s, ctx := newTestStore(t)
	seedPlan(t, s, "p1", "org-1", "peer-1", "2026-03-10", domain.StatusDraft)
	if _, err := s.GetPlan(ctx, "org-1", "p1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := s.GetPlan(ctx, "org-2", "p1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for foreign org, got %v", err)
	}
	if _, err := s.GetPlan(ctx, "org-1", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for missing id, got %v", err)
	}
}

func TestListPlansViewsAndFilters(t *testing.T) {
	s, ctx := newTestStore(t)
	seedPlan(t, s, "p1", "org-1", "peer-1", "2026-03-10", domain.StatusDraft)
	seedPlan(t, s, "p2", "org-1", "peer-1", "2026-03-11", domain.StatusPlanned)
	seedPlan(t, s, "p3", "org-1", "peer-2", "2026-03-12", domain.StatusApproved)
	seedPlan(t, s, "p4", "org-1", "peer-1", "2026-03-09", domain.StatusCompleted)
	seedPlan(t, s, "p5", "org-1", "peer-1", "2026-03-08", domain.StatusVerified)
	seedPlan(t, s, "p6", "org-2", "peer-1", "2026-03-08", domain.StatusPlanned)

	cases := []struct {
		filter store.ListFilter
		want   []string
	}{
		{store.ListFilter{View: store.ViewUpcoming}, []string{"p1", "p2", "p3"}},
		{store.ListFilter{View: store.ViewCompleted}, []string{"p5", "p4"}},
		{store.ListFilter{View: store.ViewReview}, []string{"p4", "p2"}},
		{store.ListFilter{CreatedBy: "peer-2"}, []string{"p3"}},
		{store.ListFilter{Status: domain.StatusPlanned}, []string{"p2"}},
		{store.ListFilter{Limit: 2}, []string{"p5", "p4"}},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
			got, err := s.ListPlans(ctx, "org-1", tc.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d plans, got %d", len(tc.want), len(got))
			}
			for j, p := range got {
				if p.ID != tc.want[j] {
					t.Fatalf("position %d: expected %s, got %s", j, tc.want[j], p.ID)
				}
				if p.OrganizationID != "org-1" {
					t.Fatalf("list crossed organizations: %s", p.ID)
				}
			}
		})
	}
}

func TestSoftDeleteHidesPlan(t *testing.T) {
	s, ctx := newTestStore(t)
	seedPlan(t, s, "p1", "org-1", "peer-1", "2026-03-10", domain.StatusDraft)
	inTx(t, s, func(tx *sql.Tx) error {
		return s.SoftDeletePlan(ctx, tx, "org-1", "p1", "2026-03-11T00:00:00Z")
	})
	if _, err := s.GetPlan(ctx, "org-1", "p1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after soft delete, got %v", err)
	}
	plans, err := s.ListPlans(ctx, "org-1", store.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(plans) != 0 {
		t.Fatalf("soft-deleted plan still listed")
	}
	// deleting again reports not found
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := s.SoftDeletePlan(ctx, tx, "org-1", "p1", "2026-03-12T00:00:00Z"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestUpdatePlanMissingRow(t *testing.T) {
	s, ctx := newTestStore(t)
	p := seedPlan(t, s, "p1", "org-1", "peer-1", "2026-03-10", domain.StatusDraft)
	p.OrganizationID = "org-2"
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := s.UpdatePlan(ctx, tx, p); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found updating across orgs, got %v", err)
	}
}

func TestCountPlansByStatus(t *testing.T) {
	s, ctx := newTestStore(t)
	seedPlan(t, s, "p1", "org-1", "peer-1", "2026-03-10", domain.StatusDraft)
	seedPlan(t, s, "p2", "org-1", "peer-1", "2026-03-11", domain.StatusDraft)
	seedPlan(t, s, "p3", "org-1", "peer-1", "2026-03-12", domain.StatusVerified)
	seedPlan(t, s, "p4", "org-1", "peer-2", "2026-03-12", domain.StatusDraft)

	counts, err := s.CountPlansByStatus(ctx, "org-1", "peer-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[domain.StatusDraft] != 2 || counts[domain.StatusVerified] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if _, ok := counts[domain.StatusPlanned]; ok {
		t.Fatalf("expected no planned bucket")
	}
}

func TestDeliveryFieldsRoundTrip(t *testing.T) {
	s, ctx := newTestStore(t)
	p := seedPlan(t, s, "p1", "org-1", "peer-1", "2026-03-10", domain.StatusPlanned)
	minutes, attendance := 45, 3
	delivered := false
	notes := "participant arrived late"
	completedAt := "2026-03-10T15:00:00Z"
	p.ActualMinutes = &minutes
	p.AttendanceCount = &attendance
	p.DeliveredAsPlan = &delivered
	p.DeviationNotes = &notes
	p.CompletedAt = &completedAt
	p.CompletedBy = &p.CreatedBy
	p.Status = domain.StatusCompleted
	inTx(t, s, func(tx *sql.Tx) error {
		return s.UpdatePlan(ctx, tx, p)
	})
	got, err := s.GetPlan(ctx, "org-1", "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActualMinutes == nil || *got.ActualMinutes != 45 {
		t.Fatalf("actual minutes lost: %+v", got.ActualMinutes)
	}
	if got.DeliveredAsPlan == nil || *got.DeliveredAsPlan {
		t.Fatalf("delivered flag lost")
	}
	if got.DeviationNotes == nil || *got.DeviationNotes != notes {
		t.Fatalf("deviation notes lost")
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status lost: %s", got.Status)
	}
}

func TestAPIKeyMintAndLookup(t *testing.T) {
	s, ctx := newTestStore(t)
	inTx(t, s, func(tx *sql.Tx) error {
		return s.UpsertActor(ctx, tx, domain.Actor{
			ID: "peer-1", OrganizationID: "org-1", DisplayName: "Jordan", Role: domain.RolePeer,
			CreatedAt: "2026-01-01T00:00:00Z",
		})
	})
	plaintext, key, err := s.MintAPIKey(ctx, "org-1", "peer-1", "laptop")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	got, err := s.GetAPIKeyByHash(ctx, store.HashAPIKey(plaintext))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != key.ID || got.ActorID != "peer-1" {
		t.Fatalf("unexpected key: %+v", got)
	}
	if got.KeyHash == plaintext {
		t.Fatalf("plaintext stored")
	}
	if _, _, err := s.MintAPIKey(ctx, "org-1", "ghost", ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown actor, got %v", err)
	}
}
