package store

import (
	"context"
	"database/sql"

	"servicelog/internal/domain"
)

func (s Store) EnsureOrg(ctx context.Context, tx *sql.Tx, orgID, name, timezone, now string) error {
	if name == "" {
		name = orgID
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO organizations(id, name, timezone, created_at) VALUES (?,?,?,?)`,
		orgID, name, nullable(timezone), now)
	return err
}

func (s Store) GetOrg(ctx context.Context, orgID string) (domain.Organization, error) {
	var o domain.Organization
	var tz sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, timezone, created_at FROM organizations WHERE id=?`, orgID).
		Scan(&o.ID, &o.Name, &tz, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if tz.Valid {
		o.Timezone = tz.String
	}
	return o, err
}

func (s Store) UpsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO actors(id, org_id, display_name, role, created_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, role=excluded.role`,
		a.ID, a.OrganizationID, nullable(a.DisplayName), string(a.Role), a.CreatedAt)
	return err
}

func (s Store) GetActor(ctx context.Context, orgID, actorID string) (domain.Actor, error) {
	var a domain.Actor
	var name sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT id, org_id, display_name, role, created_at FROM actors WHERE id=? AND org_id=?`, actorID, orgID).
		Scan(&a.ID, &a.OrganizationID, &name, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if name.Valid {
		a.DisplayName = name.String
	}
	return a, err
}

// ActorNames returns display names for an organization's actors, keyed by id.
// Actors without a display name fall back to their id.
func (s Store) ActorNames(ctx context.Context, orgID string) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, COALESCE(display_name, id) FROM actors WHERE org_id=?`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]string{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		res[id] = name
	}
	return res, rows.Err()
}

func (s Store) ListActors(ctx context.Context, orgID string) ([]domain.Actor, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, org_id, display_name, role, created_at FROM actors WHERE org_id=? ORDER BY created_at ASC, id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		var name sql.NullString
		if err := rows.Scan(&a.ID, &a.OrganizationID, &name, &a.Role, &a.CreatedAt); err != nil {
			return nil, err
		}
		if name.Valid {
			a.DisplayName = name.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
