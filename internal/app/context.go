package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"servicelog/internal/config"
	"servicelog/internal/domain"
	"servicelog/internal/store"
)

// ResolveOrg picks the active organization and makes sure it exists in the
// database, seeding it from servicelog.yml when present. Overrides win over
// the workspace config.
func ResolveOrg(ctx context.Context, workspace, orgOverride string, s store.Store) (string, *config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	orgID := orgOverride
	if orgID == "" && cfg != nil {
		orgID = cfg.Organization.ID
	}
	if orgID == "" {
		return "", nil, fmt.Errorf("organization not specified; use --org or add servicelog.yml")
	}
	if cfg == nil {
		cfg = config.Default(orgID)
	}
	if _, err := s.GetOrg(ctx, orgID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", nil, err
		}
		if err := createOrg(ctx, s, orgID, cfg); err != nil {
			return "", nil, err
		}
	}
	cfg.Organization.ID = orgID
	return orgID, cfg, nil
}

func createOrg(ctx context.Context, s store.Store, orgID string, cfg *config.Config) error {
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.EnsureOrg(ctx, tx, orgID, cfg.Organization.Name, cfg.Organization.Timezone, now); err != nil {
		return fmt.Errorf("ensure org: %w", err)
	}
	return tx.Commit()
}

// EnsureMember registers or updates an actor within an organization.
func EnsureMember(ctx context.Context, s store.Store, orgID, actorID, displayName string, role domain.Role) error {
	if actorID == "" {
		return fmt.Errorf("actor id required")
	}
	if !domain.ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.UpsertActor(ctx, tx, domain.Actor{
		ID:             actorID,
		OrganizationID: orgID,
		DisplayName:    displayName,
		Role:           role,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}
	return tx.Commit()
}
