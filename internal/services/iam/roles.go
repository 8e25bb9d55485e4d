package iam

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
	"github.com/terraconstructs/gatekeeper/internal/repository"
	"github.com/terraconstructs/gatekeeper/internal/telemetry"
)

// ReconcileRolePermissions implements Service.
func (s *iamService) ReconcileRolePermissions(ctx context.Context, roleID string, desiredPermissionIDs []string) (*ReconcileResult, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.ReconcileRolePermissions",
		attribute.String(telemetry.AttrRoleID, roleID),
	)
	defer span.End()

	desired := uniqueSorted(desiredPermissionIDs)
	result := &ReconcileResult{RoleID: roleID, Added: []string{}, Removed: []string{}}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := repository.New(tx)

		if _, err := repos.Roles.GetByID(ctx, roleID); err != nil {
			return err
		}
		current, err := repos.Roles.PermissionIDs(ctx, roleID)
		if err != nil {
			return err
		}

		toAdd, toRemove := diffIDs(desired, current)
		if len(toAdd) == 0 && len(toRemove) == 0 {
			return nil
		}
		// Existing grants reference real permissions through the foreign
		// key, so only additions need checking.
		if err := ensurePermissions(ctx, repos, toAdd); err != nil {
			return err
		}
		if err := repos.Roles.RemovePermissions(ctx, roleID, toRemove); err != nil {
			return err
		}
		if err := repos.Roles.AddPermissions(ctx, roleID, toAdd); err != nil {
			return err
		}
		result.Added, result.Removed = toAdd, toRemove
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("reconcile role %s: %w", roleID, err)
	}

	span.SetAttributes(
		attribute.Int(telemetry.AttrPermissionsAdded, len(result.Added)),
		attribute.Int(telemetry.AttrPermissionsRemoved, len(result.Removed)),
	)
	s.metrics.ReconcileWrites.WithLabelValues("insert").Add(float64(len(result.Added)))
	s.metrics.ReconcileWrites.WithLabelValues("delete").Add(float64(len(result.Removed)))
	s.log.WithFields(logrus.Fields{
		"role_id": roleID,
		"added":   len(result.Added),
		"removed": len(result.Removed),
	}).Info("role permissions reconciled")
	return result, nil
}

// diffIDs returns desired − current and current − desired, both sorted.
func diffIDs(desired, current []string) (toAdd, toRemove []string) {
	toAdd, toRemove = []string{}, []string{}
	have := make(map[string]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		want[id] = struct{}{}
		if _, ok := have[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	for _, id := range current {
		if _, ok := want[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)
	return toAdd, toRemove
}

// ensurePermissions fails with auth.ErrNotFound naming the first unknown ID.
func ensurePermissions(ctx context.Context, repos repository.Repositories, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := repos.Permissions.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(found))
	for _, p := range found {
		known[p.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: permission %s", auth.ErrNotFound, id)
		}
	}
	return nil
}

// ensureRoles fails with auth.ErrNotFound naming the first unknown ID.
func ensureRoles(ctx context.Context, repos repository.Repositories, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := repos.Roles.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(found))
	for _, r := range found {
		known[r.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
		}
	}
	return nil
}

// CreateRole implements Service.
func (s *iamService) CreateRole(ctx context.Context, name, description string, permissionIDs []string) (*models.Role, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", auth.ErrBadRequest)
	}
	ids := uniqueSorted(permissionIDs)

	role := &models.Role{Name: name, Description: description}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := repository.New(tx)
		if err := ensurePermissions(ctx, repos, ids); err != nil {
			return err
		}
		if err := repos.Roles.Create(ctx, role); err != nil {
			return err
		}
		return repos.Roles.AddPermissions(ctx, role.ID, ids)
	})
	if err != nil {
		return nil, fmt.Errorf("create role %s: %w", name, err)
	}

	s.log.WithFields(logrus.Fields{
		"role_id":     role.ID,
		"role":        role.Name,
		"permissions": len(ids),
	}).Info("role created")
	return s.repos.Roles.GetWithPermissions(ctx, role.ID)
}

// GetRole implements Service.
func (s *iamService) GetRole(ctx context.Context, roleID string) (*models.Role, error) {
	return s.repos.Roles.GetWithPermissions(ctx, roleID)
}

// GetRoleByName implements Service.
func (s *iamService) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	return s.repos.Roles.GetByName(ctx, strings.ToUpper(strings.TrimSpace(name)))
}

// ListRoles implements Service.
func (s *iamService) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.repos.Roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// DeleteRole implements Service.
func (s *iamService) DeleteRole(ctx context.Context, roleID string) error {
	if err := s.repos.Roles.Delete(ctx, roleID); err != nil {
		return err
	}
	s.log.WithField("role_id", roleID).Info("role deleted")
	return nil
}

// ListPermissionCatalog implements Service.
func (s *iamService) ListPermissionCatalog(ctx context.Context) ([]models.ContentType, error) {
	return s.repos.Permissions.ListWithContentTypes(ctx)
}
