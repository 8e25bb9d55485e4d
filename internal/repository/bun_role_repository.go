package repository

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/db/bunx"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

// ========================================
// Role Repository
// ========================================

// BunRoleRepository implements RoleRepository using Bun ORM
type BunRoleRepository struct {
	db bun.IDB
}

// NewBunRoleRepository creates a new Bun-based role repository
func NewBunRoleRepository(db bun.IDB) RoleRepository {
	return &BunRoleRepository{db: db}
}

// Create inserts a new role
func (r *BunRoleRepository) Create(ctx context.Context, role *models.Role) error {
	if role.ID == "" {
		role.ID = bunx.NewUUIDv7()
	}
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(role).
		Exec(ctx)
	return wrapErr("create role", err)
}

// GetByID retrieves a role by ID
func (r *BunRoleRepository) GetByID(ctx context.Context, id string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("r.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("get role", err)
	}
	return role, nil
}

// GetByName retrieves a role by name
func (r *BunRoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("r.name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("get role by name", err)
	}
	return role, nil
}

// GetWithPermissions retrieves a role and its permissions
func (r *BunRoleRepository) GetWithPermissions(ctx context.Context, id string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Relation("Permissions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("p.name ASC")
		}).
		Where("r.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("get role with permissions", err)
	}
	return role, nil
}

// GetByIDs retrieves the roles whose IDs are listed; missing IDs are skipped
func (r *BunRoleRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var roles []models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Where("r.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("get roles", err)
	}
	return roles, nil
}

// List retrieves all roles
func (r *BunRoleRepository) List(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Order("r.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("list roles", err)
	}
	return roles, nil
}

// Delete deletes a role by ID; grants and assignments cascade
func (r *BunRoleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*models.Role)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrapErr("delete role", err)
	}
	return expectRows("delete role", res)
}

// ========================================
// RolePermission grants
// ========================================

// PermissionIDs returns the IDs of every permission granted to a role
func (r *BunRoleRepository) PermissionIDs(ctx context.Context, roleID string) ([]string, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*models.RolePermission)(nil)).
		Column("permission_id").
		Where("role_id = ?", roleID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, wrapErr("list role permission ids", err)
	}
	return ids, nil
}

// AddPermissions inserts one role_permissions row per permission
func (r *BunRoleRepository) AddPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	rows := make([]models.RolePermission, len(permissionIDs))
	for i, id := range permissionIDs {
		rows[i] = models.RolePermission{RoleID: roleID, PermissionID: id}
	}
	_, err := r.db.NewInsert().
		Model(&rows).
		Exec(ctx)
	return wrapErr("add role permissions", err)
}

// RemovePermissions deletes the role_permissions rows for the given permissions
func (r *BunRoleRepository) RemovePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	_, err := r.db.NewDelete().
		Model((*models.RolePermission)(nil)).
		Where("role_id = ?", roleID).
		Where("permission_id IN (?)", bun.In(permissionIDs)).
		Exec(ctx)
	return wrapErr("remove role permissions", err)
}
