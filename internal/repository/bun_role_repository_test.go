package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/db/dbtest"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
	"github.com/terraconstructs/gatekeeper/internal/repository"
)

func TestBunRoleRepository_Grants(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.New(db)
	ctx := context.Background()

	role := &models.Role{Name: "EDITOR", Description: "edits roles"}
	require.NoError(t, repos.Roles.Create(ctx, role))

	err := repos.Roles.Create(ctx, &models.Role{Name: "EDITOR"})
	assert.ErrorIs(t, err, auth.ErrConflict)

	get := permissionID(t, repos, auth.RolesGet)
	update := permissionID(t, repos, auth.RolesUpdate)
	require.NoError(t, repos.Roles.AddPermissions(ctx, role.ID, []string{get, update}))

	ids, err := repos.Roles.PermissionIDs(ctx, role.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{get, update}, ids)

	require.NoError(t, repos.Roles.RemovePermissions(ctx, role.ID, []string{update}))
	loaded, err := repos.Roles.GetWithPermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Permissions, 1)
	assert.Equal(t, auth.RolesGet, loaded.Permissions[0].Name)

	err = repos.Roles.AddPermissions(ctx, role.ID, []string{"00000000-0000-0000-0000-000000000000"})
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestBunRoleRepository_DeleteCascades(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.New(db)
	ctx := context.Background()

	role := &models.Role{Name: "TEMP"}
	require.NoError(t, repos.Roles.Create(ctx, role))
	require.NoError(t, repos.Roles.AddPermissions(ctx, role.ID, []string{permissionID(t, repos, auth.UsersGet)}))
	u := newUser(t, repos, "temp@example.com")
	require.NoError(t, repos.Users.AddRoles(ctx, u.ID, role.ID))

	require.NoError(t, repos.Roles.Delete(ctx, role.ID))
	assert.ErrorIs(t, repos.Roles.Delete(ctx, role.ID), auth.ErrNotFound)

	n, err := db.NewSelect().Model((*models.RolePermission)(nil)).Where("role_id = ?", role.ID).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = db.NewSelect().Model((*models.UserRole)(nil)).Where("role_id = ?", role.ID).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBunRoleRepository_Lookups(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.New(db)
	ctx := context.Background()

	roles, err := repos.Roles.List(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "ADMIN", roles[0].Name)
	assert.Equal(t, "USER", roles[1].Name)

	found, err := repos.Roles.GetByIDs(ctx, []string{roles[0].ID, "00000000-0000-0000-0000-000000000000"})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	_, err = repos.Roles.GetByName(ctx, "MISSING")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	admin, err := repos.Roles.GetWithPermissions(ctx, roles[0].ID)
	require.NoError(t, err)
	assert.Len(t, admin.Permissions, 20)
}

func TestBunPermissionRepository_Catalog(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.New(db)
	ctx := context.Background()

	cts, err := repos.Permissions.ListWithContentTypes(ctx)
	require.NoError(t, err)
	require.Len(t, cts, 4)
	assert.Equal(t, "content_types", cts[0].Name)
	for _, ct := range cts {
		assert.Len(t, ct.Permissions, 5, ct.Name)
	}

	get, err := repos.Permissions.GetByName(ctx, auth.UsersGet)
	require.NoError(t, err)
	perms, err := repos.Permissions.GetByIDs(ctx, []string{get.ID})
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, auth.UsersGet, perms[0].Name)

	err = repos.Permissions.Create(ctx, &models.Permission{Name: auth.UsersGet, ContentTypeID: get.ContentTypeID})
	assert.ErrorIs(t, err, auth.ErrConflict)
}
