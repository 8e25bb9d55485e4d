package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/db/dbtest"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
	"github.com/terraconstructs/gatekeeper/internal/repository"
)

func permissionID(t *testing.T, repos repository.Repositories, name string) string {
	t.Helper()
	p, err := repos.Permissions.GetByName(context.Background(), name)
	require.NoError(t, err)
	return p.ID
}

func newUser(t *testing.T, repos repository.Repositories, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, IsActive: true}
	require.NoError(t, repos.Users.Create(context.Background(), u))
	return u
}

func TestBunUserRepository_CreateNormalizesEmail(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.New(db)
	ctx := context.Background()

	u := newUser(t, repos, "  Alice@Example.COM ")
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)

	got, err := repos.Users.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	err = repos.Users.Create(ctx, &models.User{Email: "alice@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestBunUserRepository_NotFound(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.New(db)
	ctx := context.Background()

	_, err := repos.Users.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	_, err = repos.Users.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	err = repos.Users.SetPasswordHash(ctx, "00000000-0000-0000-0000-000000000000", "x")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestBunUserRepository_LoadPrincipal(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.New(db)
	ctx := context.Background()

	editor := &models.Role{Name: "EDITOR"}
	require.NoError(t, repos.Roles.Create(ctx, editor))
	require.NoError(t, repos.Roles.AddPermissions(ctx, editor.ID, []string{
		permissionID(t, repos, auth.RolesGet),
		permissionID(t, repos, auth.RolesGetAll),
	}))
	viewer := &models.Role{Name: "VIEWER"}
	require.NoError(t, repos.Roles.Create(ctx, viewer))
	require.NoError(t, repos.Roles.AddPermissions(ctx, viewer.ID, []string{
		permissionID(t, repos, auth.RolesGet),
	}))

	u := newUser(t, repos, "bob@example.com")
	require.NoError(t, repos.Users.AddRoles(ctx, u.ID, editor.ID, viewer.ID))
	require.NoError(t, repos.Users.AddPermissions(ctx, u.ID, permissionID(t, repos, auth.UsersGet)))

	loaded, err := repos.Users.LoadPrincipal(ctx, "BOB@example.com")
	require.NoError(t, err)
	require.Len(t, loaded.Roles, 2)
	require.Len(t, loaded.Permissions, 1)
	assert.Equal(t, auth.UsersGet, loaded.Permissions[0].Name)

	perRole := map[string]int{}
	for _, r := range loaded.Roles {
		perRole[r.Name] = len(r.Permissions)
	}
	assert.Equal(t, map[string]int{"EDITOR": 2, "VIEWER": 1}, perRole)

	assert.Equal(t,
		[]string{auth.RolesGet, auth.RolesGetAll, auth.UsersGet},
		auth.EffectivePermissions(loaded).Sorted())
}

func TestBunUserRepository_LoadPrincipalWithoutGrants(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.New(db)

	newUser(t, repos, "carol@example.com")
	loaded, err := repos.Users.LoadPrincipal(context.Background(), "carol@example.com")
	require.NoError(t, err)
	assert.Empty(t, loaded.Roles)
	assert.Empty(t, loaded.Permissions)
	assert.Empty(t, auth.EffectivePermissions(loaded))
}

func TestBunUserRepository_RoleAssignment(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.New(db)
	ctx := context.Background()

	user, err := repos.Roles.GetByName(ctx, "USER")
	require.NoError(t, err)
	admin, err := repos.Roles.GetByName(ctx, "ADMIN")
	require.NoError(t, err)

	u := newUser(t, repos, "dave@example.com")
	require.NoError(t, repos.Users.AddRoles(ctx, u.ID, user.ID))
	// Re-adding a held role is ignored.
	require.NoError(t, repos.Users.AddRoles(ctx, u.ID, user.ID, admin.ID))

	n, err := db.NewSelect().Model((*models.UserRole)(nil)).Where("user_id = ?", u.ID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, repos.Users.ReplaceRoles(ctx, u.ID, []string{admin.ID}))
	loaded, err := repos.Users.LoadPrincipal(ctx, u.Email)
	require.NoError(t, err)
	require.Len(t, loaded.Roles, 1)
	assert.Equal(t, "ADMIN", loaded.Roles[0].Name)

	err = repos.Users.AddRoles(ctx, u.ID, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestBunUserRepository_UpdateColumns(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.New(db)
	ctx := context.Background()

	u := newUser(t, repos, "erin@example.com")
	u.FirstName = "Erin"
	u.IsSuperUser = true
	require.NoError(t, repos.Users.Update(ctx, u, "first_name"))

	got, err := repos.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Erin", got.FirstName)
	assert.False(t, got.IsSuperUser, "columns outside the list are untouched")

	at := time.Now().Truncate(time.Second)
	require.NoError(t, repos.Users.UpdateLastLogin(ctx, u.ID, at))
	require.NoError(t, repos.Users.MarkEmailVerified(ctx, u.ID))
	got, err = repos.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, at.Equal(*got.LastLoginAt))
}

func TestBunUserRepository_List(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.New(db)
	ctx := context.Background()

	for _, email := range []string{"zed@example.com", "amy@example.com", "max@example.com"} {
		newUser(t, repos, email)
	}

	all, err := repos.Users.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "amy@example.com", all[0].Email)

	page, err := repos.Users.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "max@example.com", page[0].Email)
}

func TestRepositories_TransactionRollsBack(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := repository.New(tx)
		if err := repos.Users.Create(ctx, &models.User{Email: "frank@example.com"}); err != nil {
			return err
		}
		return repos.Users.Create(ctx, &models.User{Email: "frank@example.com"})
	})
	require.ErrorIs(t, err, auth.ErrConflict)

	_, err = repository.New(db).Users.GetByEmail(ctx, "frank@example.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
