package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

func perm(name string) models.Permission {
	return models.Permission{ID: "p-" + name, Name: name}
}

func editorUser() *models.User {
	return &models.User{
		ID:       "u1",
		Email:    "editor@example.com",
		IsActive: true,
		Roles: []models.Role{
			{ID: "r1", Name: "EDITOR", Permissions: []models.Permission{perm("articles_create"), perm("articles_update")}},
		},
		Permissions: []models.Permission{perm("articles_get")},
	}
}

func TestEffectivePermissions_DirectUnionRole(t *testing.T) {
	set := EffectivePermissions(editorUser())
	assert.Equal(t, []string{"articles_create", "articles_get", "articles_update"}, set.Sorted())
}

func TestEffectivePermissions_OverlapCountsOnce(t *testing.T) {
	u := editorUser()
	u.Permissions = append(u.Permissions, perm("articles_create"))
	u.Roles = append(u.Roles, models.Role{ID: "r2", Name: "WRITER", Permissions: []models.Permission{perm("articles_create")}})

	set := EffectivePermissions(u)
	assert.Len(t, set, 3)
}

func TestPrincipal_CheckScopes(t *testing.T) {
	p := NewPrincipal(editorUser(), nil)

	assert.NoError(t, p.CheckScopes([]string{"articles_create", "articles_get"}))
	assert.NoError(t, p.CheckScopes(nil))

	err := p.CheckScopes([]string{"articles_create", "articles_delete"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForbidden))

	var scopeErr *ScopeError
	require.ErrorAs(t, err, &scopeErr)
	assert.Equal(t, "articles_delete", scopeErr.Scope)
	assert.Equal(t, `Bearer scope="articles_create articles_delete"`, scopeErr.Challenge())
}

func TestPrincipal_SuperUserBypass(t *testing.T) {
	u := &models.User{ID: "root", IsActive: true, IsSuperUser: true}
	p := NewPrincipal(u, nil)

	assert.Empty(t, p.Permissions)
	assert.NoError(t, p.CheckScopes([]string{"anything_delete", "roles_update"}))
}

func TestPrincipalContext(t *testing.T) {
	_, ok := GetPrincipalFromContext(context.Background())
	assert.False(t, ok)

	p := NewPrincipal(editorUser(), nil)
	ctx := SetPrincipalContext(context.Background(), p)
	got, ok := GetPrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, p, got)
}

func TestScopeSet(t *testing.T) {
	a := Scopes("users_get", "", "users_update")
	b := Scopes("users_get", "roles_get")

	assert.True(t, a.Has("users_get"))
	assert.False(t, a.Has(""))
	u := a.Union(b)
	assert.Equal(t, "roles_get users_get users_update", u.String())
	assert.Len(t, a, 2, "union does not mutate the receiver")
	assert.Equal(t, "articles_get_all", PermissionName("articles", "get_all"))
}

func TestChallenge(t *testing.T) {
	assert.Equal(t, "Bearer", Challenge(nil))
	assert.Equal(t, `Bearer scope="users_get"`, Challenge([]string{"users_get"}))
	assert.True(t, errors.Is(ErrInactiveUser, ErrForbidden))
}
