package iam_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/services/iam"
	"github.com/terraconstructs/gatekeeper/internal/telemetry"
)

func TestResolve_RoleDerivedScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editor, err := f.svc.CreateRole(ctx, "editor", "edits roles", f.permissionIDs(t, auth.RolesGet, auth.RolesGetAll))
	require.NoError(t, err)
	f.createUser(t, iam.CreateUserInput{Email: "ed@example.com", RoleIDs: []string{editor.ID}})
	token := f.accessToken(t, "ed@example.com")

	principal, err := f.svc.Resolve(ctx, token, []string{auth.RolesGet, auth.RolesGetAll})
	require.NoError(t, err)
	assert.Equal(t, "ed@example.com", principal.User.Email)
	assert.True(t, principal.Permissions.Has(auth.RolesGetAll))
	assert.False(t, principal.Permissions.Has(auth.UsersGet), "explicit roles replace the default role")

	_, err = f.svc.Resolve(ctx, token, []string{auth.RolesGet, auth.RolesDelete})
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	var scopeErr *auth.ScopeError
	require.True(t, errors.As(err, &scopeErr))
	assert.Equal(t, auth.RolesDelete, scopeErr.Scope)
	assert.Equal(t, `Bearer scope="roles_get roles_delete"`, scopeErr.Challenge())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ResolveTotal.WithLabelValues(telemetry.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ResolveTotal.WithLabelValues(telemetry.OutcomeForbidden)))
}

func TestResolve_UnionOfDirectAndRolePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := f.createUser(t, iam.CreateUserInput{Email: "mixed@example.com"})
	require.NoError(t, f.svc.GrantUserPermissions(ctx, userID, f.permissionIDs(t, auth.PermissionsGetAll)))

	principal, err := f.svc.Resolve(ctx, f.accessToken(t, "mixed@example.com"),
		[]string{auth.UsersGet, auth.UsersUpdate, auth.PermissionsGetAll})
	require.NoError(t, err)
	assert.Equal(t, []string{auth.PermissionsGetAll, auth.UsersGet, auth.UsersUpdate}, principal.Permissions.Sorted())
}

func TestResolve_NoRequiredScopes(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, iam.CreateUserInput{Email: "plain@example.com"})

	principal, err := f.svc.Resolve(context.Background(), f.accessToken(t, "plain@example.com"), nil)
	require.NoError(t, err)
	assert.False(t, principal.User.IsSuperUser)
}

func TestResolve_SuperUserBypassesScopes(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, iam.CreateUserInput{Email: "root@example.com", IsSuperUser: true})

	principal, err := f.svc.Resolve(context.Background(), f.accessToken(t, "root@example.com"),
		[]string{auth.RolesDelete, "widgets_frobnicate"})
	require.NoError(t, err)
	assert.True(t, principal.User.IsSuperUser)
}

func TestResolve_InactiveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := f.createUser(t, iam.CreateUserInput{Email: "gone@example.com", IsSuperUser: true})
	require.NoError(t, f.svc.SetUserActive(ctx, userID, false))

	_, err := f.svc.Resolve(ctx, f.accessToken(t, "gone@example.com"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrInactiveUser)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	assert.NotErrorIs(t, err, auth.ErrUnauthorized)

	require.NoError(t, f.svc.SetUserActive(ctx, userID, true))
	_, err = f.svc.Resolve(ctx, f.accessToken(t, "gone@example.com"), nil)
	require.NoError(t, err)
}

func TestResolve_RejectsTokens(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, iam.CreateUserInput{Email: "tok@example.com"})

	refresh, err := f.codec.IssueToken(auth.Claims{
		TokenType:        auth.TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "tok@example.com"},
	}, time.Hour)
	require.NoError(t, err)

	reset, err := f.codec.IssueToken(auth.Claims{
		TokenType:        auth.TokenTypePasswordReset,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "tok@example.com"},
	}, time.Hour)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":         "not-a-token",
		"refresh token":   refresh,
		"reset token":     reset,
		"unknown subject": f.accessToken(t, "nobody@example.com"),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Resolve(context.Background(), token, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrUnauthorized)
		})
	}
}

func TestResolve_DecodeFailureKeepsCause(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Resolve(context.Background(), "not-a-token", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestResolve_UntypedTokenIsAccess(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, iam.CreateUserInput{Email: "legacy@example.com"})

	token, err := f.codec.IssueToken(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "legacy@example.com"},
	}, time.Minute)
	require.NoError(t, err)

	_, err = f.svc.Resolve(context.Background(), token, []string{auth.UsersGet})
	require.NoError(t, err)
}

func TestResolve_SeesGrantChangesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.svc.CreateRole(ctx, "auditor", "", nil)
	require.NoError(t, err)
	f.createUser(t, iam.CreateUserInput{Email: "aud@example.com", RoleIDs: []string{role.ID}})
	token := f.accessToken(t, "aud@example.com")

	_, err = f.svc.Resolve(ctx, token, []string{auth.UsersGetAll})
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.ReconcileRolePermissions(ctx, role.ID, f.permissionIDs(t, auth.UsersGetAll))
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, token, []string{auth.UsersGetAll})
	require.NoError(t, err)
}
