package auth

import (
	"context"

	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

// Principal is a resolved, authenticated caller. It is rebuilt from the
// database on every request and never cached.
type Principal struct {
	// User is loaded with Roles (and their Permissions) and direct Permissions.
	User *models.User
	// Permissions is the effective set: direct grants plus role-derived grants.
	Permissions ScopeSet
	// Claims are the decoded access token claims.
	Claims *Claims
}

// NewPrincipal computes the effective permission set of a fully loaded user.
func NewPrincipal(user *models.User, claims *Claims) *Principal {
	return &Principal{
		User:        user,
		Permissions: EffectivePermissions(user),
		Claims:      claims,
	}
}

// EffectivePermissions returns the union of the user's direct permissions and
// the permissions of every role the user holds. Role permissions must already
// be loaded onto user.Roles.
func EffectivePermissions(user *models.User) ScopeSet {
	roles := make([]ScopeSet, len(user.Roles))
	for i, r := range user.Roles {
		roles[i] = permissionScopes(r.Permissions)
	}
	return permissionScopes(user.Permissions).Union(roles...)
}

func permissionScopes(perms []models.Permission) ScopeSet {
	set := make(ScopeSet, len(perms))
	for _, p := range perms {
		set.Add(p.Name)
	}
	return set
}

// CheckScopes verifies the principal holds every required scope. Super users
// pass unconditionally. The first missing scope is reported in a *ScopeError.
func (p *Principal) CheckScopes(required []string) error {
	if p.User.IsSuperUser {
		return nil
	}
	for _, scope := range required {
		if !p.Permissions.Has(scope) {
			return &ScopeError{Scope: scope, Required: required}
		}
	}
	return nil
}

type principalContextKey struct{}

// SetPrincipalContext stores the resolved principal on the context for downstream handlers.
func SetPrincipalContext(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// GetPrincipalFromContext retrieves the resolved principal from the context.
func GetPrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	return principal, ok && principal != nil
}
