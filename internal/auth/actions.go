package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Permission names follow "{resource}_{action}". These constants cover the
// built-in resources seeded by the catalog migration; feature modules declare
// their own resources through the catalog registry.

// User scopes
const (
	// UsersCreate allows staff to create accounts directly
	UsersCreate = "users_create"

	// UsersGet allows reading the caller's own profile
	UsersGet = "users_get"

	// UsersGetAll allows listing every account
	UsersGetAll = "users_get_all"

	// UsersUpdate allows editing the caller's own profile
	UsersUpdate = "users_update"

	// UsersDelete allows removing accounts
	UsersDelete = "users_delete"
)

// Role scopes
const (
	RolesCreate = "roles_create"
	RolesGet    = "roles_get"
	RolesGetAll = "roles_get_all"
	RolesUpdate = "roles_update"
	RolesDelete = "roles_delete"
)

// Permission scopes
const (
	PermissionsCreate = "permissions_create"
	PermissionsGet    = "permissions_get"
	PermissionsGetAll = "permissions_get_all"
	PermissionsUpdate = "permissions_update"
	PermissionsDelete = "permissions_delete"
)

// Content type scopes
const (
	ContentTypesCreate = "content_types_create"
	ContentTypesGet    = "content_types_get"
	ContentTypesGetAll = "content_types_get_all"
	ContentTypesUpdate = "content_types_update"
	ContentTypesDelete = "content_types_delete"
)

// PermissionName joins a resource and an action into a scope string.
func PermissionName(resource, action string) string {
	return fmt.Sprintf("%s_%s", resource, action)
}

// ScopeSet is an unordered set of permission names.
type ScopeSet map[string]struct{}

// Scopes builds a ScopeSet from names. Empty names are ignored.
func Scopes(names ...string) ScopeSet {
	s := make(ScopeSet, len(names))
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has reports whether name is in the set.
func (s ScopeSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Add inserts names into the set.
func (s ScopeSet) Add(names ...string) {
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
}

// Union returns a new set holding every member of s and others.
func (s ScopeSet) Union(others ...ScopeSet) ScopeSet {
	out := make(ScopeSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	for _, o := range others {
		for k := range o {
			out[k] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members in lexical order.
func (s ScopeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s ScopeSet) String() string {
	return strings.Join(s.Sorted(), " ")
}
