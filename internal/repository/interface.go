package repository

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

// UserRepository exposes persistence operations for users and their direct grants.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByEmailWithProviders also loads AuthProviders.
	GetByEmailWithProviders(ctx context.Context, email string) (*models.User, error)

	// LoadPrincipal loads a user with roles, role permissions and direct
	// permissions in a bounded number of queries.
	LoadPrincipal(ctx context.Context, email string) (*models.User, error)

	// Update writes the named columns (all columns when none are given).
	Update(ctx context.Context, user *models.User, columns ...string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetPasswordHash(ctx context.Context, id string, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]models.User, error)

	AddRoles(ctx context.Context, userID string, roleIDs ...string) error
	ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error
	AddPermissions(ctx context.Context, userID string, permissionIDs ...string) error
}

// AuthProviderRepository exposes persistence operations for external identity links.
type AuthProviderRepository interface {
	Create(ctx context.Context, provider *models.AuthProvider) error
	GetByProviderSubject(ctx context.Context, providerName, subject string) (*models.AuthProvider, error)
	ListByUser(ctx context.Context, userID string) ([]models.AuthProvider, error)
}

// RoleRepository exposes persistence operations for roles and role grants.
type RoleRepository interface {
	Create(ctx context.Context, role *models.Role) error
	GetByID(ctx context.Context, id string) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	GetWithPermissions(ctx context.Context, id string) (*models.Role, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Role, error)
	List(ctx context.Context) ([]models.Role, error)
	Delete(ctx context.Context, id string) error

	PermissionIDs(ctx context.Context, roleID string) ([]string, error)
	AddPermissions(ctx context.Context, roleID string, permissionIDs []string) error
	RemovePermissions(ctx context.Context, roleID string, permissionIDs []string) error
}

// PermissionRepository exposes persistence operations for the permission catalog.
type PermissionRepository interface {
	CreateContentType(ctx context.Context, ct *models.ContentType) error
	GetContentTypeByName(ctx context.Context, name string) (*models.ContentType, error)
	DeleteContentType(ctx context.Context, id string) error
	CountByContentType(ctx context.Context, contentTypeID string) (int, error)

	Create(ctx context.Context, permission *models.Permission) error
	GetByName(ctx context.Context, name string) (*models.Permission, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Permission, error)
	DeleteByNames(ctx context.Context, names []string) (int64, error)

	// ListWithContentTypes returns every content type with its permissions.
	ListWithContentTypes(ctx context.Context) ([]models.ContentType, error)
}

// RevokedTokenRepository tracks rotated and logged-out refresh tokens.
type RevokedTokenRepository interface {
	Create(ctx context.Context, token *models.RevokedToken) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Repositories bundles every repository over one connection or transaction.
type Repositories struct {
	Users         UserRepository
	AuthProviders AuthProviderRepository
	Roles         RoleRepository
	Permissions   PermissionRepository
	RevokedTokens RevokedTokenRepository
}

// New builds repositories over db, which may be a *bun.DB or a bun.Tx.
func New(db bun.IDB) Repositories {
	return Repositories{
		Users:         NewBunUserRepository(db),
		AuthProviders: NewBunAuthProviderRepository(db),
		Roles:         NewBunRoleRepository(db),
		Permissions:   NewBunPermissionRepository(db),
		RevokedTokens: NewBunRevokedTokenRepository(db),
	}
}
