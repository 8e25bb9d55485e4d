package iam

import (
	"context"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

// Service provides all identity and access management operations.
type Service interface {
	// =========================================================================
	// Identity Resolution (Request Path)
	// =========================================================================

	// Resolve decodes an access token, loads the principal with direct and
	// role-derived permissions, and checks requiredScopes against the union.
	//
	// Returns:
	//   - auth.ErrUnauthorized: undecodable token, wrong token type, unknown subject
	//   - auth.ErrInactiveUser (wraps auth.ErrForbidden): deactivated principal
	//   - *auth.ScopeError (wraps auth.ErrForbidden): a required scope is missing
	//
	// Super users skip the scope check.
	Resolve(ctx context.Context, token string, requiredScopes []string) (*auth.Principal, error)

	// =========================================================================
	// Accounts
	// =========================================================================

	// Signup registers a local email/password account. An account created
	// earlier through an external provider is reused and gains a password;
	// an account that already signed up locally fails with auth.ErrConflict.
	// A confirmation mail is sent after commit when the email is unverified.
	Signup(ctx context.Context, in SignupInput) (*models.User, error)

	// SignupExternal verifies a provider assertion and registers or links the
	// account. Linking the same provider twice fails with auth.ErrConflict.
	SignupExternal(ctx context.Context, provider, assertion string) (*models.User, error)

	// ExchangeExternal verifies a provider assertion for an account already
	// linked to that provider and issues a token pair.
	ExchangeExternal(ctx context.Context, provider, assertion string) (*TokenPair, error)

	// Login checks a local email/password and issues a token pair.
	Login(ctx context.Context, email, password string) (*TokenPair, error)

	// RefreshTokens rotates a refresh token. Each refresh token is single-use.
	RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error)

	// Logout revokes a refresh token. Revoking twice is not an error.
	Logout(ctx context.Context, refreshToken string) error

	// ChangePassword replaces the password of user after checking previous.
	// A wrong previous password is auth.ErrBadRequest.
	ChangePassword(ctx context.Context, user *models.User, previous, next string) error

	// RequestEmailVerification re-sends the confirmation mail.
	RequestEmailVerification(ctx context.Context, user *models.User) error

	// ConfirmEmail consumes an email verification token.
	ConfirmEmail(ctx context.Context, token string) (*models.User, error)

	// RequestPasswordReset mails a reset link. Unknown addresses are ignored
	// silently so the endpoint does not reveal which emails are registered.
	RequestPasswordReset(ctx context.Context, email string) error

	// ResetPassword consumes a single-use reset token and sets a new password.
	ResetPassword(ctx context.Context, token, newPassword string) error

	// UpdateProfile applies the non-nil fields of in to the user.
	UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*models.User, error)

	// ListUsers pages through users ordered by email.
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)

	// =========================================================================
	// Administration
	// =========================================================================

	// CreateRole creates a role with an initial permission set. The name is
	// stored upper-case; duplicates fail with auth.ErrConflict and unknown
	// permission IDs with auth.ErrNotFound.
	CreateRole(ctx context.Context, name, description string, permissionIDs []string) (*models.Role, error)

	// GetRole returns a role with its permissions.
	GetRole(ctx context.Context, roleID string) (*models.Role, error)

	// GetRoleByName looks a role up by its (case-insensitive) name.
	GetRoleByName(ctx context.Context, name string) (*models.Role, error)

	// ListRoles returns every role ordered by name.
	ListRoles(ctx context.Context) ([]models.Role, error)

	// DeleteRole removes a role. Its grants and assignments cascade.
	DeleteRole(ctx context.Context, roleID string) error

	// ReconcileRolePermissions makes the role's permission set equal to
	// desiredPermissionIDs with the minimal number of inserts and deletes, in
	// a single transaction. Unknown permission IDs fail before any write.
	ReconcileRolePermissions(ctx context.Context, roleID string, desiredPermissionIDs []string) (*ReconcileResult, error)

	// ListPermissionCatalog returns every content type with its permissions.
	ListPermissionCatalog(ctx context.Context) ([]models.ContentType, error)

	// CreateUser is the admin add-user operation.
	CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error)

	// AssignUserRoles adds roles to a user; roles already held are kept.
	AssignUserRoles(ctx context.Context, userID string, roleIDs []string) error

	// GrantUserPermissions adds direct permission grants to a user.
	GrantUserPermissions(ctx context.Context, userID string, permissionIDs []string) error

	// SetUserActive activates or deactivates a user. Users are never deleted.
	SetUserActive(ctx context.Context, userID string, active bool) error

	// GetUserByEmail looks a user up by normalized email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// PurgeRevokedTokens drops revocation records of tokens that have expired
	// and returns how many were removed.
	PurgeRevokedTokens(ctx context.Context) (int64, error)
}

// SignupInput carries a local signup request.
type SignupInput struct {
	Email     string
	Password  string
	Phone     *string
	FirstName string
	LastName  string
}

// CreateUserInput carries an admin add-user request. When RoleIDs is empty
// the configured default role is assigned.
type CreateUserInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Phone       *string
	IsStaff     bool
	IsSuperUser bool
	RoleIDs     []string
}

// ProfileUpdate holds the self-service editable fields. Nil means unchanged.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	AvatarURL *string
}

// TokenPair is returned by every login flow.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ReconcileResult reports the permission IDs written by a reconciliation.
type ReconcileResult struct {
	RoleID  string   `json:"role_id"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// Writes is the number of role_permissions rows inserted or deleted.
func (r *ReconcileResult) Writes() int {
	return len(r.Added) + len(r.Removed)
}
