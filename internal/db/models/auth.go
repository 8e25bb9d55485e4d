package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User represents a human principal.
// Email is the identity carried in the token subject. PasswordHash is nil only
// for rows created before a local credential existed.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            string     `bun:"id,pk,type:uuid"`
	Email         string     `bun:"email,notnull,unique"`
	PasswordHash  *string    `bun:"password_hash"`
	Phone         *string    `bun:"phone"`
	FirstName     string     `bun:"first_name"`
	LastName      string     `bun:"last_name"`
	AvatarURL     *string    `bun:"avatar_url"`
	EmailVerified bool       `bun:"email_verified,notnull"`
	PhoneVerified bool       `bun:"phone_verified,notnull"`
	IsActive      bool       `bun:"is_active,notnull"`
	IsStaff       bool       `bun:"is_staff,notnull"`
	IsSuperUser   bool       `bun:"is_super_user,notnull"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	LastLoginAt   *time.Time `bun:"last_login_at"`

	Roles         []Role         `bun:"m2m:user_roles,join:User=Role"`
	Permissions   []Permission   `bun:"m2m:user_permissions,join:User=Permission"`
	AuthProviders []AuthProvider `bun:"rel:has-many,join:id=user_id"`
}

// HasProvider reports whether an AuthProvider with the given name is linked.
// AuthProviders must have been loaded.
func (u *User) HasProvider(name string) bool {
	for _, p := range u.AuthProviders {
		if p.ProviderName == name {
			return true
		}
	}
	return false
}

// AuthProvider links a user to an identity provider account.
// Unique per (user_id, provider_name) and per (provider_name, provider_user_id).
type AuthProvider struct {
	bun.BaseModel `bun:"table:auth_providers,alias:ap"`

	ID             string    `bun:"id,pk,type:uuid"`
	UserID         string    `bun:"user_id,notnull,type:uuid"`
	ProviderName   string    `bun:"provider_name,notnull"`
	ProviderUserID string    `bun:"provider_user_id,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Role is a named bundle of permissions.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID          string    `bun:"id,pk,type:uuid"`
	Name        string    `bun:"name,notnull,unique"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`

	Permissions []Permission `bun:"m2m:role_permissions,join:Role=Permission"`
}

// ContentType is a resource kind that owns the permissions scoped to it.
type ContentType struct {
	bun.BaseModel `bun:"table:content_types,alias:ct"`

	ID        string    `bun:"id,pk,type:uuid"`
	Name      string    `bun:"name,notnull,unique"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`

	Permissions []Permission `bun:"rel:has-many,join:id=content_type_id"`
}

// Permission is a single {resource}_{action} grant.
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	ID            string    `bun:"id,pk,type:uuid"`
	Name          string    `bun:"name,notnull,unique"`
	ContentTypeID string    `bun:"content_type_id,notnull,type:uuid"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`

	ContentType *ContentType `bun:"rel:belongs-to,join:content_type_id=id"`
}

// UserRole joins users and roles.
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`

	UserID string `bun:"user_id,pk,type:uuid"`
	User   *User  `bun:"rel:belongs-to,join:user_id=id"`
	RoleID string `bun:"role_id,pk,type:uuid"`
	Role   *Role  `bun:"rel:belongs-to,join:role_id=id"`
}

// UserPermission is a direct grant of a permission to a user.
type UserPermission struct {
	bun.BaseModel `bun:"table:user_permissions,alias:up"`

	UserID       string      `bun:"user_id,pk,type:uuid"`
	User         *User       `bun:"rel:belongs-to,join:user_id=id"`
	PermissionID string      `bun:"permission_id,pk,type:uuid"`
	Permission   *Permission `bun:"rel:belongs-to,join:permission_id=id"`
}

// RolePermission joins roles and permissions.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`

	RoleID       string      `bun:"role_id,pk,type:uuid"`
	Role         *Role       `bun:"rel:belongs-to,join:role_id=id"`
	PermissionID string      `bun:"permission_id,pk,type:uuid"`
	Permission   *Permission `bun:"rel:belongs-to,join:permission_id=id"`
}

// RevokedToken tracks refresh tokens that were rotated or logged out, keyed by jti.
type RevokedToken struct {
	bun.BaseModel `bun:"table:revoked_tokens,alias:rt"`

	JTI       string    `bun:"jti,pk"`
	Subject   string    `bun:"subject,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	RevokedAt time.Time `bun:"revoked_at,notnull,default:current_timestamp"`
}

// Register registers the m2m join models. bun requires this before any query
// touches an m2m relation.
func Register(db *bun.DB) {
	db.RegisterModel(
		(*UserRole)(nil),
		(*UserPermission)(nil),
		(*RolePermission)(nil),
	)
}
