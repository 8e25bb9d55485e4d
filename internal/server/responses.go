package server

import (
	"time"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

// UserResponse represents user data in API responses
type UserResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Phone         *string    `json:"phone,omitempty"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	AvatarURL     *string    `json:"avatar_url,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	PhoneVerified bool       `json:"phone_verified"`
	IsActive      bool       `json:"is_active"`
	IsStaff       bool       `json:"is_staff"`
	IsSuperUser   bool       `json:"is_super_user"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// MeResponse is the current principal with its roles and effective permissions.
type MeResponse struct {
	UserResponse
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// PermissionResponse represents a single catalog entry
type PermissionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoleResponse represents a role with its permissions
type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Permissions []PermissionResponse `json:"permissions,omitempty"`
}

// ContentTypeResponse groups the catalog by resource
type ContentTypeResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Permissions []PermissionResponse `json:"permissions"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Phone:         u.Phone,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		AvatarURL:     u.AvatarURL,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		IsActive:      u.IsActive,
		IsStaff:       u.IsStaff,
		IsSuperUser:   u.IsSuperUser,
		CreatedAt:     u.CreatedAt,
		LastLoginAt:   u.LastLoginAt,
	}
}

func toUserResponses(users []models.User) []UserResponse {
	out := make([]UserResponse, len(users))
	for i := range users {
		out[i] = toUserResponse(&users[i])
	}
	return out
}

func toMeResponse(p *auth.Principal) MeResponse {
	roles := make([]string, len(p.User.Roles))
	for i, r := range p.User.Roles {
		roles[i] = r.Name
	}
	return MeResponse{
		UserResponse: toUserResponse(p.User),
		Roles:        roles,
		Permissions:  p.Permissions.Sorted(),
	}
}

func toPermissionResponses(perms []models.Permission) []PermissionResponse {
	out := make([]PermissionResponse, len(perms))
	for i, p := range perms {
		out[i] = PermissionResponse{ID: p.ID, Name: p.Name}
	}
	return out
}

func toRoleResponse(r *models.Role) RoleResponse {
	return RoleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: toPermissionResponses(r.Permissions),
	}
}

func toContentTypeResponses(cts []models.ContentType) []ContentTypeResponse {
	out := make([]ContentTypeResponse, len(cts))
	for i, ct := range cts {
		out[i] = ContentTypeResponse{
			ID:          ct.ID,
			Name:        ct.Name,
			Permissions: toPermissionResponses(ct.Permissions),
		}
	}
	return out
}
