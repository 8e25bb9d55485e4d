package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terraconstructs/gatekeeper/internal/services/iam"
	"github.com/terraconstructs/gatekeeper/internal/services/validation"
)

// CreateRoleRequest is the body of POST /admin/roles
type CreateRoleRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

// RolePermissionsRequest is the body of PUT /admin/roles/{id}/permissions
type RolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

// CreateUserRequest is the body of POST /admin/users
type CreateUserRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Phone       *string  `json:"phone"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperUser bool     `json:"is_super_user"`
	RoleIDs     []string `json:"role_ids"`
}

// HandleListRoles handles GET /admin/roles
func (h *Handlers) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.iam.ListRoles(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]RoleResponse, len(roles))
	for i := range roles {
		out[i] = toRoleResponse(&roles[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCreateRole handles POST /admin/roles
func (h *Handlers) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !h.decode(w, r, validation.SchemaRoleCreate, &req) {
		return
	}
	role, err := h.iam.CreateRole(r.Context(), req.Name, req.Description, req.PermissionIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoleResponse(role))
}

// HandleGetRole handles GET /admin/roles/{id}
func (h *Handlers) HandleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.iam.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleResponse(role))
}

// HandleSetRolePermissions handles PUT /admin/roles/{id}/permissions.
// The role ends up with exactly the listed permissions.
func (h *Handlers) HandleSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req RolePermissionsRequest
	if !h.decode(w, r, validation.SchemaRolePermissions, &req) {
		return
	}
	result, err := h.iam.ReconcileRolePermissions(r.Context(), chi.URLParam(r, "id"), req.PermissionIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleDeleteRole handles DELETE /admin/roles/{id}
func (h *Handlers) HandleDeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.iam.DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListPermissions handles GET /admin/permissions
func (h *Handlers) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.iam.ListPermissionCatalog(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentTypeResponses(catalog))
}

// HandleCreateUser handles POST /admin/users
func (h *Handlers) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, validation.SchemaUserCreate, &req) {
		return
	}
	user, err := h.iam.CreateUser(r.Context(), iam.CreateUserInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		IsStaff:     req.IsStaff,
		IsSuperUser: req.IsSuperUser,
		RoleIDs:     req.RoleIDs,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}
