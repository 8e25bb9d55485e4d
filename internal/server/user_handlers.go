package server

import (
	"net/http"

	"github.com/terraconstructs/gatekeeper/internal/services/iam"
	"github.com/terraconstructs/gatekeeper/internal/services/validation"
)

// ProfileUpdateRequest is the body of PATCH /user. Absent fields are unchanged.
type ProfileUpdateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatar_url"`
}

// HandleMe returns the caller with roles and effective permissions.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toMeResponse(p))
}

// HandleUpdateProfile edits the caller's own profile.
func (h *Handlers) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req ProfileUpdateRequest
	if !h.decode(w, r, validation.SchemaProfileUpdate, &req) {
		return
	}
	user, err := h.iam.UpdateProfile(r.Context(), p.User.ID, iam.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleListUsers pages through every account.
func (h *Handlers) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	users, err := h.iam.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}
