package server

import (
	"mime"
	"net/http"

	"github.com/terraconstructs/gatekeeper/internal/services/iam"
	"github.com/terraconstructs/gatekeeper/internal/services/validation"
)

// SignupRequest is the body of POST /auth/signup
type SignupRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Phone     *string `json:"phone"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
}

// LoginRequest is the JSON body of POST /auth/token. Username is accepted as
// an alias of Email for OAuth2 password-grant clients.
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ExternalRequest carries a provider assertion such as a Google ID token
type ExternalRequest struct {
	Provider  string `json:"provider"`
	Assertion string `json:"assertion"`
}

// PasswordChangeRequest is the body of POST /auth/password/change
type PasswordChangeRequest struct {
	PreviousPassword string `json:"previous_password"`
	NewPassword      string `json:"new_password"`
}

// PasswordResetRequest is the body of POST /auth/password/reset
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest is the body of POST /auth/password/reset/confirm
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// HandleSignup registers a local account.
func (h *Handlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, validation.SchemaSignup, &req) {
		return
	}
	user, err := h.iam.Signup(r.Context(), iam.SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		Phone:     req.Phone,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// HandleToken exchanges email and password for a token pair. Both JSON and
// form-encoded bodies are accepted.
func (h *Handlers) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			h.writeError(w, r, badRequest("malformed form body"))
			return
		}
		doc := map[string]any{}
		for _, key := range []string{"email", "username", "password"} {
			if r.PostForm.Has(key) {
				doc[key] = r.PostForm.Get(key)
			}
		}
		if err := h.validator.ValidateDocument(validation.SchemaLogin, doc); err != nil {
			h.writeError(w, r, err)
			return
		}
		req.Email = r.PostForm.Get("email")
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if !h.decode(w, r, validation.SchemaLogin, &req) {
		return
	}

	email := req.Email
	if email == "" {
		email = req.Username
	}
	pair, err := h.iam.Login(r.Context(), email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleRefresh rotates a refresh token.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, validation.SchemaRefreshToken, &req) {
		return
	}
	pair, err := h.iam.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleLogout revokes a refresh token.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, validation.SchemaRefreshToken, &req) {
		return
	}
	if err := h.iam.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleExternalSignup registers or links an account from a provider assertion.
func (h *Handlers) HandleExternalSignup(w http.ResponseWriter, r *http.Request) {
	var req ExternalRequest
	if !h.decode(w, r, validation.SchemaExternalAssertion, &req) {
		return
	}
	user, err := h.iam.SignupExternal(r.Context(), req.Provider, req.Assertion)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// HandleExternalToken exchanges a provider assertion for a token pair.
func (h *Handlers) HandleExternalToken(w http.ResponseWriter, r *http.Request) {
	var req ExternalRequest
	if !h.decode(w, r, validation.SchemaExternalAssertion, &req) {
		return
	}
	pair, err := h.iam.ExchangeExternal(r.Context(), req.Provider, req.Assertion)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandlePasswordChange replaces the caller's password.
func (h *Handlers) HandlePasswordChange(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req PasswordChangeRequest
	if !h.decode(w, r, validation.SchemaPasswordChange, &req) {
		return
	}
	if err := h.iam.ChangePassword(r.Context(), p.User, req.PreviousPassword, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePasswordReset mails a reset link. The reply never reveals whether
// the address is registered.
func (h *Handlers) HandlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !h.decode(w, r, validation.SchemaPasswordReset, &req) {
		return
	}
	if err := h.iam.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandlePasswordResetConfirm sets a new password from a reset token.
func (h *Handlers) HandlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if !h.decode(w, r, validation.SchemaPasswordResetConfirm, &req) {
		return
	}
	if err := h.iam.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEmailConfirm consumes the token from a confirmation link.
func (h *Handlers) HandleEmailConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.writeError(w, r, badRequest("token is required"))
		return
	}
	user, err := h.iam.ConfirmEmail(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleEmailVerify re-sends the caller's confirmation mail.
func (h *Handlers) HandleEmailVerify(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.iam.RequestEmailVerification(r.Context(), p.User); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func isForm(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}
