package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

// fakeResolver grants the scopes listed for each token.
type fakeResolver struct {
	users  map[string]*models.User
	grants map[string]auth.ScopeSet
	err    error
	seen   []string
}

func (f *fakeResolver) Resolve(_ context.Context, token string, required []string) (*auth.Principal, error) {
	f.seen = required
	if f.err != nil {
		return nil, f.err
	}
	user, ok := f.users[token]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	p := &auth.Principal{User: user, Permissions: f.grants[token]}
	if err := p.CheckScopes(required); err != nil {
		return nil, err
	}
	return p, nil
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		users: map[string]*models.User{
			"editor": {ID: "u-editor", Email: "ed@example.com", IsActive: true},
			"staff":  {ID: "u-staff", Email: "st@example.com", IsActive: true, IsStaff: true},
			"root":   {ID: "u-root", Email: "root@example.com", IsActive: true, IsSuperUser: true},
		},
		grants: map[string]auth.ScopeSet{
			"editor": auth.Scopes(auth.RolesGet, auth.RolesGetAll),
			"staff":  auth.Scopes(auth.RolesGetAll),
		},
	}
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, token string) (*httptest.ResponseRecorder, *auth.Principal) {
	t.Helper()
	var got *auth.Principal
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.GetPrincipalFromContext(r.Context())
		require.True(t, ok)
		got = p
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/roles", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}

func TestGate_Require(t *testing.T) {
	resolver := newFakeResolver()
	gate := NewGate(resolver, nil)

	rec, principal := serve(t, gate.Require(auth.RolesGet, auth.RolesGetAll), "editor")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, principal)
	assert.Equal(t, "u-editor", principal.User.ID)
	assert.Equal(t, []string{auth.RolesGet, auth.RolesGetAll}, resolver.seen)

	rec, _ = serve(t, gate.Require(auth.RolesGet, auth.RolesDelete), "editor")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, `Bearer scope="roles_get roles_delete"`, rec.Header().Get("WWW-Authenticate"))
	assert.Contains(t, detail(t, rec), "not enough permissions")
}

func TestGate_Unauthenticated(t *testing.T) {
	gate := NewGate(newFakeResolver(), nil)

	rec, _ := serve(t, gate.Require(), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec, _ = serve(t, gate.Require(), "stranger")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "could not validate credentials", detail(t, rec))
}

func TestGate_InactiveIsForbidden(t *testing.T) {
	resolver := newFakeResolver()
	resolver.err = auth.ErrInactiveUser
	gate := NewGate(resolver, nil)

	rec, _ := serve(t, gate.Require(), "editor")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestGate_InternalErrorIsOpaque(t *testing.T) {
	resolver := newFakeResolver()
	resolver.err = errors.New("connection reset by peer")
	gate := NewGate(resolver, nil)

	rec, _ := serve(t, gate.Require(), "editor")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", detail(t, rec))
}

func TestGate_RequireStaff(t *testing.T) {
	gate := NewGate(newFakeResolver(), nil)

	rec, _ := serve(t, gate.RequireStaff(auth.RolesGetAll), "editor")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, detail(t, rec), "staff access required")

	rec, _ = serve(t, gate.RequireStaff(auth.RolesGetAll), "staff")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = serve(t, gate.RequireStaff(auth.RolesDelete), "root")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := map[error]int{
		auth.ErrUnauthorized:                            http.StatusUnauthorized,
		auth.ErrInvalidToken:                            http.StatusUnauthorized,
		auth.ErrInactiveUser:                            http.StatusForbidden,
		&auth.ScopeError{Scope: auth.RolesGet}:          http.StatusForbidden,
		auth.ErrConflict:                                http.StatusConflict,
		auth.ErrNotFound:                                http.StatusNotFound,
		auth.ErrBadRequest:                              http.StatusBadRequest,
		auth.ErrInvalidProvider:                         http.StatusBadRequest,
		auth.ErrInvalidAssertion:                        http.StatusBadRequest,
		auth.ErrInternalInconsistency:                   http.StatusInternalServerError,
		errors.New("boom"):                              http.StatusInternalServerError,
	}
	for err, want := range tests {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}
