package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/gatekeeper/internal/auth"
)

func newValidator(t *testing.T) *SchemaValidator {
	t.Helper()
	v, err := NewSchemaValidator(32)
	require.NoError(t, err)
	return v
}

func TestPreloadCompilesEverySchema(t *testing.T) {
	v := newValidator(t)
	require.NoError(t, v.Preload())
	assert.Equal(t, 11, v.schemaCache.Len())
}

func TestValidate(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name   string
		schema string
		body   string
		valid  bool
	}{
		{"signup ok", SchemaSignup, `{"email":"a@example.com","password":"pw"}`, true},
		{"signup with profile", SchemaSignup, `{"email":"a@example.com","password":"pw","first_name":"A","phone":null}`, true},
		{"signup missing password", SchemaSignup, `{"email":"a@example.com"}`, false},
		{"signup unknown field", SchemaSignup, `{"email":"a@example.com","password":"pw","is_super_user":true}`, false},
		{"signup wrong type", SchemaSignup, `{"email":42,"password":"pw"}`, false},
		{"login by username", SchemaLogin, `{"username":"a@example.com","password":"pw"}`, true},
		{"login without identity", SchemaLogin, `{"password":"pw"}`, false},
		{"role permissions empty list", SchemaRolePermissions, `{"permission_ids":[]}`, true},
		{"role permissions missing", SchemaRolePermissions, `{}`, false},
		{"role permissions not strings", SchemaRolePermissions, `{"permission_ids":[1,2]}`, false},
		{"profile update empty", SchemaProfileUpdate, `{}`, false},
		{"profile update one field", SchemaProfileUpdate, `{"first_name":"Zed"}`, true},
		{"malformed json", SchemaRefreshToken, `{"refresh_token":`, false},
		{"empty body", SchemaRefreshToken, ``, false},
		{"not an object", SchemaRefreshToken, `"token"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.schema, []byte(tt.body))
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrBadRequest)
		})
	}
}

func TestValidate_ReportsPath(t *testing.T) {
	v := newValidator(t)

	err := v.Validate(SchemaUserCreate, []byte(`{"email":"a@example.com","password":"pw","is_staff":"yes"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.is_staff")
}

func TestValidateDocument_Form(t *testing.T) {
	v := newValidator(t)

	assert.NoError(t, v.ValidateDocument(SchemaLogin, map[string]any{"username": "a@example.com", "password": "pw"}))
	assert.ErrorIs(t, v.ValidateDocument(SchemaLogin, map[string]any{"username": "a@example.com"}), auth.ErrBadRequest)
}

func TestUnknownSchema(t *testing.T) {
	v := newValidator(t)

	err := v.Validate("nope", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownSchema)
	assert.NotErrorIs(t, err, auth.ErrBadRequest)
}
