package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testIssuer   = "https://idp.test"
	testClientID = "gatekeeper-client"
)

// staticKeySet verifies signatures against a single in-memory RSA key.
type staticKeySet struct {
	pub *rsa.PublicKey
}

func (k staticKeySet) VerifySignature(_ context.Context, jws *jose.JSONWebSignature) ([]byte, error) {
	return jws.Verify(k.pub)
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims map[string]interface{}) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", "test-key"),
	)
	require.NoError(t, err)

	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	obj, err := signer.Sign(payload)
	require.NoError(t, err)
	token, err := obj.CompactSerialize()
	require.NoError(t, err)
	return token
}

func baseClaims() map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"iss":            testIssuer,
		"aud":            testClientID,
		"sub":            "google-sub-123",
		"iat":            now.Unix(),
		"exp":            now.Add(5 * time.Minute).Unix(),
		"email":          "Carol@Example.com",
		"email_verified": true,
		"given_name":     "Carol",
		"family_name":    "Jones",
		"picture":        "https://img.test/carol.png",
	}
}

func newTestBridge(t *testing.T) (*IdentityBridge, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier := NewOIDCVerifier(testIssuer, testClientID, staticKeySet{pub: &key.PublicKey})
	return NewIdentityBridge(map[string]ProviderVerifier{ProviderGoogle: verifier}, bcrypt.MinCost), key
}

func TestResolveExternalIdentity_Valid(t *testing.T) {
	bridge, key := newTestBridge(t)
	token := signIDToken(t, key, baseClaims())

	draft, link, err := bridge.ResolveExternalIdentity(context.Background(), ProviderGoogle, token)
	require.NoError(t, err)

	assert.Equal(t, "carol@example.com", draft.Email)
	assert.Equal(t, "Carol", draft.FirstName)
	assert.Equal(t, "Jones", draft.LastName)
	assert.True(t, draft.EmailVerified)
	require.NotNil(t, draft.AvatarURL)
	assert.Equal(t, "https://img.test/carol.png", *draft.AvatarURL)
	assert.NotEmpty(t, draft.PasswordHash)
	_, err = bcrypt.Cost([]byte(draft.PasswordHash))
	assert.NoError(t, err, "password hash is a bcrypt hash")

	assert.Equal(t, &AuthProviderDraft{Provider: ProviderGoogle, Subject: "google-sub-123"}, link)

	user := draft.ToUser()
	assert.True(t, user.IsActive)
	assert.False(t, user.IsStaff)
	assert.False(t, user.IsSuperUser)
	require.NotNil(t, user.PasswordHash)
}

func TestResolveExternalIdentity_InvalidProvider(t *testing.T) {
	bridge, key := newTestBridge(t)
	token := signIDToken(t, key, baseClaims())

	for _, name := range []string{"github", ProviderInternal, ""} {
		_, _, err := bridge.ResolveExternalIdentity(context.Background(), name, token)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidProvider), name)
	}
}

func TestResolveExternalIdentity_InvalidAssertion(t *testing.T) {
	bridge, key := newTestBridge(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	mutate := func(f func(map[string]interface{})) map[string]interface{} {
		c := baseClaims()
		f(c)
		return c
	}

	tests := map[string]string{
		"empty":          "",
		"garbage":        "a.b.c",
		"wrong key":      signIDToken(t, otherKey, baseClaims()),
		"wrong audience": signIDToken(t, key, mutate(func(c map[string]interface{}) { c["aud"] = "someone-else" })),
		"wrong issuer":   signIDToken(t, key, mutate(func(c map[string]interface{}) { c["iss"] = "https://evil.test" })),
		"expired": signIDToken(t, key, mutate(func(c map[string]interface{}) {
			c["exp"] = time.Now().Add(-time.Hour).Unix()
		})),
		"missing email": signIDToken(t, key, mutate(func(c map[string]interface{}) { delete(c, "email") })),
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			draft, link, err := bridge.ResolveExternalIdentity(context.Background(), ProviderGoogle, token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidAssertion), err.Error())
			assert.Nil(t, draft)
			assert.Nil(t, link)
		})
	}
}

// stubVerifier returns fixed claims, for exercising profile decoding alone.
type stubVerifier struct {
	claims map[string]interface{}
	err    error
}

func (s stubVerifier) Verify(context.Context, string) (map[string]interface{}, error) {
	return s.claims, s.err
}

func TestResolveExternalIdentity_WeakClaimTypes(t *testing.T) {
	bridge := NewIdentityBridge(map[string]ProviderVerifier{
		"acme": stubVerifier{claims: map[string]interface{}{
			"sub":            "acme-1",
			"email":          "dave@acme.test",
			"email_verified": "true",
			"name":           "Dave van Dyke",
		}},
	}, bcrypt.MinCost)

	draft, link, err := bridge.ResolveExternalIdentity(context.Background(), "acme", "opaque")
	require.NoError(t, err)
	assert.True(t, draft.EmailVerified)
	assert.Equal(t, "Dave", draft.FirstName)
	assert.Equal(t, "van Dyke", draft.LastName)
	assert.Nil(t, draft.AvatarURL)
	assert.Equal(t, "acme-1", link.Subject)
	assert.Equal(t, []string{"acme"}, bridge.Providers())
}

func TestResolveExternalIdentity_ContextCancelled(t *testing.T) {
	bridge := NewIdentityBridge(map[string]ProviderVerifier{
		"acme": stubVerifier{err: context.Canceled},
	}, bcrypt.MinCost)

	_, _, err := bridge.ResolveExternalIdentity(context.Background(), "acme", "opaque")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrInvalidAssertion))
}
