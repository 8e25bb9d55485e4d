package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/terraconstructs/gatekeeper/internal/config"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
)

// Provider names recognised by the service.
const (
	// ProviderInternal marks accounts created by local email/password signup.
	ProviderInternal = "internal"
	// ProviderGoogle is Google Sign-In.
	ProviderGoogle = "google"
)

// PrincipalDraft is an unsaved user built from a verified external assertion.
type PrincipalDraft struct {
	Email         string
	FirstName     string
	LastName      string
	AvatarURL     *string
	EmailVerified bool
	// PasswordHash is a bcrypt hash of a random password nobody knows.
	PasswordHash string
}

// ToUser converts the draft into an active, non-privileged user row.
func (d *PrincipalDraft) ToUser() *models.User {
	hash := d.PasswordHash
	return &models.User{
		Email:         d.Email,
		PasswordHash:  &hash,
		FirstName:     d.FirstName,
		LastName:      d.LastName,
		AvatarURL:     d.AvatarURL,
		EmailVerified: d.EmailVerified,
		IsActive:      true,
	}
}

// AuthProviderDraft is the unsaved (provider, subject) link for a PrincipalDraft.
type AuthProviderDraft struct {
	Provider string
	Subject  string
}

// ProviderVerifier verifies a provider assertion and returns its raw claims.
type ProviderVerifier interface {
	Verify(ctx context.Context, assertion string) (map[string]interface{}, error)
}

// oidcVerifier checks ID tokens with zitadel's relying party verifier.
type oidcVerifier struct {
	verifier *rp.IDTokenVerifier
}

// NewOIDCVerifier returns a verifier for ID tokens signed by keys from keySet
// and issued by issuer for clientID.
func NewOIDCVerifier(issuer, clientID string, keySet oidc.KeySet, opts ...rp.VerifierOption) ProviderVerifier {
	opts = append([]rp.VerifierOption{rp.WithIssuedAtOffset(30 * time.Second)}, opts...)
	return &oidcVerifier{verifier: rp.NewIDTokenVerifier(issuer, clientID, keySet, opts...)}
}

func (v *oidcVerifier) Verify(ctx context.Context, assertion string) (map[string]interface{}, error) {
	claims, err := rp.VerifyIDToken[*oidc.IDTokenClaims](ctx, assertion, v.verifier)
	if err != nil {
		return nil, err
	}
	raw := make(map[string]interface{}, len(claims.Claims)+1)
	for k, val := range claims.Claims {
		raw[k] = val
	}
	raw["sub"] = claims.GetSubject()
	return raw, nil
}

// IdentityBridge turns provider assertions into drafts. It never writes.
type IdentityBridge struct {
	verifiers  map[string]ProviderVerifier
	bcryptCost int
}

// NewIdentityBridge builds a bridge over explicit verifiers keyed by provider name.
func NewIdentityBridge(verifiers map[string]ProviderVerifier, bcryptCost int) *IdentityBridge {
	copied := make(map[string]ProviderVerifier, len(verifiers))
	for name, v := range verifiers {
		copied[name] = v
	}
	return &IdentityBridge{verifiers: copied, bcryptCost: bcryptCost}
}

// NewIdentityBridgeFromConfig builds remote-JWKS verifiers for each configured
// provider. Providers without a JWKS URL are resolved through OIDC discovery.
func NewIdentityBridgeFromConfig(ctx context.Context, providers []config.ExternalProviderConfig, httpClient *http.Client, bcryptCost int) (*IdentityBridge, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	verifiers := make(map[string]ProviderVerifier, len(providers))
	for _, p := range providers {
		jwksURL := p.JWKSURL
		if jwksURL == "" {
			discovery, err := client.Discover(ctx, p.Issuer, httpClient)
			if err != nil {
				return nil, fmt.Errorf("discover provider %s: %w", p.Name, err)
			}
			jwksURL = discovery.JwksURI
		}
		keySet := rp.NewRemoteKeySet(httpClient, jwksURL)
		verifiers[p.Name] = NewOIDCVerifier(p.Issuer, p.ClientID, keySet)
	}
	return NewIdentityBridge(verifiers, bcryptCost), nil
}

// Providers lists the configured provider names.
func (b *IdentityBridge) Providers() []string {
	names := make([]string, 0, len(b.verifiers))
	for name := range b.verifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveExternalIdentity verifies assertion with the named provider and
// returns an unsaved principal plus its provider link. Fails with
// ErrInvalidProvider for unknown providers and ErrInvalidAssertion when the
// assertion does not verify or lacks a subject or email.
func (b *IdentityBridge) ResolveExternalIdentity(ctx context.Context, provider, assertion string) (*PrincipalDraft, *AuthProviderDraft, error) {
	verifier, ok := b.verifiers[provider]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidProvider, provider)
	}
	if assertion == "" {
		return nil, nil, fmt.Errorf("%w: empty assertion", ErrInvalidAssertion)
	}

	claims, err := verifier.Verify(ctx, assertion)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	profile, err := DecodeProfile(claims)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	length, err := randomLength(10, 20)
	if err != nil {
		return nil, nil, err
	}
	password, err := GenerateRandomPassword(length)
	if err != nil {
		return nil, nil, err
	}
	hash, err := HashPassword(password, b.bcryptCost)
	if err != nil {
		return nil, nil, err
	}

	draft := &PrincipalDraft{
		Email:         profile.Email,
		FirstName:     profile.GivenName,
		LastName:      profile.FamilyName,
		EmailVerified: profile.EmailVerified,
		PasswordHash:  hash,
	}
	if profile.Picture != "" {
		picture := profile.Picture
		draft.AvatarURL = &picture
	}
	return draft, &AuthProviderDraft{Provider: provider, Subject: profile.Subject}, nil
}
