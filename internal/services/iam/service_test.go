package iam_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/config"
	"github.com/terraconstructs/gatekeeper/internal/db/dbtest"
	"github.com/terraconstructs/gatekeeper/internal/repository"
	"github.com/terraconstructs/gatekeeper/internal/services/iam"
	"github.com/terraconstructs/gatekeeper/internal/telemetry"
)

const testPublicURL = "http://gatekeeper.test"

// captureMailer records every link it is asked to deliver.
type captureMailer struct {
	mu     sync.Mutex
	verify []string
	reset  []string
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, _ string, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify = append(m.verify, link)
	return nil
}

func (m *captureMailer) SendPasswordResetEmail(_ context.Context, _ string, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset = append(m.reset, link)
	return nil
}

func (m *captureMailer) lastVerifyToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.verify, "no verification mail sent")
	return tokenFromLink(t, m.verify[len(m.verify)-1])
}

func (m *captureMailer) lastResetToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.reset, "no reset mail sent")
	return tokenFromLink(t, m.reset[len(m.reset)-1])
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

// stubBridge answers every assertion with a fixed external identity.
type stubBridge struct {
	identities map[string]stubIdentity
}

type stubIdentity struct {
	provider string
	subject  string
	email    string
	verified bool
}

func newStubBridge() *stubBridge {
	return &stubBridge{identities: map[string]stubIdentity{}}
}

func (b *stubBridge) add(assertion string, id stubIdentity) {
	b.identities[assertion] = id
}

func (b *stubBridge) ResolveExternalIdentity(_ context.Context, provider, assertion string) (*auth.PrincipalDraft, *auth.AuthProviderDraft, error) {
	if provider != auth.ProviderGoogle {
		return nil, nil, auth.ErrInvalidProvider
	}
	id, ok := b.identities[assertion]
	if !ok || id.provider != provider {
		return nil, nil, auth.ErrInvalidAssertion
	}
	return &auth.PrincipalDraft{
			Email:         id.email,
			FirstName:     "External",
			EmailVerified: id.verified,
			PasswordHash:  "$2a$04$unusableunusableunusableunusableunusableunusableunusa",
		}, &auth.AuthProviderDraft{
			Provider: id.provider,
			Subject:  id.subject,
		}, nil
}

type fixture struct {
	db      *bun.DB
	svc     iam.Service
	repos   repository.Repositories
	codec   *auth.TokenCodec
	mailer  *captureMailer
	bridge  *stubBridge
	metrics *telemetry.Metrics
	cfg     *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		PublicURL: testPublicURL,
		JWT: config.JWTConfig{
			SecretKey:            "iam-test-secret",
			Algorithm:            "HS256",
			Issuer:               "gatekeeper-test",
			AccessTokenTTL:       time.Minute,
			RefreshTokenTTL:      time.Hour,
			VerificationTokenTTL: time.Hour,
		},
		Security: config.SecurityConfig{
			BcryptCost:  4,
			DefaultRole: "USER",
		},
	}
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	db := dbtest.Open(t)
	codec, err := auth.NewTokenCodec(cfg.JWT)
	require.NoError(t, err)

	f := &fixture{
		db:      db,
		repos:   repository.New(db),
		codec:   codec,
		mailer:  &captureMailer{},
		bridge:  newStubBridge(),
		metrics: telemetry.NewNopMetrics(),
		cfg:     cfg,
	}
	f.svc, err = iam.NewIAMService(iam.IAMServiceDependencies{
		DB:      db,
		Tokens:  codec,
		Bridge:  f.bridge,
		Mailer:  f.mailer,
		Metrics: f.metrics,
	}, iam.IAMServiceConfig{Config: cfg})
	require.NoError(t, err)
	return f
}

// accessToken mints an access token for email without going through login.
func (f *fixture) accessToken(t *testing.T, email string) string {
	t.Helper()
	token, err := f.codec.IssueToken(auth.Claims{
		TokenType:        auth.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: email},
	}, time.Minute)
	require.NoError(t, err)
	return token
}

func (f *fixture) permissionIDs(t *testing.T, names ...string) []string {
	t.Helper()
	ids := make([]string, len(names))
	for i, name := range names {
		p, err := f.repos.Permissions.GetByName(context.Background(), name)
		require.NoError(t, err)
		ids[i] = p.ID
	}
	return ids
}

func (f *fixture) createUser(t *testing.T, in iam.CreateUserInput) string {
	t.Helper()
	if in.Password == "" {
		in.Password = "s3cret-pass"
	}
	u, err := f.svc.CreateUser(context.Background(), in)
	require.NoError(t, err)
	return u.ID
}

func TestNewIAMService_RequiresDependencies(t *testing.T) {
	db := dbtest.Open(t)
	codec, err := auth.NewTokenCodec(testConfig().JWT)
	require.NoError(t, err)

	_, err = iam.NewIAMService(iam.IAMServiceDependencies{Tokens: codec}, iam.IAMServiceConfig{Config: testConfig()})
	require.Error(t, err)
	_, err = iam.NewIAMService(iam.IAMServiceDependencies{DB: db}, iam.IAMServiceConfig{Config: testConfig()})
	require.Error(t, err)
	_, err = iam.NewIAMService(iam.IAMServiceDependencies{DB: db, Tokens: codec}, iam.IAMServiceConfig{})
	require.Error(t, err)

	svc, err := iam.NewIAMService(iam.IAMServiceDependencies{DB: db, Tokens: codec}, iam.IAMServiceConfig{Config: testConfig()})
	require.NoError(t, err)
	require.NotNil(t, svc)
}
