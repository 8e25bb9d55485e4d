package iam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/config"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
	"github.com/terraconstructs/gatekeeper/internal/mail"
	"github.com/terraconstructs/gatekeeper/internal/repository"
	"github.com/terraconstructs/gatekeeper/internal/telemetry"
)

// ExternalIdentityResolver turns a provider assertion into unsaved drafts.
// *auth.IdentityBridge is the production implementation.
type ExternalIdentityResolver interface {
	ResolveExternalIdentity(ctx context.Context, provider, assertion string) (*auth.PrincipalDraft, *auth.AuthProviderDraft, error)
}

// iamService implements the Service interface.
//
// Reads outside a transaction go through repos. Writes open a transaction on
// db and build repositories over it; repos must never be used inside one
// because SQLite runs on a single connection.
type iamService struct {
	db     *bun.DB
	repos  repository.Repositories
	tokens *auth.TokenCodec
	bridge ExternalIdentityResolver
	mailer mail.Mailer

	jwt      config.JWTConfig
	security config.SecurityConfig
	baseURL  string

	log     logrus.FieldLogger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// IAMServiceDependencies contains all dependencies for IAM service construction.
//
// Bridge may be nil when no external provider is configured; external flows
// then fail with auth.ErrInvalidProvider. Logger and Metrics default to
// discarding implementations.
type IAMServiceDependencies struct {
	DB      *bun.DB
	Tokens  *auth.TokenCodec
	Bridge  ExternalIdentityResolver
	Mailer  mail.Mailer
	Logger  logrus.FieldLogger
	Metrics *telemetry.Metrics
}

// IAMServiceConfig contains configuration for IAM service construction.
// Separated from dependencies to clearly distinguish config from runtime dependencies.
type IAMServiceConfig struct {
	Config *config.Config
}

// NewIAMService creates a new IAM service with all dependencies.
func NewIAMService(deps IAMServiceDependencies, cfg IAMServiceConfig) (Service, error) {
	if deps.DB == nil {
		return nil, errors.New("iam: database is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("iam: token codec is required")
	}
	if cfg.Config == nil {
		return nil, errors.New("iam: config is required")
	}

	logger := deps.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	mailer := deps.Mailer
	if mailer == nil {
		mailer = mail.NewLogMailer(logger)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NewNopMetrics()
	}

	return &iamService{
		db:       deps.DB,
		repos:    repository.New(deps.DB),
		tokens:   deps.Tokens,
		bridge:   deps.Bridge,
		mailer:   mailer,
		jwt:      cfg.Config.JWT,
		security: cfg.Config.Security,
		baseURL:  cfg.Config.PublicURL,
		log:      logger.WithField("component", "iam"),
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

// issuePair mints an access token carrying the user's effective scopes and a
// refresh token. Must not be called inside a transaction.
func (s *iamService) issuePair(ctx context.Context, email string) (*TokenPair, error) {
	principal, err := s.repos.Users.LoadPrincipal(ctx, email)
	if err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueToken(auth.Claims{
		Scopes:           auth.EffectivePermissions(principal).Sorted(),
		TokenType:        auth.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: principal.Email},
	}, s.jwt.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueToken(auth.Claims{
		TokenType:        auth.TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{Subject: principal.Email},
	}, s.jwt.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	s.metrics.TokensIssued.WithLabelValues(string(auth.TokenTypeAccess)).Inc()
	s.metrics.TokensIssued.WithLabelValues(string(auth.TokenTypeRefresh)).Inc()
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.jwt.AccessTokenTTL / time.Second),
	}, nil
}

// decodeTyped decodes token and requires the given token type. Failures are
// auth.ErrUnauthorized.
func (s *iamService) decodeTyped(token string, want auth.TokenType) (*auth.Claims, error) {
	claims, err := s.tokens.DecodeToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrUnauthorized, err)
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("%w: expected a %s token", auth.ErrUnauthorized, want)
	}
	return claims, nil
}

// revoke records a single-use token's jti. A second revocation of the same
// jti reports auth.ErrConflict.
func (s *iamService) revoke(ctx context.Context, repos repository.Repositories, claims *auth.Claims) error {
	if claims.ID == "" {
		return fmt.Errorf("%w: token has no id", auth.ErrUnauthorized)
	}
	expiresAt := s.now().Add(s.jwt.RefreshTokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return repos.RevokedTokens.Create(ctx, &models.RevokedToken{
		JTI:       claims.ID,
		Subject:   claims.Subject,
		ExpiresAt: expiresAt,
	})
}

func (s *iamService) link(path string, token string) string {
	return s.baseURL + path + "?token=" + url.QueryEscape(token)
}

// sendVerification mails a confirmation link. Delivery failures are logged,
// never returned, because the account change they follow has committed.
func (s *iamService) sendVerification(ctx context.Context, email string) {
	token, err := s.tokens.IssueToken(auth.Claims{
		TokenType:        auth.TokenTypeEmailVerification,
		RegisteredClaims: jwt.RegisteredClaims{Subject: email},
	}, s.jwt.VerificationTokenTTL)
	if err == nil {
		s.metrics.TokensIssued.WithLabelValues(string(auth.TokenTypeEmailVerification)).Inc()
		err = s.mailer.SendVerificationEmail(ctx, email, s.link("/auth/email/confirm", token))
	}
	if err != nil {
		s.log.WithError(err).WithField("email", email).Error("failed to send verification email")
	}
}

// findOrCreateUser returns the user registered under candidate.Email with
// its providers loaded, or creates candidate with the default role.
func (s *iamService) findOrCreateUser(ctx context.Context, repos repository.Repositories, candidate *models.User) (*models.User, bool, error) {
	existing, err := repos.Users.GetByEmailWithProviders(ctx, candidate.Email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return nil, false, err
	}

	role, err := repos.Roles.GetByName(ctx, s.security.DefaultRole)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: default role %s is missing", auth.ErrInternalInconsistency, s.security.DefaultRole)
	}
	if err != nil {
		return nil, false, err
	}

	if err := repos.Users.Create(ctx, candidate); err != nil {
		return nil, false, err
	}
	if err := repos.Users.AddRoles(ctx, candidate.ID, role.ID); err != nil {
		return nil, false, err
	}
	return candidate, true, nil
}

// outcome maps an error onto the metric outcome label.
func outcome(err error) string {
	var scopeErr *auth.ScopeError
	switch {
	case err == nil:
		return telemetry.OutcomeOK
	case errors.Is(err, auth.ErrUnauthorized):
		return telemetry.OutcomeUnauthorized
	case errors.As(err, &scopeErr), errors.Is(err, auth.ErrForbidden):
		return telemetry.OutcomeForbidden
	case errors.Is(err, auth.ErrConflict):
		return telemetry.OutcomeConflict
	default:
		return telemetry.OutcomeError
	}
}

// uniqueSorted returns ids without blanks or duplicates, sorted.
func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
