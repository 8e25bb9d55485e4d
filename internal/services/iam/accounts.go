package iam

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
	"github.com/terraconstructs/gatekeeper/internal/repository"
	"github.com/terraconstructs/gatekeeper/internal/telemetry"
)

// errBadCredentials covers unknown emails, missing local credentials,
// inactive accounts and wrong passwords alike.
var errBadCredentials = fmt.Errorf("%w: incorrect email or password", auth.ErrUnauthorized)

func normalizeEmail(raw string) (string, error) {
	email := repository.NormalizeEmail(raw)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", auth.ErrBadRequest)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email %q", auth.ErrBadRequest, raw)
	}
	return email, nil
}

func requirePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password is required", auth.ErrBadRequest)
	}
	return nil
}

// Signup implements Service.
func (s *iamService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.Signup",
		attribute.String(telemetry.AttrProvider, auth.ProviderInternal),
	)
	defer span.End()

	user, err := s.signup(ctx, in)
	s.metrics.SignupTotal.WithLabelValues(auth.ProviderInternal, outcome(err)).Inc()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if !user.EmailVerified {
		s.sendVerification(ctx, user.Email)
	}
	return user, nil
}

func (s *iamService) signup(ctx context.Context, in SignupInput) (*models.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := requirePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password, s.security.BcryptCost)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := repository.New(tx)

		candidate := &models.User{
			Email:        email,
			PasswordHash: &hash,
			Phone:        in.Phone,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			IsActive:     true,
		}
		u, created, err := s.findOrCreateUser(ctx, repos, candidate)
		if err != nil {
			return err
		}
		if u.HasProvider(auth.ProviderInternal) {
			return fmt.Errorf("%w: already have an account", auth.ErrConflict)
		}
		if !created {
			// Signed up externally first: the local password is added.
			if err := repos.Users.SetPasswordHash(ctx, u.ID, hash); err != nil {
				return err
			}
			u.PasswordHash = &hash
		}
		if err := repos.AuthProviders.Create(ctx, &models.AuthProvider{
			UserID:         u.ID,
			ProviderName:   auth.ProviderInternal,
			ProviderUserID: u.ID,
		}); err != nil {
			return err
		}
		telemetry.AddEvent(trace.SpanFromContext(ctx), "signup.provider_attached",
			attribute.String(telemetry.AttrProvider, auth.ProviderInternal),
			attribute.Bool(telemetry.AttrAccountCreated, created))
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"provider": auth.ProviderInternal,
	}).Info("user signed up")
	return user, nil
}

// SignupExternal implements Service.
func (s *iamService) SignupExternal(ctx context.Context, provider, assertion string) (*models.User, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.SignupExternal",
		attribute.String(telemetry.AttrProvider, provider),
	)
	defer span.End()

	user, err := s.signupExternal(ctx, provider, assertion)
	s.metrics.SignupTotal.WithLabelValues(provider, outcome(err)).Inc()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return user, nil
}

func (s *iamService) signupExternal(ctx context.Context, provider, assertion string) (*models.User, error) {
	// Verification happens before any transaction opens.
	draft, link, err := s.verifyExternal(ctx, provider, assertion)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := repository.New(tx)

		u, created, err := s.findOrCreateUser(ctx, repos, draft.ToUser())
		if err != nil {
			return err
		}
		if u.HasProvider(link.Provider) {
			return fmt.Errorf("%w: already have an account", auth.ErrConflict)
		}
		if err := repos.AuthProviders.Create(ctx, &models.AuthProvider{
			UserID:         u.ID,
			ProviderName:   link.Provider,
			ProviderUserID: link.Subject,
		}); err != nil {
			return err
		}
		telemetry.AddEvent(trace.SpanFromContext(ctx), "signup.provider_attached",
			attribute.String(telemetry.AttrProvider, link.Provider),
			attribute.Bool(telemetry.AttrAccountCreated, created))
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"provider": link.Provider,
	}).Info("user signed up")
	return user, nil
}

func (s *iamService) verifyExternal(ctx context.Context, provider, assertion string) (*auth.PrincipalDraft, *auth.AuthProviderDraft, error) {
	if s.bridge == nil {
		return nil, nil, fmt.Errorf("%w: %q", auth.ErrInvalidProvider, provider)
	}
	draft, link, err := s.bridge.ResolveExternalIdentity(ctx, provider, assertion)
	result := telemetry.OutcomeOK
	if err != nil {
		result = telemetry.OutcomeError
	}
	s.metrics.ExternalVerify.WithLabelValues(provider, result).Inc()
	if err != nil {
		return nil, nil, err
	}
	return draft, link, nil
}

// ExchangeExternal implements Service.
func (s *iamService) ExchangeExternal(ctx context.Context, provider, assertion string) (*TokenPair, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.ExchangeExternal",
		attribute.String(telemetry.AttrProvider, provider),
	)
	defer span.End()

	pair, err := s.exchangeExternal(ctx, provider, assertion)
	s.metrics.LoginTotal.WithLabelValues(provider, outcome(err)).Inc()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return pair, nil
}

func (s *iamService) exchangeExternal(ctx context.Context, provider, assertion string) (*TokenPair, error) {
	_, link, err := s.verifyExternal(ctx, provider, assertion)
	if err != nil {
		return nil, err
	}

	linked, err := s.repos.AuthProviders.GetByProviderSubject(ctx, link.Provider, link.Subject)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, fmt.Errorf("%w: no account linked to this %s identity, please sign up", auth.ErrUnauthorized, link.Provider)
	}
	if err != nil {
		return nil, err
	}
	user, err := s.repos.Users.GetByID(ctx, linked.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: inactive user", auth.ErrUnauthorized)
	}
	return s.completeLogin(ctx, user)
}

// Login implements Service.
func (s *iamService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.Login",
		attribute.String(telemetry.AttrProvider, auth.ProviderInternal),
	)
	defer span.End()

	pair, err := s.login(ctx, email, password)
	s.metrics.LoginTotal.WithLabelValues(auth.ProviderInternal, outcome(err)).Inc()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return pair, nil
}

func (s *iamService) login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.repos.Users.GetByEmailWithProviders(ctx, email)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive || !user.HasProvider(auth.ProviderInternal) || user.PasswordHash == nil {
		return nil, errBadCredentials
	}
	if !auth.VerifyPassword(password, *user.PasswordHash) {
		return nil, errBadCredentials
	}
	if s.security.RequireVerifiedEmail && !user.EmailVerified {
		return nil, fmt.Errorf("%w: email address is not verified", auth.ErrForbidden)
	}
	return s.completeLogin(ctx, user)
}

func (s *iamService) completeLogin(ctx context.Context, user *models.User) (*TokenPair, error) {
	pair, err := s.issuePair(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Users.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("failed to record last login")
	}
	return pair, nil
}

// RefreshTokens implements Service.
func (s *iamService) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.RefreshTokens")
	defer span.End()

	pair, err := s.refreshTokens(ctx, refreshToken)
	s.metrics.LoginTotal.WithLabelValues("refresh", outcome(err)).Inc()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return pair, nil
}

func (s *iamService) refreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.decodeTyped(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.repos.Users.GetByEmail(ctx, claims.Subject)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown subject", auth.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: inactive user", auth.ErrUnauthorized)
	}

	// The jti insert is the rotation guard: a replayed token hits the
	// primary key and is refused.
	err = s.revoke(ctx, s.repos, claims)
	if errors.Is(err, auth.ErrConflict) {
		s.log.WithField("user_id", user.ID).Warn("refresh token replayed")
		return nil, fmt.Errorf("%w: refresh token already used", auth.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	return s.issuePair(ctx, user.Email)
}

// Logout implements Service.
func (s *iamService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.decodeTyped(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return err
	}
	err = s.revoke(ctx, s.repos, claims)
	if err != nil && !errors.Is(err, auth.ErrConflict) {
		return err
	}
	return nil
}

// ChangePassword implements Service.
func (s *iamService) ChangePassword(ctx context.Context, user *models.User, previous, next string) error {
	if user.PasswordHash == nil || !auth.VerifyPassword(previous, *user.PasswordHash) {
		return fmt.Errorf("%w: invalid previous password", auth.ErrBadRequest)
	}
	if err := requirePassword(next); err != nil {
		return err
	}
	hash, err := auth.HashPassword(next, s.security.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.repos.Users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	user.PasswordHash = &hash
	s.log.WithField("user_id", user.ID).Info("password changed")
	return nil
}

// RequestEmailVerification implements Service.
func (s *iamService) RequestEmailVerification(ctx context.Context, user *models.User) error {
	if user.EmailVerified {
		return nil
	}
	s.sendVerification(ctx, user.Email)
	return nil
}

// ConfirmEmail implements Service.
func (s *iamService) ConfirmEmail(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.decodeTyped(token, auth.TokenTypeEmailVerification)
	if err != nil {
		return nil, err
	}

	user, err := s.repos.Users.GetByEmail(ctx, claims.Subject)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown subject", auth.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, auth.ErrInactiveUser
	}
	if user.EmailVerified {
		return user, nil
	}

	if err := s.repos.Users.MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.EmailVerified = true
	s.log.WithField("user_id", user.ID).Info("email verified")
	return user, nil
}

// RequestPasswordReset implements Service.
func (s *iamService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repos.Users.GetByEmail(ctx, email)
	if errors.Is(err, auth.ErrNotFound) {
		s.log.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	if !user.IsActive {
		return nil
	}

	token, err := s.tokens.IssueToken(auth.Claims{
		TokenType:        auth.TokenTypePasswordReset,
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.Email},
	}, s.jwt.VerificationTokenTTL)
	if err != nil {
		return err
	}
	s.metrics.TokensIssued.WithLabelValues(string(auth.TokenTypePasswordReset)).Inc()

	if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, s.link("/auth/password/reset/confirm", token)); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Error("failed to send password reset email")
	}
	return nil
}

// ResetPassword implements Service.
func (s *iamService) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.decodeTyped(token, auth.TokenTypePasswordReset)
	if err != nil {
		return err
	}
	if err := requirePassword(newPassword); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword, s.security.BcryptCost)
	if err != nil {
		return err
	}

	var userID string
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := repository.New(tx)

		if err := s.revoke(ctx, repos, claims); err != nil {
			if errors.Is(err, auth.ErrConflict) {
				return fmt.Errorf("%w: reset token already used", auth.ErrUnauthorized)
			}
			return err
		}

		user, err := repos.Users.GetByEmailWithProviders(ctx, claims.Subject)
		if errors.Is(err, auth.ErrNotFound) {
			return fmt.Errorf("%w: unknown subject", auth.ErrUnauthorized)
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return auth.ErrInactiveUser
		}
		if err := repos.Users.SetPasswordHash(ctx, user.ID, hash); err != nil {
			return err
		}
		// Proving control of the mailbox is enough to enable local login
		// for an account that so far only used an external provider.
		if !user.HasProvider(auth.ProviderInternal) {
			if err := repos.AuthProviders.Create(ctx, &models.AuthProvider{
				UserID:         user.ID,
				ProviderName:   auth.ProviderInternal,
				ProviderUserID: user.ID,
			}); err != nil {
				return err
			}
		}
		userID = user.ID
		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithField("user_id", userID).Info("password reset")
	return nil
}

// UpdateProfile implements Service.
func (s *iamService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*models.User, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var columns []string
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
		columns = append(columns, "first_name")
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
		columns = append(columns, "last_name")
	}
	if in.Phone != nil {
		if user.Phone == nil || *user.Phone != *in.Phone {
			user.PhoneVerified = false
			columns = append(columns, "phone_verified")
		}
		user.Phone = in.Phone
		columns = append(columns, "phone")
	}
	if in.AvatarURL != nil {
		user.AvatarURL = in.AvatarURL
		columns = append(columns, "avatar_url")
	}
	if len(columns) == 0 {
		return user, nil
	}

	if err := s.repos.Users.Update(ctx, user, columns...); err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers implements Service.
func (s *iamService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", auth.ErrBadRequest)
	}
	return s.repos.Users.List(ctx, limit, offset)
}
