package iam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/telemetry"
)

// Resolve implements Service.
func (s *iamService) Resolve(ctx context.Context, token string, requiredScopes []string) (*auth.Principal, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.Resolve",
		attribute.StringSlice(telemetry.AttrRequiredScopes, requiredScopes),
	)
	defer span.End()

	principal, err := s.resolve(ctx, token, requiredScopes)

	s.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	s.metrics.ResolveTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		var scopeErr *auth.ScopeError
		if errors.As(err, &scopeErr) {
			span.SetAttributes(attribute.String(telemetry.AttrMissingScope, scopeErr.Scope))
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String(telemetry.AttrPrincipalID, principal.User.ID),
		attribute.Bool(telemetry.AttrSuperUser, principal.User.IsSuperUser),
	)
	return principal, nil
}

func (s *iamService) resolve(ctx context.Context, token string, requiredScopes []string) (*auth.Principal, error) {
	claims, err := s.tokens.DecodeToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrUnauthorized, err)
	}
	// Tokens minted without a type are treated as access tokens.
	if claims.TokenType != "" && claims.TokenType != auth.TokenTypeAccess {
		return nil, fmt.Errorf("%w: %s token used for access", auth.ErrUnauthorized, claims.TokenType)
	}

	user, err := s.repos.Users.LoadPrincipal(ctx, claims.Subject)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown subject", auth.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("load principal: %w", err)
	}
	if !user.IsActive {
		return nil, auth.ErrInactiveUser
	}

	principal := auth.NewPrincipal(user, claims)
	if user.IsSuperUser {
		return principal, nil
	}
	if err := principal.CheckScopes(requiredScopes); err != nil {
		return nil, err
	}
	return principal, nil
}
