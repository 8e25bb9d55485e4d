package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/terraconstructs/gatekeeper/internal/config"
	"github.com/terraconstructs/gatekeeper/internal/db/bunx"
)

// TokenType distinguishes what a signed token may be used for.
type TokenType string

const (
	TokenTypeAccess            TokenType = "access"
	TokenTypeRefresh           TokenType = "refresh"
	TokenTypeEmailVerification TokenType = "email_verification"
	TokenTypePasswordReset     TokenType = "password_reset"
)

// Claims is the payload carried by every token the service issues.
// Subject holds the user's email; ID (jti) is unique per token.
type Claims struct {
	Scopes    []string  `json:"scopes,omitempty"`
	TokenType TokenType `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and decodes HMAC JWTs with a single shared secret.
type TokenCodec struct {
	secret    []byte
	method    jwt.SigningMethod
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenCodec builds a codec from JWT settings.
func NewTokenCodec(cfg config.JWTConfig) (*TokenCodec, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("jwt secret key is required")
	}
	method := jwt.GetSigningMethod(cfg.Algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown jwt algorithm %q", cfg.Algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("jwt algorithm %q is not an HMAC method", cfg.Algorithm)
	}
	return &TokenCodec{
		secret:    []byte(cfg.SecretKey),
		method:    method,
		issuer:    cfg.Issuer,
		accessTTL: cfg.AccessTokenTTL,
		now:       time.Now,
	}, nil
}

// IssueToken signs claims with an expiry of now+ttl; a non-positive ttl uses
// the configured access token lifetime. Issuer and ID are filled when the
// caller left them empty.
func (c *TokenCodec) IssueToken(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.accessTTL
	}
	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.Issuer == "" {
		claims.Issuer = c.issuer
	}
	if claims.ID == "" {
		claims.ID = bunx.NewUUIDv7()
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// DecodeToken verifies signature, algorithm, issuer and, when present, expiry.
// Tokens without a subject are rejected. Every failure wraps ErrInvalidToken.
func (c *TokenCodec) DecodeToken(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
