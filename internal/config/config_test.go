package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequired sets the two mandatory settings and resets viper.
func setRequired(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Setenv("GATEKEEPER_DATABASE_URL", "postgres://test/test")
	t.Setenv("GATEKEEPER_JWT_SECRET_KEY", "test-secret")
}

// TestLoad_WithEnvironmentVariables tests that GATEKEEPER_ prefixed environment variables work
func TestLoad_WithEnvironmentVariables(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEKEEPER_SERVER_ADDR", "env:9090")
	t.Setenv("GATEKEEPER_DEBUG", "true")
	t.Setenv("GATEKEEPER_MAX_DB_CONNECTIONS", "50")
	t.Setenv("GATEKEEPER_JWT_ACCESS_TOKEN_TTL", "15m")
	t.Setenv("GATEKEEPER_SECURITY_DEFAULT_ROLE", "MEMBER")
	t.Setenv("GATEKEEPER_SECURITY_REQUIRE_VERIFIED_EMAIL", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://test/test", cfg.DatabaseURL)
	assert.Equal(t, "env:9090", cfg.ServerAddr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 50, cfg.MaxDBConnections)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, "MEMBER", cfg.Security.DefaultRole)
	assert.True(t, cfg.Security.RequireVerifiedEmail)
}

// TestLoad_WithDefaults tests that defaults are applied for optional fields
func TestLoad_WithDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.ServerAddr)
	assert.Equal(t, "http://localhost:8080", cfg.PublicURL)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 25, cfg.MaxDBConnections)
	assert.Equal(t, "HS256", cfg.JWT.Algorithm)
	assert.Equal(t, 30*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTokenTTL)
	assert.Equal(t, "USER", cfg.Security.DefaultRole)
	assert.Equal(t, "log", cfg.Mail.Provider)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Observability.TracingEnabled())
	assert.Empty(t, cfg.ExternalProviders)
}

// TestLoad_WithConfigFile tests config file loading and env precedence over it
func TestLoad_WithConfigFile(t *testing.T) {
	setRequired(t)

	configPath := filepath.Join(t.TempDir(), "gatekeeper.yaml")
	configContent := `
server_addr: "127.0.0.1:8888"
public_url: "https://auth.example.com/"
max_db_connections: 30
jwt:
  issuer: "file-issuer"
  refresh_token_ttl: "48h"
mail:
  provider: resend
  resend_api_key: "re_test"
external_providers:
  - name: acme
    issuer: "https://idp.acme.test"
    client_id: "acme-client"
    jwks_url: "https://idp.acme.test/keys"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	viper.SetConfigFile(configPath)
	require.NoError(t, viper.ReadInConfig())

	t.Setenv("GATEKEEPER_SERVER_ADDR", "env:7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env:7070", cfg.ServerAddr, "environment wins over the file")
	assert.Equal(t, "https://auth.example.com", cfg.PublicURL)
	assert.Equal(t, 30, cfg.MaxDBConnections)
	assert.Equal(t, "file-issuer", cfg.JWT.Issuer)
	assert.Equal(t, 48*time.Hour, cfg.JWT.RefreshTokenTTL)
	assert.Equal(t, "resend", cfg.Mail.Provider)

	require.Len(t, cfg.ExternalProviders, 1)
	assert.Equal(t, ExternalProviderConfig{
		Name:     "acme",
		Issuer:   "https://idp.acme.test",
		ClientID: "acme-client",
		JWKSURL:  "https://idp.acme.test/keys",
	}, cfg.ExternalProviders[0])
}

func TestLoad_GoogleShortcut(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEKEEPER_GOOGLE_CLIENT_ID", "google-client")

	cfg, err := Load()
	require.NoError(t, err)

	p, ok := cfg.ProviderByName("google")
	require.True(t, ok)
	assert.Equal(t, "google-client", p.ClientID)
	assert.Equal(t, GoogleIssuer, p.Issuer)
	assert.Equal(t, GoogleJWKSURL, p.JWKSURL)

	_, ok = cfg.ProviderByName("github")
	assert.False(t, ok)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		expectedErr string
	}{
		{
			name:        "missing database url",
			env:         map[string]string{"GATEKEEPER_DATABASE_URL": ""},
			expectedErr: "database_url is required",
		},
		{
			name:        "missing jwt secret",
			env:         map[string]string{"GATEKEEPER_JWT_SECRET_KEY": ""},
			expectedErr: "jwt.secret_key is required",
		},
		{
			name:        "asymmetric algorithm",
			env:         map[string]string{"GATEKEEPER_JWT_ALGORITHM": "RS256"},
			expectedErr: "jwt.algorithm",
		},
		{
			name:        "bcrypt cost out of range",
			env:         map[string]string{"GATEKEEPER_SECURITY_BCRYPT_COST": "2"},
			expectedErr: "bcrypt_cost",
		},
		{
			name:        "resend without key",
			env:         map[string]string{"GATEKEEPER_MAIL_PROVIDER": "resend"},
			expectedErr: "resend_api_key is required",
		},
		{
			name:        "unknown mail provider",
			env:         map[string]string{"GATEKEEPER_MAIL_PROVIDER": "smtp"},
			expectedErr: "mail.provider",
		},
		{
			name:        "unknown log format",
			env:         map[string]string{"GATEKEEPER_LOG_FORMAT": "xml"},
			expectedErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestValidate_ExternalProviders(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabaseURL: "sqlite://x",
			JWT: JWTConfig{
				SecretKey: "s", Algorithm: "HS256",
				AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Minute, VerificationTokenTTL: time.Minute,
			},
			Security: SecurityConfig{DefaultRole: "USER"},
			Mail:     MailConfig{Provider: "log"},
			Log:      LogConfig{Format: "text"},
		}
	}

	cfg := base()
	cfg.ExternalProviders = []ExternalProviderConfig{{Name: "internal", Issuer: "x", ClientID: "y"}}
	assert.ErrorContains(t, cfg.Validate(), "reserved")

	cfg = base()
	cfg.ExternalProviders = []ExternalProviderConfig{
		{Name: "acme", Issuer: "x", ClientID: "y"},
		{Name: "acme", Issuer: "x", ClientID: "y"},
	}
	assert.ErrorContains(t, cfg.Validate(), "configured twice")

	cfg = base()
	cfg.ExternalProviders = []ExternalProviderConfig{{Name: "acme", Issuer: "x"}}
	assert.ErrorContains(t, cfg.Validate(), "client_id is required")

	assert.NoError(t, base().Validate())
}
