package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "GATEKEEPER"

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN)
	DatabaseURL string

	// Maximum database connection pool size
	MaxDBConnections int

	// Server bind address (host:port)
	ServerAddr string

	// Public base URL used in confirmation and reset links
	PublicURL string

	// Enable debug logging
	Debug bool

	JWT               JWTConfig
	Security          SecurityConfig
	ExternalProviders []ExternalProviderConfig
	Mail              MailConfig
	Log               LogConfig
	Observability     ObservabilityConfig
}

// JWTConfig controls token issuance and decoding.
type JWTConfig struct {
	SecretKey            string
	Algorithm            string
	Issuer               string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
}

// SecurityConfig holds credential and signup policy settings.
type SecurityConfig struct {
	// BcryptCost is the work factor for password hashes. Zero selects bcrypt's default.
	BcryptCost int

	// DefaultRole is attached to every newly created account.
	DefaultRole string

	// RequireVerifiedEmail rejects password login until the email is confirmed.
	RequireVerifiedEmail bool
}

// ExternalProviderConfig describes one trusted identity provider.
// JWKSURL is optional; when empty it is discovered from the issuer.
type ExternalProviderConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Issuer   string `mapstructure:"issuer" yaml:"issuer"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	JWKSURL  string `mapstructure:"jwks_url" yaml:"jwks_url"`
}

// MailConfig selects the outbound mail transport.
type MailConfig struct {
	Provider     string // "log" or "resend"
	From         string
	ResendAPIKey string
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// ObservabilityConfig configures OpenTelemetry tracing.
// Tracing is disabled when OTLPEndpoint is empty.
type ObservabilityConfig struct {
	OTLPEndpoint   string
	OTLPProtocol   string
	OTLPInsecure   bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// TracingEnabled reports whether an OTLP exporter should be installed.
func (c ObservabilityConfig) TracingEnabled() bool {
	return c.OTLPEndpoint != ""
}

// Google defaults used by the GATEKEEPER_GOOGLE_CLIENT_ID shortcut.
const (
	GoogleIssuer  = "https://accounts.google.com"
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

func setDefaults() {
	viper.SetDefault("database_url", "")
	viper.SetDefault("max_db_connections", 25)
	viper.SetDefault("server_addr", "localhost:8080")
	viper.SetDefault("public_url", "http://localhost:8080")
	viper.SetDefault("debug", false)

	viper.SetDefault("jwt.secret_key", "")
	viper.SetDefault("jwt.algorithm", "HS256")
	viper.SetDefault("jwt.issuer", "gatekeeper")
	viper.SetDefault("jwt.access_token_ttl", 30*time.Minute)
	viper.SetDefault("jwt.refresh_token_ttl", 7*24*time.Hour)
	viper.SetDefault("jwt.verification_token_ttl", 24*time.Hour)

	viper.SetDefault("security.bcrypt_cost", 0)
	viper.SetDefault("security.default_role", "USER")
	viper.SetDefault("security.require_verified_email", false)

	viper.SetDefault("google_client_id", "")

	viper.SetDefault("mail.provider", "log")
	viper.SetDefault("mail.from", "no-reply@localhost")
	viper.SetDefault("mail.resend_api_key", "")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.protocol", "http/protobuf")
	viper.SetDefault("otel.insecure", false)
	viper.SetDefault("otel.service_name", "gatekeeper")
	viper.SetDefault("otel.environment", "development")
}

// Load reads configuration from the global viper instance. Environment
// variables take precedence over a config file previously read into viper,
// which takes precedence over defaults.
func Load() (*Config, error) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	// Explicit Get calls so nested keys are resolved through AutomaticEnv.
	cfg := &Config{
		DatabaseURL:      viper.GetString("database_url"),
		MaxDBConnections: viper.GetInt("max_db_connections"),
		ServerAddr:       viper.GetString("server_addr"),
		PublicURL:        strings.TrimRight(viper.GetString("public_url"), "/"),
		Debug:            viper.GetBool("debug"),
		JWT: JWTConfig{
			SecretKey:            viper.GetString("jwt.secret_key"),
			Algorithm:            viper.GetString("jwt.algorithm"),
			Issuer:               viper.GetString("jwt.issuer"),
			AccessTokenTTL:       viper.GetDuration("jwt.access_token_ttl"),
			RefreshTokenTTL:      viper.GetDuration("jwt.refresh_token_ttl"),
			VerificationTokenTTL: viper.GetDuration("jwt.verification_token_ttl"),
		},
		Security: SecurityConfig{
			BcryptCost:           viper.GetInt("security.bcrypt_cost"),
			DefaultRole:          viper.GetString("security.default_role"),
			RequireVerifiedEmail: viper.GetBool("security.require_verified_email"),
		},
		Mail: MailConfig{
			Provider:     viper.GetString("mail.provider"),
			From:         viper.GetString("mail.from"),
			ResendAPIKey: viper.GetString("mail.resend_api_key"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint:   viper.GetString("otel.endpoint"),
			OTLPProtocol:   viper.GetString("otel.protocol"),
			OTLPInsecure:   viper.GetBool("otel.insecure"),
			ServiceName:    viper.GetString("otel.service_name"),
			ServiceVersion: Version,
			Environment:    viper.GetString("otel.environment"),
		},
	}

	providers, err := loadExternalProviders()
	if err != nil {
		return nil, err
	}
	cfg.ExternalProviders = providers

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadExternalProviders decodes the external_providers list from the config
// file and appends Google when its client id is supplied on its own.
func loadExternalProviders() ([]ExternalProviderConfig, error) {
	var providers []ExternalProviderConfig
	if viper.IsSet("external_providers") {
		if err := viper.UnmarshalKey("external_providers", &providers); err != nil {
			return nil, fmt.Errorf("external_providers: %w", err)
		}
	}

	if clientID := viper.GetString("google_client_id"); clientID != "" {
		found := false
		for i := range providers {
			if providers[i].Name == "google" {
				providers[i].ClientID = clientID
				found = true
			}
		}
		if !found {
			providers = append(providers, ExternalProviderConfig{Name: "google", ClientID: clientID})
		}
	}

	for i := range providers {
		if providers[i].Name == "google" {
			if providers[i].Issuer == "" {
				providers[i].Issuer = GoogleIssuer
			}
			if providers[i].JWKSURL == "" {
				providers[i].JWKSURL = GoogleJWKSURL
			}
		}
	}
	return providers, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (set %s_DATABASE_URL)", EnvPrefix)
	}
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt.secret_key is required (set %s_JWT_SECRET_KEY)", EnvPrefix)
	}
	switch c.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("jwt.algorithm %q is not supported; use HS256, HS384 or HS512", c.JWT.Algorithm)
	}
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 || c.JWT.VerificationTokenTTL <= 0 {
		return fmt.Errorf("jwt token lifetimes must be positive")
	}
	if c.Security.BcryptCost != 0 && (c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31) {
		return fmt.Errorf("security.bcrypt_cost must be between 4 and 31, got %d", c.Security.BcryptCost)
	}
	if c.Security.DefaultRole == "" {
		return fmt.Errorf("security.default_role must not be empty")
	}

	seen := make(map[string]bool, len(c.ExternalProviders))
	for _, p := range c.ExternalProviders {
		if p.Name == "" {
			return fmt.Errorf("external provider entry is missing a name")
		}
		if p.Name == "internal" {
			return fmt.Errorf("external provider name %q is reserved", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("external provider %q is configured twice", p.Name)
		}
		seen[p.Name] = true
		if p.Issuer == "" {
			return fmt.Errorf("external provider %q: issuer is required", p.Name)
		}
		if p.ClientID == "" {
			return fmt.Errorf("external provider %q: client_id is required", p.Name)
		}
	}

	switch c.Mail.Provider {
	case "log":
	case "resend":
		if c.Mail.ResendAPIKey == "" {
			return fmt.Errorf("mail.resend_api_key is required when mail.provider is resend")
		}
	default:
		return fmt.Errorf("mail.provider %q is not supported; use log or resend", c.Mail.Provider)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not supported; use text or json", c.Log.Format)
	}
	return nil
}

// ProviderByName returns the configured external provider with the given name.
func (c *Config) ProviderByName(name string) (ExternalProviderConfig, bool) {
	for _, p := range c.ExternalProviders {
		if p.Name == name {
			return p, true
		}
	}
	return ExternalProviderConfig{}, false
}
