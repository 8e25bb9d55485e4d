package cmdutil

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/config"
	"github.com/terraconstructs/gatekeeper/internal/db/bunx"
	"github.com/terraconstructs/gatekeeper/internal/mail"
	"github.com/terraconstructs/gatekeeper/internal/services/iam"
	"github.com/terraconstructs/gatekeeper/internal/telemetry"
)

var (
	runtimeCfg *config.Config
	runtimeLog *logrus.Logger
)

// SetRuntime records the configuration and logger loaded by the root command.
func SetRuntime(cfg *config.Config, log *logrus.Logger) {
	runtimeCfg = cfg
	runtimeLog = log
}

// Runtime returns the configuration and logger loaded by the root command.
func Runtime() (*config.Config, *logrus.Logger, error) {
	if runtimeCfg == nil || runtimeLog == nil {
		return nil, nil, errors.New("configuration not loaded")
	}
	return runtimeCfg, runtimeLog, nil
}

// OpenDB connects to the configured database.
func OpenDB(cfg *config.Config) (*bun.DB, error) {
	db, err := bunx.NewDB(cfg.DatabaseURL, bunx.WithMaxOpenConns(cfg.MaxDBConnections))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// IAMServiceOptions carries the optional collaborators of the IAM service.
// The CLI leaves them empty; serve fills them in.
type IAMServiceOptions struct {
	Bridge  iam.ExternalIdentityResolver
	Metrics *telemetry.Metrics
}

// IAMServiceBundle bundles the service with its underlying DB connection so callers can
// reuse the connection for other components when necessary.
type IAMServiceBundle struct {
	Service iam.Service
	DB      *bun.DB
}

// Close releases the underlying database connection.
func (b *IAMServiceBundle) Close() {
	if b == nil || b.DB == nil {
		return
	}
	bunx.Close(b.DB)
}

// NewIAMServiceBundle centralizes IAM service construction for CLI commands
// and the server.
func NewIAMServiceBundle(cfg *config.Config, log logrus.FieldLogger, opts IAMServiceOptions) (*IAMServiceBundle, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}

	codec, err := auth.NewTokenCodec(cfg.JWT)
	if err != nil {
		bunx.Close(db)
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	mailer, err := mail.New(cfg.Mail, log, nil)
	if err != nil {
		bunx.Close(db)
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}

	iamService, err := iam.NewIAMService(iam.IAMServiceDependencies{
		DB:      db,
		Tokens:  codec,
		Bridge:  opts.Bridge,
		Mailer:  mailer,
		Logger:  log,
		Metrics: opts.Metrics,
	}, iam.IAMServiceConfig{Config: cfg})
	if err != nil {
		bunx.Close(db)
		return nil, fmt.Errorf("failed to create IAM service: %w", err)
	}

	return &IAMServiceBundle{
		Service: iamService,
		DB:      db,
	}, nil
}
