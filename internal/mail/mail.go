package mail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/terraconstructs/gatekeeper/internal/config"
)

// Mailer delivers account lifecycle messages.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, toEmail, verifyURL string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, resetURL string) error
}

// New selects a Mailer from configuration.
func New(cfg config.MailConfig, logger logrus.FieldLogger, client *http.Client) (Mailer, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogMailer(logger), nil
	case "resend":
		return NewResendMailer(cfg.ResendAPIKey, cfg.From, client)
	default:
		return nil, fmt.Errorf("unsupported mail provider %q", cfg.Provider)
	}
}

// LogMailer writes links to the log instead of sending mail. Used in
// development and tests.
type LogMailer struct {
	log logrus.FieldLogger
}

// NewLogMailer returns a LogMailer writing to logger.
func NewLogMailer(logger logrus.FieldLogger) *LogMailer {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogMailer{log: logger}
}

func (m *LogMailer) SendVerificationEmail(_ context.Context, toEmail, verifyURL string) error {
	m.log.WithFields(logrus.Fields{"to": toEmail, "url": verifyURL}).Info("verification email")
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(_ context.Context, toEmail, resetURL string) error {
	m.log.WithFields(logrus.Fields{"to": toEmail, "url": resetURL}).Info("password reset email")
	return nil
}
