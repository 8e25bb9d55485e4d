package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"
)

const resendBaseURL = "https://api.resend.com"

var (
	verifyTemplate = template.Must(template.New("verify").Parse(`<p>Welcome!</p>
<p>Please verify your email by clicking the link below:</p>
<p><a href="{{.}}">Verify Email</a></p>`))

	resetTemplate = template.Must(template.New("reset").Parse(`<p>A password reset was requested for your account.</p>
<p><a href="{{.}}">Choose a new password</a></p>
<p>If you did not request this, ignore this email.</p>`))
)

// ResendMailer sends mail through the Resend HTTP API.
type ResendMailer struct {
	apiKey  string
	from    string
	client  *http.Client
	baseURL string
}

// NewResendMailer returns a mailer authenticated with apiKey.
func NewResendMailer(apiKey, from string, client *http.Client) (*ResendMailer, error) {
	if apiKey == "" {
		return nil, errors.New("resend api key not set")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ResendMailer{
		apiKey:  apiKey,
		from:    from,
		client:  client,
		baseURL: resendBaseURL,
	}, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (m *ResendMailer) SendVerificationEmail(ctx context.Context, toEmail, verifyURL string) error {
	return m.send(ctx, toEmail, "Verify your email", verifyTemplate, verifyURL)
}

func (m *ResendMailer) SendPasswordResetEmail(ctx context.Context, toEmail, resetURL string) error {
	return m.send(ctx, toEmail, "Reset your password", resetTemplate, resetURL)
}

func (m *ResendMailer) send(ctx context.Context, toEmail, subject string, tmpl *template.Template, link string) error {
	var html bytes.Buffer
	if err := tmpl.Execute(&html, link); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}

	b, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      []string{toEmail},
		Subject: subject,
		HTML:    html.String(),
	})
	if err != nil {
		return fmt.Errorf("encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s email: %w", tmpl.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send %s email: status %d: %s", tmpl.Name(), resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
