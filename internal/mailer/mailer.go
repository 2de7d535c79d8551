package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/taskhub/apiserver/config"
	"gopkg.in/gomail.v2"
)

const verificationSubject = "Account Verification"

// ErrNotConfigured is returned when SMTP settings are missing.
var ErrNotConfigured = errors.New("smtp is not configured")

// Mailer sends transactional mail over SMTP.
type Mailer struct {
	cfg    config.MailConfig
	appURL string
	logger *slog.Logger
	send   func(...*gomail.Message) error
}

// New creates a Mailer. appURL is the public base URL used to build
// verification links.
func New(cfg config.MailConfig, appURL string, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	return &Mailer{
		cfg:    cfg,
		appURL: strings.TrimRight(appURL, "/"),
		logger: logger,
		send:   d.DialAndSend,
	}
}

// Enabled reports whether enough SMTP settings are present to send mail.
func (m *Mailer) Enabled() bool {
	return m.cfg.SMTPHost != "" && m.cfg.From != ""
}

// SendVerificationEmail mails the verification link for token to the
// given address.
func (m *Mailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	if !m.Enabled() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := m.verificationMessage(to, token)
	if err := m.send(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	m.logger.Info("verification email sent", slog.String("to", to))
	return nil
}

func (m *Mailer) verificationMessage(to, token string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.From, m.cfg.FromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", verificationSubject)
	msg.SetBody("text/html", fmt.Sprintf(`<strong>Welcome!</strong>
<p>Thank you for signing up. Please click the link below to verify your account:</p>
<a href="%s" target="_blank">Verify My Account</a>
<br/><br/>
<p>If you did not create this account, you can safely ignore this email.</p>
`, m.VerificationLink(token)))
	return msg
}

// VerificationLink returns the public URL that redeems token.
func (m *Mailer) VerificationLink(token string) string {
	return m.appURL + "/verify-email?token=" + url.QueryEscape(token)
}
