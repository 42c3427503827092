// Package mailer delivers transactional email.
package mailer

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	retry "github.com/sethvargo/go-retry"
	mail "github.com/wneessen/go-mail"

	"github.com/splax/healthmatters/internal/apperr"
)

// Sender delivers password reset links.
type Sender interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// Config describes the SMTP relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	LinkTTL  time.Duration
}

type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTP sends mail through an SMTP relay, retrying a failed delivery once.
type SMTP struct {
	client  dialer
	from    string
	linkTTL time.Duration
	backoff time.Duration
	log     *slog.Logger
}

// NewSMTP builds a sender for cfg. STARTTLS is used when the server offers it.
func NewSMTP(cfg Config, log *slog.Logger) (*SMTP, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("configure smtp client: %w", err)
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return newSMTP(client, from, cfg.LinkTTL, log), nil
}

func newSMTP(client dialer, from string, linkTTL time.Duration, log *slog.Logger) *SMTP {
	if linkTTL <= 0 {
		linkTTL = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &SMTP{client: client, from: from, linkTTL: linkTTL, backoff: 500 * time.Millisecond, log: log}
}

// SendPasswordReset emails the reset link to the given address.
func (s *SMTP) SendPasswordReset(ctx context.Context, to, link string) error {
	msg, err := s.resetMessage(to, link)
	if err != nil {
		return apperr.Upstream("Failed to send password reset email", err)
	}
	attempt := 0
	err = retry.Do(ctx, retry.WithMaxRetries(1, retry.NewConstant(s.backoff)), func(ctx context.Context) error {
		attempt++
		if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
			s.log.Warn("smtp delivery failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return apperr.Upstream("Failed to send password reset email", err)
	}
	return nil
}

var resetTemplate = template.Must(template.New("reset").Parse(`<h1>Password Reset Request</h1>
<p>You requested to reset your password. Click the link below to set a new password:</p>
<p><a href="{{.Link}}">Reset Password</a></p>
<p>This link will expire in {{.Expiry}}.</p>
<p>If you didn't request this, please ignore this email.</p>
`))

func (s *SMTP) resetMessage(to, link string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject("Password Reset Request")

	var body strings.Builder
	data := struct{ Link, Expiry string }{Link: link, Expiry: humanDuration(s.linkTTL)}
	if err := resetTemplate.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	msg.SetBodyString(mail.TypeTextHTML, body.String())
	msg.AddAlternativeString(mail.TypeTextPlain, fmt.Sprintf(
		"You requested to reset your password.\n\nOpen this link to set a new password:\n%s\n\nThis link will expire in %s. If you didn't request this, please ignore this email.\n",
		link, data.Expiry))
	return msg, nil
}

func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}

// Disabled is used when no SMTP relay is configured.
type Disabled struct{}

// SendPasswordReset always fails.
func (Disabled) SendPasswordReset(context.Context, string, string) error {
	return apperr.Upstream("email delivery is not configured", nil)
}
