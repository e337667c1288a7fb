package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/codeask/common/logger"
	"basegraph.app/codeask/core/config"
)

const smtpTimeout = 30 * time.Second

type smtpMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer returns a Mailer for cfg. Incomplete configuration is
// rejected here so a send never dials with missing credentials.
func NewSMTPMailer(cfg config.SMTPConfig) (Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &smtpMailer{cfg: cfg}, nil
}

func (m *smtpMailer) Send(ctx context.Context, email Email) error {
	msg, err := m.buildMessage(email)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}

	sc := logger.StartSpan(ctx, "delivery.smtp.send", trace.WithAttributes(
		attribute.String("smtp.host", m.cfg.Host),
		attribute.Int("smtp.port", m.cfg.Port),
	))
	defer sc.End()
	ctx = sc.Context()

	start := time.Now()
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		sc.RecordError(err)
		return fmt.Errorf("sending email via %s:%d: %w", m.cfg.Host, m.cfg.Port, err)
	}

	slog.InfoContext(ctx, "email sent",
		"to", email.To,
		"subject", logger.Truncate(email.Subject, 80),
		"html", email.HTML != "",
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// buildMessage assembles a multipart/alternative message: the markdown as
// text/plain, followed by the HTML rendering when present.
func (m *smtpMailer) buildMessage(email Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", email.To, err)
	}
	msg.Subject(email.Subject)
	msg.SetDate()

	msg.SetBodyString(mail.TypeTextPlain, email.Text)
	if email.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, email.HTML)
	}
	return msg, nil
}

func (m *smtpMailer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(smtpTimeout),
	}

	switch {
	case m.cfg.SSL:
		opts = append(opts, mail.WithSSL())
	case m.cfg.StartTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	return opts
}

// ValidateAddress reports whether addr is usable as a recipient.
func ValidateAddress(addr string) error {
	return mail.NewMsg().To(addr)
}
