package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/adamscao/captionapi/internal/config"
)

// SMTPMailer delivers mail through an SMTP relay
type SMTPMailer struct {
	client    *mail.Client
	from      string
	clientURL string
	ttl       time.Duration
}

// NewSMTPMailer creates an SMTP mailer. The client is built once; each send
// dials a fresh connection.
func NewSMTPMailer(cfg config.SMTPConfig, clientURL string, timeout, resetTTL time.Duration) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(timeout),
	}

	switch cfg.TLS {
	case "tls":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
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
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	return &SMTPMailer{
		client:    client,
		from:      from,
		clientURL: clientURL,
		ttl:       resetTTL,
	}, nil
}

// SendPasswordReset mails the reset link for token to the given address
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, token string) error {
	msg, err := m.resetMessage(to, token)
	if err != nil {
		return err
	}

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send password reset mail: %w", err)
	}

	return nil
}

func (m *SMTPMailer) resetMessage(to, token string) (*mail.Msg, error) {
	// 8bit keeps the link intact for clients that show the raw body
	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	msg.Subject("Password Reset")
	msg.SetBodyString(mail.TypeTextPlain, resetBody(ResetLink(m.clientURL, token), m.ttl))

	return msg, nil
}
