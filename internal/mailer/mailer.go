// Package mailer delivers password reset links.
package mailer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/adamscao/captionapi/internal/config"
	"github.com/adamscao/captionapi/internal/logging"
)

// Mailer sends password reset mail
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, token string) error
}

// ResetLink builds the client-side page a reset token is redeemed on
func ResetLink(clientURL, token string) string {
	return clientURL + "/reset-password?token=" + url.QueryEscape(token)
}

// New returns an SMTP mailer when a host is configured and a LogMailer otherwise
func New(cfg *config.Config, logger *zap.Logger) (Mailer, error) {
	if cfg.SMTP.Host == "" {
		logger.Warn("smtp host not configured, reset links will only be logged")
		return NewLogMailer(cfg.Client.URL, logger), nil
	}
	return NewSMTPMailer(cfg.SMTP, cfg.Client.URL, cfg.GetSMTPTimeout(), cfg.GetResetTTL())
}

func resetBody(link string, ttl time.Duration) string {
	return fmt.Sprintf(
		"You requested a password reset.\n\n"+
			"Open the link below to choose a new password:\n\n%s\n\n"+
			"The link expires in %s. If you did not ask for this, ignore this message.\n",
		link, ttl.Round(time.Minute),
	)
}

// LogMailer writes reset links to the log instead of sending them
type LogMailer struct {
	clientURL string
	logger    *zap.Logger
}

// NewLogMailer creates a LogMailer
func NewLogMailer(clientURL string, logger *zap.Logger) *LogMailer {
	return &LogMailer{clientURL: clientURL, logger: logger}
}

// SendPasswordReset logs the link at debug level
func (m *LogMailer) SendPasswordReset(_ context.Context, to, token string) error {
	m.logger.Info("password reset mail suppressed", zap.String("to", logging.MaskEmail(to)))
	m.logger.Debug("password reset link", zap.String("link", ResetLink(m.clientURL, token)))
	return nil
}
