package mailer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/adamscao/captionapi/internal/config"
)

func TestResetLink(t *testing.T) {
	assert.Equal(t,
		"http://localhost:3000/reset-password?token=aaa.bbb.ccc",
		ResetLink("http://localhost:3000", "aaa.bbb.ccc"))
	assert.Equal(t,
		"https://app.example.com/reset-password?token=a%2Bb%3D",
		ResetLink("https://app.example.com", "a+b="))
}

func TestNewFallsBackToLogMailer(t *testing.T) {
	cfg := config.Default()

	m, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)

	cfg.SMTP.Host = "smtp.example.com"
	cfg.SMTP.From = "noreply@example.com"
	m, err = New(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)
}

func TestLogMailerMasksRecipient(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewLogMailer("http://localhost:3000", zap.New(core))

	require.NoError(t, m.SendPasswordReset(context.Background(), "john.doe@example.com", "tok"))

	entries := logs.FilterMessage("password reset mail suppressed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "joh***@example.com", entries[0].ContextMap()["to"])

	links := logs.FilterMessage("password reset link").All()
	require.Len(t, links, 1)
	assert.Equal(t, zapcore.DebugLevel, links[0].Level)
}

func TestResetMessage(t *testing.T) {
	m, err := NewSMTPMailer(config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "mailer@example.com",
		Password: "secret",
		TLS:      "starttls",
	}, "https://app.example.com", time.Second, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "mailer@example.com", m.from, "sender falls back to the smtp user")

	msg, err := m.resetMessage("a@x.com", "aaa.bbb.ccc")
	require.NoError(t, err)

	assert.Equal(t, []string{"Password Reset"}, msg.GetGenHeader(mail.HeaderSubject))
	to := msg.GetToString()
	require.Len(t, to, 1)
	assert.Contains(t, to[0], "a@x.com")

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "https://app.example.com/reset-password?token=aaa.bbb.ccc")
	assert.Contains(t, buf.String(), "expires in 1h0m0s")
}

func TestResetMessageRejectsBadRecipient(t *testing.T) {
	m, err := NewSMTPMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 25, From: "noreply@example.com", TLS: "none"},
		"http://localhost:3000", time.Second, time.Hour)
	require.NoError(t, err)

	_, err = m.resetMessage("not an address", "tok")
	require.Error(t, err)
}

func TestNewSMTPMailerRequiresHost(t *testing.T) {
	_, err := NewSMTPMailer(config.SMTPConfig{Port: 587}, "http://localhost:3000", time.Second, time.Hour)
	require.Error(t, err)
}
