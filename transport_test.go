package auth

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPTransportDeliver(t *testing.T) {
	transport := NewSMTPTransport(SMTPConfig{
		Host:     "smtp.example.com",
		Username: "mailer",
		Password: "secret",
		From:     "fallback@example.com",
		FromName: "Accounts",
	})

	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	transport.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
		return nil
	}

	err := transport.Deliver(context.Background(), Envelope{
		To:      "user@example.com",
		Subject: "Reset password instructions",
		Body:    "line one\nline two",
		Kind:    MessageResetPasswordInstructions,
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "fallback@example.com", gotFrom)
	assert.Equal(t, []string{"user@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "From: Accounts <fallback@example.com>\r\n")
	assert.Contains(t, gotMsg, "Subject: Reset password instructions\r\n")
	assert.Contains(t, gotMsg, "line one\r\nline two")
}

func TestSMTPTransportWrapsFailures(t *testing.T) {
	transport := NewSMTPTransport(SMTPConfig{Host: "localhost", Port: 2525})
	boom := errors.New("connection refused")
	transport.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	err := transport.Deliver(context.Background(), Envelope{From: "a@example.com", To: "b@example.com"})
	assert.ErrorIs(t, err, boom)
}

func TestSMTPTransportHonorsCancelledContext(t *testing.T) {
	transport := NewSMTPTransport(SMTPConfig{Host: "localhost"})
	transport.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("sendMail must not be called")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, transport.Deliver(ctx, Envelope{To: "b@example.com"}), context.Canceled)
}

func TestLogTransport(t *testing.T) {
	logger := &captureLogger{}
	err := LogTransport{Logger: logger}.Deliver(context.Background(), Envelope{To: "b@example.com", Kind: MessageEmailChanged})
	require.NoError(t, err)

	require.Len(t, logger.calls, 1)
	assert.Equal(t, "info", logger.calls[0].level)
	assert.Equal(t, "mail delivered", logger.calls[0].message)
}
