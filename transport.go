package auth

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Transport hands a rendered envelope to the outside world.
type Transport interface {
	Deliver(ctx context.Context, env Envelope) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, env Envelope) error

// Deliver implements Transport.
func (f TransportFunc) Deliver(ctx context.Context, env Envelope) error {
	if f == nil {
		return nil
	}
	return f(ctx, env)
}

// LogTransport writes envelopes to a logger instead of sending them.
type LogTransport struct {
	Logger Logger
}

// Deliver implements Transport.
func (t LogTransport) Deliver(ctx context.Context, env Envelope) error {
	logger := t.Logger
	if logger == nil {
		logger = defaultLogger()
	}
	loggerFor(ctx, logger).Info("mail delivered",
		"kind", env.Kind,
		"to", env.To,
		"subject", env.Subject,
		"body", env.Body,
	)
	return nil
}

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	From     string `yaml:"from" json:"from"`
	FromName string `yaml:"from_name" json:"from_name"`
}

// SMTPTransport sends plain text mail through an SMTP relay.
type SMTPTransport struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPTransport creates a transport for cfg.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPTransport{cfg: cfg, sendMail: smtp.SendMail}
}

// Deliver implements Transport.
func (t *SMTPTransport) Deliver(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := env.From
	if from == "" {
		from = t.cfg.From
	}

	var auth smtp.Auth
	if t.cfg.Username != "" {
		auth = smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	if err := t.sendMail(addr, auth, from, []string{env.To}, t.build(from, env)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp send failed").
			WithMetadata(map[string]any{"to": env.To, "kind": string(env.Kind)})
	}
	return nil
}

func (t *SMTPTransport) build(from string, env Envelope) []byte {
	header := from
	if t.cfg.FromName != "" {
		header = fmt.Sprintf("%s <%s>", t.cfg.FromName, from)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", header)
	fmt.Fprintf(&b, "To: %s\r\n", env.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", env.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(env.Body, "\n", "\r\n"))
	return []byte(b.String())
}
