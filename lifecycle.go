package auth

import (
	"context"
	"net/mail"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// LifecycleStore is a storage that can also hold session tokens and
// accept save hooks.
type LifecycleStore interface {
	Storage
	AuthTokenStore
	HookRegistry
}

// Lifecycle wires the confirmation, recovery and session machines on one
// store with one configuration.
type Lifecycle struct {
	cfg           Config
	store         LifecycleStore
	settings      settings
	confirmations *Confirmations
	recoveries    *Recoveries
	sessions      *Sessions
}

// NewLifecycle validates cfg and builds the three machines. Save hooks are
// registered on store. Build cfg from DefaultConfig to keep the default
// email changed notification.
func NewLifecycle(cfg Config, store LifecycleStore, mailer Mailer, opts ...Option) (*Lifecycle, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	confirmations, err := NewConfirmations(cfg, store, mailer, opts...)
	if err != nil {
		return nil, err
	}

	recoveries, err := NewRecoveries(cfg, store, mailer, opts...)
	if err != nil {
		return nil, err
	}

	sessions, err := NewSessions(cfg, store, opts...)
	if err != nil {
		return nil, err
	}

	return &Lifecycle{
		cfg:           cfg,
		store:         store,
		settings:      newSettings("lifecycle", opts...),
		confirmations: confirmations,
		recoveries:    recoveries,
		sessions:      sessions,
	}, nil
}

func (l *Lifecycle) Config() Config                { return l.cfg }
func (l *Lifecycle) Store() LifecycleStore         { return l.store }
func (l *Lifecycle) Confirmations() *Confirmations { return l.confirmations }
func (l *Lifecycle) Recoveries() *Recoveries       { return l.recoveries }
func (l *Lifecycle) Sessions() *Sessions           { return l.sessions }

// Register creates a principal with email and password. Confirmation
// instructions are sent by the save hooks.
func (l *Lifecycle) Register(ctx context.Context, email, password string) (*Principal, error) {
	email = NormalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, fieldError(ErrInvalidEmail, FieldEmail)
	}

	digest, err := l.settings.hasher.HashPassword(password)
	if err != nil {
		return nil, err
	}

	p := &Principal{Email: email, PasswordDigest: digest}
	if err := l.store.Save(ctx, p); err != nil {
		return nil, err
	}

	loggerFor(ctx, l.settings.logger).Info("principal registered", "account_id", p.ID)
	return p, nil
}

// Invite creates a principal without password and mails set password
// instructions.
func (l *Lifecycle) Invite(ctx context.Context, email string) (*Principal, error) {
	email = NormalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, fieldError(ErrInvalidEmail, FieldEmail)
	}

	p := &Principal{Email: email}
	if err := l.recoveries.SetAndSendPasswordInstructions(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Authenticate checks the password of the account owning email and issues
// a session token. Confirmable accounts must be confirmed.
func (l *Lifecycle) Authenticate(ctx context.Context, email, password string) (Account, string, error) {
	acc, err := l.store.FindOneByField(ctx, l.cfg.EmailField, NormalizeEmail(email))
	if err != nil {
		if IsNotFound(err) {
			return nil, "", ErrMismatchedHashAndPassword
		}
		return nil, "", err
	}

	if err := l.settings.hasher.ComparePasswordAndHash(password, acc.GetPasswordDigest()); err != nil {
		return nil, "", ErrMismatchedHashAndPassword
	}

	if conf, ok := acc.(Confirmable); ok && !conf.Confirmation().IsConfirmed() {
		return nil, "", newUnconfirmed(l.cfg.EmailField)
	}

	sess, ok := acc.(SessionAuthenticatable)
	if !ok {
		return nil, "", capabilityError("sessions", acc)
	}

	token, err := l.sessions.Regenerate(ctx, sess, "")
	if err != nil {
		return nil, "", err
	}
	return acc, token, nil
}

// NormalizeEmail trims and lower cases an address, dropping a display name.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err == nil {
		email = addr.Address
	}
	return strings.ToLower(email)
}
