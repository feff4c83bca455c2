package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// machine holds what the confirmation and recovery state machines share.
type machine struct {
	settings
	cfg    Config
	store  Storage
	mailer Mailer
}

func newMachine(name string, cfg Config, store Storage, mailer Mailer, opts []Option) (machine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return machine{}, err
	}

	if store == nil {
		return machine{}, newConfigurationError("storage is required", map[string]any{
			"component": name,
		})
	}

	if !store.HasField(cfg.EmailField) {
		return machine{}, newConfigurationError("email field not found in storage", map[string]any{
			"component":   name,
			"email_field": cfg.EmailField,
		})
	}

	return machine{
		settings: newSettings(name, opts...),
		cfg:      cfg,
		store:    store,
		mailer:   normalizeMailer(mailer),
	}, nil
}

// Config returns the policy the machine was built with.
func (m machine) Config() Config { return m.cfg }

// newToken draws a token unused in column field.
func (m machine) newToken(ctx context.Context, field string) (string, error) {
	return GenerateToken(ctx, m.cfg.TokenLength, func(ctx context.Context, token string) (bool, error) {
		return m.store.ExistsWithField(ctx, field, token)
	})
}

// deliver sends msg. Failures are logged and never undo a save.
func (m machine) deliver(ctx context.Context, msg Message) {
	if err := m.mailer.Send(ctx, msg); err != nil {
		loggerFor(ctx, m.logger).Error("mail delivery failed",
			"kind", msg.Kind,
			"account_id", msg.AccountID,
			"error", err,
		)
	}
}

// findBy looks up one account, reporting misses as notFound attached to field.
func (m machine) findBy(ctx context.Context, field, value string, notFound *goerrors.Error) (Account, error) {
	if value == "" {
		return nil, newNotFound(notFound, map[string]any{metadataField: field})
	}

	acc, err := m.store.FindOneByField(ctx, field, value)
	if err != nil {
		if IsNotFound(err) {
			return nil, newNotFound(notFound, map[string]any{metadataField: field})
		}
		return nil, err
	}
	if acc == nil {
		return nil, newNotFound(notFound, map[string]any{metadataField: field})
	}
	return acc, nil
}

func (m machine) save(ctx context.Context, acc Account) error {
	return wrapPersistence(m.store.Save(ctx, acc))
}

func registerHooks(store Storage, hooks ...SaveHook) {
	if registry, ok := store.(HookRegistry); ok {
		registry.RegisterHooks(hooks...)
	}
}

func capabilityError(capability string, acc Account) error {
	return newConfigurationError("account does not support "+capability, map[string]any{
		"account_id": acc.AccountID().String(),
	})
}
