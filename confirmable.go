package auth

import (
	"context"
	"time"
)

// Confirmations is the email confirmation state machine.
//
// It registers itself as a save hook on the storage so that creating an
// account sends instructions and changing the email of a persisted account
// parks the new address until it is confirmed.
type Confirmations struct {
	machine
}

var (
	_ SaveHook         = (*Confirmations)(nil)
	_ TokenRegenerator = (*Confirmations)(nil)
)

// NewConfirmations validates cfg and returns the confirmation machine.
func NewConfirmations(cfg Config, store Storage, mailer Mailer, opts ...Option) (*Confirmations, error) {
	m, err := newMachine("confirmations", cfg, store, mailer, opts)
	if err != nil {
		return nil, err
	}
	c := &Confirmations{machine: m}
	registerHooks(store, c)
	return c, nil
}

// SendInstructions issues a new confirmation token, saves the account and
// mails the instructions.
func (c *Confirmations) SendInstructions(ctx context.Context, acc Confirmable) error {
	state := acc.Confirmation()
	if state.IsConfirmed() && !state.HasPendingEmail() {
		return newAlreadyConfirmed(c.cfg.EmailField)
	}

	token, err := c.newToken(ctx, FieldConfirmationToken)
	if err != nil {
		return err
	}

	now := c.now()
	state.ConfirmationToken = token
	state.ConfirmationSentAt = &now

	if err := c.save(ctx, acc); err != nil {
		return err
	}

	c.deliver(ctx, ConfirmationInstructions(acc, c.cfg.ConfirmationExpiration))
	c.record(ctx, ActivityEventConfirmationSent, acc, map[string]any{
		"pending_email": state.UnconfirmedEmail,
	})
	return nil
}

// ResendInstructions finds the account owning email and sends new instructions.
func (c *Confirmations) ResendInstructions(ctx context.Context, email string) (Account, error) {
	acc, err := c.findBy(ctx, c.cfg.EmailField, email, ErrAccountNotFound)
	if err != nil {
		return nil, err
	}
	conf, ok := acc.(Confirmable)
	if !ok {
		return nil, capabilityError("confirmation", acc)
	}
	return acc, c.SendInstructions(ctx, conf)
}

// Confirm marks the account confirmed, promoting a pending email, and saves it.
func (c *Confirmations) Confirm(ctx context.Context, acc Confirmable) error {
	state := acc.Confirmation()
	if state.IsConfirmed() && !state.HasPendingEmail() {
		return wrapPersistence(newAlreadyConfirmed(c.cfg.EmailField))
	}

	// confirmed_at must move forward for the change to be detected on save.
	now := c.now()
	if prev := state.ConfirmedAt; prev != nil && !now.After(*prev) {
		now = prev.Add(time.Microsecond)
	}
	state.markConfirmed(now)

	if state.HasPendingEmail() {
		acc.SetEmail(state.UnconfirmedEmail)
		state.UnconfirmedEmail = ""
	}

	if err := c.save(ctx, acc); err != nil {
		return err
	}

	c.record(ctx, ActivityEventAccountConfirmed, acc, nil)
	return nil
}

// ConfirmByToken confirms the account holding token.
func (c *Confirmations) ConfirmByToken(ctx context.Context, token string) (Account, error) {
	acc, err := c.findBy(ctx, FieldConfirmationToken, token, ErrTokenNotFound)
	if err != nil {
		return nil, err
	}
	conf, ok := acc.(Confirmable)
	if !ok {
		return nil, capabilityError("confirmation", acc)
	}
	return acc, c.Confirm(ctx, conf)
}

// Skip marks the account confirmed without saving or mailing.
func (c *Confirmations) Skip(acc Confirmable) {
	acc.Confirmation().markConfirmed(c.now())
}

// IsConfirmed reports whether acc confirmed its email.
func (c *Confirmations) IsConfirmed(acc Confirmable) bool {
	return acc.Confirmation().IsConfirmed()
}

// Validate rejects a confirmation of an already confirmed account and
// confirmations of expired tokens.
func (c *Confirmations) Validate(_ context.Context, event *SaveEvent) error {
	acc, ok := event.Account.(Confirmable)
	if !ok {
		return nil
	}

	state := acc.Confirmation()
	if !event.Changes.ConfirmedAtChanged || state.ConfirmedAt == nil {
		return nil
	}

	if event.Changes.ConfirmedAtWas != nil && !event.Changes.EmailChanged {
		return newAlreadyConfirmed(c.cfg.EmailField)
	}

	if sentAtExpired(state.ConfirmationSentAt, c.cfg.ConfirmationExpiration, c.now()) {
		return newTokenExpired(FieldConfirmationToken)
	}

	return nil
}

// BeforeSave parks a changed email of a persisted account in
// UnconfirmedEmail and issues a confirmation token for it.
func (c *Confirmations) BeforeSave(ctx context.Context, event *SaveEvent) error {
	if event.Created {
		return nil
	}

	acc, ok := event.Account.(Confirmable)
	if !ok {
		return nil
	}

	changes := event.Changes
	if !changes.EmailChanged || changes.EmailWas == "" || changes.ConfirmedAtChanged || invitationPending(acc) {
		return nil
	}

	token, err := c.newToken(ctx, FieldConfirmationToken)
	if err != nil {
		return err
	}

	state := acc.Confirmation()
	now := c.now()
	state.UnconfirmedEmail = acc.GetEmail()
	state.ConfirmationToken = token
	state.ConfirmationSentAt = &now
	acc.SetEmail(changes.EmailWas)

	loggerFor(ctx, c.logger).Debug("email change pending confirmation",
		"account_id", acc.AccountID(),
		"pending_email", state.UnconfirmedEmail,
	)

	event.After(func(ctx context.Context) {
		c.deliver(ctx, ConfirmationInstructions(acc, c.cfg.ConfirmationExpiration))
		if c.cfg.SendEmailChangedNotification {
			c.deliver(ctx, EmailChanged(acc))
		}
		c.record(ctx, ActivityEventEmailChangeQueued, acc, map[string]any{
			"pending_email": state.UnconfirmedEmail,
		})
	})

	return nil
}

// AfterSave sends confirmation instructions to newly created accounts that
// are neither confirmed nor invited.
func (c *Confirmations) AfterSave(ctx context.Context, event *SaveEvent) error {
	if !event.Created {
		return nil
	}

	acc, ok := event.Account.(Confirmable)
	if !ok {
		return nil
	}

	state := acc.Confirmation()
	if state.ConfirmedAt != nil || state.ConfirmationSentAt != nil || invitationPending(acc) {
		return nil
	}

	return c.SendInstructions(ctx, acc)
}

// RegenerateToken draws a new confirmation token after a collision.
func (c *Confirmations) RegenerateToken(ctx context.Context, event *SaveEvent, field string) (bool, error) {
	if field != FieldConfirmationToken {
		return false, nil
	}

	acc, ok := event.Account.(Confirmable)
	if !ok || acc.Confirmation().ConfirmationToken == "" {
		return false, nil
	}

	token, err := c.newToken(ctx, FieldConfirmationToken)
	if err != nil {
		return false, err
	}
	acc.Confirmation().ConfirmationToken = token
	return true, nil
}
