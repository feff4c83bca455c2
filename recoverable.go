package auth

import (
	"context"
)

// FieldPassword is the field reported for rejected new passwords.
const FieldPassword = "password"

// Recoveries is the password recovery state machine.
type Recoveries struct {
	machine
}

var (
	_ SaveHook         = (*Recoveries)(nil)
	_ TokenRegenerator = (*Recoveries)(nil)
)

// NewRecoveries validates cfg and returns the recovery machine.
func NewRecoveries(cfg Config, store Storage, mailer Mailer, opts ...Option) (*Recoveries, error) {
	m, err := newMachine("recoveries", cfg, store, mailer, opts)
	if err != nil {
		return nil, err
	}
	r := &Recoveries{machine: m}
	registerHooks(store, r)
	return r, nil
}

// SendInstructions issues a reset token, saves the account and mails the
// instructions. Confirmable accounts must be confirmed first.
func (r *Recoveries) SendInstructions(ctx context.Context, acc Recoverable) error {
	if conf, ok := acc.(Confirmable); ok && !conf.Confirmation().IsConfirmed() {
		return newUnconfirmed(r.cfg.EmailField)
	}

	if err := r.issueToken(ctx, acc); err != nil {
		return err
	}
	if err := r.save(ctx, acc); err != nil {
		return err
	}

	r.deliver(ctx, ResetPasswordInstructions(acc, r.cfg.ResetPasswordExpiration))
	r.record(ctx, ActivityEventResetRequested, acc, nil)
	return nil
}

// SetAndSendPasswordInstructions gives an account without password a random
// one and mails a token to choose a real one. Accounts with a password are
// left untouched.
func (r *Recoveries) SetAndSendPasswordInstructions(ctx context.Context, acc Recoverable) error {
	if acc.GetPasswordDigest() != "" {
		return nil
	}

	password, err := NewRandomPassword()
	if err != nil {
		return err
	}
	digest, err := r.hasher.HashPassword(password)
	if err != nil {
		return err
	}
	acc.SetPasswordDigest(digest)

	if conf, ok := acc.(Confirmable); ok {
		conf.Confirmation().markConfirmed(r.now())
	}

	if err := r.issueToken(ctx, acc); err != nil {
		return err
	}
	if err := r.save(ctx, acc); err != nil {
		return err
	}

	r.deliver(ctx, SetPasswordInstructions(acc, r.cfg.ResetPasswordExpiration))
	r.record(ctx, ActivityEventResetRequested, acc, map[string]any{"set_password": true})
	return nil
}

// RequestReset finds the account owning email and sends reset instructions.
func (r *Recoveries) RequestReset(ctx context.Context, email string) (Account, error) {
	acc, err := r.findBy(ctx, r.cfg.EmailField, email, ErrAccountNotFound)
	if err != nil {
		return nil, err
	}
	rec, ok := acc.(Recoverable)
	if !ok {
		return nil, capabilityError("recovery", acc)
	}
	return acc, r.SendInstructions(ctx, rec)
}

// ResetPassword sets password on the account holding token. Expiration is
// enforced by Validate when the account is saved.
func (r *Recoveries) ResetPassword(ctx context.Context, token, password string) (Account, error) {
	acc, err := r.resetPassword(ctx, token, password)
	if err != nil {
		return nil, err
	}

	r.record(ctx, ActivityEventPasswordReset, acc, nil)
	return acc, nil
}

// resetPassword saves the new password without reporting activity.
func (r *Recoveries) resetPassword(ctx context.Context, token, password string) (Account, error) {
	acc, err := r.findBy(ctx, FieldResetPasswordToken, token, ErrTokenNotFound)
	if err != nil {
		return nil, err
	}
	rec, ok := acc.(Recoverable)
	if !ok {
		return nil, capabilityError("recovery", acc)
	}

	if password == "" {
		return nil, fieldError(ErrNoEmptyString, FieldPassword)
	}

	digest, err := r.hasher.HashPassword(password)
	if err != nil {
		return nil, err
	}
	rec.SetPasswordDigest(digest)

	if err := r.save(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (r *Recoveries) issueToken(ctx context.Context, acc Recoverable) error {
	token, err := r.newToken(ctx, FieldResetPasswordToken)
	if err != nil {
		return err
	}
	now := r.now()
	state := acc.Recovery()
	state.ResetPasswordToken = token
	state.ResetPasswordSentAt = &now
	return nil
}

// Validate rejects password changes once the reset window has passed.
func (r *Recoveries) Validate(_ context.Context, event *SaveEvent) error {
	acc, ok := event.Account.(Recoverable)
	if !ok || !event.Changes.PasswordDigestChanged {
		return nil
	}

	if sentAtExpired(acc.Recovery().ResetPasswordSentAt, r.cfg.ResetPasswordExpiration, r.now()) {
		return newTokenExpired(FieldResetPasswordToken)
	}
	return nil
}

// BeforeSave invalidates the stored reset token when the password of a
// persisted account changes. A token issued in the same save is kept.
func (r *Recoveries) BeforeSave(ctx context.Context, event *SaveEvent) error {
	if event.Created || !event.Changes.PasswordDigestChanged {
		return nil
	}

	acc, ok := event.Account.(Recoverable)
	if !ok {
		return nil
	}

	state := acc.Recovery()
	if !state.HasPendingReset() || state.ResetPasswordToken != event.Changes.ResetTokenWas {
		return nil
	}

	state.clear()
	loggerFor(ctx, r.logger).Debug("reset token invalidated", "account_id", acc.AccountID())
	return nil
}

// AfterSave implements SaveHook.
func (r *Recoveries) AfterSave(context.Context, *SaveEvent) error { return nil }

// RegenerateToken draws a new reset token after a collision.
func (r *Recoveries) RegenerateToken(ctx context.Context, event *SaveEvent, field string) (bool, error) {
	if field != FieldResetPasswordToken {
		return false, nil
	}

	acc, ok := event.Account.(Recoverable)
	if !ok || acc.Recovery().ResetPasswordToken == "" {
		return false, nil
	}

	token, err := r.newToken(ctx, FieldResetPasswordToken)
	if err != nil {
		return false, err
	}
	acc.Recovery().ResetPasswordToken = token
	return true, nil
}
