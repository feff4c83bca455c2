package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageKind identifies the lifecycle email being sent.
type MessageKind string

const (
	MessageConfirmationInstructions  MessageKind = "confirmation_instructions"
	MessageEmailChanged              MessageKind = "email_changed"
	MessageResetPasswordInstructions MessageKind = "reset_password_instructions"
	MessageSetPasswordInstructions   MessageKind = "set_password_instructions"
)

// Message is a lifecycle notification handed to the Mailer.
type Message struct {
	Kind             MessageKind
	To               string
	AccountID        uuid.UUID
	Email            string
	UnconfirmedEmail string
	Token            string
	ExpiresIn        time.Duration
}

// Mailer delivers lifecycle messages. Implementations decide whether to
// deliver inline or defer; callers never wait on delivery outcome beyond
// the returned error.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, msg Message) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, msg Message) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, Message) error { return nil }

func normalizeMailer(m Mailer) Mailer {
	if m == nil {
		return noopMailer{}
	}
	return m
}

// ConfirmationInstructions builds the confirmation email. A pending email
// change is confirmed at the new address.
func ConfirmationInstructions(acc Confirmable, expiresIn time.Duration) Message {
	state := acc.Confirmation()
	to := acc.GetEmail()
	if state.UnconfirmedEmail != "" {
		to = state.UnconfirmedEmail
	}
	return Message{
		Kind:             MessageConfirmationInstructions,
		To:               to,
		AccountID:        acc.AccountID(),
		Email:            acc.GetEmail(),
		UnconfirmedEmail: state.UnconfirmedEmail,
		Token:            state.ConfirmationToken,
		ExpiresIn:        expiresIn,
	}
}

// EmailChanged builds the notification sent to the current address when a
// change to a new address was requested.
func EmailChanged(acc Confirmable) Message {
	state := acc.Confirmation()
	return Message{
		Kind:             MessageEmailChanged,
		To:               acc.GetEmail(),
		AccountID:        acc.AccountID(),
		Email:            acc.GetEmail(),
		UnconfirmedEmail: state.UnconfirmedEmail,
	}
}

// ResetPasswordInstructions builds the reset password email.
func ResetPasswordInstructions(acc Recoverable, expiresIn time.Duration) Message {
	return Message{
		Kind:      MessageResetPasswordInstructions,
		To:        acc.GetEmail(),
		AccountID: acc.AccountID(),
		Email:     acc.GetEmail(),
		Token:     acc.Recovery().ResetPasswordToken,
		ExpiresIn: expiresIn,
	}
}

// SetPasswordInstructions builds the email inviting an account without a
// password to choose one.
func SetPasswordInstructions(acc Recoverable, expiresIn time.Duration) Message {
	msg := ResetPasswordInstructions(acc, expiresIn)
	msg.Kind = MessageSetPasswordInstructions
	return msg
}
