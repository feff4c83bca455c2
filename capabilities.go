package auth

import (
	"time"

	"github.com/google/uuid"
)

// Account is the record the lifecycle machines operate on.
type Account interface {
	AccountID() uuid.UUID
	GetEmail() string
	SetEmail(email string)
	GetPasswordDigest() string
	Tracker() *ChangeTracker
}

// Confirmable accounts confirm their email address.
type Confirmable interface {
	Account
	Confirmation() *ConfirmationState
}

// Recoverable accounts can reset their password through a token.
type Recoverable interface {
	Account
	Recovery() *RecoveryState
	SetPasswordDigest(digest string)
}

// SessionAuthenticatable accounts hold a bounded set of session tokens.
type SessionAuthenticatable interface {
	Account
	GetAuthTokens() []string
	SetAuthTokens(tokens []string)
}

// Invitable accounts may be part of an invitation flow, which bypasses
// confirmation triggers.
type Invitable interface {
	InvitationPending() bool
}

// FieldValuer exposes storage column values by name.
type FieldValuer interface {
	FieldValue(field string) (string, bool)
}

// ConfirmationState holds the email confirmation columns.
type ConfirmationState struct {
	UnconfirmedEmail   string     `bun:"unconfirmed_email,nullzero" json:"unconfirmed_email,omitempty"`
	ConfirmationToken  string     `bun:"confirmation_token,nullzero,unique" json:"-"`
	ConfirmationSentAt *time.Time `bun:"confirmation_sent_at,nullzero" json:"confirmation_sent_at,omitempty"`
	ConfirmedAt        *time.Time `bun:"confirmed_at,nullzero" json:"confirmed_at,omitempty"`
}

// IsConfirmed reports whether a confirmation timestamp is set.
func (s *ConfirmationState) IsConfirmed() bool {
	return s != nil && s.ConfirmedAt != nil
}

// HasPendingEmail reports whether an email change awaits confirmation.
func (s *ConfirmationState) HasPendingEmail() bool {
	return s != nil && s.UnconfirmedEmail != ""
}

func (s *ConfirmationState) markConfirmed(at time.Time) {
	s.ConfirmedAt = &at
	s.ConfirmationToken = ""
}

// RecoveryState holds the password recovery columns.
type RecoveryState struct {
	ResetPasswordToken  string     `bun:"reset_password_token,nullzero,unique" json:"-"`
	ResetPasswordSentAt *time.Time `bun:"reset_password_sent_at,nullzero" json:"reset_password_sent_at,omitempty"`
}

// HasPendingReset reports whether a reset token is outstanding.
func (s *RecoveryState) HasPendingReset() bool {
	return s != nil && s.ResetPasswordToken != ""
}

func (s *RecoveryState) clear() {
	s.ResetPasswordToken = ""
	s.ResetPasswordSentAt = nil
}

// Snapshot captures the tracked values of an account.
type Snapshot struct {
	Email              string
	PasswordDigest     string
	ConfirmedAt        *time.Time
	ResetPasswordToken string
}

// SnapshotOf reads the tracked values of acc.
func SnapshotOf(acc Account) Snapshot {
	s := Snapshot{
		Email:          acc.GetEmail(),
		PasswordDigest: acc.GetPasswordDigest(),
	}
	if c, ok := acc.(Confirmable); ok && c.Confirmation() != nil {
		s.ConfirmedAt = copyTime(c.Confirmation().ConfirmedAt)
	}
	if r, ok := acc.(Recoverable); ok && r.Recovery() != nil {
		s.ResetPasswordToken = r.Recovery().ResetPasswordToken
	}
	return s
}

// ChangeTracker remembers the values an account had when it was last
// loaded or saved.
type ChangeTracker struct {
	original  Snapshot
	persisted bool
}

// Original returns the last persisted snapshot.
func (t *ChangeTracker) Original() Snapshot { return t.original }

// Persisted reports whether the account exists in storage.
func (t *ChangeTracker) Persisted() bool { return t.persisted }

// Commit records s as persisted state.
func (t *ChangeTracker) Commit(s Snapshot) {
	t.original = s
	t.persisted = true
}

// Changes describes how an account differs from its persisted state.
type Changes struct {
	EmailChanged          bool
	EmailWas              string
	ConfirmedAtChanged    bool
	ConfirmedAtWas        *time.Time
	PasswordDigestChanged bool
	ResetTokenWas         string
}

// ChangesOf compares acc with its tracker.
func ChangesOf(acc Account) Changes {
	was := acc.Tracker().Original()
	now := SnapshotOf(acc)
	return Changes{
		EmailChanged:          was.Email != now.Email,
		EmailWas:              was.Email,
		ConfirmedAtChanged:    !sameTime(was.ConfirmedAt, now.ConfirmedAt),
		ConfirmedAtWas:        was.ConfirmedAt,
		PasswordDigestChanged: was.PasswordDigest != now.PasswordDigest,
		ResetTokenWas:         was.ResetPasswordToken,
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func invitationPending(acc Account) bool {
	inv, ok := acc.(Invitable)
	return ok && inv.InvitationPending()
}
