package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Column names of the principals table.
const (
	FieldID                 = "id"
	FieldEmail              = "email"
	FieldPasswordDigest     = "password_digest"
	FieldInvitationToken    = "invitation_token"
	FieldUnconfirmedEmail   = "unconfirmed_email"
	FieldConfirmationToken  = "confirmation_token"
	FieldResetPasswordToken = "reset_password_token"
)

// Principal is the authenticated account record.
type Principal struct {
	bun.BaseModel   `bun:"table:principals,alias:prn"`
	ID              uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email           string    `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordDigest  string    `bun:"password_digest,nullzero" json:"-"`
	InvitationToken string    `bun:"invitation_token,nullzero" json:"-"`
	ConfirmationState
	RecoveryState
	AuthTokens []string   `bun:"auth_tokens" json:"-"`
	CreatedAt  *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt  *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`

	tracker ChangeTracker
}

var (
	_ Confirmable            = (*Principal)(nil)
	_ Recoverable            = (*Principal)(nil)
	_ SessionAuthenticatable = (*Principal)(nil)
	_ Invitable              = (*Principal)(nil)
	_ FieldValuer            = (*Principal)(nil)
)

func (p *Principal) AccountID() uuid.UUID           { return p.ID }
func (p *Principal) GetEmail() string               { return p.Email }
func (p *Principal) SetEmail(email string)          { p.Email = email }
func (p *Principal) GetPasswordDigest() string      { return p.PasswordDigest }
func (p *Principal) SetPasswordDigest(digest string) { p.PasswordDigest = digest }
func (p *Principal) Tracker() *ChangeTracker        { return &p.tracker }
func (p *Principal) Confirmation() *ConfirmationState {
	return &p.ConfirmationState
}
func (p *Principal) Recovery() *RecoveryState { return &p.RecoveryState }
func (p *Principal) GetAuthTokens() []string  { return p.AuthTokens }
func (p *Principal) SetAuthTokens(tokens []string) {
	p.AuthTokens = tokens
}

// InvitationPending reports whether the principal was invited and has not
// accepted yet.
func (p *Principal) InvitationPending() bool { return p.InvitationToken != "" }

// IsConfirmed reports whether the principal confirmed its email.
func (p *Principal) IsConfirmed() bool { return p.ConfirmationState.IsConfirmed() }

// FieldValue returns the value of a string column.
func (p *Principal) FieldValue(field string) (string, bool) {
	switch field {
	case FieldID:
		return p.ID.String(), true
	case FieldEmail:
		return p.Email, true
	case FieldPasswordDigest:
		return p.PasswordDigest, true
	case FieldInvitationToken:
		return p.InvitationToken, true
	case FieldUnconfirmedEmail:
		return p.UnconfirmedEmail, true
	case FieldConfirmationToken:
		return p.ConfirmationToken, true
	case FieldResetPasswordToken:
		return p.ResetPasswordToken, true
	}
	return "", false
}

// MarkPersisted records the current values as stored state. Repositories
// call it after loading a principal.
func (p *Principal) MarkPersisted() *Principal {
	p.tracker.Commit(SnapshotOf(p))
	return p
}
