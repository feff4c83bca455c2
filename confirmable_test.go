package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSendsConfirmationInstructions(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())

	p := h.register(t, "New.User@Example.com", "secret-password")

	assert.Equal(t, "new.user@example.com", p.Email)
	assert.False(t, p.IsConfirmed())
	assert.Len(t, p.ConfirmationToken, 6)
	require.NotNil(t, p.ConfirmationSentAt)
	assert.True(t, p.ConfirmationSentAt.Equal(testEpoch))

	msg, ok := h.mailer.Last(auth.MessageConfirmationInstructions)
	require.True(t, ok)
	assert.Equal(t, "new.user@example.com", msg.To)
	assert.Equal(t, p.ConfirmationToken, msg.Token)
	assert.Equal(t, p.ID, msg.AccountID)
	assert.Equal(t, 24*time.Hour, msg.ExpiresIn)

	stored := h.reload(t, p)
	assert.Equal(t, p.ConfirmationToken, stored.ConfirmationToken)
	assert.Contains(t, h.sink.Types(), auth.ActivityEventConfirmationSent)
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())

	_, err := h.lifecycle.Register(context.Background(), "not-an-email", "secret-password")

	assert.Equal(t, auth.FieldEmail, auth.ErrorField(err))
	assert.Equal(t, 0, h.store.Len())
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())
	h.register(t, "dup@example.com", "secret-password")

	_, err := h.lifecycle.Register(context.Background(), "DUP@example.com", "another-password")

	assert.True(t, auth.IsPersistenceError(err))
	assert.True(t, auth.IsUniqueViolation(err))
	assert.Equal(t, auth.FieldEmail, auth.ErrorField(err))
	assert.Equal(t, 1, h.store.Len())
}

func TestConfirmByToken(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())
	p := h.register(t, "confirm@example.com", "secret-password")
	token := p.ConfirmationToken

	h.clock.Advance(time.Hour)
	acc, err := h.lifecycle.Confirmations().ConfirmByToken(context.Background(), token)
	require.NoError(t, err)

	confirmed := acc.(*auth.Principal)
	assert.True(t, confirmed.IsConfirmed())
	assert.Empty(t, confirmed.ConfirmationToken)

	stored := h.reload(t, p)
	require.NotNil(t, stored.ConfirmedAt)
	assert.True(t, stored.ConfirmedAt.Equal(testEpoch.Add(time.Hour)))
	assert.Empty(t, stored.ConfirmationToken)
	assert.Contains(t, h.sink.Types(), auth.ActivityEventAccountConfirmed)

	_, err = h.lifecycle.Confirmations().ConfirmByToken(context.Background(), token)
	assert.True(t, auth.IsNotFound(err))
}

func TestConfirmByUnknownToken(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())

	_, err := h.lifecycle.Confirmations().ConfirmByToken(context.Background(), "000000")
	assert.True(t, auth.IsNotFound(err))
	assert.Equal(t, auth.FieldConfirmationToken, auth.ErrorField(err))

	_, err = h.lifecycle.Confirmations().ConfirmByToken(context.Background(), "")
	assert.True(t, auth.IsNotFound(err))
}

func TestConfirmationExpiry(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		expired bool
	}{
		{"one second before the window ends", 24*time.Hour - time.Second, false},
		{"at the window end", 24 * time.Hour, false},
		{"one second after the window ends", 24*time.Hour + time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, auth.DefaultConfig())
			p := h.register(t, "expiry@example.com", "secret-password")

			h.clock.Advance(tt.elapsed)
			_, err := h.lifecycle.Confirmations().ConfirmByToken(context.Background(), p.ConfirmationToken)

			if !tt.expired {
				require.NoError(t, err)
				assert.True(t, h.reload(t, p).IsConfirmed())
				return
			}

			assert.True(t, auth.IsPersistenceError(err))
			assert.True(t, auth.IsTokenExpired(err))
			assert.Equal(t, auth.FieldConfirmationToken, auth.ErrorField(err))

			stored := h.reload(t, p)
			assert.False(t, stored.IsConfirmed())
			assert.Equal(t, p.ConfirmationToken, stored.ConfirmationToken)
		})
	}
}

func TestConfirmAlreadyConfirmed(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())
	p := h.confirmed(t, "twice@example.com", "secret-password")
	before := *p.ConfirmedAt

	err := h.lifecycle.Confirmations().Confirm(context.Background(), p)

	assert.True(t, auth.IsAlreadyConfirmed(err))
	assert.Equal(t, auth.FieldEmail, auth.ErrorField(err))
	assert.True(t, h.reload(t, p).ConfirmedAt.Equal(before))
}

func TestSendInstructionsToConfirmedAccount(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())
	p := h.confirmed(t, "done@example.com", "secret-password")
	sent := len(h.mailer.Messages())

	err := h.lifecycle.Confirmations().SendInstructions(context.Background(), p)

	assert.True(t, auth.IsAlreadyConfirmed(err))
	assert.Len(t, h.mailer.Messages(), sent)
}

func TestResendInstructionsIssuesFreshToken(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())
	p := h.register(t, "resend@example.com", "secret-password")
	first := p.ConfirmationToken

	h.clock.Advance(23 * time.Hour)
	acc, err := h.lifecycle.Confirmations().ResendInstructions(context.Background(), "resend@example.com")
	require.NoError(t, err)

	resent := acc.(*auth.Principal)
	assert.NotEmpty(t, resent.ConfirmationToken)
	assert.True(t, resent.ConfirmationSentAt.Equal(testEpoch.Add(23*time.Hour)))
	assert.Len(t, h.mailer.ByKind(auth.MessageConfirmationInstructions), 2)

	// the new send restarts the window
	h.clock.Advance(2 * time.Hour)
	_, err = h.lifecycle.Confirmations().ConfirmByToken(context.Background(), resent.ConfirmationToken)
	require.NoError(t, err)

	assert.NotEqual(t, first, resent.ConfirmationToken)
	_, err = h.lifecycle.Confirmations().ConfirmByToken(context.Background(), first)
	assert.True(t, auth.IsNotFound(err))
}

func TestResendInstructionsUnknownEmail(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())

	_, err := h.lifecycle.Confirmations().ResendInstructions(context.Background(), "ghost@example.com")
	assert.True(t, auth.IsNotFound(err))
}

func TestEmailChangeRoundTrip(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())
	p := h.confirmed(t, "old@example.com", "secret-password")
	originalConfirmedAt := *p.ConfirmedAt

	p.Email = "new@example.com"
	require.NoError(t, h.store.Save(context.Background(), p))

	assert.Equal(t, "old@example.com", p.Email)
	assert.Equal(t, "new@example.com", p.UnconfirmedEmail)
	assert.NotEmpty(t, p.ConfirmationToken)
	assert.True(t, p.IsConfirmed())

	stored := h.reload(t, p)
	assert.Equal(t, "old@example.com", stored.Email)
	assert.Equal(t, "new@example.com", stored.UnconfirmedEmail)
	assert.True(t, stored.ConfirmedAt.Equal(originalConfirmedAt))

	instructions, ok := h.mailer.Last(auth.MessageConfirmationInstructions)
	require.True(t, ok)
	assert.Equal(t, "new@example.com", instructions.To)
	assert.Equal(t, p.ConfirmationToken, instructions.Token)

	notice, ok := h.mailer.Last(auth.MessageEmailChanged)
	require.True(t, ok)
	assert.Equal(t, "old@example.com", notice.To)
	assert.Equal(t, "new@example.com", notice.UnconfirmedEmail)
	assert.Contains(t, h.sink.Types(), auth.ActivityEventEmailChangeQueued)

	h.clock.Advance(time.Hour)
	_, err := h.lifecycle.Confirmations().ConfirmByToken(context.Background(), p.ConfirmationToken)
	require.NoError(t, err)

	stored = h.reload(t, p)
	assert.Equal(t, "new@example.com", stored.Email)
	assert.Empty(t, stored.UnconfirmedEmail)
	assert.Empty(t, stored.ConfirmationToken)
	assert.True(t, stored.ConfirmedAt.After(originalConfirmedAt))
}

func TestEmailChangeConfirmedWithinTheSameInstant(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())
	p := h.register(t, "same@example.com", "secret-password")
	_, err := h.lifecycle.Confirmations().ConfirmByToken(context.Background(), p.ConfirmationToken)
	require.NoError(t, err)
	p = h.reload(t, p)

	p.Email = "same-new@example.com"
	require.NoError(t, h.store.Save(context.Background(), p))

	_, err = h.lifecycle.Confirmations().ConfirmByToken(context.Background(), p.ConfirmationToken)
	require.NoError(t, err)

	stored := h.reload(t, p)
	assert.Equal(t, "same-new@example.com", stored.Email)
	assert.Empty(t, stored.UnconfirmedEmail)
	assert.True(t, stored.ConfirmedAt.After(testEpoch))
}

func TestEmailChangeWithoutNotification(t *testing.T) {
	cfg := auth.DefaultConfig()
	cfg.SendEmailChangedNotification = false
	h := newHarness(t, cfg)
	p := h.confirmed(t, "quiet@example.com", "secret-password")

	p.Email = "quiet-new@example.com"
	require.NoError(t, h.store.Save(context.Background(), p))

	assert.Empty(t, h.mailer.ByKind(auth.MessageEmailChanged))
	assert.Len(t, h.mailer.ByKind(auth.MessageConfirmationInstructions), 2)
}

func TestEmailChangeToTakenAddressIsDetectedOnConfirm(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())
	h.confirmed(t, "taken@example.com", "secret-password")
	p := h.confirmed(t, "mover@example.com", "secret-password")

	p.Email = "taken@example.com"
	require.NoError(t, h.store.Save(context.Background(), p))

	h.clock.Advance(time.Minute)
	_, err := h.lifecycle.Confirmations().ConfirmByToken(context.Background(), p.ConfirmationToken)

	assert.True(t, auth.IsUniqueViolation(err))
	assert.Equal(t, auth.FieldEmail, auth.ErrorField(err))
	assert.Equal(t, "mover@example.com", h.reload(t, p).Email)
}

func TestEmailChangeConfirmationExpires(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())
	p := h.confirmed(t, "slow@example.com", "secret-password")

	p.Email = "slow-new@example.com"
	require.NoError(t, h.store.Save(context.Background(), p))

	h.clock.Advance(25 * time.Hour)
	_, err := h.lifecycle.Confirmations().ConfirmByToken(context.Background(), p.ConfirmationToken)

	assert.True(t, auth.IsTokenExpired(err))
	stored := h.reload(t, p)
	assert.Equal(t, "slow@example.com", stored.Email)
	assert.Equal(t, "slow-new@example.com", stored.UnconfirmedEmail)
}

func TestSkipConfirmation(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())

	p := &auth.Principal{Email: "skip@example.com", PasswordDigest: "digest"}
	h.lifecycle.Confirmations().Skip(p)
	require.NoError(t, h.store.Save(context.Background(), p))

	assert.True(t, h.lifecycle.Confirmations().IsConfirmed(p))
	assert.Empty(t, h.mailer.Messages())
	assert.Empty(t, p.ConfirmationToken)
}

func TestInvitedAccountsSkipConfirmationTriggers(t *testing.T) {
	h := newHarness(t, auth.DefaultConfig())

	p := &auth.Principal{Email: "invited@example.com", InvitationToken: "invite-1"}
	require.NoError(t, h.store.Save(context.Background(), p))
	assert.Empty(t, h.mailer.Messages())

	p.Email = "invited-new@example.com"
	require.NoError(t, h.store.Save(context.Background(), p))

	stored := h.reload(t, p)
	assert.Equal(t, "invited-new@example.com", stored.Email)
	assert.Empty(t, stored.UnconfirmedEmail)
	assert.Empty(t, h.mailer.Messages())
}

func TestConfirmationsWithoutHookRegistry(t *testing.T) {
	store := &plainStorage{inner: auth.NewMemoryStore()}
	mailer := &recordingMailer{}
	confirmations, err := auth.NewConfirmations(auth.DefaultConfig(), store, mailer)
	require.NoError(t, err)

	p := &auth.Principal{Email: "manual@example.com", PasswordDigest: "digest"}
	require.NoError(t, store.Save(context.Background(), p))
	assert.Empty(t, mailer.Messages())

	require.NoError(t, confirmations.SendInstructions(context.Background(), p))
	assert.Len(t, mailer.ByKind(auth.MessageConfirmationInstructions), 1)
}

// plainStorage hides the hook registry of the wrapped store.
type plainStorage struct {
	inner *auth.MemoryStore
}

func (s *plainStorage) Save(ctx context.Context, acc auth.Account) error {
	return s.inner.Save(ctx, acc)
}

func (s *plainStorage) ExistsWithField(ctx context.Context, field, value string) (bool, error) {
	return s.inner.ExistsWithField(ctx, field, value)
}

func (s *plainStorage) FindOneByField(ctx context.Context, field, value string) (auth.Account, error) {
	return s.inner.FindOneByField(ctx, field, value)
}

func (s *plainStorage) HasField(field string) bool { return s.inner.HasField(field) }
