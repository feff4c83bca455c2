package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMesasge struct {
	Token    string `json:"token" example:"042817" doc:"Reset password token"`
	Password string `json:"password" example:"some_secret_word" doc:"Password"`
}

func (p FinalizePasswordResetMesasge) Type() string { return "user.password_reset.finalize" }

type FinalizePasswordResetHandler struct {
	recoveries *Recoveries
	sessions   *Sessions
	activity   ActivitySink
	logger     Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
// Password reset events go to the activity sink of recoveries.
func NewFinalizePasswordResetHandler(recoveries *Recoveries) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		recoveries: recoveries,
	}
}

// WithActivitySink sends password reset events to sink instead of the
// recoveries sink.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = sink
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithSessionRevocation revokes every session token once the password changed.
func (h *FinalizePasswordResetHandler) WithSessionRevocation(sessions *Sessions) *FinalizePasswordResetHandler {
	h.sessions = sessions
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMesasge) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMesasge) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	acc, err := h.recoveries.resetPassword(ctx, event.Token, event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	if h.sessions != nil {
		if sess, ok := acc.(SessionAuthenticatable); ok {
			if err := h.sessions.DestroyAll(ctx, sess); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke sessions after password reset")
			}
		}
	}

	h.recordActivity(ctx, acc)

	return nil
}

func (h *FinalizePasswordResetHandler) recordActivity(ctx context.Context, acc Account) {
	if acc == nil {
		return
	}

	meta := map[string]any{
		"source":           "command",
		"sessions_revoked": h.sessions != nil,
	}

	if h.activity == nil {
		h.recoveries.record(ctx, ActivityEventPasswordReset, acc, meta)
		return
	}

	event := ActivityEvent{
		EventType:  ActivityEventPasswordReset,
		AccountID:  acc.AccountID(),
		Email:      acc.GetEmail(),
		Metadata:   meta,
		OccurredAt: h.recoveries.now(),
	}
	if err := h.activity.Record(ctx, event); err != nil {
		h.getLogger().Warn("activity sink error during password reset", "error", err)
	}
}

func (h *FinalizePasswordResetHandler) getLogger() Logger {
	if h.logger != nil {
		return h.logger
	}
	return h.recoveries.logger
}
