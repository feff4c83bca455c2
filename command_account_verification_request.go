package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ConfirmationRequestMessage struct {
	Email string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
}

func (e ConfirmationRequestMessage) Type() string { return "account.confirmation_request" }

// ConfirmationRequestHandler resends confirmation instructions.
type ConfirmationRequestHandler struct {
	confirmations *Confirmations
}

func NewConfirmationRequestHandler(confirmations *Confirmations) *ConfirmationRequestHandler {
	return &ConfirmationRequestHandler{confirmations: confirmations}
}

func (h *ConfirmationRequestHandler) Execute(ctx context.Context, event ConfirmationRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during confirmation request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmationRequestHandler) execute(ctx context.Context, event ConfirmationRequestMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if _, err := h.confirmations.ResendInstructions(ctx, NormalizeEmail(event.Email)); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send confirmation instructions")
	}

	return nil
}

type ConfirmAccountMessage struct {
	Token      string `json:"token" example:"042817" doc:"Confirmation token"`
	OnResponse func(acc Account)
}

func (e ConfirmAccountMessage) Type() string { return "account.confirm" }

// ConfirmAccountHandler confirms the account holding a confirmation token.
type ConfirmAccountHandler struct {
	confirmations *Confirmations
}

func NewConfirmAccountHandler(confirmations *Confirmations) *ConfirmAccountHandler {
	return &ConfirmAccountHandler{confirmations: confirmations}
}

func (h *ConfirmAccountHandler) Execute(ctx context.Context, event ConfirmAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmAccountHandler) execute(ctx context.Context, event ConfirmAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	acc, err := h.confirmations.ConfirmByToken(ctx, event.Token)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm account")
	}

	if event.OnResponse != nil {
		event.OnResponse(acc)
	}

	return nil
}
