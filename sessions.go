package auth

import (
	"context"
)

// Sessions manages the bounded set of session tokens of an account.
type Sessions struct {
	settings
	limit int
	store AuthTokenStore
}

// NewSessions validates cfg and returns the session token manager.
func NewSessions(cfg Config, store AuthTokenStore, opts ...Option) (*Sessions, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, newConfigurationError("auth token store is required", nil)
	}
	return &Sessions{
		settings: newSettings("sessions", opts...),
		limit:    cfg.SimultaneousSessions,
		store:    store,
	}, nil
}

// Regenerate issues a new session token, replacing current when given and
// evicting the oldest tokens beyond the session cap.
func (s *Sessions) Regenerate(ctx context.Context, acc SessionAuthenticatable, current string) (string, error) {
	token, err := NewSessionToken()
	if err != nil {
		return "", err
	}

	tokens, err := s.store.UpdateAuthTokens(ctx, acc.AccountID(), func(existing []string) []string {
		return rotateTokens(existing, current, token, s.limit)
	})
	if err != nil {
		return "", wrapPersistence(err)
	}
	acc.SetAuthTokens(tokens)

	s.record(ctx, ActivityEventSessionCreated, acc, map[string]any{
		"sessions": len(tokens),
		"rotated":  current != "",
	})
	return token, nil
}

// Destroy revokes token. With a single session cap every token is revoked.
func (s *Sessions) Destroy(ctx context.Context, acc SessionAuthenticatable, token string) error {
	tokens, err := s.store.UpdateAuthTokens(ctx, acc.AccountID(), func(existing []string) []string {
		if s.limit <= 1 {
			return []string{}
		}
		return withoutToken(existing, token)
	})
	if err != nil {
		return wrapPersistence(err)
	}
	acc.SetAuthTokens(tokens)

	s.record(ctx, ActivityEventSessionRevoked, acc, map[string]any{
		"sessions": len(tokens),
	})
	return nil
}

// DestroyAll revokes every session token of acc.
func (s *Sessions) DestroyAll(ctx context.Context, acc SessionAuthenticatable) error {
	if _, err := s.store.UpdateAuthTokens(ctx, acc.AccountID(), func([]string) []string {
		return []string{}
	}); err != nil {
		return wrapPersistence(err)
	}
	acc.SetAuthTokens([]string{})

	s.record(ctx, ActivityEventSessionRevoked, acc, map[string]any{"all": true})
	return nil
}

// FindByToken returns the account holding token.
func (s *Sessions) FindByToken(ctx context.Context, token string) (Account, error) {
	if token == "" {
		return nil, newNotFound(ErrAccountNotFound, nil)
	}
	acc, err := s.store.FindByAuthToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, newNotFound(ErrAccountNotFound, nil)
	}
	return acc, nil
}

// Limit returns the session cap.
func (s *Sessions) Limit() int { return s.limit }

// rotateTokens keeps the limit-1 most recent tokens other than current,
// then appends next.
func rotateTokens(existing []string, current, next string, limit int) []string {
	if limit <= 1 {
		return []string{next}
	}

	kept := withoutToken(existing, current)
	if len(kept) > limit-1 {
		kept = kept[len(kept)-(limit-1):]
	}

	out := make([]string, 0, len(kept)+1)
	seen := make(map[string]struct{}, len(kept)+1)
	for _, t := range append(kept, next) {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func withoutToken(tokens []string, token string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != token {
			out = append(out, t)
		}
	}
	return out
}
