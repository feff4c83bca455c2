package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// maxSaveAttempts bounds write retries after token collisions.
const maxSaveAttempts = 5

// Storage persists accounts and answers field lookups.
type Storage interface {
	Save(ctx context.Context, acc Account) error
	ExistsWithField(ctx context.Context, field, value string) (bool, error)
	FindOneByField(ctx context.Context, field, value string) (Account, error)
	HasField(field string) bool
}

// AuthTokenStore mutates the session token set of one account atomically.
type AuthTokenStore interface {
	UpdateAuthTokens(ctx context.Context, id uuid.UUID, fn func(tokens []string) []string) ([]string, error)
	FindByAuthToken(ctx context.Context, token string) (Account, error)
}

// HookRegistry accepts save hooks.
type HookRegistry interface {
	RegisterHooks(hooks ...SaveHook)
}

// SaveEvent is handed to hooks while an account is being saved.
type SaveEvent struct {
	Account Account
	Changes Changes
	Created bool

	effects []func(ctx context.Context)
}

// After queues fn to run once the write succeeded.
func (e *SaveEvent) After(fn func(ctx context.Context)) {
	if fn != nil {
		e.effects = append(e.effects, fn)
	}
}

// SaveHook observes account saves.
//
// Validate runs first and may reject the save. BeforeSave may mutate the
// account before it is written. AfterSave runs once the write committed.
type SaveHook interface {
	Validate(ctx context.Context, event *SaveEvent) error
	BeforeSave(ctx context.Context, event *SaveEvent) error
	AfterSave(ctx context.Context, event *SaveEvent) error
}

// TokenRegenerator hooks own a unique token column and can draw a new
// value when a write collides on it.
type TokenRegenerator interface {
	RegenerateToken(ctx context.Context, event *SaveEvent, field string) (bool, error)
}

// writeFunc performs the actual insert or update.
type writeFunc func(ctx context.Context, created bool) error

type hookChain struct {
	mu    sync.RWMutex
	hooks []SaveHook
}

func (h *hookChain) RegisterHooks(hooks ...SaveHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, hook := range hooks {
		if hook != nil {
			h.hooks = append(h.hooks, hook)
		}
	}
}

func (h *hookChain) list() []SaveHook {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]SaveHook, len(h.hooks))
	copy(out, h.hooks)
	return out
}

// save runs the hook pipeline around write.
func (h *hookChain) save(ctx context.Context, acc Account, write writeFunc) error {
	hooks := h.list()
	event := &SaveEvent{
		Account: acc,
		Changes: ChangesOf(acc),
		Created: !acc.Tracker().Persisted(),
	}

	for _, hook := range hooks {
		if err := hook.Validate(ctx, event); err != nil {
			return wrapPersistence(err)
		}
	}

	for _, hook := range hooks {
		if err := hook.BeforeSave(ctx, event); err != nil {
			return wrapPersistence(err)
		}
	}

	for attempt := 1; ; attempt++ {
		err := write(ctx, event.Created)
		if err == nil {
			break
		}

		field, collided := uniqueViolationField(err)
		if !collided || attempt >= maxSaveAttempts {
			return wrapPersistence(err)
		}

		retry, rerr := regenerate(ctx, hooks, event, field)
		if rerr != nil {
			return wrapPersistence(rerr)
		}
		if !retry {
			return wrapPersistence(err)
		}
	}

	acc.Tracker().Commit(SnapshotOf(acc))

	for _, effect := range event.effects {
		effect(ctx)
	}

	for _, hook := range hooks {
		if err := hook.AfterSave(ctx, event); err != nil {
			return err
		}
	}

	return nil
}

func regenerate(ctx context.Context, hooks []SaveHook, event *SaveEvent, field string) (bool, error) {
	for _, hook := range hooks {
		r, ok := hook.(TokenRegenerator)
		if !ok {
			continue
		}
		done, err := r.RegenerateToken(ctx, event, field)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}
