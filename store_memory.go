package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps principals in process memory. Records are copied in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Principal
	hooks   hookChain
	now     Clock
}

var (
	_ Storage        = (*MemoryStore)(nil)
	_ AuthTokenStore = (*MemoryStore)(nil)
	_ HookRegistry   = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := newSettings("memory_store", opts...)
	return &MemoryStore{
		records: map[uuid.UUID]*Principal{},
		now:     s.now,
	}
}

func (m *MemoryStore) RegisterHooks(hooks ...SaveHook) {
	m.hooks.RegisterHooks(hooks...)
}

func (m *MemoryStore) HasField(field string) bool {
	_, ok := (&Principal{}).FieldValue(field)
	return ok
}

func (m *MemoryStore) Save(ctx context.Context, acc Account) error {
	p, ok := acc.(*Principal)
	if !ok || p == nil {
		return wrapPersistence(newConfigurationError("memory store only stores *Principal", map[string]any{
			"type": fmt.Sprintf("%T", acc),
		}))
	}

	return m.hooks.save(ctx, p, func(_ context.Context, created bool) error {
		return m.write(p, created)
	})
}

func (m *MemoryStore) write(p *Principal, created bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	existing, found := m.records[p.ID]

	if created {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		} else if found {
			return newUniqueViolation(FieldID, nil)
		}
		if p.CreatedAt == nil {
			p.CreatedAt = &now
		}
	} else if !found {
		return newNotFound(ErrAccountNotFound, map[string]any{"id": p.ID.String()})
	}

	for _, column := range uniqueColumns {
		value, _ := p.FieldValue(column)
		if value == "" {
			continue
		}
		for id, other := range m.records {
			if id == p.ID {
				continue
			}
			if v, _ := other.FieldValue(column); v == value {
				return newUniqueViolation(column, nil)
			}
		}
	}

	p.UpdatedAt = &now
	record := clonePrincipal(p)
	if found {
		record.AuthTokens = append([]string{}, existing.AuthTokens...)
	} else if record.AuthTokens == nil {
		record.AuthTokens = []string{}
	}
	m.records[p.ID] = record
	return nil
}

func (m *MemoryStore) ExistsWithField(_ context.Context, field, value string) (bool, error) {
	if !m.HasField(field) {
		return false, newConfigurationError("unknown principal field", map[string]any{metadataField: field})
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, record := range m.records {
		if v, _ := record.FieldValue(field); v == value {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) FindOneByField(_ context.Context, field, value string) (Account, error) {
	if !m.HasField(field) {
		return nil, newConfigurationError("unknown principal field", map[string]any{metadataField: field})
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, record := range m.records {
		if v, _ := record.FieldValue(field); v == value {
			return clonePrincipal(record).MarkPersisted(), nil
		}
	}
	return nil, newNotFound(ErrAccountNotFound, map[string]any{metadataField: field})
}

func (m *MemoryStore) UpdateAuthTokens(_ context.Context, id uuid.UUID, fn func([]string) []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return nil, newNotFound(ErrAccountNotFound, map[string]any{"id": id.String()})
	}

	tokens := fn(append([]string(nil), record.AuthTokens...))
	if tokens == nil {
		tokens = []string{}
	}
	record.AuthTokens = tokens
	return append([]string(nil), tokens...), nil
}

func (m *MemoryStore) FindByAuthToken(_ context.Context, token string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, record := range m.records {
		for _, t := range record.AuthTokens {
			if t == token {
				return clonePrincipal(record).MarkPersisted(), nil
			}
		}
	}
	return nil, newNotFound(ErrAccountNotFound, nil)
}

// Get returns a copy of the stored principal.
func (m *MemoryStore) Get(id uuid.UUID) (*Principal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, false
	}
	return clonePrincipal(record).MarkPersisted(), true
}

// Len returns the number of stored principals.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func clonePrincipal(p *Principal) *Principal {
	c := &Principal{
		ID:              p.ID,
		Email:           p.Email,
		PasswordDigest:  p.PasswordDigest,
		InvitationToken: p.InvitationToken,
		ConfirmationState: ConfirmationState{
			UnconfirmedEmail:   p.UnconfirmedEmail,
			ConfirmationToken:  p.ConfirmationToken,
			ConfirmationSentAt: copyTime(p.ConfirmationSentAt),
			ConfirmedAt:        copyTime(p.ConfirmedAt),
		},
		RecoveryState: RecoveryState{
			ResetPasswordToken:  p.ResetPasswordToken,
			ResetPasswordSentAt: copyTime(p.ResetPasswordSentAt),
		},
		CreatedAt: copyTime(p.CreatedAt),
		UpdatedAt: copyTime(p.UpdatedAt),
	}
	if p.AuthTokens != nil {
		c.AuthTokens = append([]string{}, p.AuthTokens...)
	}
	return c
}
