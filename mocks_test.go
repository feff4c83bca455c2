package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []auth.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg auth.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return m.err
}

func (m *recordingMailer) Messages() []auth.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *recordingMailer) ByKind(kind auth.MessageKind) []auth.Message {
	var out []auth.Message
	for _, msg := range m.Messages() {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

func (m *recordingMailer) Last(kind auth.MessageKind) (auth.Message, bool) {
	msgs := m.ByKind(kind)
	if len(msgs) == 0 {
		return auth.Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// MockActivitySink implements auth.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event auth.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Events() []auth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) Types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type harness struct {
	lifecycle *auth.Lifecycle
	store     *auth.MemoryStore
	mailer    *recordingMailer
	sink      *recordingSink
	clock     *fakeClock
}

func newHarness(t *testing.T, cfg auth.Config) *harness {
	t.Helper()

	clock := newFakeClock()
	mailer := &recordingMailer{}
	sink := &recordingSink{}
	store := auth.NewMemoryStore(auth.WithClock(clock.Now))

	lifecycle, err := auth.NewLifecycle(cfg, store, mailer,
		auth.WithClock(clock.Now),
		auth.WithPasswordHasher(auth.BcryptHasher{Cost: 4}),
		auth.WithActivitySink(sink),
	)
	require.NoError(t, err)

	return &harness{
		lifecycle: lifecycle,
		store:     store,
		mailer:    mailer,
		sink:      sink,
		clock:     clock,
	}
}

func (h *harness) register(t *testing.T, email, password string) *auth.Principal {
	t.Helper()
	p, err := h.lifecycle.Register(context.Background(), email, password)
	require.NoError(t, err)
	return p
}

// confirmed registers a principal and confirms it through its token.
func (h *harness) confirmed(t *testing.T, email, password string) *auth.Principal {
	t.Helper()
	p := h.register(t, email, password)
	h.clock.Advance(time.Minute)
	_, err := h.lifecycle.Confirmations().ConfirmByToken(context.Background(), p.ConfirmationToken)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	return h.reload(t, p)
}

func (h *harness) reload(t *testing.T, p *auth.Principal) *auth.Principal {
	t.Helper()
	stored, ok := h.store.Get(p.ID)
	require.True(t, ok)
	return stored
}
