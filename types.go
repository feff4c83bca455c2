package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the package.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// PasswordHasher is the secure-hash capability used to derive password digests.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Clock returns the current time.
type Clock func() time.Time

// Option customizes the lifecycle machines.
type Option func(*settings)

type settings struct {
	now          Clock
	logger       Logger
	provider     LoggerProvider
	activitySink ActivitySink
	hasher       PasswordHasher
}

func newSettings(name string, opts ...Option) settings {
	s := settings{
		now:          time.Now,
		activitySink: noopActivitySink{},
		hasher:       BcryptHasher{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	s.provider, s.logger = ResolveLogger(name, s.provider, s.logger)
	return s
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLoggerProvider resolves loggers by component name.
func WithLoggerProvider(provider LoggerProvider) Option {
	return func(s *settings) {
		if provider != nil {
			s.provider = provider
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish lifecycle events.
func WithActivitySink(sink ActivitySink) Option {
	return func(s *settings) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithPasswordHasher overrides the bcrypt hasher.
func WithPasswordHasher(hasher PasswordHasher) Option {
	return func(s *settings) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// ResolveLogger picks the named logger from provider, falling back to
// logger and finally to the package default.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			return provider, named
		}
	}

	if logger == nil {
		logger = defaultLogger()
	}

	return staticProvider{logger: logger}, logger
}

type staticProvider struct {
	logger Logger
}

func (p staticProvider) GetLogger(string) Logger {
	return p.logger
}

func defaultLogger() Logger {
	return glog.NewLogger(
		glog.WithName("auth"),
		glog.WithAddSource(false),
	).GetLogger("auth")
}

func loggerFor(ctx context.Context, logger Logger) Logger {
	if ctx == nil || logger == nil {
		return logger
	}
	if scoped := logger.WithContext(ctx); scoped != nil {
		return scoped
	}
	return logger
}
