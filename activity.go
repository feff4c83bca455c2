package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventConfirmationSent  ActivityEventType = "account.confirmation.sent"
	ActivityEventAccountConfirmed  ActivityEventType = "account.confirmed"
	ActivityEventEmailChangeQueued ActivityEventType = "account.email.change_requested"
	ActivityEventResetRequested    ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordReset     ActivityEventType = "auth.password.reset"
	ActivityEventSessionCreated    ActivityEventType = "auth.session.created"
	ActivityEventSessionRevoked    ActivityEventType = "auth.session.revoked"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	AccountID  uuid.UUID
	Email      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// record publishes an event for acc. Sink failures are logged only.
func (s settings) record(ctx context.Context, eventType ActivityEventType, acc Account, meta map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   meta,
		OccurredAt: s.now(),
	}
	if acc != nil {
		event.AccountID = acc.AccountID()
		event.Email = acc.GetEmail()
	}
	if err := s.activitySink.Record(ctx, event); err != nil {
		loggerFor(ctx, s.logger).Warn("activity sink failed", "event", eventType, "error", err)
	}
}
