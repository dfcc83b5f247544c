package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/academy/pkg/contextkeys"
	"github.com/platinummonkey/academy/pkg/middleware"
	"github.com/platinummonkey/academy/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event *AuditEvent) error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextkeys.AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(context.Context, *AuditEvent) error { return nil }

// Entry describes one audited action taken through the API
type Entry struct {
	EventType    EventType
	OrgID        int64 // zero for platform-wide resources
	ResourceType ResourceType
	ResourceID   int64
	Message      string
	Metadata     map[string]interface{}
	Changes      *ChangeDetails
	// Err marks the action as failed
	Err error
}

// Record writes e through the request's audit logger. The actor, request id,
// method and path come from r. Audit failures are logged and never fail the
// request.
func Record(r *http.Request, e Entry) {
	ctx := r.Context()
	event := buildBaseEvent(r, e.EventType)
	event.ResourceType = e.ResourceType
	if e.ResourceID != 0 {
		event.ResourceID = strconv.FormatInt(e.ResourceID, 10)
	}
	if e.OrgID != 0 {
		orgID := e.OrgID
		event.OrganizationID = &orgID
	}
	event.Message = e.Message
	event.Metadata = e.Metadata
	event.Changes = e.Changes
	if e.Err != nil {
		event.Status = EventStatusFailure
		event.ErrorMessage = e.Err.Error()
	}

	if err := FromContext(ctx).Log(ctx, event); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("event_type", string(e.EventType)).
			Warn("Failed to write audit event")
	}
}

// buildBaseEvent creates an event with the actor and request context populated
func buildBaseEvent(r *http.Request, eventType EventType) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    EventStatusSuccess,
		RequestID: observability.GetRequestID(r.Context()),
		Method:    r.Method,
		Path:      r.URL.Path,
	}

	if p := middleware.GetPrincipal(r); p != nil && !p.Service {
		userID := p.UserID
		event.ActorID = &userID
		event.ActorEmail = p.Email
	}
	return event
}
