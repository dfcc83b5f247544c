package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	// Invoice events
	EventTypeInvoiceGenerated     EventType = "invoice.generated"
	EventTypeInvoiceSent          EventType = "invoice.sent"
	EventTypeInvoicePaid          EventType = "invoice.marked_paid"
	EventTypeInvoiceVoided        EventType = "invoice.voided"
	EventTypeInvoiceUncollectible EventType = "invoice.marked_uncollectible"

	// Pricing events
	EventTypePricingCreated   EventType = "pricing.created"
	EventTypePricingActivated EventType = "pricing.activated"

	// Organization events
	EventTypeOrgCreated           EventType = "org.created"
	EventTypeOrgUpdated           EventType = "org.updated"
	EventTypeConnectOnboardingURL EventType = "connect.onboarding_started"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// ResourceType represents the type of resource being changed
type ResourceType string

const (
	ResourceTypeInvoice       ResourceType = "invoice"
	ResourceTypePricingConfig ResourceType = "pricing_config"
	ResourceTypeOrganization  ResourceType = "organization"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor is nil for the metering service token
	ActorID        *uuid.UUID `json:"actor_id,omitempty"`
	ActorEmail     string     `json:"actor_email,omitempty"`
	OrganizationID *int64     `json:"organization_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	OrganizationID *int64
	EventTypes     []EventType
	ResourceType   ResourceType
	ResourceID     string

	Limit  int
	Offset int
}

const (
	defaultSearchLimit = 100
	maxSearchLimit     = 1000
)

// Normalize clamps pagination to sane bounds
func (f SearchFilter) Normalize() SearchFilter {
	if f.Limit <= 0 {
		f.Limit = defaultSearchLimit
	}
	if f.Limit > maxSearchLimit {
		f.Limit = maxSearchLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)
