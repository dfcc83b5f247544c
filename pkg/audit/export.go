package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// csvColumns are the exported CSV columns in order
var csvColumns = []struct {
	header string
	value  func(*AuditEvent) string
}{
	{"id", func(e *AuditEvent) string { return strconv.FormatInt(e.ID, 10) }},
	{"timestamp", func(e *AuditEvent) string { return e.Timestamp.UTC().Format(time.RFC3339) }},
	{"event_type", func(e *AuditEvent) string { return string(e.EventType) }},
	{"status", func(e *AuditEvent) string { return string(e.Status) }},
	{"actor_id", func(e *AuditEvent) string {
		if e.ActorID == nil {
			return ""
		}
		return e.ActorID.String()
	}},
	{"actor_email", func(e *AuditEvent) string { return e.ActorEmail }},
	{"organization_id", func(e *AuditEvent) string {
		if e.OrganizationID == nil {
			return ""
		}
		return strconv.FormatInt(*e.OrganizationID, 10)
	}},
	{"resource_type", func(e *AuditEvent) string { return string(e.ResourceType) }},
	{"resource_id", func(e *AuditEvent) string { return e.ResourceID }},
	{"request_id", func(e *AuditEvent) string { return e.RequestID }},
	{"method", func(e *AuditEvent) string { return e.Method }},
	{"path", func(e *AuditEvent) string { return e.Path }},
	{"message", func(e *AuditEvent) string { return e.Message }},
	{"error_message", func(e *AuditEvent) string { return e.ErrorMessage }},
}

// ContentType returns the media type and download file name of format
func (f ExportFormat) ContentType() (mediaType, filename string) {
	switch f {
	case ExportFormatCSV:
		return "text/csv", "audit-events.csv"
	case ExportFormatNDJSON:
		return "application/x-ndjson", "audit-events.ndjson"
	default:
		return "application/json", "audit-events.json"
	}
}

// Valid reports whether f is a supported export format
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportFormatJSON, ExportFormatCSV, ExportFormatNDJSON:
		return true
	}
	return false
}

// Export writes events to w in format
func Export(w io.Writer, events []*AuditEvent, format ExportFormat) error {
	switch format {
	case ExportFormatJSON:
		if events == nil {
			events = []*AuditEvent{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	case ExportFormatNDJSON:
		enc := json.NewEncoder(w)
		for _, event := range events {
			if err := enc.Encode(event); err != nil {
				return fmt.Errorf("failed to encode audit event %d: %w", event.ID, err)
			}
		}
		return nil
	case ExportFormatCSV:
		return exportCSV(w, events)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

func exportCSV(w io.Writer, events []*AuditEvent) error {
	cw := csv.NewWriter(w)

	record := make([]string, len(csvColumns))
	for i, col := range csvColumns {
		record[i] = col.header
	}
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		for i, col := range csvColumns {
			record[i] = col.value(event)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
