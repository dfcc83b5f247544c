package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/academy/pkg/audit"
	"github.com/platinummonkey/academy/pkg/billing"
	"github.com/platinummonkey/academy/pkg/httputil"
	"github.com/platinummonkey/academy/pkg/middleware"
	"github.com/platinummonkey/academy/pkg/orgs"
	"github.com/platinummonkey/academy/pkg/usage"
)

// BillingHandlers handles usage metering, estimates and invoices
type BillingHandlers struct {
	billingService billing.Service
	recorder       usage.Recorder
	orgService     orgs.Service
	now            func() time.Time
}

// NewBillingHandlers creates new billing handlers
func NewBillingHandlers(billingService billing.Service, recorder usage.Recorder, orgService orgs.Service) *BillingHandlers {
	return &BillingHandlers{
		billingService: billingService,
		recorder:       recorder,
		orgService:     orgService,
		now:            time.Now,
	}
}

// RegisterRoutes registers billing routes
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	manager := middleware.RequireBillingManager()

	// Usage
	router.Handle("/orgs/{id}/usage", orgRoute(h.orgService, h.GetUsage, manager)).Methods("GET")
	router.Handle("/orgs/{id}/usage/bandwidth", middleware.RequirePlatformAdminOrService(http.HandlerFunc(h.RecordBandwidth))).Methods("POST")

	// Invoices
	router.Handle("/orgs/{id}/invoices", orgRoute(h.orgService, h.ListInvoices, manager)).Methods("GET")
	router.Handle("/orgs/{id}/invoices/generate", middleware.RequirePlatformAdmin(http.HandlerFunc(h.GenerateInvoice))).Methods("POST")
	router.Handle("/invoices/{invoice_id}", middleware.RequireUser(http.HandlerFunc(h.GetInvoice))).Methods("GET")

	// Lifecycle
	router.Handle("/invoices/{invoice_id}/send", h.lifecycle(audit.EventTypeInvoiceSent, h.billingService.Send)).Methods("POST")
	router.Handle("/invoices/{invoice_id}/mark-paid", h.lifecycle(audit.EventTypeInvoicePaid, h.billingService.MarkPaid)).Methods("POST")
	router.Handle("/invoices/{invoice_id}/void", h.lifecycle(audit.EventTypeInvoiceVoided, h.billingService.Void)).Methods("POST")
	router.Handle("/invoices/{invoice_id}/mark-uncollectible", h.lifecycle(audit.EventTypeInvoiceUncollectible, h.billingService.MarkUncollectible)).Methods("POST")
}

// GetUsage returns the live estimate for the current billing period
func (h *BillingHandlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)

	estimate, err := h.billingService.Estimate(r.Context(), org.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, estimate)
}

type recordBandwidthRequest struct {
	VideoID    *int64     `json:"video_id,omitempty"`
	Bytes      int64      `json:"bytes"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// RecordBandwidth ingests a batch of streamed bytes for an organization.
// Samples dated inside a period that already has an invoice are rejected,
// since they would never be billed.
func (h *BillingHandlers) RecordBandwidth(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, orgIDParam)
	if !ok {
		return
	}

	var req recordBandwidthRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.Bytes, "bytes") {
		return
	}

	if _, err := h.orgService.GetOrganization(r.Context(), orgID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	sample := usage.BandwidthSample{OrgID: orgID, VideoID: req.VideoID, Bytes: req.Bytes}
	if req.RecordedAt != nil {
		sample.RecordedAt = *req.RecordedAt
		invoiced, err := h.periodInvoiced(r.Context(), orgID, sample.RecordedAt)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if invoiced {
			httputil.WriteUnprocessableCode(w, httputil.CodePeriodInvoiced, "usage period has already been invoiced")
			return
		}
	}
	if err := h.recorder.RecordBandwidth(r.Context(), sample); err != nil {
		if errors.Is(err, usage.ErrInvalidBytes) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": true,
		"org_id":   orgID,
		"bytes":    req.Bytes,
	})
}

// periodInvoiced reports whether the closed period containing at has an invoice
func (h *BillingHandlers) periodInvoiced(ctx context.Context, orgID int64, at time.Time) (bool, error) {
	period := usage.PeriodFor(at)
	if period.End.After(h.now()) {
		return false, nil
	}
	invoices, err := h.billingService.List(ctx, orgID, billing.ListFilter{PeriodStart: &period.Start, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(invoices) > 0, nil
}

// ListInvoices returns a page of the organization's invoices, newest first
func (h *BillingHandlers) ListInvoices(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)

	filter := billing.ListFilter{Status: billing.InvoiceStatus(httputil.ParseQueryString(r, "status", ""))}
	if filter.Status != "" && !filter.Status.Valid() {
		httputil.WriteBadRequest(w, "invalid status")
		return
	}
	var err error
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", 20); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter = filter.Normalize()

	invoices, err := h.billingService.List(r.Context(), org.ID, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if invoices == nil {
		invoices = []*billing.Invoice{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"invoices": invoices,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// GenerateInvoice creates the draft invoice for a closed billing period.
// The period defaults to the previous calendar month.
func (h *BillingHandlers) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, orgIDParam)
	if !ok {
		return
	}

	now := h.now().UTC()
	period := usage.PreviousPeriod(now)
	if key := httputil.ParseQueryString(r, "period", ""); key != "" {
		var err error
		if period, err = usage.ParsePeriod(key); err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
	}
	if period.End.After(now) {
		httputil.WriteUnprocessableCode(w, httputil.CodePeriodOpen, "billing period has not ended")
		return
	}

	inv, err := h.billingService.Generate(r.Context(), orgID, period)
	entry := audit.Entry{
		EventType:    audit.EventTypeInvoiceGenerated,
		OrgID:        orgID,
		ResourceType: audit.ResourceTypeInvoice,
		Metadata:     map[string]interface{}{"period": period.Key()},
		Err:          err,
	}
	if inv != nil {
		entry.ResourceID = inv.ID
	}
	audit.Record(r, entry)

	if errors.Is(err, billing.ErrInvoiceExists) && inv != nil {
		httputil.WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"error":   err.Error(),
			"code":    httputil.CodeInvoiceExists,
			"invoice": inv,
		})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteCreated(w, inv)
}

// GetInvoice returns an invoice to billing managers of its organization
func (h *BillingHandlers) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "invoice_id")
	if !ok {
		return
	}

	inv, err := h.billingService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	err = middleware.Authorize(r.Context(), h.orgService, inv.OrgID, orgs.Role.CanManageBilling)
	if errors.Is(err, middleware.ErrForbidden) {
		// Invoices of other organizations are indistinguishable from missing ones
		httputil.WriteNotFoundError(w, "invoice not found")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, inv)
}

// lifecycle wraps an invoice transition as an audited platform admin endpoint
func (h *BillingHandlers) lifecycle(event audit.EventType, transition func(ctx context.Context, id int64) (*billing.Invoice, error)) http.Handler {
	return middleware.RequirePlatformAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParsePathInt64OrError(w, r, "invoice_id")
		if !ok {
			return
		}

		inv, err := transition(r.Context(), id)
		entry := audit.Entry{EventType: event, ResourceType: audit.ResourceTypeInvoice, ResourceID: id, Err: err}
		if inv != nil {
			entry.OrgID = inv.OrgID
			entry.Metadata = map[string]interface{}{"status": string(inv.Status)}
		}
		audit.Record(r, entry)

		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, inv)
	}))
}
