package audit

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/academy/pkg/httputil"
	"github.com/platinummonkey/academy/pkg/middleware"
	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/orgs"
)

// Handlers provides HTTP handlers for the audit trail
type Handlers struct {
	store      Store
	orgService orgs.Service
}

// NewHandlers creates new audit handlers
func NewHandlers(store Store, orgService orgs.Service) *Handlers {
	return &Handlers{store: store, orgService: orgService}
}

// RegisterRoutes registers audit routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	orgScoped := middleware.OrgContext(h.orgService, "id")(
		middleware.RequireBillingManager()(http.HandlerFunc(h.listOrgEvents)))
	router.Handle("/orgs/{id}/audit", orgScoped).Methods("GET")
	router.Handle("/audit", middleware.RequirePlatformAdmin(http.HandlerFunc(h.listEvents))).Methods("GET")
}

// listOrgEvents handles GET /orgs/{id}/audit
func (h *Handlers) listOrgEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	orgID := middleware.GetOrganization(r).ID
	filter.OrganizationID = &orgID
	h.search(w, r, filter)
}

// listEvents handles GET /audit
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if raw := r.URL.Query().Get("organization_id"); raw != "" {
		orgID, err := httputil.ParseQueryInt(r, "organization_id", 0)
		if err != nil || orgID <= 0 {
			httputil.WriteBadRequest(w, "invalid organization_id")
			return
		}
		id := int64(orgID)
		filter.OrganizationID = &id
	}
	h.search(w, r, filter)
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request, filter SearchFilter) {
	format := ExportFormat(httputil.ParseQueryString(r, "format", ""))
	if format != "" && !format.Valid() {
		httputil.WriteBadRequest(w, fmt.Sprintf("unsupported format: %s", format))
		return
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to search audit events")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if format == "" {
		httputil.WriteSuccess(w, map[string]interface{}{
			"events": events,
			"count":  len(events),
			"limit":  filter.Limit,
			"offset": filter.Offset,
		})
		return
	}

	mediaType, filename := format.ContentType()
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	if err := Export(w, events, format); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Audit export interrupted")
	}
}

// parseFilter parses search filters from query parameters
func parseFilter(r *http.Request) (SearchFilter, error) {
	query := r.URL.Query()
	var filter SearchFilter

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{
		{"start_time", &filter.StartTime},
		{"end_time", &filter.EndTime},
	} {
		raw := query.Get(bound.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid %s: must be RFC3339", bound.name)
		}
		*bound.dst = &t
	}

	if raw := query.Get("event_types"); raw != "" {
		for _, et := range strings.Split(raw, ",") {
			if et = strings.TrimSpace(et); et != "" {
				filter.EventTypes = append(filter.EventTypes, EventType(et))
			}
		}
	}

	filter.ResourceType = ResourceType(query.Get("resource_type"))
	filter.ResourceID = query.Get("resource_id")

	var err error
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", defaultSearchLimit); err != nil {
		return filter, err
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	return filter.Normalize(), nil
}
