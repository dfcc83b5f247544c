package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/academy/pkg/audit"
	"github.com/platinummonkey/academy/pkg/httputil"
	"github.com/platinummonkey/academy/pkg/middleware"
	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/pricing"
)

// PricingHandlers manages versioned pricing configs. Every route is platform admin only.
type PricingHandlers struct {
	store pricing.Store
}

// NewPricingHandlers creates new pricing handlers
func NewPricingHandlers(store pricing.Store) *PricingHandlers {
	return &PricingHandlers{store: store}
}

// RegisterRoutes registers pricing routes
func (h *PricingHandlers) RegisterRoutes(router *mux.Router) {
	admin := func(f http.HandlerFunc) http.Handler { return middleware.RequirePlatformAdmin(f) }

	router.Handle("/pricing/configs", admin(h.ListConfigs)).Methods("GET")
	router.Handle("/pricing/configs", admin(h.CreateConfig)).Methods("POST")
	router.Handle("/pricing/configs/{config_id}/activate", admin(h.ActivateConfig)).Methods("POST")
	router.Handle("/pricing/active", admin(h.GetActive)).Methods("GET")
}

// ListConfigs returns every stored config version
func (h *PricingHandlers) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if configs == nil {
		configs = []*pricing.Config{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"configs": configs})
}

// CreateConfig stores a new inactive config version
func (h *PricingHandlers) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg pricing.Config
	if !httputil.ParseJSONOrError(w, r, &cfg) {
		return
	}
	cfg.ID = 0
	cfg.IsActive = false
	if err := cfg.Validate(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.store.Create(r.Context(), &cfg); err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r, audit.Entry{
		EventType:    audit.EventTypePricingCreated,
		ResourceType: audit.ResourceTypePricingConfig,
		ResourceID:   cfg.ID,
		Metadata:     map[string]interface{}{"name": cfg.Name, "version": cfg.Version},
	})
	httputil.WriteCreated(w, &cfg)
}

// ActivateConfig makes a config the only active one
func (h *PricingHandlers) ActivateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "config_id")
	if !ok {
		return
	}

	err := h.store.Activate(r.Context(), id)
	audit.Record(r, audit.Entry{
		EventType:    audit.EventTypePricingActivated,
		ResourceType: audit.ResourceTypePricingConfig,
		ResourceID:   id,
		Err:          err,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.FromContext(r.Context()).WithField("pricing_config_id", id).Info("Activated pricing config")

	cfg, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, cfg)
}

// GetActive returns the config currently used for estimates and invoices.
// With no active row this is the fallback, reported with id 0.
func (h *PricingHandlers) GetActive(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Active(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"config":   cfg,
		"fallback": cfg.IsFallback(),
	})
}
