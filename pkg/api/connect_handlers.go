package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/academy/pkg/audit"
	"github.com/platinummonkey/academy/pkg/connect"
	"github.com/platinummonkey/academy/pkg/httputil"
	"github.com/platinummonkey/academy/pkg/middleware"
	"github.com/platinummonkey/academy/pkg/orgs"
)

// ConnectService is the Stripe Connect surface used by the handlers
type ConnectService interface {
	StartOnboarding(ctx context.Context, orgID int64, refreshURL, returnURL string) (string, error)
	CreateCourseCheckout(ctx context.Context, req connect.CheckoutRequest) (*connect.CheckoutSession, error)
}

// ConnectHandlers handles payout onboarding and course checkout
type ConnectHandlers struct {
	connect    ConnectService
	orgService orgs.Service
}

// NewConnectHandlers creates new Connect handlers
func NewConnectHandlers(connectService ConnectService, orgService orgs.Service) *ConnectHandlers {
	return &ConnectHandlers{connect: connectService, orgService: orgService}
}

// RegisterRoutes registers Connect routes
func (h *ConnectHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/orgs/{id}/connect/onboarding", orgRoute(h.orgService, h.StartOnboarding, middleware.RequireOrgOwner())).Methods("POST")
	router.Handle("/courses/{course_id}/checkout", middleware.RequireUser(http.HandlerFunc(h.CreateCheckout))).Methods("POST")
}

type onboardingRequest struct {
	RefreshURL string `json:"refresh_url"`
	ReturnURL  string `json:"return_url"`
}

// StartOnboarding returns a Stripe-hosted onboarding link for the organization
func (h *ConnectHandlers) StartOnboarding(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)

	var req onboardingRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RefreshURL, "refresh_url") || !httputil.RequireNonEmpty(w, req.ReturnURL, "return_url") {
		return
	}

	url, err := h.connect.StartOnboarding(r.Context(), org.ID, req.RefreshURL, req.ReturnURL)
	audit.Record(r, audit.Entry{
		EventType:    audit.EventTypeConnectOnboardingURL,
		OrgID:        org.ID,
		ResourceType: audit.ResourceTypeOrganization,
		ResourceID:   org.ID,
		Err:          err,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"url": url})
}

type checkoutRequest struct {
	OrgID      int64  `json:"org_id,omitempty"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// CreateCheckout opens a Checkout session for the caller to buy a course
func (h *ConnectHandlers) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	courseID, ok := httputil.ParsePathInt64OrError(w, r, "course_id")
	if !ok {
		return
	}

	var req checkoutRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.SuccessURL, "success_url") || !httputil.RequireNonEmpty(w, req.CancelURL, "cancel_url") {
		return
	}

	session, err := h.connect.CreateCourseCheckout(r.Context(), connect.CheckoutRequest{
		CourseID:   courseID,
		UserID:     middleware.GetPrincipal(r).UserID,
		OrgID:      req.OrgID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, session)
}
