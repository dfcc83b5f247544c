package api

import (
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v79"

	"github.com/platinummonkey/academy/pkg/billing"
	"github.com/platinummonkey/academy/pkg/connect"
	"github.com/platinummonkey/academy/pkg/courses"
	"github.com/platinummonkey/academy/pkg/httputil"
	"github.com/platinummonkey/academy/pkg/middleware"
	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/orgs"
	"github.com/platinummonkey/academy/pkg/pricing"
)

// writeServiceError maps a service error to its HTTP status. Errors without
// a mapping are logged, reported and returned as a 500 with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var transitionErr *billing.TransitionError
	var stripeErr *stripe.Error

	switch {
	case errors.Is(err, orgs.ErrOrgNotFound):
		httputil.WriteNotFoundError(w, "organization not found")
	case errors.Is(err, billing.ErrInvoiceNotFound):
		httputil.WriteNotFoundError(w, "invoice not found")
	case errors.Is(err, courses.ErrCourseNotFound):
		httputil.WriteNotFoundError(w, "course not found")
	case errors.Is(err, pricing.ErrConfigNotFound):
		httputil.WriteNotFoundError(w, "pricing config not found")
	case errors.As(err, &transitionErr):
		httputil.WriteErrorCode(w, http.StatusConflict, httputil.CodeIllegalTransition, transitionErr.Error())
	case errors.Is(err, billing.ErrInvoiceExists):
		httputil.WriteErrorCode(w, http.StatusConflict, httputil.CodeInvoiceExists, err.Error())
	case errors.Is(err, orgs.ErrSlugTaken):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, billing.ErrNoCustomer):
		httputil.WriteUnprocessableCode(w, httputil.CodeNoCustomer, err.Error())
	case errors.Is(err, connect.ErrCourseNotPurchasable):
		httputil.WriteUnprocessableCode(w, httputil.CodeNotPurchasable, err.Error())
	case errors.Is(err, connect.ErrOrgMismatch), errors.Is(err, orgs.ErrInvalidOrganization):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, middleware.ErrForbidden):
		httputil.WriteForbidden(w, "insufficient permissions")
	case errors.As(err, &stripeErr):
		observability.FromContext(r.Context()).
			WithField("stripe_code", string(stripeErr.Code)).
			WithField("stripe_request_id", stripeErr.RequestID).
			WithError(err).
			Error("Stripe request failed")
		observability.CaptureError(r.Context(), r, err, nil)
		httputil.WriteBadGateway(w, "payment provider request failed")
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Request failed")
		observability.CaptureError(r.Context(), r, err, nil)
		httputil.WriteInternalError(w, errors.New("internal server error"))
	}
}
