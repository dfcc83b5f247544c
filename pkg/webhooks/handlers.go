package webhooks

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/academy/pkg/httputil"
	"github.com/platinummonkey/academy/pkg/observability"
)

// MaxPayloadBytes bounds the size of an accepted webhook body
const MaxPayloadBytes = 64 << 10

// SignatureHeader carries Stripe's timestamped payload signature
const SignatureHeader = "Stripe-Signature"

// Handlers exposes the receiver over HTTP
type Handlers struct {
	receiver *Receiver
}

// NewHandlers creates new webhook handlers
func NewHandlers(receiver *Receiver) *Handlers {
	return &Handlers{receiver: receiver}
}

// RegisterRoutes registers webhook routes. They sit outside user authentication.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks/stripe", h.receiveStripe).Methods("POST")
}

// receiveStripe handles POST /webhooks/stripe
func (h *Handlers) receiveStripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		httputil.WriteBadRequest(w, "failed to read payload")
		return
	}

	outcome, err := h.receiver.Receive(r.Context(), payload, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, ErrInvalidSignature):
		observability.FromContext(r.Context()).WithError(err).Warn("Rejected webhook with invalid signature")
		httputil.WriteBadRequest(w, "invalid signature")
	case err != nil:
		// A 5xx makes Stripe redeliver the event
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to process event")
	default:
		httputil.WriteSuccess(w, map[string]interface{}{
			"received": true,
			"outcome":  outcome,
		})
	}
}
