package connect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/platinummonkey/academy/pkg/observability"
)

func newTestStripeAPI(t *testing.T, handler http.HandlerFunc) *client.API {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return client.New("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
}

func TestStripeGateway_CreateCheckoutSession(t *testing.T) {
	var form map[string]string
	api := newTestStripeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		_ = r.ParseForm()
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.test/cs_test_1"}`)
	})
	gw := NewStripeGateway(api, observability.NewNopMetrics())

	session, err := gw.CreateCheckoutSession(context.Background(), CheckoutParams{
		CourseTitle: "Go in Practice", AmountCents: 4995, Currency: "usd",
		SuccessURL: "https://app.test/ok", CancelURL: "https://app.test/cancel",
		ClientReferenceID: "user-1", Destination: "acct_org", ApplicationFeeCents: 500,
		Metadata: map[string]string{"kind": KindCoursePurchase, "course_id": "12"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", session.URL)

	assert.Equal(t, "payment", form["mode"])
	assert.Equal(t, "4995", form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "Go in Practice", form["line_items[0][price_data][product_data][name]"])
	assert.Equal(t, "500", form["payment_intent_data[application_fee_amount]"])
	assert.Equal(t, "acct_org", form["payment_intent_data[transfer_data][destination]"])
	assert.Equal(t, KindCoursePurchase, form["metadata[kind]"])
	assert.Equal(t, "12", form["payment_intent_data[metadata][course_id]"])
}

func TestStripeGateway_CreateCheckoutSessionWithoutDestination(t *testing.T) {
	var form map[string]string
	api := newTestStripeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_test_2","object":"checkout.session"}`)
	})

	_, err := NewStripeGateway(api, nil).CreateCheckoutSession(context.Background(), CheckoutParams{
		CourseTitle: "Go", AmountCents: 1000, Currency: "usd",
	})
	require.NoError(t, err)
	_, hasFee := form["payment_intent_data[application_fee_amount]"]
	_, hasDestination := form["payment_intent_data[transfer_data][destination]"]
	assert.False(t, hasFee)
	assert.False(t, hasDestination)
}

func TestStripeGateway_Onboarding(t *testing.T) {
	var paths []string
	var linkType string
	api := newTestStripeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/accounts":
			assert.Equal(t, "express", r.PostForm.Get("type"))
			assert.Equal(t, "org-3-connect-account", r.Header.Get("Idempotency-Key"))
			fmt.Fprint(w, `{"id":"acct_1","object":"account"}`)
		case "/v1/account_links":
			linkType = r.PostForm.Get("type")
			fmt.Fprint(w, `{"object":"account_link","url":"https://connect.stripe.test/setup/acct_1"}`)
		}
	})
	gw := NewStripeGateway(api, nil)

	id, err := gw.CreateAccount(context.Background(), 3, "owner@acme.test")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", id)

	url, err := gw.CreateAccountLink(context.Background(), id, "https://app.test/r", "https://app.test/ret")
	require.NoError(t, err)
	assert.Equal(t, "https://connect.stripe.test/setup/acct_1", url)
	assert.Equal(t, "account_onboarding", linkType)
	assert.Equal(t, []string{"/v1/accounts", "/v1/account_links"}, paths)
}

func TestStripeGateway_Error(t *testing.T) {
	api := newTestStripeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"no such account"}}`)
	})

	_, err := NewStripeGateway(api, nil).CreateAccountLink(context.Background(), "acct_x", "r", "r")
	assert.Error(t, err)
}
