package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/academy/pkg/connect"
	"github.com/platinummonkey/academy/pkg/courses"
)

func TestStartOnboarding(t *testing.T) {
	svc := &mockConnectService{
		startOnboardingFunc: func(ctx context.Context, orgID int64, refreshURL, returnURL string) (string, error) {
			assert.Equal(t, int64(1), orgID)
			assert.Equal(t, "https://app.test/refresh", refreshURL)
			return "https://connect.stripe.com/setup/e/acct_1/abc", nil
		},
	}
	h := NewConnectHandlers(svc, newOrgs(t))
	body := map[string]string{"refresh_url": "https://app.test/refresh", "return_url": "https://app.test/done"}

	t.Run("owner", func(t *testing.T) {
		w := do(newTestRouter(user(ownerID), h), "POST", "/orgs/1/connect/onboarding", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp map[string]string
		decodeBody(t, w, &resp)
		assert.Equal(t, "https://connect.stripe.com/setup/e/acct_1/abc", resp["url"])
	})

	t.Run("admin is not owner", func(t *testing.T) {
		w := do(newTestRouter(user(adminID), h), "POST", "/orgs/1/connect/onboarding", body)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing return url", func(t *testing.T) {
		w := do(newTestRouter(user(ownerID), h), "POST", "/orgs/1/connect/onboarding", map[string]string{"refresh_url": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateCheckout(t *testing.T) {
	var got connect.CheckoutRequest
	svc := &mockConnectService{
		checkoutFunc: func(ctx context.Context, req connect.CheckoutRequest) (*connect.CheckoutSession, error) {
			got = req
			switch req.CourseID {
			case 12:
				return &connect.CheckoutSession{
					ID:                  "cs_test_1",
					URL:                 "https://checkout.stripe.com/c/pay/cs_test_1",
					AmountCents:         4995,
					Currency:            "usd",
					ApplicationFeeCents: 500,
					Destination:         "acct_org",
				}, nil
			case 13:
				return nil, connect.ErrCourseNotPurchasable
			case 14:
				return nil, connect.ErrOrgMismatch
			default:
				return nil, courses.ErrCourseNotFound
			}
		},
	}
	h := NewConnectHandlers(svc, newOrgs(t))
	body := map[string]interface{}{"success_url": "https://app.test/ok", "cancel_url": "https://app.test/cancel"}

	w := do(newTestRouter(user(studentID), h), "POST", "/courses/12/checkout", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var session connect.CheckoutSession
	decodeBody(t, w, &session)
	assert.Equal(t, int64(500), session.ApplicationFeeCents)
	assert.Equal(t, studentID, got.UserID)
	assert.Equal(t, int64(12), got.CourseID)

	tests := []struct {
		path string
		code int
	}{
		{"/courses/13/checkout", http.StatusUnprocessableEntity},
		{"/courses/14/checkout", http.StatusBadRequest},
		{"/courses/15/checkout", http.StatusNotFound},
		{"/courses/0/checkout", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := do(newTestRouter(user(studentID), h), "POST", tt.path, body)
		assert.Equal(t, tt.code, w.Code, tt.path)
	}

	w = do(newTestRouter(service(), h), "POST", "/courses/12/checkout", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
