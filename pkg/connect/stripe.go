package connect

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/platinummonkey/academy/pkg/observability"
)

// StripeGateway implements Gateway with the Stripe API
type StripeGateway struct {
	api     *client.API
	metrics *observability.Metrics
}

// NewStripeGateway creates a gateway using api
func NewStripeGateway(api *client.API, metrics *observability.Metrics) *StripeGateway {
	return &StripeGateway{api: api, metrics: metrics}
}

// CreateAccount creates an Express connected account requesting card payments and transfers
func (g *StripeGateway) CreateAccount(ctx context.Context, orgID int64, email string) (string, error) {
	params := &stripe.AccountParams{
		Params: stripe.Params{Context: ctx},
		Type:   stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("org_id", strconv.FormatInt(orgID, 10))
	params.SetIdempotencyKey(fmt.Sprintf("org-%d-connect-account", orgID))

	account, err := g.api.Accounts.New(params)
	g.metrics.ObserveStripe("account.create", err)
	if err != nil {
		return "", fmt.Errorf("failed to create connect account: %w", err)
	}
	return account.ID, nil
}

// CreateAccountLink returns a single-use onboarding URL
func (g *StripeGateway) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Params:     stripe.Params{Context: ctx},
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}

	link, err := g.api.AccountLinks.New(params)
	g.metrics.ObserveStripe("account_link.create", err)
	if err != nil {
		return "", fmt.Errorf("failed to create account link: %w", err)
	}
	return link.URL, nil
}

// CreateCheckoutSession opens a one-item payment session. A destination
// moves the charge to the connected account with the application fee.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(p.ClientReferenceID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					UnitAmount: stripe.Int64(p.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.CourseTitle),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: p.Metadata,
		},
	}
	if p.Destination != "" {
		params.PaymentIntentData.ApplicationFeeAmount = stripe.Int64(p.ApplicationFeeCents)
		params.PaymentIntentData.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: stripe.String(p.Destination),
		}
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	session, err := g.api.CheckoutSessions.New(params)
	g.metrics.ObserveStripe("checkout_session.create", err)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSession{
		ID:                  session.ID,
		URL:                 session.URL,
		AmountCents:         p.AmountCents,
		Currency:            p.Currency,
		ApplicationFeeCents: p.ApplicationFeeCents,
		Destination:         p.Destination,
	}, nil
}
