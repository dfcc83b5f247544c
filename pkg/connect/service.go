package connect

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"

	"github.com/platinummonkey/academy/pkg/courses"
	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/orgs"
)

// Service runs Connect onboarding and course checkout
type Service struct {
	orgs       orgs.Service
	courses    courses.Store
	gateway    Gateway
	feePercent int64
	metrics    *observability.Metrics
}

// NewService creates a Service. feePercent <= 0 selects PlatformFeePercent.
func NewService(orgService orgs.Service, courseStore courses.Store, gateway Gateway, feePercent int64, metrics *observability.Metrics) *Service {
	if feePercent <= 0 {
		feePercent = PlatformFeePercent
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Service{
		orgs:       orgService,
		courses:    courseStore,
		gateway:    gateway,
		feePercent: feePercent,
		metrics:    metrics,
	}
}

// StartOnboarding returns a Stripe-hosted onboarding link for the org,
// creating its Express account on first use.
func (s *Service) StartOnboarding(ctx context.Context, orgID int64, refreshURL, returnURL string) (string, error) {
	org, err := s.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		return "", err
	}

	accountID := org.StripeAccountID
	if accountID == "" {
		accountID, err = s.gateway.CreateAccount(ctx, org.ID, org.BillingEmail)
		if err != nil {
			return "", err
		}
		if err := s.orgs.SetStripeAccount(ctx, org.ID, accountID); err != nil {
			return "", err
		}
		observability.FromContext(ctx).
			WithField("org_id", org.ID).
			WithField("stripe_account_id", accountID).
			Info("Created Connect account")
	}

	return s.gateway.CreateAccountLink(ctx, accountID, refreshURL, returnURL)
}

// CreateCourseCheckout opens a Checkout session for a paid, published course.
// Sales of orgs that can receive payouts are destination charges carrying
// the platform application fee.
func (s *Service) CreateCourseCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	course, err := s.courses.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if req.OrgID != 0 && req.OrgID != course.OrgID {
		return nil, ErrOrgMismatch
	}
	if !course.IsPublished || course.IsFree() {
		return nil, ErrCourseNotPurchasable
	}

	org, err := s.orgs.GetOrganization(ctx, course.OrgID)
	if err != nil {
		return nil, err
	}

	params := CheckoutParams{
		CourseTitle:       course.Title,
		AmountCents:       course.PriceCents,
		Currency:          course.Currency,
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
		ClientReferenceID: req.UserID.String(),
	}
	charge := "platform"
	if org.CanReceivePayouts() {
		params.Destination = org.StripeAccountID
		params.ApplicationFeeCents = PlatformFee(course.PriceCents, s.feePercent)
		charge = "destination"
	}
	params.Metadata = PurchaseMetadata{
		OrgID:            org.ID,
		CourseID:         course.ID,
		UserID:           req.UserID,
		PlatformFeeCents: params.ApplicationFeeCents,
	}.Map()

	session, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}
	s.metrics.CheckoutSessionsTotal.WithLabelValues(charge).Inc()
	return session, nil
}

// HandleCheckoutCompleted enrolls the buyer of a completed course checkout.
// Sessions that are not course purchases, carry malformed metadata or are
// not yet paid are ignored. Redelivered sessions do not enroll twice.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	logger := observability.FromContext(ctx).WithField("checkout_session_id", session.ID)

	md, err := ParsePurchaseMetadata(session.Metadata)
	if err != nil {
		logger.WithError(err).Info("Ignoring checkout session that is not a course purchase")
		return nil
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		session.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		logger.WithField("payment_status", string(session.PaymentStatus)).Info("Checkout session not paid yet")
		return nil
	}

	enrollment := &courses.Enrollment{
		OrgID:                   md.OrgID,
		CourseID:                md.CourseID,
		UserID:                  md.UserID,
		Source:                  courses.SourcePurchase,
		StripeCheckoutSessionID: session.ID,
		AmountPaidCents:         session.AmountTotal,
		PlatformFeeCents:        md.PlatformFeeCents,
	}
	created, err := s.courses.Enroll(ctx, enrollment)
	if err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"org_id":    md.OrgID,
		"course_id": md.CourseID,
		"created":   created,
	}).Info("Recorded course purchase")
	return nil
}

// HandleAccountUpdated records whether a connected account can accept charges
func (s *Service) HandleAccountUpdated(ctx context.Context, account *stripe.Account) error {
	onboarded := account.ChargesEnabled && account.DetailsSubmitted

	org, err := s.orgs.SetOnboardedByAccount(ctx, account.ID, onboarded)
	if errors.Is(err, orgs.ErrOrgNotFound) {
		observability.FromContext(ctx).WithField("stripe_account_id", account.ID).Info("Ignoring update for unknown account")
		return nil
	}
	if err != nil {
		return err
	}

	observability.FromContext(ctx).
		WithField("org_id", org.ID).
		WithField("onboarded", onboarded).
		Info("Updated Connect onboarding status")
	return nil
}
