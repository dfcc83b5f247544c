// Package orgs manages tenants of the learning platform.
//
// # Overview
//
// An Organization hosts a branded course catalog under its own slug and
// optional subdomain. It carries two Stripe identities:
//
//   - StripeCustomerID, the platform's customer record used to invoice the org for usage
//   - StripeAccountID, the org's Connect account that receives course sale payouts
//
// Payouts are only routed to the Connect account once onboarding has
// completed (StripeOnboarded), which is reported by account.updated webhooks.
//
// # Membership
//
// Members are Supabase users identified by UUID with one of the roles owner,
// admin, instructor or student. Billing endpoints require owner or admin.
//
// # Usage
//
//	svc := orgs.NewPostgresService(db)
//	org := &orgs.Organization{Name: "Acme Academy"}
//	if err := svc.CreateOrganization(ctx, org, ownerID); err != nil {
//	    return err
//	}
package orgs
