// Package billing turns metered usage into invoices and drives them through
// their lifecycle.
//
// # Invoice lifecycle
//
//	draft ──send──▶ open ──▶ paid
//	  │                 ├──▶ void
//	  │                 └──▶ uncollectible ──▶ paid | void
//	  └──admin──▶ paid | void | uncollectible
//
// Paid and void are terminal. Transitions are checked by CheckTransition and
// applied by Store.Transition under a row lock, so concurrent admin actions
// and Stripe webhooks cannot move an invoice backwards.
//
// # Usage Example
//
// Preview the current month:
//
//	est, err := svc.Estimate(ctx, orgID)
//	fmt.Printf("Estimated: %d cents\n", est.EstimatedAmountCents)
//
// Close last month for every org:
//
//	report, err := cycle.Run(ctx, usage.PreviousPeriod(time.Now()))
//
// # Related Packages
//
//   - pkg/usage: usage snapshots
//   - pkg/pricing: rate tables and the calculator
//   - pkg/webhooks: delivers Stripe invoice events to ApplyStripeStatus
package billing
