// Package connect sells courses on behalf of organizations through Stripe
// Connect.
//
// Once an organization has finished Express onboarding, course purchases are
// destination charges: the buyer pays the platform, Stripe transfers the
// amount to the org's connected account and the platform keeps an
// application fee of PlatformFeePercent. Orgs that have not finished
// onboarding are charged on the platform account.
//
// Completed checkouts arrive as checkout.session.completed webhooks and are
// turned into enrollments. Each session enrolls at most once.
package connect
