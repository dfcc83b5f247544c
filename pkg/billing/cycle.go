package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/orgs"
	"github.com/platinummonkey/academy/pkg/usage"
)

// CycleOptions tunes a billing run
type CycleOptions struct {
	// Concurrency bounds how many orgs are invoiced at once
	Concurrency int
	// AutoSend sends each draft once generated, including drafts left by an earlier run
	AutoSend bool
}

// CycleFailure is one org the cycle could not invoice
type CycleFailure struct {
	OrgID int64  `json:"org_id"`
	Error string `json:"error"`
}

// CycleReport summarizes a billing run
type CycleReport struct {
	Period    usage.Period   `json:"period"`
	Generated int            `json:"generated"`
	Skipped   int            `json:"skipped"`
	Sent      int            `json:"sent"`
	Failed    []CycleFailure `json:"failed,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// Cycle closes a billing period for every active organization
type Cycle struct {
	orgs     orgs.Service
	invoices Service
	opts     CycleOptions
	metrics  *observability.Metrics
}

// NewCycle creates a Cycle
func NewCycle(orgService orgs.Service, invoices Service, opts CycleOptions, metrics *observability.Metrics) *Cycle {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Cycle{orgs: orgService, invoices: invoices, opts: opts, metrics: metrics}
}

// Run generates invoices for period. One org failing does not stop the
// others; failures are collected in the report. Run is safe to repeat:
// orgs that already have an invoice are skipped.
func (c *Cycle) Run(ctx context.Context, period usage.Period) (*CycleReport, error) {
	start := time.Now()
	logger := observability.FromContext(ctx).WithField("period", period.Key())

	active, err := c.orgs.ListActiveOrganizations(ctx)
	if err != nil {
		return nil, err
	}

	report := &CycleReport{Period: period}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for _, org := range active {
		g.Go(func() error {
			generated, skipped, sent, err := c.runOrg(gctx, org.ID, period)

			mu.Lock()
			defer mu.Unlock()
			if generated {
				report.Generated++
			}
			if skipped {
				report.Skipped++
			}
			if sent {
				report.Sent++
			}
			if err != nil {
				logger.WithError(err).WithField("org_id", org.ID).Error("Billing failed for organization")
				report.Failed = append(report.Failed, CycleFailure{OrgID: org.ID, Error: err.Error()})
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	c.metrics.BillingCycleDuration.Observe(report.Duration.Seconds())

	logger.WithFields(map[string]interface{}{
		"generated": report.Generated,
		"skipped":   report.Skipped,
		"sent":      report.Sent,
		"failed":    len(report.Failed),
	}).Info("Billing cycle finished")

	return report, ctx.Err()
}

func (c *Cycle) runOrg(ctx context.Context, orgID int64, period usage.Period) (generated, skipped, sent bool, err error) {
	inv, err := c.invoices.Generate(ctx, orgID, period)
	switch {
	case errors.Is(err, ErrInvoiceExists):
		skipped = true
	case err != nil:
		return false, false, false, err
	default:
		generated = true
	}

	if !c.opts.AutoSend || inv.Status != InvoiceStatusDraft {
		return generated, skipped, false, nil
	}
	if _, err := c.invoices.Send(ctx, inv.ID); err != nil {
		return generated, skipped, false, err
	}
	return generated, skipped, true, nil
}
