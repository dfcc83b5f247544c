package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/platinummonkey/academy/pkg/usage"
)

// BytesPerGB is the divisor applied to byte counts before per-GB rates
const BytesPerGB = int64(1) << 30

// Dimension names a metered usage dimension
type Dimension string

const (
	DimensionStudents     Dimension = "active_students"
	DimensionStorage      Dimension = "video_storage_gb"
	DimensionBandwidth    Dimension = "video_bandwidth_gb"
	DimensionCertificates Dimension = "certificates"
)

// LineItem is the cost of one dimension. Quantities are decimal strings in JSON.
type LineItem struct {
	Dimension      Dimension       `json:"dimension"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	FreeAllowance  decimal.Decimal `json:"free_allowance"`
	Billable       decimal.Decimal `json:"billable"`
	UnitPriceCents int64           `json:"unit_price_cents"`
	AmountCents    int64           `json:"amount_cents"`
}

// Breakdown is the priced result for one usage snapshot
type Breakdown struct {
	Students     LineItem `json:"students"`
	Storage      LineItem `json:"storage"`
	Bandwidth    LineItem `json:"bandwidth"`
	Certificates LineItem `json:"certificates"`
	TotalCents   int64    `json:"total_cents"`
	Currency     string   `json:"currency"`
}

// Items returns the line items in presentation order
func (b *Breakdown) Items() []LineItem {
	return []LineItem{b.Students, b.Storage, b.Bandwidth, b.Certificates}
}

// Calculate prices snapshot with cfg.
//
// For each dimension the free allowance is subtracted from usage, floored at
// zero, and multiplied by the unit rate. Byte counts are converted to GiB
// first. Each line item is rounded half away from zero to whole minor units
// and the total is the sum of the rounded items. Negative inputs are treated
// as zero so that no line item is ever negative.
func Calculate(snapshot *usage.Snapshot, cfg Config) Breakdown {
	gb := decimal.NewFromInt(BytesPerGB)

	b := Breakdown{
		Students: lineItem(DimensionStudents, "Active students",
			decimal.NewFromInt(snapshot.ActiveStudents), decimal.NewFromInt(cfg.FreeStudentsLimit), cfg.PricePerActiveStudent),
		Storage: lineItem(DimensionStorage, "Video storage (GB)",
			decimal.NewFromInt(snapshot.VideoStorageBytes).Div(gb), decimal.NewFromInt(cfg.FreeStorageGB), cfg.PricePerGBStorage),
		Bandwidth: lineItem(DimensionBandwidth, "Video bandwidth (GB)",
			decimal.NewFromInt(snapshot.VideoBandwidthBytes).Div(gb), decimal.NewFromInt(cfg.FreeBandwidthGB), cfg.PricePerGBBandwidth),
		Certificates: lineItem(DimensionCertificates, "Certificates issued",
			decimal.NewFromInt(snapshot.CertificatesIssued), decimal.Zero, cfg.PricePerCertificate),
		Currency: cfg.Currency,
	}

	for _, item := range b.Items() {
		b.TotalCents += item.AmountCents
	}
	return b
}

func lineItem(dim Dimension, description string, used, free decimal.Decimal, rate int64) LineItem {
	used = nonNegative(used)
	free = nonNegative(free)
	if rate < 0 {
		rate = 0
	}

	billable := nonNegative(used.Sub(free))
	amount := billable.Mul(decimal.NewFromInt(rate)).Round(0)

	return LineItem{
		Dimension:      dim,
		Description:    description,
		Quantity:       used.Round(6),
		FreeAllowance:  free,
		Billable:       billable.Round(6),
		UnitPriceCents: rate,
		AmountCents:    amount.IntPart(),
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
