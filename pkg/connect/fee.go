package connect

import "github.com/shopspring/decimal"

// PlatformFeePercent is the share of each course sale retained by the platform
const PlatformFeePercent int64 = 10

// PlatformFee returns percent of amountCents, rounded half away from zero.
// Negative amounts or percentages yield zero and the fee never exceeds the amount.
func PlatformFee(amountCents, percent int64) int64 {
	if amountCents <= 0 || percent <= 0 {
		return 0
	}
	if percent > 100 {
		percent = 100
	}
	return decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(percent)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
