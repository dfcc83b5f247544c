// Package pricing turns usage into money.
//
// A Config is a named, versioned rate table with free allowances. At most
// one Config is active at a time; when none is, a fallback (the built-in
// DefaultConfig or a YAML override) is used. Calculate is a pure function
// from a usage snapshot and a Config to a per-dimension Breakdown in whole
// minor currency units.
//
//	cfg, _ := store.Active(ctx)
//	breakdown := pricing.Calculate(snapshot, *cfg)
//	fmt.Println(breakdown.TotalCents)
package pricing
