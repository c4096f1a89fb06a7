package core

import "github.com/shopspring/decimal"

// WagePolicy selects how per-entry rates are combined.
type WagePolicy string

const (
	// WagePriceWeighted divides the summed price by the summed hours.
	WagePriceWeighted WagePolicy = "weighted"
	// WageSimpleMean averages the per-entry rates.
	WageSimpleMean WagePolicy = "mean"
)

func (p WagePolicy) IsValid() bool {
	return p == WagePriceWeighted || p == WageSimpleMean
}

var sixty = decimal.NewFromInt(60)

// EntryRate is price / hours. It is defined only for well-formed entries
// with a positive duration.
func EntryRate(e Entry) (decimal.Decimal, bool) {
	if !e.Valid() || !e.Time.Positive() {
		return decimal.Zero, false
	}
	minutes := decimal.NewFromInt(int64(e.Time.TotalMinutes()))
	return e.Price.Mul(sixty).Div(minutes), true
}

// wageAccumulator collects the inputs of both policies in one pass.
type wageAccumulator struct {
	price   decimal.Decimal
	minutes int
	rates   decimal.Decimal
	n       int
}

func (a *wageAccumulator) add(e Entry) {
	rate, ok := EntryRate(e)
	if !ok {
		return
	}
	a.price = a.price.Add(e.Price.Decimal)
	a.minutes += e.Time.TotalMinutes()
	a.rates = a.rates.Add(rate)
	a.n++
}

func (a *wageAccumulator) result(policy WagePolicy) (decimal.Decimal, bool) {
	if a.n == 0 {
		return decimal.Zero, false
	}
	if policy == WageSimpleMean {
		return a.rates.Div(decimal.NewFromInt(int64(a.n))), true
	}
	return a.price.Mul(sixty).Div(decimal.NewFromInt(int64(a.minutes))), true
}

// ComputeWage combines the rates of entries with the given policy. The
// result is nil when no entry has a positive duration. Unknown policies use
// the price-weighted form.
func ComputeWage(entries []Entry, policy WagePolicy) *float64 {
	var acc wageAccumulator
	for _, e := range entries {
		acc.add(e)
	}
	d, ok := acc.result(policy)
	if !ok {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}
