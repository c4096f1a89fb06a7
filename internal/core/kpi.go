package core

import (
	"math"

	"github.com/shopspring/decimal"
)

// Metric is the value displayed on the series.
type Metric string

const (
	MetricPrice       Metric = "price"
	MetricWagePerHour Metric = "wagePerHour"
)

func (m Metric) IsValid() bool {
	return m == MetricPrice || m == MetricWagePerHour
}

// KPI holds the scalar figures of a filtered entry set.
type KPI struct {
	Count          int      `json:"count"`
	TotalPrice     Price    `json:"totalPrice"`
	TotalPriceText string   `json:"totalPriceText"`
	TotalMinutes   int      `json:"totalMinutes"`
	TotalTime      string   `json:"totalTime"`
	WagePerHour    *float64 `json:"wagePerHour"`
	// WagePerHourMean is the simple mean of per-entry rates, exposed next to
	// the price-weighted figure.
	WagePerHourMean *float64 `json:"wagePerHourMean"`
}

// SummarizeKPIs reduces the filtered entries, independently of bucketing.
// Count includes malformed entries since they are still listed; every other
// figure skips them.
func SummarizeKPIs(entries []Entry) KPI {
	k := KPI{Count: len(entries)}
	var acc wageAccumulator
	for _, e := range entries {
		if !e.Valid() {
			continue
		}
		k.TotalPrice = k.TotalPrice.Add(e.Price)
		k.TotalMinutes += e.Time.TotalMinutes()
		acc.add(e)
	}
	k.TotalPriceText = k.TotalPrice.Text()
	k.TotalTime = FormatMinutes(k.TotalMinutes)
	if d, ok := acc.result(WagePriceWeighted); ok {
		k.WagePerHour = round2(d)
	}
	if d, ok := acc.result(WageSimpleMean); ok {
		k.WagePerHourMean = round2(d)
	}
	return k
}

// SeriesAverage is the reference line of the displayed series. For wage per
// hour it is the overall price-weighted KPI, never an average of bucket
// ratios. For price it is the mean of the bucket totals. Nil when there is
// nothing to average.
func SeriesAverage(kpi KPI, buckets []Bucket, metric Metric) *float64 {
	if metric == MetricWagePerHour {
		if kpi.WagePerHour == nil {
			return nil
		}
		v := *kpi.WagePerHour
		return &v
	}
	sum := decimal.Zero
	n := 0
	for _, b := range buckets {
		f := b.TotalPrice.InexactFloat64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		sum = sum.Add(b.TotalPrice.Decimal)
		n++
	}
	if n == 0 {
		return nil
	}
	return round2(sum.Div(decimal.NewFromInt(int64(n))))
}
