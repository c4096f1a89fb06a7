package core

import (
	"sort"
	"strings"
)

// GroupBy is the axis entries are grouped on.
type GroupBy string

const (
	GroupByDate GroupBy = "date"
	GroupByType GroupBy = "type"
)

// UnknownType labels entries without a type when grouping by type.
const UnknownType = "Unknown"

func (g GroupBy) IsValid() bool {
	return g == GroupByDate || g == GroupByType
}

// Bucket is one point of an aggregated series.
type Bucket struct {
	Key        string `json:"key"`
	TotalPrice Price  `json:"totalPrice"`
	Count      int    `json:"count"`
	// WeightedPrice and WageMinutes are the price-weighted wage inputs:
	// the summed price and duration of members with a positive duration.
	WeightedPrice Price    `json:"weightedPrice"`
	WageMinutes   int      `json:"wageMinutes"`
	WagePerHour   *float64 `json:"wagePerHour"`
	// Type and Extras come from the last member folded in.
	Type   string   `json:"type,omitempty"`
	Extras []string `json:"extras,omitempty"`
}

type bucketAcc struct {
	bucket Bucket
	wage   wageAccumulator
}

// Bucketize groups entries by calendar key and sorts the series ascending.
// Wage per hour uses the price-weighted policy.
func Bucketize(entries []Entry, period Period) []Bucket {
	return BucketizeWith(entries, period, WagePriceWeighted)
}

// BucketizeWith is Bucketize with an explicit wage policy.
func BucketizeWith(entries []Entry, period Period, policy WagePolicy) []Bucket {
	buckets := fold(entries, func(e Entry) string { return BucketKey(e.Date, period) }, policy)
	sort.SliceStable(buckets, func(i, j int) bool {
		return CompareKeys(period, buckets[i].Key, buckets[j].Key) < 0
	})
	return buckets
}

// GroupByCategory groups entries by type. Missing types collapse into
// UnknownType. Buckets appear in first-seen order.
func GroupByCategory(entries []Entry, policy WagePolicy) []Bucket {
	return fold(entries, func(e Entry) string {
		if t := strings.TrimSpace(e.Type); t != "" {
			return t
		}
		return UnknownType
	}, policy)
}

// Aggregate dispatches on the selection's axis, period and policy.
func Aggregate(entries []Entry, sel Selection) []Bucket {
	sel = sel.WithDefaults()
	if sel.GroupBy == GroupByType {
		return GroupByCategory(entries, sel.Policy)
	}
	return BucketizeWith(entries, sel.Period, sel.Policy)
}

func fold(entries []Entry, keyOf func(Entry) string, policy WagePolicy) []Bucket {
	index := map[string]int{}
	accs := make([]*bucketAcc, 0)
	for _, e := range entries {
		if !e.Valid() {
			continue
		}
		key := keyOf(e)
		i, ok := index[key]
		if !ok {
			i = len(accs)
			index[key] = i
			accs = append(accs, &bucketAcc{bucket: Bucket{Key: key}})
		}
		acc := accs[i]
		acc.bucket.TotalPrice = acc.bucket.TotalPrice.Add(e.Price)
		acc.bucket.Count++
		acc.bucket.Type = e.Type
		acc.bucket.Extras = e.Extras
		acc.wage.add(e)
	}
	out := make([]Bucket, 0, len(accs))
	for _, acc := range accs {
		b := acc.bucket
		b.WeightedPrice = Price{acc.wage.price}
		b.WageMinutes = acc.wage.minutes
		if d, ok := acc.wage.result(policy); ok {
			b.WagePerHour = round2(d)
		}
		out = append(out, b)
	}
	return out
}
