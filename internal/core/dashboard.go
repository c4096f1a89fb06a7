package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Selection groups every option that drives a dashboard computation.
type Selection struct {
	Year    *int       `json:"year,omitempty"`
	Months  []int      `json:"months,omitempty"`
	Period  Period     `json:"period"`
	GroupBy GroupBy    `json:"groupBy"`
	Metric  Metric     `json:"metric"`
	Policy  WagePolicy `json:"policy"`
}

// WithDefaults fills unset enums: month buckets, date axis, price metric
// and the price-weighted wage policy.
func (s Selection) WithDefaults() Selection {
	if s.Period == "" {
		s.Period = PeriodMonth
	}
	if s.GroupBy == "" {
		s.GroupBy = GroupByDate
	}
	if s.Metric == "" {
		s.Metric = MetricPrice
	}
	if s.Policy == "" {
		s.Policy = WagePriceWeighted
	}
	return s
}

func (s Selection) Validate() error {
	s = s.WithDefaults()
	var problems []string
	if !s.Period.IsValid() {
		problems = append(problems, fmt.Sprintf("period %q", s.Period))
	}
	if !s.GroupBy.IsValid() {
		problems = append(problems, fmt.Sprintf("groupBy %q", s.GroupBy))
	}
	if !s.Metric.IsValid() {
		problems = append(problems, fmt.Sprintf("metric %q", s.Metric))
	}
	if !s.Policy.IsValid() {
		problems = append(problems, fmt.Sprintf("policy %q", s.Policy))
	}
	for _, m := range s.Months {
		if m < 0 || m > 11 {
			problems = append(problems, fmt.Sprintf("month %d", m))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSelection, strings.Join(problems, ", "))
	}
	return nil
}

// Key is a stable textual form of the selection, usable as a cache key.
func (s Selection) Key() string {
	s = s.WithDefaults()
	year := "all"
	if s.Year != nil {
		year = strconv.Itoa(*s.Year)
	}
	months := make([]string, 0, len(s.Months))
	for _, m := range s.Months {
		months = append(months, strconv.Itoa(m))
	}
	return fmt.Sprintf("y=%s|m=%s|p=%s|g=%s|k=%s|w=%s",
		year, strings.Join(months, ","), s.Period, s.GroupBy, s.Metric, s.Policy)
}

// Dashboard is everything the presentation layer renders for a selection.
type Dashboard struct {
	Selection Selection `json:"selection"`
	Entries   []Entry   `json:"entries"`
	Series    []Bucket  `json:"series"`
	KPI       KPI       `json:"kpi"`
	Average   *float64  `json:"average"`
	Years     []int     `json:"years"`
}

// BuildDashboard runs the whole pipeline over a snapshot of entries: filter,
// newest-first listing, aggregation, KPIs and the series average.
func BuildDashboard(entries []Entry, sel Selection) Dashboard {
	sel = sel.WithDefaults()
	filtered := FilterEntries(entries, sel.Year, sel.Months)
	series := Aggregate(filtered, sel)
	kpi := SummarizeKPIs(filtered)
	return Dashboard{
		Selection: sel,
		Entries:   SortByDateDesc(filtered),
		Series:    series,
		KPI:       kpi,
		Average:   SeriesAverage(kpi, series, sel.Metric),
		Years:     DistinctYears(entries),
	}
}
