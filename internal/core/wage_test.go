package core

import "testing"

func TestComputeWagePolicies(t *testing.T) {
	entries := []Entry{
		entry("1", "100", "2024-03-01", "02:00"), // 50/h
		entry("2", "10", "2024-03-02", "0:10"),   // 60/h
		entry("3", "500", "2024-03-03", ""),      // no duration
		entry("4", "70", "2024-03-04", "0:00"),   // zero duration
	}

	weighted := ComputeWage(entries, WagePriceWeighted)
	if weighted == nil {
		t.Fatalf("expected weighted wage")
	}
	// 110 / (130/60) = 50.769...
	if *weighted < 50.76 || *weighted > 50.77 {
		t.Fatalf("unexpected weighted wage %v", *weighted)
	}

	mean := ComputeWage(entries, WageSimpleMean)
	if mean == nil || *mean != 55 {
		t.Fatalf("expected simple mean 55, got %v", mean)
	}
}

func TestComputeWageNilWithoutDuration(t *testing.T) {
	cases := [][]Entry{
		nil,
		{entry("1", "100", "2024-03-01", "")},
		{entry("1", "100", "2024-03-01", "0:00")},
		{entry("1", "oops", "2024-03-01", "1:00")},
	}
	for i, entries := range cases {
		for _, p := range []WagePolicy{WagePriceWeighted, WageSimpleMean} {
			if got := ComputeWage(entries, p); got != nil {
				t.Fatalf("case %d policy %s expected nil, got %v", i, p, *got)
			}
		}
	}
}

func TestEntryRate(t *testing.T) {
	r, ok := EntryRate(entry("1", "45", "2024-01-01", "1:30"))
	if !ok || r.String() != "30" {
		t.Fatalf("expected 30, got %s (ok=%v)", r, ok)
	}
	if _, ok := EntryRate(entry("2", "45", "2024-01-01", "")); ok {
		t.Fatalf("expected no rate without time")
	}
}
