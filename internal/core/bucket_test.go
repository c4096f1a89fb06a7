package core

import (
	"sort"
	"testing"
	"time"
)

func TestBucketKey(t *testing.T) {
	d := NewDate(2024, 3, 5)
	cases := []struct {
		p    Period
		want string
	}{
		{PeriodYear, "2024"},
		{PeriodMonth, "2024-03"},
		{PeriodDay, "2024-03-05"},
		{PeriodWeek, "2024-W10"},
		{"", "2024-03"},
	}
	for _, tc := range cases {
		if got := BucketKey(d, tc.p); got != tc.want {
			t.Fatalf("period %q expected %s, got %s", tc.p, tc.want, got)
		}
	}
}

func TestISOWeekYearBoundaries(t *testing.T) {
	cases := []struct {
		date string
		want string
	}{
		{"2023-12-31", "2023-W52"}, // Sunday
		{"2024-01-01", "2024-W01"}, // Monday
		{"2024-12-30", "2025-W01"}, // late December in next year's week 1
		{"2021-01-03", "2020-W53"}, // early January in previous year's week 53
		{"2022-01-01", "2021-W52"},
		{"2026-01-01", "2026-W01"},
	}
	for _, tc := range cases {
		d, err := ParseDate(tc.date)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.date, err)
		}
		if got := BucketKey(d, PeriodWeek); got != tc.want {
			t.Fatalf("%s expected %s, got %s", tc.date, tc.want, got)
		}
	}
}

func TestISOWeekMatchesStdlib(t *testing.T) {
	start := time.Date(1999, 12, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 365*30; i += 3 {
		day := start.AddDate(0, 0, i)
		y, w := ISOWeek(day)
		sy, sw := day.ISOWeek()
		if y != sy || w != sw {
			t.Fatalf("%s expected %d-W%02d, got %d-W%02d", day.Format(dateLayout), sy, sw, y, w)
		}
	}
}

func TestCompareKeysWeekIsNumeric(t *testing.T) {
	// A five digit year sorts before a four digit one as strings.
	keys := []string{"10000-W01", "9999-W52", "2024-W02", "2024-W10", "2023-W52"}
	sort.Slice(keys, func(i, j int) bool { return CompareKeys(PeriodWeek, keys[i], keys[j]) < 0 })
	want := []string{"2023-W52", "2024-W02", "2024-W10", "9999-W52", "10000-W01"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	}
}

func TestCompareKeysStringPeriods(t *testing.T) {
	if CompareKeys(PeriodMonth, "2024-02", "2024-10") >= 0 {
		t.Fatalf("expected 2024-02 before 2024-10")
	}
	if CompareKeys(PeriodDay, "2024-01-31", "2024-01-31") != 0 {
		t.Fatalf("expected equal day keys")
	}
}
