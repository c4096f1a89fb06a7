package core

import "sort"

// FilterEntries keeps entries whose year equals *year (when set) and whose
// 0-based month is one of months (when non-empty). The input order is kept.
// Malformed entries have no usable date, so they only pass an empty filter.
func FilterEntries(entries []Entry, year *int, months []int) []Entry {
	monthSet := make(map[int]struct{}, len(months))
	for _, m := range months {
		monthSet[m] = struct{}{}
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if year == nil && len(monthSet) == 0 {
			out = append(out, e)
			continue
		}
		if !e.Valid() {
			continue
		}
		if year != nil && e.Date.Year() != *year {
			continue
		}
		if len(monthSet) > 0 {
			if _, ok := monthSet[e.Date.MonthIndex()]; !ok {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// SortByDateDesc returns a copy sorted newest first. Equal dates keep their
// relative order and malformed entries go last.
func SortByDateDesc(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Valid() != b.Valid() {
			return a.Valid()
		}
		return a.Date.After(b.Date.Time)
	})
	return out
}

// DistinctYears lists the years present in entries, newest first.
func DistinctYears(entries []Entry) []int {
	seen := map[int]struct{}{}
	years := make([]int, 0)
	for _, e := range entries {
		if !e.Valid() {
			continue
		}
		y := e.Date.Year()
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}
