package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is the calendar granularity of a bucket key.
type Period string

const (
	PeriodYear  Period = "year"
	PeriodMonth Period = "month"
	PeriodWeek  Period = "week"
	PeriodDay   Period = "day"
)

func (p Period) IsValid() bool {
	switch p {
	case PeriodYear, PeriodMonth, PeriodWeek, PeriodDay:
		return true
	}
	return false
}

// ISOWeek returns the ISO 8601 week-numbering year and week of t.
// The date is moved to the Thursday of its week (Monday=1..Sunday=7) and
// the week is counted from January 1st of that Thursday's year, so late
// December can fall in week 1 and early January in week 52 or 53.
func ISOWeek(t time.Time) (year, week int) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	dayNum := int(day.Weekday())
	if dayNum == 0 {
		dayNum = 7
	}
	thursday := day.AddDate(0, 0, 4-dayNum)
	jan1 := time.Date(thursday.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	days := int(thursday.Sub(jan1).Hours() / 24)
	// ceil((days+1)/7)
	week = (days + 1 + 6) / 7
	return thursday.Year(), week
}

// BucketKey derives the bucket key of d for the period. Unknown periods fall
// back to month keys.
func BucketKey(d Date, p Period) string {
	switch p {
	case PeriodYear:
		return fmt.Sprintf("%04d", d.Year())
	case PeriodDay:
		return d.String()
	case PeriodWeek:
		y, w := ISOWeek(d.Time)
		return fmt.Sprintf("%04d-W%02d", y, w)
	default:
		return fmt.Sprintf("%04d-%02d", d.Year(), d.MonthIndex()+1)
	}
}

// CompareKeys orders two bucket keys of the same period. Year, month and day
// keys are zero padded and compare as strings; week keys compare as the
// numeric (year, week) pair.
func CompareKeys(p Period, a, b string) int {
	if p == PeriodWeek {
		ay, aw, aok := parseWeekKey(a)
		by, bw, bok := parseWeekKey(b)
		if aok && bok {
			switch {
			case ay != by:
				return cmpInt(ay, by)
			default:
				return cmpInt(aw, bw)
			}
		}
	}
	return strings.Compare(a, b)
}

func parseWeekKey(k string) (year, week int, ok bool) {
	y, w, found := strings.Cut(k, "-W")
	if !found {
		return 0, 0, false
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return 0, 0, false
	}
	week, err = strconv.Atoi(w)
	if err != nil {
		return 0, 0, false
	}
	return year, week, true
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
