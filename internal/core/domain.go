// Package core holds the commission ledger domain: entry values and the
// pure aggregation engine (bucketing, filtering, wage rates, KPIs).
//
// Nothing in this package performs I/O. Every function takes a snapshot of
// entries and returns freshly allocated results.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ClearTimeSentinel is the literal value that removes an entry's worked time
// when passed to a SetTime operation.
const ClearTimeSentinel = "0"

const dateLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	// WorkedTime is a duration in hours:minutes form.
	WorkedTime struct {
		Hours   int
		Minutes int
	}

	// RawEntry is an entry as persisted by a store. Values are kept as text so
	// that hand-edited or legacy records still round-trip and can be listed.
	RawEntry struct {
		ID     string   `json:"id"`
		Name   string   `json:"name"`
		Price  string   `json:"price"`
		Date   string   `json:"date"`
		Type   string   `json:"type,omitempty"`
		Extras []string `json:"extras,omitempty"`
		Time   string   `json:"time,omitempty"`
	}

	// NewEntry carries the user supplied fields of an entry to create.
	NewEntry struct {
		Name   string   `json:"name"`
		Price  string   `json:"price"`
		Date   string   `json:"date"`
		Type   string   `json:"type"`
		Extras []string `json:"extras"`
		Time   string   `json:"time"`
	}

	// Entry is a parsed ledger record. When Malformed is non-nil the numeric
	// fields are unreliable and the entry is excluded from every aggregate.
	Entry struct {
		ID        string
		Name      string
		Price     Price
		Date      Date
		Type      string
		Extras    []string
		Time      *WorkedTime
		Malformed error

		raw RawEntry
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidTime      = errors.New("invalid time")
	ErrEmptyName        = errors.New("empty name")
	ErrNotFound         = errors.New("entry not found")
	ErrInvalidSelection = errors.New("invalid selection")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD and RFC 3339 timestamps; the time of day is dropped.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// Year returns the calendar year
func (d Date) Year() int {
	return d.Time.Year()
}

// MonthIndex returns the 0-based month (January is 0).
func (d Date) MonthIndex() int {
	return int(d.Time.Month()) - 1
}

// ParseWorkedTime parses "H:MM" or "HH:MM". An empty string means no time
// and returns nil without error.
func ParseWorkedTime(s string) (*WorkedTime, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q is not hours:minutes", ErrInvalidTime, s)
	}
	hours, err := parseNonNegative(h)
	if err != nil {
		return nil, fmt.Errorf("%w: hours in %q", ErrInvalidTime, s)
	}
	minutes, err := parseNonNegative(m)
	if err != nil || minutes >= 60 {
		return nil, fmt.Errorf("%w: minutes in %q", ErrInvalidTime, s)
	}
	return &WorkedTime{Hours: hours, Minutes: minutes}, nil
}

func parseNonNegative(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty")
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a digit: %q", r)
		}
		n = n*10 + int(r-'0')
		if n > 1_000_000 {
			return 0, errors.New("too large")
		}
	}
	return n, nil
}

// TotalMinutes returns the duration in minutes; nil counts as zero.
func (w *WorkedTime) TotalMinutes() int {
	if w == nil {
		return 0
	}
	return w.Hours*60 + w.Minutes
}

// Positive reports whether the duration can carry a wage signal.
func (w *WorkedTime) Positive() bool {
	return w.TotalMinutes() > 0
}

func (w *WorkedTime) String() string {
	if w == nil {
		return ""
	}
	return FormatMinutes(w.TotalMinutes())
}

// FormatMinutes renders minutes as HH:MM. Hours are not wrapped at 24.
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeTime validates a value destined for SetTime and returns the text
// to persist. The clear sentinel and the empty string both map to "".
func NormalizeTime(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == ClearTimeSentinel || value == "" {
		return "", nil
	}
	w, err := ParseWorkedTime(value)
	if err != nil {
		return "", err
	}
	return w.String(), nil
}

// Normalize validates the fields and returns the canonical raw record to be
// stored. The ID is left empty for the store to assign.
func (n NewEntry) Normalize() (RawEntry, error) {
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return RawEntry{}, ErrEmptyName
	}
	if len(name) > 200 {
		return RawEntry{}, errors.New("name too long (max 200 characters)")
	}
	d, err := ParseDate(n.Date)
	if err != nil {
		return RawEntry{}, err
	}
	p, err := ParsePrice(n.Price)
	if err != nil {
		return RawEntry{}, err
	}
	t, err := NormalizeTime(n.Time)
	if err != nil {
		return RawEntry{}, err
	}
	return RawEntry{
		Name:   name,
		Price:  p.String(),
		Date:   d.String(),
		Type:   strings.TrimSpace(n.Type),
		Extras: CleanExtras(n.Extras),
		Time:   t,
	}, nil
}

// CleanExtras trims tags and drops empty and duplicate values, keeping order.
func CleanExtras(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseEntry converts a stored record. Parse failures do not abort: they are
// joined into Entry.Malformed so the record can still be listed.
func ParseEntry(raw RawEntry) Entry {
	e := Entry{
		ID:     raw.ID,
		Name:   strings.TrimSpace(raw.Name),
		Type:   strings.TrimSpace(raw.Type),
		Extras: CleanExtras(raw.Extras),
		raw:    raw,
	}
	var errs []error
	if d, err := ParseDate(raw.Date); err != nil {
		errs = append(errs, err)
	} else {
		e.Date = d
	}
	if p, err := ParsePrice(raw.Price); err != nil {
		errs = append(errs, err)
	} else {
		e.Price = p
	}
	if t, err := ParseWorkedTime(raw.Time); err != nil {
		errs = append(errs, err)
	} else {
		e.Time = t
	}
	e.Malformed = errors.Join(errs...)
	return e
}

// ParseEntries parses every record, preserving order.
func ParseEntries(raws []RawEntry) []Entry {
	out := make([]Entry, 0, len(raws))
	for _, r := range raws {
		out = append(out, ParseEntry(r))
	}
	return out
}

// Valid reports whether the entry may take part in numeric aggregation.
func (e Entry) Valid() bool {
	return e.Malformed == nil
}

// Raw returns the record the entry was parsed from.
func (e Entry) Raw() RawEntry {
	return e.raw
}

type entryJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     json.RawMessage `json:"price"`
	Date      string          `json:"date"`
	Type      string          `json:"type,omitempty"`
	Extras    []string        `json:"extras,omitempty"`
	Time      string          `json:"time,omitempty"`
	Malformed string          `json:"malformed,omitempty"`
}

// MarshalJSON renders parsed values, or the stored text for malformed entries.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{
		ID:     e.ID,
		Name:   e.Name,
		Type:   e.Type,
		Extras: e.Extras,
	}
	if e.Malformed != nil {
		price, err := json.Marshal(e.raw.Price)
		if err != nil {
			return nil, err
		}
		out.Price = price
		out.Date = e.raw.Date
		out.Time = e.raw.Time
		out.Malformed = e.Malformed.Error()
	} else {
		out.Price = json.RawMessage(e.Price.Exact())
		out.Date = e.Date.String()
		out.Time = e.Time.String()
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON by re-parsing the rendered fields, so a
// cached payload decodes to the same valid or malformed entry.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var in entryJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	price := string(in.Price)
	if strings.HasPrefix(price, `"`) {
		if err := json.Unmarshal(in.Price, &price); err != nil {
			return err
		}
	}
	*e = ParseEntry(RawEntry{
		ID:     in.ID,
		Name:   in.Name,
		Price:  price,
		Date:   in.Date,
		Type:   in.Type,
		Extras: in.Extras,
		Time:   in.Time,
	})
	return nil
}
