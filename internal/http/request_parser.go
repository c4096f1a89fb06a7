package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"commissions/internal/apperr"
	"commissions/internal/core"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// ParseYear reads the year query parameter. An empty value or "all" means
// no year filter.
func ParseYear(q url.Values) (*int, error) {
	raw := strings.TrimSpace(q.Get("year"))
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1 || year > 9999 {
		return nil, fmt.Errorf("%w: year %q", core.ErrInvalidSelection, raw)
	}
	return &year, nil
}

// ParseMonths reads zero-based month indexes, given either comma separated
// ("months=0,1") or repeated ("months=0&months=1").
func ParseMonths(q url.Values) ([]int, error) {
	var months []int
	seen := make(map[int]bool)
	for _, value := range q["months"] {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			m, err := strconv.Atoi(part)
			if err != nil || m < 0 || m > 11 {
				return nil, fmt.Errorf("%w: month %q", core.ErrInvalidSelection, part)
			}
			if !seen[m] {
				seen[m] = true
				months = append(months, m)
			}
		}
	}
	return months, nil
}

// ParseSelection builds a dashboard selection from query parameters. Unset
// enums keep their zero value and receive defaults downstream.
func ParseSelection(q url.Values) (core.Selection, error) {
	year, err := ParseYear(q)
	if err != nil {
		return core.Selection{}, err
	}
	months, err := ParseMonths(q)
	if err != nil {
		return core.Selection{}, err
	}
	sel := core.Selection{
		Year:    year,
		Months:  months,
		Period:  core.Period(strings.TrimSpace(q.Get("period"))),
		GroupBy: core.GroupBy(strings.TrimSpace(q.Get("groupBy"))),
		Metric:  core.Metric(strings.TrimSpace(q.Get("metric"))),
		Policy:  core.WagePolicy(strings.TrimSpace(q.Get("policy"))),
	}
	if err := sel.Validate(); err != nil {
		return core.Selection{}, err
	}
	return sel, nil
}

// flexString accepts a JSON string or number. Clients send prices and
// times either way.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

type createEntryRequest struct {
	Name   string     `json:"name"`
	Price  flexString `json:"price"`
	Date   string     `json:"date"`
	Type   string     `json:"type"`
	Extras []string   `json:"extras"`
	Time   flexString `json:"time"`
}

// toNewEntry strips control characters from the free-text fields; format
// validation happens in core.
func (req createEntryRequest) toNewEntry() core.NewEntry {
	extras := make([]string, 0, len(req.Extras))
	for _, e := range req.Extras {
		extras = append(extras, sanitizeInput(e))
	}
	return core.NewEntry{
		Name:   sanitizeInput(req.Name),
		Price:  strings.TrimSpace(string(req.Price)),
		Date:   strings.TrimSpace(req.Date),
		Type:   sanitizeInput(req.Type),
		Extras: extras,
		Time:   strings.TrimSpace(string(req.Time)),
	}
}

type setTimeRequest struct {
	Time *flexString `json:"time"`
}

// decodeJSON reads a single JSON object from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is empty", err)
		case errors.As(err, &maxErr):
			return apperr.Validation("request body is too large", err)
		default:
			return apperr.Validation("malformed JSON body", err)
		}
	}
	if dec.More() {
		return apperr.Validation("request body must contain a single JSON object", nil)
	}
	return nil
}

// sanitizeInput trims whitespace and drops control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
