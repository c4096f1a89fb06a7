package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-03-01", "2024-03-01", true},
		{" 2024-12-31 ", "2024-12-31", true},
		{"2024-03-01T22:30:00Z", "2024-03-01", true},
		{"2024-02-30", "", false},
		{"01/03/2024", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.want {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.want, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", tc.in, err)
		}
	}
}

func TestParseWorkedTime(t *testing.T) {
	cases := []struct {
		in      string
		minutes int
		nilTime bool
		ok      bool
	}{
		{"02:00", 120, false, true},
		{"1:30", 90, false, true},
		{"0:00", 0, false, true},
		{"30:05", 1805, false, true},
		{"", 0, true, true},
		{"1:60", 0, false, false},
		{"-1:00", 0, false, false},
		{"2", 0, false, false},
		{"a:b", 0, false, false},
	}
	for _, tc := range cases {
		got, err := ParseWorkedTime(tc.in)
		if !tc.ok {
			if !errors.Is(err, ErrInvalidTime) {
				t.Fatalf("%q expected ErrInvalidTime, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q unexpected error: %v", tc.in, err)
		}
		if tc.nilTime {
			if got != nil {
				t.Fatalf("%q expected nil time, got %v", tc.in, got)
			}
			continue
		}
		if got.TotalMinutes() != tc.minutes {
			t.Fatalf("%q expected %d minutes, got %d", tc.in, tc.minutes, got.TotalMinutes())
		}
	}
}

func TestNormalizeTime(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"0", "", true},
		{"", "", true},
		{"0:00", "00:00", true},
		{"1:5", "01:05", true},
		{"12:45", "12:45", true},
		{"12:75", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeTime(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q expected %q, got %q (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestNewEntryNormalize(t *testing.T) {
	raw, err := NewEntry{
		Name:   "  Logo design ",
		Price:  "120,5",
		Date:   "2024-03-01",
		Type:   "Design",
		Extras: []string{"rush", "", "rush", "print"},
		Time:   "2:30",
	}.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Name != "Logo design" || raw.Price != "120.5" || raw.Time != "02:30" {
		t.Fatalf("unexpected normalized entry: %+v", raw)
	}
	if strings.Join(raw.Extras, ",") != "rush,print" {
		t.Fatalf("expected deduplicated extras, got %v", raw.Extras)
	}

	bads := []struct {
		in  NewEntry
		err error
	}{
		{NewEntry{Price: "1", Date: "2024-01-01"}, ErrEmptyName},
		{NewEntry{Name: "a", Price: "-1", Date: "2024-01-01"}, ErrInvalidPrice},
		{NewEntry{Name: "a", Price: "1", Date: "nope"}, ErrInvalidDate},
		{NewEntry{Name: "a", Price: "1", Date: "2024-01-01", Time: "1:99"}, ErrInvalidTime},
	}
	for i, tc := range bads {
		if _, err := tc.in.Normalize(); !errors.Is(err, tc.err) {
			t.Fatalf("case %d expected %v, got %v", i, tc.err, err)
		}
	}
}

func TestParseEntryMalformedIsListedNotDropped(t *testing.T) {
	e := ParseEntry(RawEntry{ID: "x", Name: "broken", Price: "abc", Date: "2024-01-01", Time: "1:00"})
	if e.Valid() {
		t.Fatalf("expected malformed entry")
	}
	if !errors.Is(e.Malformed, ErrInvalidPrice) {
		t.Fatalf("expected price error, got %v", e.Malformed)
	}

	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["price"] != "abc" || out["malformed"] == nil {
		t.Fatalf("expected raw price and malformed flag, got %s", b)
	}
}

func TestEntryMarshalJSON(t *testing.T) {
	e := ParseEntry(RawEntry{ID: "1", Name: "ok", Price: "100", Date: "2024-03-01", Time: "2:00"})
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"1","name":"ok","price":100.00,"date":"2024-03-01","time":"02:00"}`
	if string(b) != want {
		t.Fatalf("expected %s, got %s", want, b)
	}
}

func TestEntryJSONKeepsSubCentPrice(t *testing.T) {
	e := ParseEntry(RawEntry{ID: "1", Name: "ok", Price: "12.345", Date: "2024-03-01"})
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"price":12.345`) {
		t.Fatalf("price rounded on the wire: %s", b)
	}
	var back Entry
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Valid() || !back.Price.Equal(e.Price.Decimal) {
		t.Fatalf("round trip changed the entry: %+v", back)
	}
}

func TestScientificPriceIsMalformed(t *testing.T) {
	e := ParseEntry(RawEntry{ID: "1", Name: "huge", Price: "1e200000000", Date: "2024-03-01"})
	if e.Valid() || !errors.Is(e.Malformed, ErrInvalidPrice) {
		t.Fatalf("expected malformed price, got %+v", e)
	}
	if _, err := (NewEntry{Name: "huge", Price: "1e200000000", Date: "2024-03-01"}).Normalize(); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestEntryJSONRoundTrip(t *testing.T) {
	in := []Entry{
		ParseEntry(RawEntry{ID: "a", Name: "Logo", Price: "120,5", Date: "2024-03-04", Type: "Design", Extras: []string{"rush"}, Time: "2:30"}),
		ParseEntry(RawEntry{ID: "b", Name: "Broken", Price: "n/a", Date: "2024-13-01"}),
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []Entry
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if !out[0].Valid() || !out[0].Price.Equal(in[0].Price.Decimal) || out[0].Time.TotalMinutes() != 150 || out[0].Date.String() != "2024-03-04" {
		t.Fatalf("valid entry changed: %+v", out[0])
	}
	if out[1].Valid() || out[1].Raw().Price != "n/a" {
		t.Fatalf("malformed entry changed: %+v", out[1])
	}
	again, _ := json.Marshal(out)
	if string(again) != string(b) {
		t.Fatalf("second encoding differs:\n%s\n%s", b, again)
	}
}
