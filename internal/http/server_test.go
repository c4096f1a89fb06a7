package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"commissions/internal/auth"
	"commissions/internal/core"
	"commissions/internal/services"
	"commissions/internal/store/memory"
)

const allowedEmail = "owner@example.com"

func seed() []core.RawEntry {
	return []core.RawEntry{
		{ID: "a", Name: "Logo", Price: "100", Date: "2024-01-10", Type: "design", Time: "02:00"},
		{ID: "b", Name: "Flyer", Price: "50", Date: "2024-03-05", Type: "print"},
		{ID: "c", Name: "Site", Price: "300", Date: "2023-11-20", Type: "web", Time: "10:00"},
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, cfg Config) (*Server, *memory.Store) {
	t.Helper()
	st := memory.New(seed())
	svc := services.NewEntryService(st, nil, nil, nil)
	gate := auth.NewGate(auth.StaticVerifier{}, st, auth.Options{StaticEmails: []string{allowedEmail}}, nil)
	s := NewServer(cfg, svc, gate, st, nil)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, st
}

func do(s *Server, method, target, body, email string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if email != "" {
		req.Header.Set("Authorization", "Bearer "+email)
	}
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	rr := do(s, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := decode[map[string]any](t, rr)["status"]; got != "ok" {
		t.Fatalf("status field=%v", got)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestReadyz(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	if rr := do(s, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}

	s.pinger = failingPinger{}
	rr := do(s, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := decode[map[string]any](t, rr)["status"]; got != "not_ready" {
		t.Fatalf("status field=%v", got)
	}
}

func TestAPIAccessGate(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		wantCode int
		wantType string
		wantMsg  string
	}{
		{name: "no token", wantCode: http.StatusUnauthorized, wantType: "unauthenticated", wantMsg: "Please sign in to continue."},
		{name: "not on any list", email: "stranger@example.com", wantCode: http.StatusForbidden, wantType: "forbidden", wantMsg: "You are not authorized to log in."},
		{name: "static list", email: allowedEmail, wantCode: http.StatusOK},
		{name: "static list ignores case", email: "Owner@Example.com", wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, Config{})
			rr := do(s, http.MethodGet, "/api/years", "", tt.email)
			if rr.Code != tt.wantCode {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.wantCode, rr.Body)
			}
			if tt.wantType == "" {
				return
			}
			body := decode[ErrorBody](t, rr)
			if body.Error.Type != tt.wantType || body.Error.Message != tt.wantMsg {
				t.Fatalf("unexpected error body %+v", body)
			}
		})
	}
}

func TestAPIAccessGateDynamicList(t *testing.T) {
	s, st := newTestServer(t, Config{})
	if err := st.AddAuthorized(context.Background(), "helper@example.com"); err != nil {
		t.Fatal(err)
	}
	if rr := do(s, http.MethodGet, "/api/me", "", "helper@example.com"); rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
}

func TestDebugAuthHeader(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		s, _ := newTestServer(t, Config{DebugAuth: enabled})
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set(DebugEmailHeader, allowedEmail)
		rr := httptest.NewRecorder()
		s.Handler.ServeHTTP(rr, req)

		want := http.StatusUnauthorized
		if enabled {
			want = http.StatusOK
		}
		if rr.Code != want {
			t.Fatalf("debug=%v status=%d want %d", enabled, rr.Code, want)
		}
	}
}

func TestMe(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	rr := do(s, http.MethodGet, "/api/me", "", allowedEmail)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := decode[auth.Identity](t, rr); got.Email != allowedEmail {
		t.Fatalf("identity=%+v", got)
	}
}

func TestListEntries(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantIDs  []string
		wantCode int
	}{
		{name: "all, newest first", target: "/api/entries", wantIDs: []string{"b", "a", "c"}, wantCode: http.StatusOK},
		{name: "by year", target: "/api/entries?year=2024", wantIDs: []string{"b", "a"}, wantCode: http.StatusOK},
		{name: "by months across years", target: "/api/entries?months=0,10", wantIDs: []string{"a", "c"}, wantCode: http.StatusOK},
		{name: "no match", target: "/api/entries?year=2022", wantIDs: []string{}, wantCode: http.StatusOK},
		{name: "bad month", target: "/api/entries?months=12", wantCode: http.StatusBadRequest},
		{name: "bad year", target: "/api/entries?year=soon", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, Config{})
			rr := do(s, http.MethodGet, tt.target, "", allowedEmail)
			if rr.Code != tt.wantCode {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.wantCode, rr.Body)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			entries := decode[[]map[string]any](t, rr)
			if len(entries) != len(tt.wantIDs) {
				t.Fatalf("got %d entries want %d", len(entries), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if entries[i]["id"] != id {
					t.Fatalf("entry %d id=%v want %s", i, entries[i]["id"], id)
				}
			}
		})
	}
}

func TestCreateEntry(t *testing.T) {
	s, st := newTestServer(t, Config{})

	rr := do(s, http.MethodPost, "/api/entries",
		`{"name":" Poster\u0007 ","price":42.5,"date":"2024-06-01","type":"print","extras":["rush"],"time":"1:30"}`, allowedEmail)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	created := decode[map[string]any](t, rr)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created entry has no id")
	}
	if created["name"] != "Poster" || created["time"] != "01:30" {
		t.Fatalf("entry not normalized: %+v", created)
	}
	if got := rr.Header().Get("Location"); got != "/api/entries/"+id {
		t.Fatalf("Location=%q", got)
	}
	if _, err := st.Get(context.Background(), id); err != nil {
		t.Fatalf("entry not stored: %v", err)
	}
}

func TestCreateEntryRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body"},
		{name: "malformed json", body: `{"name":`},
		{name: "negative price", body: `{"name":"x","price":"-3","date":"2024-01-01"}`},
		{name: "exponent price", body: `{"name":"x","price":"1e200000000","date":"2024-01-01"}`},
		{name: "exponent price as number", body: `{"name":"x","price":1e200000000,"date":"2024-01-01"}`},
		{name: "bad date", body: `{"name":"x","price":"3","date":"2024-13-01"}`},
		{name: "blank name", body: `{"name":"  ","price":"3","date":"2024-01-01"}`},
		{name: "bad time", body: `{"name":"x","price":"3","date":"2024-01-01","time":"ab:cd"}`},
		{name: "two objects", body: `{"name":"x","price":"3","date":"2024-01-01"}{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, Config{})
			rr := do(s, http.MethodPost, "/api/entries", tt.body, allowedEmail)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
			}
			if got := decode[ErrorBody](t, rr).Error.Type; got != "validation" {
				t.Fatalf("error type=%q", got)
			}
		})
	}
}

func TestDeleteEntry(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	if rr := do(s, http.MethodDelete, "/api/entries/a", "", allowedEmail); rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	rr := do(s, http.MethodDelete, "/api/entries/a", "", allowedEmail)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", rr.Code)
	}
	if got := decode[ErrorBody](t, rr).Error.Type; got != "not_found" {
		t.Fatalf("error type=%q", got)
	}
}

func TestSetEntryTime(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		body     string
		wantCode int
		wantTime string
	}{
		{name: "set", id: "b", body: `{"time":"3:05"}`, wantCode: http.StatusOK, wantTime: "03:05"},
		{name: "clear with string sentinel", id: "a", body: `{"time":"0"}`, wantCode: http.StatusOK},
		{name: "clear with number", id: "a", body: `{"time":0}`, wantCode: http.StatusOK},
		{name: "missing field", id: "a", body: `{}`, wantCode: http.StatusBadRequest},
		{name: "invalid value", id: "a", body: `{"time":"soon"}`, wantCode: http.StatusBadRequest},
		{name: "unknown entry", id: "zzz", body: `{"time":"1:00"}`, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, Config{})
			rr := do(s, http.MethodPut, "/api/entries/"+tt.id+"/time", tt.body, allowedEmail)
			if rr.Code != tt.wantCode {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.wantCode, rr.Body)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			entry := decode[map[string]any](t, rr)
			got, _ := entry["time"].(string)
			if got != tt.wantTime {
				t.Fatalf("time=%q want %q", got, tt.wantTime)
			}
		})
	}
}

func TestDashboard(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rr := do(s, http.MethodGet, "/api/dashboard?year=2024&period=month&metric=price", "", allowedEmail)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	d := decode[core.Dashboard](t, rr)
	if d.KPI.Count != 2 || d.KPI.TotalPriceText != "150.00" {
		t.Fatalf("unexpected kpi %+v", d.KPI)
	}
	if len(d.Series) == 0 {
		t.Fatal("expected a series")
	}
	if len(d.Years) != 2 || d.Years[0] != 2024 {
		t.Fatalf("years=%v", d.Years)
	}

	rr = do(s, http.MethodGet, "/api/dashboard?period=fortnight", "", allowedEmail)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid period status=%d", rr.Code)
	}
}

func TestYears(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	rr := do(s, http.MethodGet, "/api/years", "", allowedEmail)
	years := decode[[]int](t, rr)
	if len(years) != 2 || years[0] != 2024 || years[1] != 2023 {
		t.Fatalf("years=%v", years)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	rr := do(s, http.MethodPatch, "/api/entries", "", allowedEmail)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, Config{RateLimitPerMinute: 2})
	for i := 0; i < 2; i++ {
		if rr := do(s, http.MethodGet, "/api/years", "", allowedEmail); rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i+1, rr.Code)
		}
	}
	rr := do(s, http.MethodGet, "/api/years", "", allowedEmail)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
	// Probes are not rate limited.
	if rr := do(s, http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	do(s, http.MethodPost, "/api/entries", `{"name":"x","price":"3","date":"2024-01-01"}`, allowedEmail)
	do(s, http.MethodGet, "/api/years", "", "")

	rr := do(s, http.MethodGet, "/metrics", "", "")
	body := rr.Body.String()
	for _, want := range []string{"entries_created_total 1", "auth_failures_total 1", "http_requests_total 3"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

type brokenEntries struct{ EntryAPI }

func (brokenEntries) ListEntries(context.Context, *int, []int) ([]core.Entry, error) {
	return nil, errors.New("disk on fire")
}

func TestInternalErrorCarriesRequestID(t *testing.T) {
	gate := auth.NewGate(auth.StaticVerifier{}, nil, auth.Options{StaticEmails: []string{allowedEmail}}, nil)
	s := NewServer(Config{}, brokenEntries{}, gate, failingPinger{}, nil)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	rr := do(s, http.MethodGet, "/api/entries", "", allowedEmail)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := decode[ErrorBody](t, rr)
	if strings.Contains(body.Error.Message, "disk on fire") {
		t.Fatalf("internal cause leaked: %q", body.Error.Message)
	}
	if body.Error.RequestID == "" || body.Error.RequestID != rr.Header().Get("X-Request-ID") {
		t.Fatalf("request_id=%q header=%q", body.Error.RequestID, rr.Header().Get("X-Request-ID"))
	}
}
