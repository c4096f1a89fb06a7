package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"commissions/internal/apperr"
	"commissions/internal/auth"
	"commissions/internal/core"
	applog "commissions/internal/log"
	"commissions/internal/middleware/trace"
)

func (m *appMetrics) addAuthFailure() { atomic.AddInt64(&m.authFailures, 1) }

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Payload(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.pinger == nil {
		checks["store"] = "ok"
	} else if err := s.pinger.Ping(ctx); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err.Error())
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Payload(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	write := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}
	write("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	write("entries_created_total", "counter", "Total number of entries created", atomic.LoadInt64(&s.appMetrics.entriesCreated))
	write("entries_deleted_total", "counter", "Total number of entries deleted", atomic.LoadInt64(&s.appMetrics.entriesDeleted))
	write("dashboards_served_total", "counter", "Total number of dashboards served", atomic.LoadInt64(&s.appMetrics.dashboardsServed))
	write("auth_failures_total", "counter", "Total rejected API requests", atomic.LoadInt64(&s.appMetrics.authFailures))
	write("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	write("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	write("invalid_ip_attempts_total", "counter", "Total unparseable forwarded addresses", securityMetrics.InvalidIPAttempts)
	write("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	write("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	year, err := ParseYear(q)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	months, err := ParseMonths(q)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	entries, err := s.entries.ListEntries(ctx, year, months)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if entries == nil {
		entries = []core.Entry{}
	}
	NewJSONResponse().Payload(entries).Write(w)
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(ctx, w, err)
		return
	}

	entry, err := s.entries.CreateEntry(ctx, req.toNewEntry())
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.entriesCreated, 1)

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/entries/"+entry.ID).
		Payload(entry).
		Write(w)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.entries.DeleteEntry(ctx, id); err != nil {
		s.writeError(ctx, w, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.entriesDeleted, 1)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleSetEntryTime(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req setTimeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if req.Time == nil {
		s.writeError(ctx, w, apperr.Validation(`field "time" is required; send "0" to clear it`, nil))
		return
	}

	entry, err := s.entries.SetEntryTime(ctx, r.PathValue("id"), string(*req.Time))
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	NewJSONResponse().Payload(entry).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sel, err := ParseSelection(r.URL.Query())
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	dashboard, err := s.entries.Dashboard(ctx, sel)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.dashboardsServed, 1)
	NewJSONResponse().Payload(dashboard).Write(w)
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	years, err := s.entries.Years(ctx)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if years == nil {
		years = []int{}
	}
	NewJSONResponse().Payload(years).Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		FromError(auth.ErrUnauthenticated).Write(w)
		return
	}
	NewJSONResponse().Payload(identity).Write(w)
}

// writeError logs err at a level matching its class and renders it.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := applog.FromContext(ctx)
	appErr := apperr.From(err)
	switch appErr.Type {
	case apperr.TypeInternal, apperr.TypeUnavailable:
		logger.ErrorContext(ctx, "Request failed", applog.FieldError, err.Error())
	default:
		logger.DebugContext(ctx, "Request rejected", applog.FieldError, err.Error())
	}
	status := apperr.HTTPStatus(err)
	detail := ErrorDetail{Type: appErr.Type.String(), Message: appErr.Message}
	if status >= http.StatusInternalServerError {
		// Lets a user quote the failing request.
		detail.RequestID = trace.GetRequestID(ctx)
	}
	NewJSONResponse().Status(status).Payload(ErrorBody{Error: detail}).Write(w)
}
