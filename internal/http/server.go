package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"commissions/internal/auth"
	"commissions/internal/core"
	applog "commissions/internal/log"
	"commissions/internal/middleware/ratelimit"
	"commissions/internal/middleware/security"
	"commissions/internal/middleware/trace"
	"commissions/internal/store"
)

// EntryAPI is the slice of the entry service the handlers drive.
type EntryAPI interface {
	ListEntries(ctx context.Context, year *int, months []int) ([]core.Entry, error)
	Years(ctx context.Context) ([]int, error)
	Dashboard(ctx context.Context, sel core.Selection) (core.Dashboard, error)
	CreateEntry(ctx context.Context, e core.NewEntry) (core.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	SetEntryTime(ctx context.Context, id, value string) (core.Entry, error)
}

// Authenticator resolves a request token into an authorized identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
}

// DebugEmailHeader stands in for a token when debug auth is enabled.
const DebugEmailHeader = "X-Debug-Email"

type Config struct {
	Addr               string
	RateLimitPerMinute int
	// TrustedProxies are CIDRs whose forwarding headers are believed.
	TrustedProxies []string
	// DebugAuth lets requests without a token authenticate with the
	// X-Debug-Email header. The gate still applies the allow-list.
	DebugAuth bool
}

type Server struct {
	http.Server
	entries EntryAPI
	authn   Authenticator
	pinger  store.Pinger
	logger  *applog.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	debugAuth        bool

	appMetrics *appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime           time.Time
	entriesCreated   int64
	entriesDeleted   int64
	dashboardsServed int64
	authFailures     int64
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. pinger may be nil when the backend has nothing to ping.
func NewServer(cfg Config, entries EntryAPI, authn Authenticator, pinger store.Pinger, logger *applog.Logger) *Server {
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, "error", err)
		}
	}

	s := &Server{
		entries:          entries,
		authn:            authn,
		pinger:           pinger,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		debugAuth:        cfg.DebugAuth,
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("GET /api/entries", s.api(s.handleListEntries))
	mux.Handle("POST /api/entries", s.api(s.handleCreateEntry))
	mux.Handle("DELETE /api/entries/{id}", s.api(s.handleDeleteEntry))
	mux.Handle("PUT /api/entries/{id}/time", s.api(s.handleSetEntryTime))
	mux.Handle("GET /api/dashboard", s.api(s.handleDashboard))
	mux.Handle("GET /api/years", s.api(s.handleYears))
	mux.Handle("GET /api/me", s.api(s.handleMe))

	// Outermost first: tracing, then headers, then request screening.
	var handler http.Handler = mux
	handler = s.securityDetector.Middleware()(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// api wraps an /api handler with per-client rate limiting and
// authentication.
func (s *Server) api(h http.HandlerFunc) http.Handler {
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	}
	return s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, onLimit)(s.withAuth(h))
}

// withAuth admits requests whose token passes the access gate and stores
// the identity in the request context.
func (s *Server) withAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := auth.TokenFromRequest(r)
		if token == "" && s.debugAuth {
			token = r.Header.Get(DebugEmailHeader)
		}

		identity, err := s.authn.Authenticate(ctx, token)
		if err != nil {
			s.appMetrics.addAuthFailure()
			applog.FromContext(ctx).WarnContext(ctx, "Access denied",
				applog.NewFields().WithOperation(applog.OpAuth).WithError(err).ToSlice()...)
			FromError(err).Write(w)
			return
		}

		ctx = auth.NewContext(ctx, identity)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUser, identity.Email))
		next(w, r.WithContext(ctx))
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
