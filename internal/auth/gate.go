// Package auth gates access: a verified Google identity must appear in the
// union of a static allow-list and one read from the store.
package auth

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"commissions/internal/apperr"
	"commissions/internal/cache"
	applog "commissions/internal/log"
	"commissions/internal/store"
)

// Denials. The HTTP layer renders them as blocking error bodies.
var (
	ErrUnauthenticated    = apperr.Unauthenticated("Please sign in to continue.", nil)
	ErrNotAuthorized      = apperr.Forbidden("You are not authorized to log in.")
	ErrAuthorizationCheck = apperr.Unavailable("Failed to check user authorization.", nil)
)

const allowListKey = "authorized_emails"

type Options struct {
	StaticEmails []string
	// CacheTTL bounds how long a fetched allow-list is reused. Zero disables caching.
	CacheTTL     time.Duration
	FetchTimeout time.Duration
}

type Gate struct {
	verifier     Verifier
	source       store.AllowListSource
	static       map[string]struct{}
	fetchTimeout time.Duration
	cache        *cache.LRUCache[[]string]
	group        singleflight.Group
	logger       *applog.Logger
}

// NewGate builds a gate. source may be nil, leaving only the static list.
func NewGate(verifier Verifier, source store.AllowListSource, opts Options, logger *applog.Logger) *Gate {
	if logger == nil {
		logger = applog.Discard()
	}
	static := make(map[string]struct{}, len(opts.StaticEmails))
	for _, e := range opts.StaticEmails {
		if e = store.NormalizeEmail(e); e != "" {
			static[e] = struct{}{}
		}
	}
	g := &Gate{
		verifier:     verifier,
		source:       source,
		static:       static,
		fetchTimeout: opts.FetchTimeout,
		logger:       logger.WithComponent(applog.ComponentAuth),
	}
	if opts.CacheTTL > 0 {
		g.cache = cache.NewLRUCache[[]string](1, opts.CacheTTL)
	}
	return g
}

// Authenticate verifies token and checks the allow-list. Token verification
// and the allow-list fetch run concurrently.
func (g *Gate) Authenticate(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	var (
		id       Identity
		dynamic  []string
		fetchErr error
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		id, err = g.verifier.Verify(egCtx, token)
		return err
	})
	eg.Go(func() error {
		// A fetch failure is reported after verification so that a bad token
		// still reads as unauthenticated.
		dynamic, fetchErr = g.allowList(egCtx)
		return nil
	})
	if err := eg.Wait(); err != nil {
		g.logger.InfoContext(ctx, "Token verification failed",
			applog.NewFields().WithOperation(applog.OpAuth).WithError(err).ToSlice()...)
		return Identity{}, &apperr.AppError{Type: ErrUnauthenticated.Type, Message: ErrUnauthenticated.Message, Cause: err}
	}

	if fetchErr != nil {
		g.logger.ErrorContext(ctx, "Error fetching allowed users",
			applog.NewFields().WithOperation(applog.OpAuth).WithUser(id.Email).WithError(fetchErr).ToSlice()...)
		return Identity{}, &apperr.AppError{Type: ErrAuthorizationCheck.Type, Message: ErrAuthorizationCheck.Message, Cause: fetchErr}
	}

	if !g.allowed(id.Email, dynamic) {
		g.logger.WarnContext(ctx, "Rejected user not on allow-list",
			applog.NewFields().WithOperation(applog.OpAuth).WithUser(id.Email).ToSlice()...)
		return Identity{}, ErrNotAuthorized
	}
	return id, nil
}

func (g *Gate) allowed(email string, dynamic []string) bool {
	email = store.NormalizeEmail(email)
	if _, ok := g.static[email]; ok {
		return true
	}
	for _, e := range dynamic {
		if store.NormalizeEmail(e) == email {
			return true
		}
	}
	return false
}

// allowList returns the dynamic list, shared across concurrent callers and
// reused until the cache TTL lapses.
func (g *Gate) allowList(ctx context.Context) ([]string, error) {
	if g.source == nil {
		return nil, nil
	}
	if g.cache != nil {
		if list, ok := g.cache.Get(allowListKey); ok {
			return list, nil
		}
	}
	v, err, _ := g.group.Do(allowListKey, func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if g.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, g.fetchTimeout)
			defer cancel()
		}
		list, err := g.source.AuthorizedEmails(fetchCtx)
		if err != nil {
			return nil, err
		}
		if g.cache != nil {
			g.cache.Set(allowListKey, list)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Invalidate forgets the cached allow-list, so the next check refetches.
func (g *Gate) Invalidate() {
	if g.cache != nil {
		g.cache.Clear()
	}
}
