package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"commissions/internal/core"
	applog "commissions/internal/log"
)

// DashboardCache stores computed dashboards keyed by core.Selection.Key.
// Invalidate drops every stored dashboard; it runs after each mutation.
//
// Get also reports the generation it observed. Callers read it before
// loading entries and hand it back to Set, which discards the dashboard if an
// Invalidate happened in between.
type DashboardCache interface {
	Get(ctx context.Context, key string) (core.Dashboard, int64, bool)
	Set(ctx context.Context, key string, gen int64, d core.Dashboard)
	Invalidate(ctx context.Context) error
}

// LocalDashboards keeps dashboards in a process-local LRU.
type LocalDashboards struct {
	mu  sync.Mutex
	gen int64
	lru *LRUCache[core.Dashboard]
}

var (
	_ DashboardCache = (*LocalDashboards)(nil)
	_ DashboardCache = (*RedisDashboards)(nil)
	_ Cleaner        = (*LocalDashboards)(nil)
)

func NewLocalDashboards(size int, ttl time.Duration) *LocalDashboards {
	return &LocalDashboards{lru: NewLRUCache[core.Dashboard](size, ttl)}
}

func (l *LocalDashboards) Get(_ context.Context, key string) (core.Dashboard, int64, bool) {
	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()
	d, ok := l.lru.Get(key)
	return d, gen, ok
}

func (l *LocalDashboards) Set(_ context.Context, key string, gen int64, d core.Dashboard) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	l.lru.Set(key, d)
}

func (l *LocalDashboards) Invalidate(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.lru.Clear()
	return nil
}

func (l *LocalDashboards) CleanExpired() int { return l.lru.CleanExpired() }

func (l *LocalDashboards) Size() int { return l.lru.Size() }

// NewRedisClient connects to url, accepting either a redis:// URL or a bare
// host:port address.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisDashboards shares dashboards between replicas. Keys embed a
// generation counter, so Invalidate is a single INCR and stale keys expire
// on their own TTL.
type RedisDashboards struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *applog.Logger
}

func NewRedisDashboards(client *redis.Client, prefix string, ttl time.Duration, logger *applog.Logger) *RedisDashboards {
	if prefix == "" {
		prefix = "commissions:dashboard:"
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &RedisDashboards{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.WithComponent(applog.ComponentCache),
	}
}

func (r *RedisDashboards) genKey() string { return r.prefix + "gen" }

func (r *RedisDashboards) dataKey(gen int64, key string) string {
	return fmt.Sprintf("%s%d:%s", r.prefix, gen, key)
}

func (r *RedisDashboards) generation(ctx context.Context) (int64, error) {
	gen, err := r.client.Get(ctx, r.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get returns a negative generation when the counter is unreadable, which
// makes the following Set a no-op.
func (r *RedisDashboards) Get(ctx context.Context, key string) (core.Dashboard, int64, bool) {
	gen, err := r.generation(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "Redis generation lookup failed", "error", err)
		return core.Dashboard{}, -1, false
	}
	b, err := r.client.Get(ctx, r.dataKey(gen, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.WarnContext(ctx, "Redis dashboard lookup failed", "error", err)
		}
		return core.Dashboard{}, gen, false
	}
	var d core.Dashboard
	if err := json.Unmarshal(b, &d); err != nil {
		r.logger.WarnContext(ctx, "Discarding undecodable cached dashboard", "error", err)
		return core.Dashboard{}, gen, false
	}
	return d, gen, true
}

// Set writes under the generation the caller observed. A dashboard computed
// across an Invalidate lands in a generation nobody reads any more.
func (r *RedisDashboards) Set(ctx context.Context, key string, gen int64, d core.Dashboard) {
	if gen < 0 {
		return
	}
	b, err := json.Marshal(d)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to encode dashboard", "error", err)
		return
	}
	if err := r.client.Set(ctx, r.dataKey(gen, key), b, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "Redis dashboard store failed", "error", err)
	}
}

func (r *RedisDashboards) Invalidate(ctx context.Context) error {
	if err := r.client.Incr(ctx, r.genKey()).Err(); err != nil {
		return fmt.Errorf("bump dashboard generation: %w", err)
	}
	return nil
}
