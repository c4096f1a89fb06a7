package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"commissions/internal/cache"
	"commissions/internal/core"
	"commissions/internal/events"
	applog "commissions/internal/log"
	"commissions/internal/store"
)

// MirrorSource is the primary store the mirror copies from.
type MirrorSource interface {
	List(ctx context.Context) ([]core.RawEntry, error)
	store.EntryGetter
}

// MirrorTarget is a secondary store kept in sync with the primary one.
type MirrorTarget interface {
	List(ctx context.Context) ([]core.RawEntry, error)
	store.EntryMirror
}

// MirrorProcessorConfig holds configuration for the mirror processor
type MirrorProcessorConfig struct {
	// ReconcileInterval is how often the whole primary store is compared
	// with the mirror (default: 15m)
	ReconcileInterval time.Duration
}

// DefaultMirrorProcessorConfig returns sensible defaults
func DefaultMirrorProcessorConfig() MirrorProcessorConfig {
	return MirrorProcessorConfig{
		ReconcileInterval: 15 * time.Minute,
	}
}

// ReconcileStats summarizes one reconcile pass.
type ReconcileStats struct {
	Upserted  int
	Deleted   int
	Unchanged int
}

// MirrorProcessor applies entry events to a mirror store and periodically
// reconciles it with the primary store. Events missed while the worker was
// down are repaired by the next reconcile.
type MirrorProcessor struct {
	source MirrorSource
	target MirrorTarget
	cache  cache.DashboardCache
	config MirrorProcessorConfig
	logger *applog.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMirrorProcessor creates a processor. A nil target turns it into a
// cache invalidator only.
func NewMirrorProcessor(
	source MirrorSource,
	target MirrorTarget,
	dashboards cache.DashboardCache,
	config MirrorProcessorConfig,
	logger *applog.Logger,
) *MirrorProcessor {
	if logger == nil {
		logger = applog.Discard()
	}
	if config.ReconcileInterval <= 0 {
		config.ReconcileInterval = DefaultMirrorProcessorConfig().ReconcileInterval
	}
	return &MirrorProcessor{
		source: source,
		target: target,
		cache:  dashboards,
		config: config,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleEvent brings the mirror copy of one entry in line with the primary
// store. A record gone from the primary store is removed from the mirror
// regardless of the event's op.
func (p *MirrorProcessor) HandleEvent(ctx context.Context, ev *events.EntryEvent) error {
	p.invalidate(ctx)
	if p.target == nil {
		return nil
	}

	fields := applog.NewFields().WithOperation(applog.OpMirror)
	fields[applog.FieldEntryID] = ev.ID

	if ev.Op != events.OpDeleted {
		raw, err := p.source.Get(ctx, ev.ID)
		switch {
		case err == nil:
			if err := p.target.Upsert(ctx, raw); err != nil {
				return fmt.Errorf("mirror upsert %s: %w", ev.ID, err)
			}
			p.logger.InfoContext(ctx, "Entry mirrored", fields.ToSlice()...)
			return nil
		case !errors.Is(err, core.ErrNotFound):
			return fmt.Errorf("read entry %s: %w", ev.ID, err)
		}
	}

	if err := p.target.Delete(ctx, ev.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("mirror delete %s: %w", ev.ID, err)
	}
	p.logger.InfoContext(ctx, "Entry removed from mirror", fields.ToSlice()...)
	return nil
}

// Reconcile upserts every primary record the mirror lacks or holds
// differently, and deletes mirror records the primary store no longer has.
func (p *MirrorProcessor) Reconcile(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	if p.target == nil {
		return stats, nil
	}

	primary, err := p.source.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list primary entries: %w", err)
	}
	mirrored, err := p.target.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list mirror entries: %w", err)
	}

	existing := make(map[string]core.RawEntry, len(mirrored))
	for _, e := range mirrored {
		existing[e.ID] = e
	}

	var errs []error
	for _, e := range primary {
		if m, ok := existing[e.ID]; ok && sameRecord(m, e) {
			stats.Unchanged++
		} else if err := p.target.Upsert(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("upsert %s: %w", e.ID, err))
		} else {
			stats.Upserted++
		}
		delete(existing, e.ID)
	}
	for id := range existing {
		if err := p.target.Delete(ctx, id); err != nil && !errors.Is(err, core.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		stats.Deleted++
	}

	if stats.Upserted > 0 || stats.Deleted > 0 {
		p.invalidate(ctx)
	}
	return stats, errors.Join(errs...)
}

func sameRecord(a, b core.RawEntry) bool {
	return a.Name == b.Name && a.Price == b.Price && a.Date == b.Date &&
		a.Type == b.Type && a.Time == b.Time && slices.Equal(a.Extras, b.Extras)
}

func (p *MirrorProcessor) invalidate(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Invalidate(ctx); err != nil {
		p.logger.WarnContext(ctx, "Failed to invalidate dashboard cache", "error", err)
	}
}

// Start begins the reconcile loop. Returns an error if already running.
func (p *MirrorProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("mirror processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Mirror processor started",
		"reconcile_interval", p.config.ReconcileInterval,
		"mirror_enabled", p.target != nil)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *MirrorProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Mirror processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Mirror processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *MirrorProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *MirrorProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.ReconcileInterval)
	defer ticker.Stop()

	// Reconcile immediately on startup
	p.reconcileAndLog(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reconcileAndLog(ctx)
		}
	}
}

func (p *MirrorProcessor) reconcileAndLog(ctx context.Context) {
	if p.target == nil {
		return
	}
	stats, err := p.Reconcile(ctx)
	fields := applog.NewFields().WithOperation(applog.OpReconcile)
	fields["upserted"] = stats.Upserted
	fields["deleted"] = stats.Deleted
	fields["unchanged"] = stats.Unchanged
	if err != nil {
		p.logger.ErrorContext(ctx, "Reconcile finished with errors", fields.WithError(err).ToSlice()...)
		return
	}
	p.logger.InfoContext(ctx, "Reconcile completed", fields.ToSlice()...)
}
