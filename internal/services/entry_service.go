package services

import (
	"context"
	"errors"
	"fmt"

	"commissions/internal/cache"
	"commissions/internal/core"
	"commissions/internal/events"
	applog "commissions/internal/log"
	"commissions/internal/store"
)

// EntryService orchestrates entry operations across the store, the event
// bus and the dashboard cache.
type EntryService struct {
	store     store.EntryStore
	publisher events.Publisher
	cache     cache.DashboardCache
	logger    *applog.Logger
}

// NewEntryService wires the service. A nil publisher disables events and a
// nil cache computes every dashboard from scratch.
func NewEntryService(s store.EntryStore, publisher events.Publisher, dashboards cache.DashboardCache, logger *applog.Logger) *EntryService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &EntryService{
		store:     s,
		publisher: publisher,
		cache:     dashboards,
		logger:    logger.WithComponent(applog.ComponentEntries),
	}
}

// Snapshot returns every stored entry, parsed, in store order.
func (s *EntryService) Snapshot(ctx context.Context) ([]core.Entry, error) {
	raws, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return core.ParseEntries(raws), nil
}

// ListEntries returns the entries matching the year and months, newest first.
func (s *EntryService) ListEntries(ctx context.Context, year *int, months []int) ([]core.Entry, error) {
	for _, m := range months {
		if m < 0 || m > 11 {
			return nil, fmt.Errorf("%w: month %d", core.ErrInvalidSelection, m)
		}
	}
	entries, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return core.SortByDateDesc(core.FilterEntries(entries, year, months)), nil
}

// Years lists the distinct years present in the ledger, newest first.
func (s *EntryService) Years(ctx context.Context) ([]int, error) {
	entries, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return core.DistinctYears(entries), nil
}

// Dashboard computes, or serves from cache, the full dashboard for sel.
func (s *EntryService) Dashboard(ctx context.Context, sel core.Selection) (core.Dashboard, error) {
	if err := sel.Validate(); err != nil {
		return core.Dashboard{}, err
	}
	sel = sel.WithDefaults()
	key := sel.Key()

	// gen is read before the entries so a concurrent mutation voids the Set.
	var gen int64
	if s.cache != nil {
		d, g, ok := s.cache.Get(ctx, key)
		if ok {
			s.logger.DebugContext(ctx, "Dashboard served from cache", "key", key)
			return d, nil
		}
		gen = g
	}

	entries, err := s.Snapshot(ctx)
	if err != nil {
		return core.Dashboard{}, err
	}
	d := core.BuildDashboard(entries, sel)

	if s.cache != nil {
		s.cache.Set(ctx, key, gen, d)
	}
	return d, nil
}

// CreateEntry saves an entry, then announces it.
func (s *EntryService) CreateEntry(ctx context.Context, n core.NewEntry) (core.Entry, error) {
	raw, err := s.store.Create(ctx, n)
	if err != nil {
		return core.Entry{}, fmt.Errorf("create entry: %w", err)
	}
	s.afterMutation(ctx, raw.ID, events.OpCreated)
	return core.ParseEntry(raw), nil
}

// DeleteEntry removes an entry. Unknown IDs yield core.ErrNotFound.
func (s *EntryService) DeleteEntry(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	s.afterMutation(ctx, id, events.OpDeleted)
	return nil
}

// SetEntryTime attaches a worked time to an entry, or clears it when value
// is core.ClearTimeSentinel.
func (s *EntryService) SetEntryTime(ctx context.Context, id, value string) (core.Entry, error) {
	raw, err := s.store.SetTime(ctx, id, value)
	if err != nil {
		return core.Entry{}, fmt.Errorf("set entry time: %w", err)
	}
	s.afterMutation(ctx, id, events.OpTimeSet)
	return core.ParseEntry(raw), nil
}

func (s *EntryService) afterMutation(ctx context.Context, id string, op events.Op) {
	fields := func() applog.LogFields {
		f := applog.NewFields().WithOperation(string(op))
		f[applog.FieldEntryID] = id
		return f
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "Failed to invalidate dashboard cache", fields().WithError(err).ToSlice()...)
		}
	}

	// Don't fail the request: the entry is already stored.
	if err := s.publisher.Publish(ctx, events.NewEntryEvent(id, op)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish entry event", fields().WithError(err).ToSlice()...)
		return
	}
	s.logger.DebugContext(ctx, "Entry event published", fields().ToSlice()...)
}

// Close releases the store and the publisher when they hold resources.
func (s *EntryService) Close() error {
	var errs []error
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if c, ok := s.store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
