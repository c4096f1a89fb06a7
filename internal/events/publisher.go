package events

import (
	"context"
	"sync"
)

// Publisher announces entry mutations. Publishing is best-effort: callers
// log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev *EntryEvent) error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *EntryEvent) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []*EntryEvent
	Err    error
}

func (r *Recorder) Publish(_ context.Context, ev *EntryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []*EntryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*EntryEvent(nil), r.events...)
}
