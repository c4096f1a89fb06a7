package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"commissions/internal/core"
	"commissions/internal/events"
	"commissions/internal/services"
	"commissions/internal/store/memory"
)

type sliceConsumer struct {
	events []*events.EntryEvent
	errs   []error
	err    error
	mu     sync.Mutex
}

func (c *sliceConsumer) Consume(ctx context.Context, handler events.Handler) error {
	for _, ev := range c.events {
		err := handler(ctx, ev)
		c.mu.Lock()
		c.errs = append(c.errs, err)
		c.mu.Unlock()
	}
	if c.err != nil {
		return c.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type stubProcessor struct {
	handled []string
	fail    error
	started bool
	stopped bool
}

func (p *stubProcessor) HandleEvent(_ context.Context, ev *events.EntryEvent) error {
	p.handled = append(p.handled, ev.ID)
	return p.fail
}

func (p *stubProcessor) Start(context.Context) error {
	p.started = true
	return nil
}

func (p *stubProcessor) Stop(context.Context) error {
	p.stopped = true
	return nil
}

func TestRunMirrorsEventsUntilCancelled(t *testing.T) {
	source := memory.New([]core.RawEntry{{ID: "a", Name: "Logo", Price: "100", Date: "2024-01-10"}})
	target := memory.New(nil)
	processor := services.NewMirrorProcessor(source, target, nil, services.DefaultMirrorProcessorConfig(), nil)
	consumer := &sliceConsumer{events: []*events.EntryEvent{events.NewEntryEvent("a", events.OpCreated)}}

	w := NewMirrorWorker(consumer, processor, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for {
		if _, err := target.Get(context.Background(), "a"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("entry was never mirrored")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run should return nil on cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if processor.IsRunning() {
		t.Error("processor should be stopped after Run returns")
	}
}

func TestHandleEventPropagatesErrors(t *testing.T) {
	p := &stubProcessor{fail: errors.New("sheets unavailable")}
	w := NewMirrorWorker(nil, p, nil)

	err := w.HandleEvent(context.Background(), events.NewEntryEvent("x", events.OpDeleted))
	if err == nil || err.Error() != "sheets unavailable" {
		t.Fatalf("expected processor error, got %v", err)
	}
	if len(p.handled) != 1 || p.handled[0] != "x" {
		t.Fatalf("unexpected handled ids %v", p.handled)
	}
}

func TestRunReturnsConsumerFailure(t *testing.T) {
	p := &stubProcessor{}
	w := NewMirrorWorker(&sliceConsumer{err: errors.New("access refused")}, p, nil)

	err := w.Run(context.Background())
	if err == nil || err.Error() != "access refused" {
		t.Fatalf("expected consumer error, got %v", err)
	}
	if !p.started || !p.stopped {
		t.Fatalf("processor lifecycle not honored: started=%v stopped=%v", p.started, p.stopped)
	}
}

func TestRunWithoutConsumer(t *testing.T) {
	p := &stubProcessor{}
	w := NewMirrorWorker(nil, p, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !p.started || !p.stopped {
		t.Fatal("processor should be started and stopped")
	}
}
