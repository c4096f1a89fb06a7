package worker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"commissions/internal/events"
	applog "commissions/internal/log"
	"commissions/internal/services"
)

// Consumer delivers entry events until its context is done.
type Consumer interface {
	Consume(ctx context.Context, handler events.Handler) error
}

// Processor applies events and runs the periodic reconcile.
type Processor interface {
	HandleEvent(ctx context.Context, ev *events.EntryEvent) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

var _ Processor = (*services.MirrorProcessor)(nil)

// MirrorWorker keeps the mirror store and the shared dashboard cache in step
// with entry events.
type MirrorWorker struct {
	consumer    Consumer
	processor   Processor
	logger      *applog.Logger
	stopTimeout time.Duration
}

// NewMirrorWorker builds a worker. Without a consumer it only runs the
// periodic reconcile.
func NewMirrorWorker(consumer Consumer, processor Processor, logger *applog.Logger) *MirrorWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &MirrorWorker{
		consumer:    consumer,
		processor:   processor,
		logger:      logger.WithComponent(applog.ComponentWorker),
		stopTimeout: 10 * time.Second,
	}
}

// HandleEvent processes a single entry event from AMQP
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *events.EntryEvent) error {
	fields := applog.NewFields().WithOperation(applog.OpMirror)
	fields[applog.FieldEntryID] = ev.ID
	fields["op"] = string(ev.Op)

	w.logger.InfoContext(ctx, "Processing entry event", fields.ToSlice()...)

	if err := w.processor.HandleEvent(ctx, ev); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mirror entry", fields.WithError(err).ToSlice()...)
		return err
	}
	return nil
}

// Run blocks until ctx is done or the consumer fails for good.
func (w *MirrorWorker) Run(ctx context.Context) error {
	if err := w.processor.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.stopTimeout)
		defer cancel()
		if err := w.processor.Stop(stopCtx); err != nil {
			w.logger.WarnContext(stopCtx, "Mirror processor did not stop cleanly", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	if w.consumer != nil {
		g.Go(func() error {
			return w.consumer.Consume(gctx, w.HandleEvent)
		})
	} else {
		w.logger.WarnContext(ctx, "No AMQP consumer configured, running periodic reconcile only")
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
