package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// recordTimeout bounds each background click write so a stuck store can't
// pin a worker forever.
const recordTimeout = 5 * time.Second

type clickEvent struct {
	shortCode string
	at        time.Time
}

type clickStore interface {
	RecordClick(ctx context.Context, shortCode string, at time.Time) error
}

type analyticsInvalidator interface {
	InvalidateAnalytics(ctx context.Context) error
}

// ClickRecorder records clicks for cache-hit redirects off the resolution
// critical path. Events go through a bounded buffer drained by a small
// worker pool; when the buffer is full the event is dropped with a log
// line. A process crash loses whatever is still buffered, which is the
// accepted durability gap of the fast path.
type ClickRecorder struct {
	store  clickStore
	cache  analyticsInvalidator
	logger *slog.Logger
	events chan clickEvent
	wg     sync.WaitGroup
}

// NewClickRecorder starts workers goroutines draining a buffer of size events.
func NewClickRecorder(store clickStore, cache analyticsInvalidator, logger *slog.Logger, workers, size int) *ClickRecorder {
	r := &ClickRecorder{
		store:  store,
		cache:  cache,
		logger: logger,
		events: make(chan clickEvent, size),
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	return r
}

// Enqueue submits a click event without blocking. A full queue drops the
// event.
func (r *ClickRecorder) Enqueue(shortCode string) {
	select {
	case r.events <- clickEvent{shortCode: shortCode, at: time.Now()}:
	default:
		r.logger.Warn("click queue full, dropping event", slog.String("short_code", shortCode))
	}
}

// Close stops accepting events and waits for the workers to drain the queue.
func (r *ClickRecorder) Close() {
	close(r.events)
	r.wg.Wait()
}

func (r *ClickRecorder) worker() {
	defer r.wg.Done()

	for ev := range r.events {
		r.record(ev)
	}
}

func (r *ClickRecorder) record(ev clickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.store.RecordClick(ctx, ev.shortCode, ev.at); err != nil {
		r.logger.Error("failed to record click",
			slog.String("short_code", ev.shortCode),
			slog.Any("err", err),
		)

		return
	}

	// Invalidate after the increment so the next analytics read sees it.
	if err := r.cache.InvalidateAnalytics(ctx); err != nil {
		r.logger.Warn("failed to invalidate analytics cache", slog.Any("err", err))
	}
}
