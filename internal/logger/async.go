package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes and stops a handler that buffers records.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler keeps log I/O off the request path: Handle enqueues and
// returns, a small worker pool writes to the sink. When the queue is full
// the record is shed rather than blocking a booking in flight; the shed
// count is reported through the sink at Close so bursts stay visible.
type AsyncHandler struct {
	sink    slog.Handler
	queue   chan slog.Record
	drain   *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler starts workers draining a queue of queueSize records into sink.
func NewAsyncHandler(sink slog.Handler, queueSize, workers int) *AsyncHandler {
	h := &AsyncHandler{
		sink:    sink,
		queue:   make(chan slog.Record, queueSize),
		drain:   &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	for range workers {
		h.drain.Add(1)
		go func() {
			defer h.drain.Done()
			for rec := range h.queue {
				_ = h.sink.Handle(context.Background(), rec)
			}
		}()
	}
	return h
}

// Enabled delegates to the sink.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.sink.Enabled(ctx, level)
}

// Handle enqueues the record without blocking; a full queue sheds it.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler over an attributed sink; the queue, workers,
// and shed counter stay shared.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		sink:    h.sink.WithAttrs(attrs),
		queue:   h.queue,
		drain:   h.drain,
		dropped: h.dropped,
	}
}

// WithGroup derives a handler over a grouped sink; see WithAttrs.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		sink:    h.sink.WithGroup(name),
		queue:   h.queue,
		drain:   h.drain,
		dropped: h.dropped,
	}
}

// DroppedCount reports how many records were shed on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops intake, waits for the workers to drain the queue, and writes
// one final record naming the shed count if any records were lost.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.drain.Wait()
	if n := h.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "log records shed under pressure", 0)
		rec.AddAttrs(slog.Int64("count", n))
		_ = h.sink.Handle(context.Background(), rec)
	}
}
