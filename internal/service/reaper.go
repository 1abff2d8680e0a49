package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/daybookhq/daybook/internal/adapter/otel"
	"github.com/daybookhq/daybook/internal/domain/booking"
	"github.com/daybookhq/daybook/internal/port/broadcast"
	"github.com/daybookhq/daybook/internal/port/database"
	"github.com/daybookhq/daybook/internal/port/messagequeue"
)

// maxSweepFanout bounds how many expired bookings have their release events
// in flight at once during a sweep.
const maxSweepFanout = 16

// Reaper releases expired PENDING holds in the background. Correctness never
// depends on it: the reserve transaction lazily cancels an expired hold on
// its own date. The sweep keeps the whole table tidy and raises the expiry
// signals even when no contender ever shows up for the date.
type Reaper struct {
	store    database.Store
	queue    messagequeue.Queue
	events   broadcast.Broadcaster
	metrics  *otel.Metrics
	ingest   *IngestService
	interval time.Duration
	batch    int32
	sem      *semaphore.Weighted
}

// NewReaper creates a new Reaper sweeping every interval in batches of batch.
func NewReaper(store database.Store, queue messagequeue.Queue, events broadcast.Broadcaster, metrics *otel.Metrics, ingest *IngestService, interval time.Duration, batch int32) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	return &Reaper{
		store:    store,
		queue:    queue,
		events:   events,
		metrics:  metrics,
		ingest:   ingest,
		interval: interval,
		batch:    batch,
		sem:      semaphore.NewWeighted(maxSweepFanout),
	}
}

// Start launches the sweep loop. It stops when ctx is canceled.
func (r *Reaper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.SweepOnce(ctx); err != nil {
					slog.Warn("booking sweep failed", "error", err)
				}
				if err := r.ingest.RetryUnprocessed(ctx, r.batch); err != nil {
					slog.Warn("webhook retry sweep failed", "error", err)
				}
			}
		}
	}()
}

// SweepOnce drains all currently expired holds, batch by batch, and returns
// how many were released. Event fan-out per booking runs concurrently,
// bounded by a weighted semaphore, and has fully settled when SweepOnce
// returns.
func (r *Reaper) SweepOnce(ctx context.Context) (int, error) {
	ctx, span := otel.StartSweepSpan(ctx)
	defer span.End()

	total := 0
	for {
		expired, err := r.store.ExpireBookings(ctx, time.Now().UTC(), r.batch)
		if err != nil {
			return total, err
		}
		if len(expired) == 0 {
			break
		}
		total += len(expired)

		for i := range expired {
			b := expired[i]
			if err := r.sem.Acquire(ctx, 1); err != nil {
				return total, err
			}
			go func() {
				defer r.sem.Release(1)
				r.release(ctx, b)
			}()
		}

		if int32(len(expired)) < r.batch {
			break
		}
	}

	// Wait for in-flight fan-out before reporting the sweep done.
	if err := r.sem.Acquire(ctx, maxSweepFanout); err != nil {
		return total, err
	}
	r.sem.Release(maxSweepFanout)

	if total > 0 {
		slog.Info("expired holds released", "count", total)
	}
	return total, nil
}

// release emits the signals for one expired hold: the lifecycle event for
// external consumers and the widget error so an open session learns its hold
// is gone.
func (r *Reaper) release(ctx context.Context, b booking.Booking) {
	r.metrics.BookingsExpired.Add(ctx, 1)
	publishEvent(ctx, r.queue, messagequeue.SubjectBookingExpired, b)
	r.events.BroadcastEvent(ctx, b.TenantID, broadcast.EventError, broadcast.ErrorEvent{
		Code:      "booking_expired",
		Message:   "the hold on this date expired before payment completed",
		BookingID: b.ID,
	})
}
