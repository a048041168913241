package attendance

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultQueueDepth bounds records waiting to be written.
	DefaultQueueDepth = 1024

	writeTimeout = 5 * time.Second
)

// Recorder is the fire-and-forget front of a Store. Record never blocks the
// listener that triggered it: when the queue is full the record is dropped
// and logged.
type Recorder struct {
	store Store
	log   *slog.Logger
	queue chan Record
}

// NewRecorder returns a Recorder writing to store. depth <= 0 uses
// DefaultQueueDepth.
func NewRecorder(store Store, log *slog.Logger, depth int) *Recorder {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Recorder{store: store, log: log, queue: make(chan Record, depth)}
}

// Record queues one connection.
func (r *Recorder) Record(ip string, at time.Time) {
	select {
	case r.queue <- Record{IP: ip, ConnectedAt: at}:
	default:
		r.log.Warn("attendance queue full, record dropped", slog.String("ip", ip))
	}
}

// DistinctListeners counts distinct IPs between start and end.
func (r *Recorder) DistinctListeners(ctx context.Context, start, end time.Time) (int, error) {
	return r.store.CountDistinct(ctx, start, end)
}

// Run writes queued records until ctx is done, then drains what is left.
// Cancel ctx only once nothing calls Record any more, or call Drain after
// the last producer has stopped.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-ctx.Done():
			r.Drain()
			return nil
		}
	}
}

// Drain writes every queued record and returns when the queue is empty.
func (r *Recorder) Drain() {
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.Insert(ctx, rec); err != nil {
		r.log.Error("attendance write failed", slog.String("ip", rec.IP), slog.String("error", err.Error()))
	}
}
