package relay

import (
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Registry is the concurrency-safe set of listener sinks. A sink is any
// io.Writer; a write error evicts it exactly like a disconnect would.
//
// Sinks are written with the membership lock held for reading, so Write must
// not block: a blocking sink stalls Register, Unregister and every other
// listener. Slow consumers belong behind a ChannelSink, which fails fast
// when its queue is full.
type Registry struct {
	mu      sync.RWMutex
	sinks   map[ListenerID]io.Writer
	changed *notifier
	log     *slog.Logger

	// sendMu serialises broadcasts so every sink sees chunks in broadcast order.
	sendMu sync.Mutex

	// OnBroadcast and OnEvict are optional observers, set before use.
	OnBroadcast func(size int)
	OnEvict     func(id ListenerID, err error)
}

// NewRegistry returns an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		sinks:   make(map[ListenerID]io.Writer),
		changed: newNotifier(),
		log:     log,
	}
}

// Register adds sink and returns the handle used to remove it.
func (r *Registry) Register(sink io.Writer) ListenerID {
	id := ListenerID(uuid.NewString())

	r.mu.Lock()
	r.sinks[id] = sink
	n := len(r.sinks)
	r.mu.Unlock()

	r.log.Debug("listener registered", slog.String("listener_id", string(id)), slog.Int("listeners", n))
	r.changed.notify()
	return id
}

// Unregister removes the sink behind id. Unknown or already removed ids are
// ignored.
func (r *Registry) Unregister(id ListenerID) {
	if r.remove(id) {
		r.log.Debug("listener unregistered", slog.String("listener_id", string(id)))
		r.changed.notify()
	}
}

// Count returns the number of registered sinks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Changed returns a channel closed on the next registration or removal.
func (r *Registry) Changed() <-chan struct{} {
	return r.changed.wait()
}

// Broadcast writes chunk to every registered sink and returns how many
// accepted it. Each Write must return promptly. Sinks share one copy of chunk and must not modify it. Failing
// sinks are evicted after the fan-out, and closed if they are io.Closers;
// their errors never reach the caller.
func (r *Registry) Broadcast(chunk []byte) int {
	if len(chunk) == 0 {
		return 0
	}
	data := append([]byte(nil), chunk...)

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	type failure struct {
		id   ListenerID
		sink io.Writer
		err  error
	}
	var failed []failure
	delivered := 0

	r.mu.RLock()
	for id, sink := range r.sinks {
		if _, err := sink.Write(data); err != nil {
			failed = append(failed, failure{id: id, sink: sink, err: err})
			continue
		}
		delivered++
	}
	r.mu.RUnlock()

	if r.OnBroadcast != nil {
		r.OnBroadcast(len(data))
	}

	for _, f := range failed {
		if !r.remove(f.id) {
			continue
		}
		if c, ok := f.sink.(io.Closer); ok {
			c.Close()
		}
		r.log.Debug("listener evicted", slog.String("listener_id", string(f.id)), slog.String("error", f.err.Error()))
		if r.OnEvict != nil {
			r.OnEvict(f.id, f.err)
		}
	}
	if len(failed) > 0 {
		r.changed.notify()
	}
	return delivered
}

// Close unregisters every sink, closing those that implement io.Closer.
func (r *Registry) Close() {
	r.mu.Lock()
	sinks := r.sinks
	r.sinks = make(map[ListenerID]io.Writer)
	r.mu.Unlock()

	for _, sink := range sinks {
		if c, ok := sink.(io.Closer); ok {
			c.Close()
		}
	}
	r.changed.notify()
}

func (r *Registry) remove(id ListenerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sinks[id]; !ok {
		return false
	}
	delete(r.sinks, id)
	return true
}
