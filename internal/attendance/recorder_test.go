package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"radio-relay/internal/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_writes_in_background(t *testing.T) {
	store := NewInMemoryStore()
	rec := NewRecorder(store, logger.Discard(), 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx)
	}()

	rec.Record("192.0.2.1", t0)
	rec.Record("192.0.2.2", t0)

	require.Eventually(t, func() bool { return store.Len() == 2 }, time.Second, 5*time.Millisecond)

	n, err := rec.DistinctListeners(context.Background(), t0, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cancel()
	<-done
}

func TestRecorder_drops_when_full(t *testing.T) {
	store := NewInMemoryStore()
	rec := NewRecorder(store, logger.Discard(), 1)

	// Nothing drains the queue, so the second record must not block.
	finished := make(chan struct{})
	go func() {
		rec.Record("a", t0)
		rec.Record("b", t0)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))
	assert.Equal(t, 1, store.Len(), "queued record is drained on shutdown")
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (f *failingStore) Insert(context.Context, Record) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("disk full")
}

func (f *failingStore) CountDistinct(context.Context, time.Time, time.Time) (int, error) {
	return 0, errors.New("disk full")
}

func (f *failingStore) Close() error { return nil }

func TestRecorder_store_errors_are_not_fatal(t *testing.T) {
	store := &failingStore{}
	rec := NewRecorder(store, logger.Discard(), 4)
	rec.Record("a", t0)
	rec.Record("b", t0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))
	assert.Equal(t, 2, store.calls)

	_, err := rec.DistinctListeners(context.Background(), t0, t0)
	assert.Error(t, err)
}

func TestRecorder_Drain_after_Run_stopped(t *testing.T) {
	store := NewInMemoryStore()
	rec := NewRecorder(store, logger.Discard(), 8)

	ctx, cancel := context.WithCancel(context.Background())
	rec.Record("192.0.2.1", t0)
	cancel()
	require.NoError(t, rec.Run(ctx))
	require.Equal(t, 1, store.Len())

	// A listener that connected while the server was still shutting down.
	rec.Record("192.0.2.2", t0)
	rec.Record("192.0.2.3", t0)
	assert.Equal(t, 1, store.Len())

	rec.Drain()
	assert.Equal(t, 3, store.Len())

	n, err := rec.DistinctListeners(context.Background(), t0, t0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
