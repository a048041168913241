package relay

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"radio-relay/internal/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry(logger.Discard())
	a, b := &recordingSink{}, &recordingSink{}

	idA := r.Register(a)
	idB := r.Register(b)
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, 2, r.Count())

	r.Unregister(idA)
	r.Unregister(idA)
	r.Unregister("never-registered")
	assert.Equal(t, 1, r.Count())

	r.Broadcast([]byte("x"))
	assert.Empty(t, a.String())
	assert.Equal(t, "x", b.String())
}

func TestRegistry_Broadcast_evicts_failing_sink(t *testing.T) {
	r := NewRegistry(logger.Discard())
	good := &recordingSink{}
	bad := &recordingSink{err: errors.New("broken pipe")}

	var evicted []ListenerID
	r.OnEvict = func(id ListenerID, err error) { evicted = append(evicted, id) }

	r.Register(good)
	badID := r.Register(bad)

	delivered := r.Broadcast([]byte("one"))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []ListenerID{badID}, evicted)
	assert.True(t, bad.closed, "evicted closer sinks are closed")

	r.Broadcast([]byte("two"))
	assert.Equal(t, "onetwo", good.String())
}

func TestRegistry_Broadcast_empty_chunk(t *testing.T) {
	r := NewRegistry(logger.Discard())
	s := &recordingSink{}
	r.Register(s)

	assert.Zero(t, r.Broadcast(nil))
	assert.Zero(t, s.Writes())
}

func TestRegistry_Broadcast_copies_chunk(t *testing.T) {
	r := NewRegistry(logger.Discard())
	sink := NewChannelSink(4)
	r.Register(sink)

	chunk := []byte("abc")
	r.Broadcast(chunk)
	chunk[0] = 'z'

	got := <-sink.Chunks()
	assert.Equal(t, "abc", string(got))
}

func TestRegistry_Changed(t *testing.T) {
	r := NewRegistry(logger.Discard())
	ch := r.Changed()

	id := r.Register(&recordingSink{})
	select {
	case <-ch:
	default:
		t.Fatal("Register should signal Changed")
	}

	ch = r.Changed()
	r.Unregister(id)
	select {
	case <-ch:
	default:
		t.Fatal("Unregister should signal Changed")
	}
}

// Every registered sink receives exactly the chunks broadcast while it was
// registered, in order.
func TestRegistry_delivery_matches_membership(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := NewRegistry(logger.Discard())

	type member struct {
		sink     *recordingSink
		id       ListenerID
		active   bool
		expected string
	}
	var members []*member

	for step := 0; step < 2000; step++ {
		switch op := rng.Intn(4); {
		case op == 0 || len(members) == 0:
			m := &member{sink: &recordingSink{}, active: true}
			m.id = r.Register(m.sink)
			members = append(members, m)
		case op == 1:
			m := members[rng.Intn(len(members))]
			r.Unregister(m.id)
			m.active = false
		default:
			chunk := fmt.Sprintf("<%d>", step)
			r.Broadcast([]byte(chunk))
			for _, m := range members {
				if m.active {
					m.expected += chunk
				}
			}
		}
	}

	active := 0
	for i, m := range members {
		require.Equalf(t, m.expected, m.sink.String(), "member %d", i)
		if m.active {
			active++
		}
	}
	assert.Equal(t, active, r.Count())
}

func TestRegistry_concurrent_membership_and_broadcast(t *testing.T) {
	r := NewRegistry(logger.Discard())
	var wg sync.WaitGroup

	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.Broadcast([]byte("chunk"))
			}
		}
	}()

	var workers sync.WaitGroup
	for i := 0; i < 8; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for j := 0; j < 200; j++ {
				id := r.Register(&recordingSink{})
				if j%3 == 0 {
					r.Register(&recordingSink{err: errors.New("gone")})
				}
				r.Unregister(id)
			}
		}()
	}
	workers.Wait()
	close(stop)
	wg.Wait()

	// Failing sinks are evicted by the next broadcast.
	r.Broadcast([]byte("last"))
	assert.Zero(t, r.Count())
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(logger.Discard())
	sink := NewChannelSink(1)
	r.Register(sink)

	r.Close()
	assert.Zero(t, r.Count())

	select {
	case _, ok := <-sink.Chunks():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("sink channel not closed")
	}
}

func TestChannelSink(t *testing.T) {
	s := NewChannelSink(2)

	_, err := s.Write([]byte("a"))
	require.NoError(t, err)
	_, err = s.Write([]byte("b"))
	require.NoError(t, err)
	_, err = s.Write([]byte("c"))
	assert.ErrorIs(t, err, ErrSinkFull)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Write([]byte("d"))
	assert.ErrorIs(t, err, ErrSinkClosed)

	var got []string
	for c := range s.Chunks() {
		got = append(got, string(c))
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestRegistry_full_ChannelSink_does_not_stall_broadcast(t *testing.T) {
	r := NewRegistry(logger.Discard())
	stuck := NewChannelSink(1)
	healthy := &recordingSink{}
	r.Register(stuck)
	r.Register(healthy)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Nobody drains stuck: the second chunk overflows its queue.
		r.Broadcast([]byte("1"))
		r.Broadcast([]byte("2"))
		r.Register(&recordingSink{})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a full listener queue blocked the registry")
	}

	assert.Equal(t, "12", healthy.String())
	assert.Equal(t, 2, r.Count(), "the full sink is evicted, the new one registered")

	var got []string
	for chunk := range stuck.Chunks() {
		got = append(got, string(chunk))
	}
	assert.Equal(t, []string{"1"}, got, "evicted sink is closed after its queued chunk")
}
