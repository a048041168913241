package relay

import (
	"errors"
	"sync"
)

var (
	// ErrSinkFull is returned when a listener has fallen too far behind.
	ErrSinkFull = errors.New("listener buffer full")

	// ErrSinkClosed is returned for writes after Close.
	ErrSinkClosed = errors.New("listener closed")
)

// ChannelSink decouples the broadcaster from a slow network connection: Write
// never blocks, it queues the chunk or fails when the queue is full. The
// connection goroutine drains Chunks.
type ChannelSink struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewChannelSink returns a sink queuing at most depth chunks.
func NewChannelSink(depth int) *ChannelSink {
	if depth <= 0 {
		depth = 1
	}
	return &ChannelSink{ch: make(chan []byte, depth)}
}

// Write queues p without copying; the registry hands out read-only chunks.
func (s *ChannelSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSinkClosed
	}
	select {
	case s.ch <- p:
		return len(p), nil
	default:
		return 0, ErrSinkFull
	}
}

// Chunks is the receive side. It is closed by Close.
func (s *ChannelSink) Chunks() <-chan []byte {
	return s.ch
}

// Close stops accepting writes and closes the channel. Safe to call twice.
func (s *ChannelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}
