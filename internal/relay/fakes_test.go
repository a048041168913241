package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// recordingSink stores every chunk it accepts; setting err makes it fail.
type recordingSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
	err    error
	closed bool
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.buf.Write(p)
	s.writes++
	return len(p), nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *recordingSink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// chunkReader yields data in chunks of size bytes. hook runs before every
// Read with the number of chunks already returned; failAt >= 0 makes the
// Read at that chunk index fail.
type chunkReader struct {
	data   []byte
	size   int
	pos    int
	idx    int
	failAt int
	hook   func(idx int)
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.hook != nil {
		r.hook(r.idx)
	}
	if r.failAt >= 0 && r.idx == r.failAt {
		return 0, errors.New("connection reset by peer")
	}
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := r.size
	if n > len(p) {
		n = len(p)
	}
	n = copy(p[:n], r.data[r.pos:])
	r.pos += n
	r.idx++
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

// fakeSource describes what fakeOpener serves for one URL.
type fakeSource struct {
	data    string
	openErr error
	failAt  int
	hook    func(idx int)
}

type fakeOpener struct {
	mu        sync.Mutex
	chunkSize int
	sources   map[string]*fakeSource
	opens     map[string]int
}

func newFakeOpener(chunkSize int) *fakeOpener {
	return &fakeOpener{
		chunkSize: chunkSize,
		sources:   make(map[string]*fakeSource),
		opens:     make(map[string]int),
	}
}

func (o *fakeOpener) add(url, data string) *fakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	src := &fakeSource{data: data, failAt: -1}
	o.sources[url] = src
	return src
}

func (o *fakeOpener) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens[url]++
	src, ok := o.sources[url]
	if !ok {
		return nil, &FetchError{URL: url, Err: errors.New("not found")}
	}
	if src.openErr != nil {
		return nil, &FetchError{URL: url, Err: src.openErr}
	}
	return &chunkReader{data: []byte(src.data), size: o.chunkSize, failAt: src.failAt, hook: src.hook}, nil
}

func (o *fakeOpener) Opens(url string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[url]
}
