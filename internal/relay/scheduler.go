package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// DefaultChunkSize is the number of bytes read from a track per step.
	DefaultChunkSize = 16 * 1024

	// DefaultPollInterval bounds every wait of the scheduler.
	DefaultPollInterval = time.Second
)

// Outcome is how one AutoDJ attempt ended.
type Outcome string

const (
	// OutcomeCompleted is a full play; the only outcome that advances the cursor.
	OutcomeCompleted Outcome = "completed"
	// OutcomeInterrupted means a live takeover abandoned the track.
	OutcomeInterrupted Outcome = "interrupted"
	// OutcomeFailed means the source could not be read; the track is retried.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the source failed MaxFailures times in a row and
	// the cursor moved past it.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCanceled means the scheduler is shutting down.
	OutcomeCanceled Outcome = "canceled"
)

// SchedulerConfig tunes the AutoDJ loop.
type SchedulerConfig struct {
	ChunkSize    int
	PollInterval time.Duration
	// MaxFailures > 0 skips a track after that many consecutive fetch
	// failures. Zero retries forever.
	MaxFailures int
	// Pacer spaces chunks in real time; nil sends as fast as sinks accept.
	Pacer *Pacer
}

// Scheduler is the AutoDJ state machine. It plays catalog entries to the
// registry while the program is not live and someone is listening.
type Scheduler struct {
	catalog  *Catalog
	state    *ProgramState
	registry *Registry
	opener   TrackOpener
	log      *slog.Logger
	cfg      SchedulerConfig

	mu        sync.Mutex
	cursor    int
	playing   bool
	failures  int
	failedIdx int

	// OnOutcome, if set, observes every finished attempt.
	OnOutcome func(Outcome)
}

// NewScheduler wires a scheduler. Zero config values take the defaults.
func NewScheduler(catalog *Catalog, state *ProgramState, registry *Registry, opener TrackOpener, log *slog.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Scheduler{
		catalog:   catalog,
		state:     state,
		registry:  registry,
		opener:    opener,
		log:       log,
		cfg:       cfg,
		failedIdx: -1,
	}
}

// Cursor returns the raw rotation cursor. It is reduced modulo the catalog
// length when read.
func (s *Scheduler) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Playing reports whether the scheduler is in the PLAYING state.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Current returns the track the cursor points at in the current catalog.
func (s *Scheduler) Current() (Track, bool) {
	t, _, ok := trackAt(s.catalog.Snapshot(), s.Cursor())
	return t, ok
}

// Run loops until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("autodj scheduler started",
		slog.Int("chunk_size", s.cfg.ChunkSize),
		slog.Duration("poll_interval", s.cfg.PollInterval))
	defer s.log.Info("autodj scheduler stopped")

	for ctx.Err() == nil {
		switch s.step(ctx) {
		case OutcomeFailed, OutcomeSkipped:
			// Back off so a broken source does not turn into a hot loop.
			s.wait(ctx, nil, nil)
		}
	}
	return nil
}

// step runs one IDLE wait or one PLAYING attempt. It returns "" when it only
// waited.
func (s *Scheduler) step(ctx context.Context) Outcome {
	stateCh, listenersCh := s.state.Changed(), s.registry.Changed()

	track, idx, ok := s.eligible()
	if !ok {
		s.wait(ctx, stateCh, listenersCh)
		return ""
	}

	outcome := s.play(ctx, track, idx)
	if s.OnOutcome != nil && outcome != OutcomeCanceled {
		s.OnOutcome(outcome)
	}
	return outcome
}

// eligible reports the IDLE → PLAYING guard and the selected track.
func (s *Scheduler) eligible() (Track, int, bool) {
	if s.state.IsLive() || s.registry.Count() == 0 {
		return Track{}, 0, false
	}
	return trackAt(s.catalog.Snapshot(), s.Cursor())
}

func (s *Scheduler) play(ctx context.Context, track Track, idx int) Outcome {
	s.setPlaying(true)
	defer s.setPlaying(false)

	log := s.log.With(slog.Int("index", idx), slog.String("title", track.Title))
	log.Info("autodj track started")

	rc, err := s.opener.Open(ctx, track.SourceURL)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCanceled
		}
		return s.fail(log, idx, err)
	}
	defer rc.Close()

	buf := make([]byte, s.cfg.ChunkSize)
	var sent uint64
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if outcome, ok := s.forward(ctx, buf[:n]); !ok {
				if outcome == OutcomeInterrupted {
					log.Info("autodj track interrupted by live takeover", slog.String("sent", humanize.Bytes(sent)))
				}
				return outcome
			}
			sent += uint64(n)
		}
		if errors.Is(rerr, io.EOF) {
			s.advance(idx)
			log.Info("autodj track completed", slog.String("sent", humanize.Bytes(sent)))
			return OutcomeCompleted
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return OutcomeCanceled
			}
			return s.fail(log, idx, &FetchError{URL: track.SourceURL, Err: rerr})
		}
	}
}

// forward hands one chunk to the registry. While nobody listens it pauses
// without abandoning the track; a live takeover abandons it.
func (s *Scheduler) forward(ctx context.Context, chunk []byte) (Outcome, bool) {
	for {
		stateCh, listenersCh := s.state.Changed(), s.registry.Changed()
		if s.state.IsLive() {
			return OutcomeInterrupted, false
		}
		if s.registry.Count() > 0 {
			break
		}
		s.wait(ctx, stateCh, listenersCh)
		if ctx.Err() != nil {
			return OutcomeCanceled, false
		}
	}

	s.registry.Broadcast(chunk)

	if err := s.cfg.Pacer.Wait(ctx, len(chunk)); err != nil {
		return OutcomeCanceled, false
	}
	return "", true
}

func (s *Scheduler) fail(log *slog.Logger, idx int, err error) Outcome {
	s.mu.Lock()
	if s.failedIdx != idx {
		s.failedIdx = idx
		s.failures = 0
	}
	s.failures++
	failures := s.failures
	skip := s.cfg.MaxFailures > 0 && failures >= s.cfg.MaxFailures
	if skip {
		s.cursor = idx + 1
		s.failures = 0
		s.failedIdx = -1
	}
	s.mu.Unlock()

	if skip {
		log.Warn("autodj track skipped after repeated fetch failures",
			slog.Int("failures", failures),
			slog.String("error", err.Error()))
		return OutcomeSkipped
	}
	log.Warn("autodj track fetch failed, will retry",
		slog.Int("failures", failures),
		slog.String("error", err.Error()))
	return OutcomeFailed
}

func (s *Scheduler) advance(idx int) {
	s.mu.Lock()
	s.cursor = idx + 1
	s.failures = 0
	s.failedIdx = -1
	s.mu.Unlock()
}

func (s *Scheduler) setPlaying(v bool) {
	s.mu.Lock()
	s.playing = v
	s.mu.Unlock()
}

// wait blocks until a signal fires, the poll interval elapses, or ctx is done.
// Nil channels never fire.
func (s *Scheduler) wait(ctx context.Context, stateCh, listenersCh <-chan struct{}) {
	t := time.NewTimer(s.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-stateCh:
	case <-listenersCh:
	case <-t.C:
	}
}
