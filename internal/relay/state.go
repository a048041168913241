package relay

import (
	"sync"
	"time"
)

// ProgramState holds the live flag and the operator-set live title.
// Reads take the read lock only; pushes and title updates take the write lock.
type ProgramState struct {
	mu          sync.RWMutex
	live        bool
	liveTitle   string
	lastPush    time.Time
	idleTimeout time.Duration
	now         func() time.Time
	changed     *notifier
}

// NewProgramState returns a state that is not live. With idleTimeout > 0,
// IsLive reports false once no push has arrived for that long; zero keeps
// live sticky until EndLive.
func NewProgramState(idleTimeout time.Duration) *ProgramState {
	return &ProgramState{
		idleTimeout: idleTimeout,
		now:         time.Now,
		changed:     newNotifier(),
	}
}

// MarkLive records an accepted live push.
func (s *ProgramState) MarkLive() {
	s.mu.Lock()
	wasLive := s.isLiveLocked()
	s.live = true
	s.lastPush = s.now()
	s.mu.Unlock()

	if !wasLive {
		s.changed.notify()
	}
}

// EndLive clears the live flag. The live title is kept for the next session.
// It reports whether the state was live.
func (s *ProgramState) EndLive() bool {
	s.mu.Lock()
	wasLive := s.isLiveLocked()
	s.live = false
	s.mu.Unlock()

	if wasLive {
		s.changed.notify()
	}
	return wasLive
}

// IsLive reports whether the live feed currently owns the program.
func (s *ProgramState) IsLive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLiveLocked()
}

// SetLiveTitle replaces the live title.
func (s *ProgramState) SetLiveTitle(title string) {
	s.mu.Lock()
	s.liveTitle = title
	s.mu.Unlock()
}

// Snapshot returns live flag and title read under one lock.
func (s *ProgramState) Snapshot() (live bool, title string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLiveLocked(), s.liveTitle
}

// Changed returns a channel closed on the next live/not-live transition
// triggered by MarkLive or EndLive. Idle expiry is only observed by polling.
func (s *ProgramState) Changed() <-chan struct{} {
	return s.changed.wait()
}

// isLiveLocked requires s.mu held in either mode.
func (s *ProgramState) isLiveLocked() bool {
	if !s.live {
		return false
	}
	if s.idleTimeout > 0 && s.now().Sub(s.lastPush) >= s.idleTimeout {
		return false
	}
	return true
}
