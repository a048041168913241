package relay

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrStatsUnavailable is returned for bounded stats without an attendance log.
var ErrStatsUnavailable = errors.New("listener history is not available")

// Attendance receives one record per listener connection and answers
// distinct-listener queries. Record must not block.
type Attendance interface {
	Record(ip string, at time.Time)
	DistinctListeners(ctx context.Context, start, end time.Time) (int, error)
}

// Service is the entry point request handlers use. It owns no goroutines;
// the Scheduler runs separately on the same state and registry.
type Service struct {
	state      *ProgramState
	registry   *Registry
	scheduler  *Scheduler
	attendance Attendance
	now        func() time.Time
}

// NewService returns a Service. attendance may be nil.
func NewService(state *ProgramState, registry *Registry, scheduler *Scheduler, attendance Attendance) *Service {
	return &Service{
		state:      state,
		registry:   registry,
		scheduler:  scheduler,
		attendance: attendance,
		now:        time.Now,
	}
}

// PushLive marks the program live and fans chunk out immediately. It
// returns the number of listeners that accepted the chunk.
func (s *Service) PushLive(chunk []byte) int {
	s.state.MarkLive()
	return s.registry.Broadcast(chunk)
}

// EndLive hands the program back to AutoDJ. It reports whether it was live.
func (s *Service) EndLive() bool {
	return s.state.EndLive()
}

// SetLiveTitle stores the title shown while live.
func (s *Service) SetLiveTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}
	s.state.SetLiveTitle(title)
	return nil
}

// CurrentTrack returns what listeners hear. While live it is the live title
// or ErrNoLiveTitle, never the AutoDJ title; otherwise the AutoDJ track at
// the cursor or ErrNoTrackLoaded.
func (s *Service) CurrentTrack() (NowPlaying, error) {
	live, title := s.state.Snapshot()
	if live {
		if title == "" {
			return NowPlaying{}, ErrNoLiveTitle
		}
		return NowPlaying{Title: title, Live: true}, nil
	}

	track, ok := s.scheduler.Current()
	if !ok {
		return NowPlaying{}, ErrNoTrackLoaded
	}
	return NowPlaying{Title: track.Title}, nil
}

// Connect registers a listener sink and records attendance for ip.
func (s *Service) Connect(sink io.Writer, ip string) ListenerID {
	id := s.registry.Register(sink)
	if s.attendance != nil {
		s.attendance.Record(ip, s.now().UTC())
	}
	return id
}

// Disconnect removes a listener. Safe to call more than once.
func (s *Service) Disconnect(id ListenerID) {
	s.registry.Unregister(id)
}

// ListenerCount is the number of connected listeners.
func (s *Service) ListenerCount() int {
	return s.registry.Count()
}

// ListenerStats returns the live count when both bounds are nil and the
// distinct IP count between start and end otherwise. Supplying only one
// bound, or start after end, is ErrInvalidRange.
func (s *Service) ListenerStats(ctx context.Context, start, end *time.Time) (ListenerStats, error) {
	if start == nil && end == nil {
		n := s.registry.Count()
		return ListenerStats{Listeners: &n}, nil
	}
	if start == nil || end == nil || end.Before(*start) {
		return ListenerStats{}, ErrInvalidRange
	}
	if s.attendance == nil {
		return ListenerStats{}, ErrStatsUnavailable
	}

	n, err := s.attendance.DistinctListeners(ctx, *start, *end)
	if err != nil {
		return ListenerStats{}, err
	}
	return ListenerStats{Unique: &n, Start: start, End: end}, nil
}
