package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgramState_sticky_live(t *testing.T) {
	s := NewProgramState(0)
	assert.False(t, s.IsLive())

	s.MarkLive()
	assert.True(t, s.IsLive())

	// No timeout: stays live until explicitly ended.
	s.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	assert.True(t, s.IsLive())

	assert.True(t, s.EndLive())
	assert.False(t, s.IsLive())
	assert.False(t, s.EndLive())
}

func TestProgramState_idle_timeout(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewProgramState(30 * time.Second)
	s.now = func() time.Time { return now }

	s.MarkLive()
	assert.True(t, s.IsLive())

	now = now.Add(29 * time.Second)
	assert.True(t, s.IsLive())

	now = now.Add(time.Second)
	assert.False(t, s.IsLive(), "no push for the idle timeout ends live")

	s.MarkLive()
	assert.True(t, s.IsLive(), "a new push resumes live")
}

func TestProgramState_title_independent_of_live(t *testing.T) {
	s := NewProgramState(0)
	s.SetLiveTitle("Late show")

	live, title := s.Snapshot()
	assert.False(t, live)
	assert.Equal(t, "Late show", title)

	s.MarkLive()
	s.EndLive()
	_, title = s.Snapshot()
	assert.Equal(t, "Late show", title, "ending live keeps the title")
}

func TestProgramState_Changed(t *testing.T) {
	s := NewProgramState(0)

	ch := s.Changed()
	s.MarkLive()
	select {
	case <-ch:
	default:
		t.Fatal("going live should signal")
	}

	ch = s.Changed()
	s.MarkLive()
	select {
	case <-ch:
		t.Fatal("a push while already live should not signal")
	default:
	}

	s.EndLive()
	select {
	case <-ch:
	default:
		t.Fatal("ending live should signal")
	}
}

func TestProgramState_concurrent_access(t *testing.T) {
	s := NewProgramState(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s.MarkLive()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s.SetLiveTitle("t")
				s.EndLive()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s.IsLive()
				s.Snapshot()
			}
		}()
	}
	wg.Wait()
}
