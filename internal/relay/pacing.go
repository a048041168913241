package relay

import (
	"context"
	"time"
)

const minChunkDelay = time.Millisecond

// Pacer spaces AutoDJ chunks to the audio bitrate so listeners receive the
// rotation in real time instead of as fast as the source can be read.
type Pacer struct {
	bitrate int // bits per second
}

// NewPacer returns a pacer for bitrate bits/s, or nil when bitrate <= 0.
// A nil Pacer does not wait.
func NewPacer(bitrate int) *Pacer {
	if bitrate <= 0 {
		return nil
	}
	return &Pacer{bitrate: bitrate}
}

// DurationFor returns the playback time of n bytes.
func (p *Pacer) DurationFor(n int) time.Duration {
	if p == nil || n <= 0 {
		return 0
	}
	bytesPerSecond := float64(p.bitrate) / 8.0
	d := time.Duration(float64(n) / bytesPerSecond * float64(time.Second))
	if d < minChunkDelay {
		return minChunkDelay
	}
	return d
}

// Wait sleeps for the playback time of n bytes or until ctx is done.
func (p *Pacer) Wait(ctx context.Context, n int) error {
	d := p.DurationFor(n)
	if d == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
