package relay

import (
	"errors"
	"fmt"
	"time"
)

// Track is one AutoDJ catalog entry. Identity is its position in the
// catalog; titles may repeat.
type Track struct {
	Title     string `json:"title"`
	SourceURL string `json:"sourceUrl"`
}

// ListenerID identifies a registered sink.
type ListenerID string

// NowPlaying is the answer of the current-track status query.
type NowPlaying struct {
	Title string `json:"currentTrackTitle"`
	Live  bool   `json:"live"`
}

// ListenerStats answers the listener-stats query. Without bounds only
// Listeners is set; with bounds Unique holds the distinct listener count.
type ListenerStats struct {
	Listeners *int       `json:"listeners,omitempty"`
	Unique    *int       `json:"uniqueListeners,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
}

var (
	// ErrNoLiveTitle is returned by CurrentTrack while live with no title set.
	ErrNoLiveTitle = errors.New("live broadcast has no title set")

	// ErrNoTrackLoaded is returned by CurrentTrack when not live and the
	// catalog is empty.
	ErrNoTrackLoaded = errors.New("no AutoDJ track loaded")

	// ErrInvalidTitle is returned when a title update is missing, not a
	// string, or blank.
	ErrInvalidTitle = errors.New("title is required and must be a non-empty string")

	// ErrInvalidRange is returned for malformed listener-stats bounds.
	ErrInvalidRange = errors.New("start and end must both be RFC 3339 timestamps with start before end")
)

// FetchError reports a failed read of a track source. The cursor is not
// advanced when a track ends with a FetchError.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
