package relay

import "strings"

// normalizeTracks drops entries without a source locator and trims titles.
// Order is preserved because the cursor indexes into it.
func normalizeTracks(tracks []Track) []Track {
	out := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		url := strings.TrimSpace(t.SourceURL)
		if url == "" {
			continue
		}
		out = append(out, Track{Title: strings.TrimSpace(t.Title), SourceURL: url})
	}
	return out
}

// trackAt returns the track the cursor points at, applying the modulo.
func trackAt(tracks []Track, cursor int) (Track, int, bool) {
	if len(tracks) == 0 {
		return Track{}, 0, false
	}
	idx := cursor % len(tracks)
	if idx < 0 {
		idx += len(tracks)
	}
	return tracks[idx], idx, true
}
