package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultRefreshInterval is how often the catalog feed is re-read.
const DefaultRefreshInterval = 48 * time.Hour

// Catalog is the AutoDJ rotation. Replace swaps the whole sequence
// atomically, so a reader sees either the old or the new list, never a mix.
type Catalog struct {
	tracks atomic.Pointer[[]Track]
}

// NewCatalog returns a catalog holding tracks.
func NewCatalog(tracks ...Track) *Catalog {
	c := &Catalog{}
	c.Replace(tracks)
	return c
}

// Snapshot returns the current sequence. Callers must not modify it.
func (c *Catalog) Snapshot() []Track {
	if p := c.tracks.Load(); p != nil {
		return *p
	}
	return nil
}

// Len returns the number of tracks in the current sequence.
func (c *Catalog) Len() int {
	return len(c.Snapshot())
}

// Replace installs a private copy of tracks as the new rotation.
func (c *Catalog) Replace(tracks []Track) {
	cp := make([]Track, len(tracks))
	copy(cp, tracks)
	c.tracks.Store(&cp)
}

// CatalogSource fetches and parses the external catalog feed.
type CatalogSource interface {
	Fetch(ctx context.Context) ([]Track, error)
}

// Refresher loads the catalog at startup and on a fixed interval.
type Refresher struct {
	source   CatalogSource
	catalog  *Catalog
	interval time.Duration
	log      *slog.Logger

	// OnRefresh is called with the new size after every successful refresh,
	// OnFailure after every failed one. Both optional.
	OnRefresh func(n int)
	OnFailure func(err error)
}

// NewRefresher returns a Refresher. An interval <= 0 uses
// DefaultRefreshInterval.
func NewRefresher(source CatalogSource, catalog *Catalog, interval time.Duration, log *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{source: source, catalog: catalog, interval: interval, log: log}
}

// Refresh fetches once. On failure the existing catalog is left untouched.
func (r *Refresher) Refresh(ctx context.Context) error {
	tracks, err := r.source.Fetch(ctx)
	if err != nil {
		err = fmt.Errorf("refresh catalog: %w", err)
		r.log.Warn("catalog refresh failed, keeping previous rotation",
			slog.Int("tracks", r.catalog.Len()),
			slog.String("error", err.Error()))
		if r.OnFailure != nil {
			r.OnFailure(err)
		}
		return err
	}

	tracks = normalizeTracks(tracks)
	r.catalog.Replace(tracks)
	r.log.Info("catalog refreshed", slog.Int("tracks", len(tracks)))
	if r.OnRefresh != nil {
		r.OnRefresh(len(tracks))
	}
	return nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	_ = r.Refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = r.Refresh(ctx)
		}
	}
}
