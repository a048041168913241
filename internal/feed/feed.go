// Package feed turns a podcast-style RSS or Atom document into the AutoDJ
// catalog: one track per item that carries an audio enclosure.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"radio-relay/internal/relay"

	"github.com/mmcdole/gofeed"
)

const maxFeedBytes = 20 << 20

// Source fetches a feed over HTTP. It implements relay.CatalogSource.
type Source struct {
	url    string
	client *http.Client
	parser *gofeed.Parser
}

// NewSource returns a Source for feedURL. A nil client uses http.DefaultClient.
func NewSource(feedURL string, client *http.Client) *Source {
	if client == nil {
		client = http.DefaultClient
	}
	return &Source{url: feedURL, client: client, parser: gofeed.NewParser()}
}

// Fetch downloads and parses the feed. Any transport, status or parse
// failure is returned as an error so the caller keeps its previous catalog.
func (s *Source) Fetch(ctx context.Context) ([]relay.Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: unexpected status %s", resp.Status)
	}

	return Parse(s.parser, io.LimitReader(resp.Body, maxFeedBytes))
}

// Parse reads a feed document and returns its tracks in document order.
// Items without an enclosure are skipped; an item without a title falls
// back to the enclosure URL.
func Parse(parser *gofeed.Parser, r io.Reader) ([]relay.Track, error) {
	if parser == nil {
		parser = gofeed.NewParser()
	}
	f, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	tracks := make([]relay.Track, 0, len(f.Items))
	for _, item := range f.Items {
		enc := audioEnclosure(item.Enclosures)
		if enc == "" {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = enc
		}
		tracks = append(tracks, relay.Track{Title: title, SourceURL: enc})
	}
	return tracks, nil
}

// audioEnclosure prefers an audio/* enclosure and falls back to the first
// one with a usable URL. Only absolute http(s) URLs are usable.
func audioEnclosure(encs []*gofeed.Enclosure) string {
	first := ""
	for _, e := range encs {
		if e == nil {
			continue
		}
		u := strings.TrimSpace(e.URL)
		if !remoteURL(u) {
			continue
		}
		if strings.HasPrefix(strings.ToLower(e.Type), "audio/") {
			return u
		}
		if first == "" {
			first = u
		}
	}
	return first
}

func remoteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
