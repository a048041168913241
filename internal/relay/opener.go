package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// TrackOpener opens the byte stream behind a track's source locator.
type TrackOpener interface {
	Open(ctx context.Context, sourceURL string) (io.ReadCloser, error)
}

// SourceOpener fetches http(s) locators with Client. Catalog entries come
// from remote feeds, so any other scheme, bare paths included, is refused.
type SourceOpener struct {
	Client *http.Client
}

// NewSourceOpener returns an opener using client, or http.DefaultClient when nil.
func NewSourceOpener(client *http.Client) *SourceOpener {
	if client == nil {
		client = http.DefaultClient
	}
	return &SourceOpener{Client: client}
}

// Open implements TrackOpener. Failures are returned as *FetchError.
func (o *SourceOpener) Open(ctx context.Context, sourceURL string) (io.ReadCloser, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}

	switch u.Scheme {
	case "http", "https":
		return o.openHTTP(ctx, sourceURL)
	default:
		return nil, &FetchError{URL: sourceURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
}

func (o *SourceOpener) openHTTP(ctx context.Context, sourceURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &FetchError{URL: sourceURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return resp.Body, nil
}
