package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"radio-relay/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	streamContentType = "audio/mpeg"

	// MaxIngestBytes caps one live push.
	MaxIngestBytes = 10 << 20

	// DefaultListenerBuffer is the number of chunks queued per listener
	// before it is considered too slow and evicted.
	DefaultListenerBuffer = 64

	authRealm = "radio-relay ingest"
)

// Handler exposes relay HTTP endpoints using go-chi.
type Handler struct {
	svc            *Service
	log            *slog.Logger
	metrics        *metrics.Metrics
	listenerBuffer int
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics, listenerBuffer int) *Handler {
	if listenerBuffer <= 0 {
		listenerBuffer = DefaultListenerBuffer
	}
	return &Handler{svc: svc, log: log, metrics: m, listenerBuffer: listenerBuffer}
}

// Routes mounts the relay endpoints on r. The /live group requires one of
// the basic-auth credentials in creds (user → password).
func (h *Handler) Routes(r chi.Router, creds map[string]string) {
	r.Get("/stream", h.Listen)
	r.Get("/current-track", h.CurrentTrack)
	r.Get("/listener-stats", h.ListenerStats)
	r.Route("/live", func(r chi.Router) {
		r.Use(middleware.BasicAuth(authRealm, creds))
		r.Post("/push", h.PushLive)
		r.Post("/title", h.SetLiveTitle)
		r.Post("/end", h.EndLive)
	})
}

// Listen handles GET /stream. The response is an unbounded audio stream that
// ends when the client goes away or the listener is evicted.
func (h *Handler) Listen(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", streamContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.log.Error("streaming unsupported by response writer", slog.String("error", err.Error()))
		return
	}

	ip := clientIP(r)
	sink := NewChannelSink(h.listenerBuffer)
	id := h.svc.Connect(sink, ip)
	defer func() {
		h.svc.Disconnect(id)
		sink.Close()
	}()

	h.log.Info("listener connected",
		slog.String("listener_id", string(id)),
		slog.String("ip", ip),
		slog.Int("listeners", h.svc.ListenerCount()))

	for {
		select {
		case <-r.Context().Done():
			h.log.Info("listener disconnected", slog.String("listener_id", string(id)))
			return
		case chunk, ok := <-sink.Chunks():
			if !ok {
				h.log.Info("listener dropped", slog.String("listener_id", string(id)))
				return
			}
			if _, err := w.Write(chunk); err != nil {
				h.log.Debug("listener write failed", slog.String("listener_id", string(id)), slog.String("error", err.Error()))
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// PushLive handles POST /live/push. The raw body is one audio chunk.
func (h *Handler) PushLive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxIngestBytes)
	chunk, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.log.Warn("live chunk rejected, too large", slog.Int64("limit", tooLarge.Limit))
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		h.log.Debug("live chunk read failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	delivered := h.svc.PushLive(chunk)
	h.log.Debug("live chunk relayed", slog.Int("bytes", len(chunk)), slog.Int("listeners", delivered))
	if h.metrics != nil {
		h.metrics.IncLivePushes()
	}
	w.WriteHeader(http.StatusOK)
}

// SetLiveTitle handles POST /live/title.
// Body: { "title": "Friday night session" }.
func (h *Handler) SetLiveTitle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title *string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == nil {
		writeJSON(w, http.StatusBadRequest, errorBody(ErrInvalidTitle))
		return
	}

	if err := h.svc.SetLiveTitle(*body.Title); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}

	h.log.Info("live title updated", slog.String("title", *body.Title))
	writeJSON(w, http.StatusOK, map[string]string{"message": "live title updated"})
}

// EndLive handles POST /live/end and hands the program back to AutoDJ.
func (h *Handler) EndLive(w http.ResponseWriter, r *http.Request) {
	wasLive := h.svc.EndLive()
	h.log.Info("live ended by operator", slog.Bool("was_live", wasLive))
	writeJSON(w, http.StatusOK, map[string]bool{"live": false, "wasLive": wasLive})
}

// CurrentTrack handles GET /current-track.
func (h *Handler) CurrentTrack(w http.ResponseWriter, r *http.Request) {
	np, err := h.svc.CurrentTrack()
	switch {
	case errors.Is(err, ErrNoLiveTitle), errors.Is(err, ErrNoTrackLoaded):
		writeJSON(w, http.StatusNotFound, errorBody(err))
		return
	case err != nil:
		h.log.Error("current track failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, np)
}

// ListenerStats handles GET /listener-stats?start=...&end=... (RFC 3339).
func (h *Handler) ListenerStats(w http.ResponseWriter, r *http.Request) {
	start, err := parseBound(r.URL.Query().Get("start"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(ErrInvalidRange))
		return
	}
	end, err := parseBound(r.URL.Query().Get("end"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(ErrInvalidRange))
		return
	}

	stats, err := h.svc.ListenerStats(r.Context(), start, end)
	switch {
	case errors.Is(err, ErrInvalidRange):
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	case errors.Is(err, ErrStatsUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err))
		return
	case err != nil:
		h.log.Error("listener stats failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseBound(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

// clientIP strips the port from RemoteAddr, which middleware.RealIP may
// already have replaced with a forwarded address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
