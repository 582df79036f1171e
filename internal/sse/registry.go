// Package sse implements the Event Stream Registry: a per-(port, url)
// set of long-lived Server-Sent-Events streams, their wire format, and
// heartbeat-driven liveness.
package sse

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edwig/marlin/core/domain"
	"github.com/edwig/marlin/internal/heartbeat"
)

// DefaultKeepAlive and DefaultMaxDataChunks are the registry's defaults
// when a Config doesn't override them.
const (
	DefaultKeepAlive     = 30 * time.Second
	DefaultMaxDataChunks = 1000
)

// Config tunes the registry's heartbeat cadence and per-stream chunk cap.
type Config struct {
	KeepAlive     time.Duration
	MaxDataChunks uint64
	Logger        *slog.Logger
}

type streamKey struct {
	port int
	url  string
}

// Registry owns every live stream, keyed by (port, url) so send_event can
// broadcast by endpoint. A single heartbeat task runs while the registry
// is non-empty; it is created on first subscribe and torn down when the
// last stream leaves.
type Registry struct {
	mu            sync.Mutex
	keepAlive     time.Duration
	maxDataChunks uint64
	logger        *slog.Logger

	streams map[streamKey]map[string]*domain.EventStream // key -> requestID -> stream
	hb      *heartbeat.Timer
}

// NewRegistry returns an empty registry. Zero-value Config fields fall
// back to DefaultKeepAlive / DefaultMaxDataChunks.
func NewRegistry(cfg Config) *Registry {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.MaxDataChunks == 0 {
		cfg.MaxDataChunks = DefaultMaxDataChunks
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		keepAlive:     cfg.KeepAlive,
		maxDataChunks: cfg.MaxDataChunks,
		logger:        cfg.Logger,
		streams:       make(map[streamKey]map[string]*domain.EventStream),
	}
}

// Subscribe initializes w as an SSE response and registers the stream.
// w must implement http.Flusher. Returns nil if w can't be flushed.
func (r *Registry) Subscribe(site *domain.Site, port int, url, absPath, requestID, user string, w http.ResponseWriter, bom bool) *domain.EventStream {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if bom {
		_, _ = w.Write([]byte{0xEF, 0xBB, 0xBF})
	}
	flusher.Flush()

	stream := domain.NewEventStream(requestID, url, absPath, site, port, user, w, flusher)

	r.mu.Lock()
	key := streamKey{port: port, url: strings.ToLower(url)}
	if r.streams[key] == nil {
		r.streams[key] = make(map[string]*domain.EventStream)
	}
	r.streams[key][requestID] = stream
	firstStream := r.hb == nil
	if firstStream {
		r.hb = heartbeat.NewTimer(r.logger)
		r.hb.Start(r.heartbeatTick, r.keepAlive/2)
	}
	r.mu.Unlock()

	return stream
}

// SendEvent broadcasts ev to every live stream matching (port, url),
// optionally filtered case-insensitively by user. It returns the number
// of streams the event was sent to.
func (r *Registry) SendEvent(port int, url string, ev Event, user string) int {
	r.mu.Lock()
	key := streamKey{port: port, url: strings.ToLower(url)}
	targets := make([]*domain.EventStream, 0, len(r.streams[key]))
	for _, s := range r.streams[key] {
		if user != "" && !strings.EqualFold(s.User, user) {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.Unlock()

	sent := 0
	for _, s := range targets {
		if r.deliver(s, ev) {
			sent++
		}
	}
	return sent
}

func (r *Registry) deliver(s *domain.EventStream, ev Event) bool {
	if ev.ID == 0 {
		ev.ID = s.LastID + 1
	}
	if err := s.Write(Encode(ev, int(r.keepAlive/time.Millisecond))); err != nil {
		return false
	}
	s.LastID = ev.ID
	if s.ChunksSent >= r.maxDataChunks {
		r.closeStream(s)
	}
	return true
}

// CloseStream sends a final close event and evicts s from the registry.
func (r *Registry) CloseStream(s *domain.EventStream) {
	r.closeStream(s)
}

func (r *Registry) closeStream(s *domain.EventStream) {
	_ = s.Write(Encode(Event{ID: s.LastID + 1, Name: closeEventName}, 0))
	if !s.MarkDead() {
		return
	}
	r.evict(s)
}

// CloseStreams bulk-closes every stream matching (port, url), optionally
// filtered by user.
func (r *Registry) CloseStreams(port int, url, user string) int {
	r.mu.Lock()
	key := streamKey{port: port, url: strings.ToLower(url)}
	targets := make([]*domain.EventStream, 0, len(r.streams[key]))
	for _, s := range r.streams[key] {
		if user != "" && !strings.EqualFold(s.User, user) {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		r.closeStream(s)
	}
	return len(targets)
}

func (r *Registry) evict(s *domain.EventStream) {
	r.mu.Lock()
	key := streamKey{port: s.Port, url: strings.ToLower(s.BaseURL)}
	if bucket := r.streams[key]; bucket != nil {
		delete(bucket, s.RequestID)
		if len(bucket) == 0 {
			delete(r.streams, key)
		}
	}
	empty := len(r.streams) == 0
	var hb *heartbeat.Timer
	if empty && r.hb != nil {
		hb = r.hb
		r.hb = nil
	}
	r.mu.Unlock()

	if hb != nil {
		hb.Stop()
	}
}

// heartbeatTick writes a keepalive comment to every stream past its quiet
// threshold, and evicts streams whose chunk count exceeds the cap or
// whose last write failed.
func (r *Registry) heartbeatTick() {
	r.mu.Lock()
	all := make([]*domain.EventStream, 0)
	for _, bucket := range r.streams {
		for _, s := range bucket {
			all = append(all, s)
		}
	}
	r.mu.Unlock()

	threshold := r.keepAlive - 500*time.Millisecond
	now := time.Now()
	for _, s := range all {
		if !s.Alive() {
			r.evict(s)
			continue
		}
		if now.Sub(s.LastPulse) < threshold {
			continue
		}
		if err := s.Write(keepaliveComment); err != nil {
			r.evict(s)
			continue
		}
		if s.ChunksSent >= r.maxDataChunks {
			r.closeStream(s)
		}
	}
}

// Count returns the total number of live streams, for diagnostics/metrics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, bucket := range r.streams {
		n += len(bucket)
	}
	return n
}

// NewRequestID returns a fresh opaque stream identifier.
func NewRequestID() string { return uuid.NewString() }
