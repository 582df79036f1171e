package domain

import (
	"net/http"
	"sync"
	"time"
)

// EventStream is one live SSE connection tracked by the event stream
// registry. Alive is the single source of truth for registry membership:
// once false, exactly one eviction path may act on the stream.
type EventStream struct {
	mu sync.Mutex

	RequestID    string
	BaseURL      string
	AbsolutePath string
	Site         *Site
	Port         int
	User         string

	LastID     uint64
	LastPulse  time.Time
	ChunksSent uint64
	alive      bool

	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewEventStream wires a stream to its underlying ResponseWriter. w must
// implement http.Flusher; callers that can't flush shouldn't subscribe.
func NewEventStream(requestID, baseURL, absPath string, site *Site, port int, user string, w http.ResponseWriter, f http.Flusher) *EventStream {
	return &EventStream{
		RequestID:    requestID,
		BaseURL:      baseURL,
		AbsolutePath: absPath,
		Site:         site,
		Port:         port,
		User:         user,
		LastPulse:    time.Now(),
		alive:        true,
		writer:       w,
		flusher:      f,
	}
}

// Alive reports whether the stream is still registry-owned.
func (e *EventStream) Alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alive
}

// MarkDead flips alive to false and reports whether this call was the one
// that did so (the eviction path a caller should run only fires once).
func (e *EventStream) MarkDead() (firstToDie bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.alive {
		return false
	}
	e.alive = false
	return true
}

// Write sends a raw chunk and flushes it, refreshing LastPulse on
// success. A write error marks the stream dead.
func (e *EventStream) Write(chunk []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.alive {
		return errStreamClosed
	}
	if _, err := e.writer.Write(chunk); err != nil {
		e.alive = false
		return err
	}
	e.flusher.Flush()
	e.LastPulse = time.Now()
	e.ChunksSent++
	return nil
}

var errStreamClosed = errStreamClosedErr{}

type errStreamClosedErr struct{}

func (errStreamClosedErr) Error() string { return "event stream: closed" }
