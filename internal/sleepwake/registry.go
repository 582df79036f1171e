// Package sleepwake parks and wakes long-running worker-pool tasks by a
// caller-assigned unique token, standing in for the original's
// SleepThread/WakeUpThread pair built on a Windows completion port event.
package sleepwake

import (
	"errors"
	"sync"
)

var (
	// ErrAlreadySleeping is returned by Sleep when unique is already parked.
	ErrAlreadySleeping = errors.New("sleepwake: a sleeper is already registered under this id")
	// ErrNoSleeper is returned by Wake, Peek and Abort for an unknown id.
	ErrNoSleeper = errors.New("sleepwake: no sleeper registered under this id")
	// ErrAborted is returned by Sleep's waiter when Abort fires instead of Wake.
	ErrAborted = errors.New("sleepwake: sleeper was aborted")
)

type sleeper struct {
	payload any
	wake    chan wakeSignal
}

type wakeSignal struct {
	payload any
	aborted bool
}

// Registry parks goroutines under a unique token and wakes them with a
// replacement payload. Ordering is deterministic: a Wake(id) that follows
// a matching Sleep(id) always reaches that sleeper; an unmatched Wake is
// a no-op.
type Registry struct {
	mu       sync.Mutex
	sleepers map[uint64]*sleeper
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sleepers: make(map[uint64]*sleeper)}
}

// Sleep registers unique and blocks until Wake or Abort is called for it.
// It returns the payload handed in by the waker (which may differ from
// the payload this call parked with), or ErrAborted.
func (r *Registry) Sleep(unique uint64, payload any) (any, error) {
	r.mu.Lock()
	if _, exists := r.sleepers[unique]; exists {
		r.mu.Unlock()
		return nil, ErrAlreadySleeping
	}
	s := &sleeper{payload: payload, wake: make(chan wakeSignal, 1)}
	r.sleepers[unique] = s
	r.mu.Unlock()

	sig := <-s.wake
	if sig.aborted {
		return sig.payload, ErrAborted
	}
	return sig.payload, nil
}

// Wake signals the sleeper registered under unique with a (possibly
// replaced) payload. Reports ErrNoSleeper if nothing is parked there.
func (r *Registry) Wake(unique uint64, payload any) error {
	r.mu.Lock()
	s, ok := r.sleepers[unique]
	if ok {
		delete(r.sleepers, unique)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNoSleeper
	}
	s.wake <- wakeSignal{payload: payload}
	return nil
}

// Peek returns the payload a sleeper parked with, without waking it.
func (r *Registry) Peek(unique uint64) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sleepers[unique]
	if !ok {
		return nil, ErrNoSleeper
	}
	return s.payload, nil
}

// Abort wakes the sleeper registered under unique with the abort signal
// set; the sleeper is responsible for its own cleanup on return.
func (r *Registry) Abort(unique uint64) error {
	r.mu.Lock()
	s, ok := r.sleepers[unique]
	if ok {
		delete(r.sleepers, unique)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNoSleeper
	}
	s.wake <- wakeSignal{aborted: true}
	return nil
}

// WakeAll aborts every currently parked sleeper. Used during pool
// shutdown.
func (r *Registry) WakeAll() {
	r.mu.Lock()
	sleepers := r.sleepers
	r.sleepers = make(map[uint64]*sleeper)
	r.mu.Unlock()

	for _, s := range sleepers {
		s.wake <- wakeSignal{aborted: true}
	}
}

// Len reports the number of currently parked sleepers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sleepers)
}
