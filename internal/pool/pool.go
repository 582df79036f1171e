// Package pool implements the worker pool every reactor request and
// background job runs on: an elastic set of goroutines draining a
// completion queue, with sleep/wake parking and a shared heartbeat,
// standing in for the original's I/O-completion-port thread pool.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/edwig/marlin/core/domain"
	"github.com/edwig/marlin/internal/heartbeat"
	"github.com/edwig/marlin/internal/sleepwake"
)

const (
	minThreadsFloor   = 2 // absolute floor for the minimum thread count
	maxThreadsCeiling = 4 // multiplied by CPU count
	// numThreadsDefault is the hard floor beneath which max never drops,
	// even on a single-CPU machine.
	numThreadsDefault = 10
)

var (
	// ErrClosed is returned by Submit/SubmitCleanup once Shutdown has run.
	ErrClosed = errors.New("pool: not open for work")
	// ErrMinExceedsMax is returned by TrySetMinimum/TrySetMaximum when the
	// requested bound would invert min > max.
	ErrMinExceedsMax = errors.New("pool: minimum cannot exceed maximum")
)

// InitFunc runs once per worker goroutine before it starts pulling work.
type InitFunc func()

// AbortFunc is consulted when a worker is about to exit because the pool
// is shrinking under load; returning false vetoes the exit and keeps the
// worker alive. Workers exiting on Shutdown do not consult it.
type AbortFunc func(stayInPool bool, forcedAbort bool) bool

// Config tunes a Pool's elasticity bounds. Zero values are replaced by
// CPU-count-derived defaults at New.
type Config struct {
	MinThreads int
	MaxThreads int
	QueueDepth int
	Init       InitFunc
	Abort      AbortFunc
	Logger     *slog.Logger
}

// Pool is an elastic goroutine pool draining a FIFO completion queue.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	minThreads  int
	maxThreads  int
	curThreads  int32
	busyThreads int32
	openForWork bool
	extendCount int

	work    chan domain.WorkItem
	cleanup []domain.WorkItem

	sleep     *sleepwake.Registry
	heartbeat *heartbeat.Timer
	load      *loadSampler

	workerWG sync.WaitGroup
	doneCh   chan struct{}
}

// ExtendGuard is returned by ExtendMaximum and must be passed to
// RestoreMaximum exactly once, typically via defer.
type ExtendGuard struct{ released bool }

// New builds a Pool. MinThreads/MaxThreads of zero take their
// CPU-scaled defaults: min floors to 2xCPU, max caps at 4xCPU but never
// below numThreadsDefault.
func New(cfg Config) *Pool {
	cpus := runtime.NumCPU()
	min := cfg.MinThreads
	if min <= 0 {
		min = 2 * cpus
	}
	max := cfg.MaxThreads
	if max <= 0 {
		max = 4 * cpus
		if max < numThreadsDefault {
			max = numThreadsDefault
		}
	}
	if min < minThreadsFloor {
		min = minThreadsFloor
	}
	if max < min {
		max = min
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		cfg:        cfg,
		logger:     logger,
		minThreads: min,
		maxThreads: max,
		work:       make(chan domain.WorkItem, cfg.QueueDepth),
		sleep:      sleepwake.NewRegistry(),
		heartbeat:  heartbeat.NewTimer(logger),
		load:       newLoadSampler(5 * time.Millisecond),
		doneCh:     make(chan struct{}),
	}
}

// Sleep exposes the pool's sleep/wake registry to long-running handlers.
func (p *Pool) Sleep(unique uint64, payload any) (any, error) { return p.sleep.Sleep(unique, payload) }

// Wake exposes Wake on the pool's sleep/wake registry.
func (p *Pool) Wake(unique uint64, payload any) error { return p.sleep.Wake(unique, payload) }

// Heartbeat exposes the pool's heartbeat timer for a single other
// periodic task to piggyback on rather than running its own ticker
// (Start may only be called once per Timer). The engine uses it to
// drive metrics sampling; the SSE registry keeps its own timer since its
// keepalive cadence is tied to its own per-registry config.
func (p *Pool) Heartbeat() *heartbeat.Timer { return p.heartbeat }

// Run starts the minimum number of worker goroutines and opens the pool
// for submissions. Calling Run twice is a no-op.
func (p *Pool) Run() {
	p.mu.Lock()
	if p.openForWork {
		p.mu.Unlock()
		return
	}
	p.openForWork = true
	min := p.minThreads
	p.mu.Unlock()

	for i := 0; i < min; i++ {
		p.spawnWorker()
	}
}

func (p *Pool) spawnWorker() {
	atomic.AddInt32(&p.curThreads, 1)
	p.workerWG.Add(1)
	go func() {
		defer p.workerWG.Done()
		defer atomic.AddInt32(&p.curThreads, -1)
		if p.cfg.Init != nil {
			p.cfg.Init()
		}
		p.workerLoop()
	}()
}

func (p *Pool) workerLoop() {
	for item := range p.work {
		atomic.AddInt32(&p.busyThreads, 1)
		start := time.Now()
		p.runItem(item)
		p.load.recordService(time.Since(start))
		atomic.AddInt32(&p.busyThreads, -1)

		if p.maybeShrink() {
			return
		}
		p.maybeGrow()
	}
}

func (p *Pool) runItem(item domain.WorkItem) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pool worker recovered from panic", slog.Any("panic", r))
		}
	}()
	item.Run()
}

// maybeGrow implements the elasticity rule: if every current worker is
// busy, there's headroom below max, and load is comfortably low, add one
// worker.
func (p *Pool) maybeGrow() {
	p.mu.Lock()
	max := p.maxThreads
	p.mu.Unlock()

	cur := atomic.LoadInt32(&p.curThreads)
	busy := atomic.LoadInt32(&p.busyThreads)
	if busy == cur && int(cur) < max && p.load.load() < 0.75 {
		p.spawnWorker()
	}
}

// maybeShrink implements the other half of the elasticity rule: under
// sustained high load this worker exits after finishing its current
// item, never dropping below min. Returns true if this worker should
// stop.
func (p *Pool) maybeShrink() bool {
	p.mu.Lock()
	min := p.minThreads
	p.mu.Unlock()

	cur := atomic.LoadInt32(&p.curThreads)
	if p.load.load() > 0.9 && int(cur) > min {
		if p.cfg.Abort != nil && !p.cfg.Abort(false, false) {
			return false
		}
		return true
	}
	return false
}

// Submit enqueues a unit of work. Returns ErrClosed once Shutdown has
// been called.
func (p *Pool) Submit(fn func(payload any), payload any) error {
	p.mu.Lock()
	open := p.openForWork
	p.mu.Unlock()
	if !open {
		return ErrClosed
	}
	select {
	case p.work <- domain.WorkItem{Fn: fn, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("pool: %w: queue full", ErrClosed)
	}
}

// SubmitCleanup registers a job to run once, in the calling goroutine,
// during Shutdown. Cleanup jobs run in submission order — "LIFO-free",
// not treated as a stack.
func (p *Pool) SubmitCleanup(fn func(payload any), payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanup = append(p.cleanup, domain.WorkItem{Fn: fn, Payload: payload})
}

// TrySetMinimum adjusts the floor below which the pool never shrinks.
func (p *Pool) TrySetMinimum(n int) error {
	if n < minThreadsFloor {
		n = minThreadsFloor
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.maxThreads {
		return ErrMinExceedsMax
	}
	p.minThreads = n
	return nil
}

// TrySetMaximum adjusts the ceiling the pool never exceeds.
func (p *Pool) TrySetMaximum(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < p.minThreads {
		return ErrMinExceedsMax
	}
	p.maxThreads = n
	return nil
}

// ExtendMaximum raises the maximum by one for the duration a caller
// holds the returned guard, intended for a worker about to call Sleep.
// RestoreMaximum (or guard release via the pool) must be called exactly
// once.
func (p *Pool) ExtendMaximum() *ExtendGuard {
	p.mu.Lock()
	p.maxThreads++
	p.extendCount++
	p.mu.Unlock()
	return &ExtendGuard{}
}

// RestoreMaximum releases a guard obtained from ExtendMaximum.
func (p *Pool) RestoreMaximum(g *ExtendGuard) {
	if g.released {
		return
	}
	g.released = true
	p.mu.Lock()
	p.maxThreads--
	p.extendCount--
	p.mu.Unlock()
}

// CurrentThreads returns the live worker goroutine count.
func (p *Pool) CurrentThreads() int { return int(atomic.LoadInt32(&p.curThreads)) }

// BusyThreads returns the count of workers currently running an item.
// Not stable while running, matching the original's own caveat.
func (p *Pool) BusyThreads() int { return int(atomic.LoadInt32(&p.busyThreads)) }

// MinThreads returns the current floor.
func (p *Pool) MinThreads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minThreads
}

// MaxThreads returns the current ceiling.
func (p *Pool) MaxThreads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxThreads
}

// Shutdown stops accepting work, wakes every parked sleeper, stops the
// heartbeat, runs cleanup jobs synchronously, then waits with
// exponential back-off (50ms doubling to 6.4s) for the queue to drain
// and every worker to exit. It never blocks indefinitely: once the
// overall deadline in ctx (or the default ~25s) elapses, it returns
// without having force-killed anything — Go has no thread-kill primitive,
// so "force-terminated" workers are simply abandoned to exit on their own.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.openForWork {
		p.mu.Unlock()
		return nil
	}
	p.openForWork = false
	p.mu.Unlock()

	p.sleep.WakeAll()
	p.heartbeat.Stop()
	close(p.work)

	p.mu.Lock()
	jobs := p.cleanup
	p.cleanup = nil
	p.mu.Unlock()
	for _, job := range jobs {
		p.runItem(job)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = 6400 * time.Millisecond
	eb.Multiplier = 2

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if atomic.LoadInt32(&p.curThreads) == 0 {
			return struct{}{}, nil
		}
		return struct{}{}, errors.New("pool: workers still draining")
	}, backoff.WithBackOff(eb), backoff.WithMaxElapsedTime(25*time.Second))

	close(p.doneCh)
	if err != nil {
		p.logger.Warn("pool shutdown timed out waiting for workers", slog.Int("remaining", p.CurrentThreads()))
		return fmt.Errorf("pool shutdown: %w", err)
	}
	return nil
}

// Done is closed once Shutdown has finished waiting (successfully or not).
func (p *Pool) Done() <-chan struct{} { return p.doneCh }
