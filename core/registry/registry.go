package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry tracks every pluggable Module the engine wires together, in
// registration order. Modules initialize in that order and shut down in
// reverse, so a module can depend on anything registered before it.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
	order   []string
	logger  *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		modules: make(map[string]Module),
		logger:  logger,
	}
}

// Register adds or replaces a module by name. Replacing an existing name
// keeps its original position in the init/shutdown order.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if _, exists := r.modules[name]; exists {
		r.modules[name] = m
		return
	}
	r.modules[name] = m
	r.order = append(r.order, name)
}

// Get returns a module by name.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// MustGet returns a module by name or panics. A panic here means a
// startup wiring bug, not a runtime condition.
func (r *Registry) MustGet(name string) Module {
	m, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("registry: module %q not registered", name))
	}
	return m
}

// InitAll initializes every module in registration order, stopping at
// the first error.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		m := r.modules[name]
		r.logger.Info("initializing module", slog.String("module", name))
		if err := m.Init(ctx); err != nil {
			return fmt.Errorf("init module %q: %w", name, err)
		}
	}
	return nil
}

// ShutdownAll shuts down every module in reverse registration order,
// attempting all of them even after a failure, and returns the first
// error encountered.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var firstErr error
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		m := r.modules[name]
		r.logger.Info("shutting down module", slog.String("module", name))
		if err := m.Shutdown(ctx); err != nil {
			r.logger.Error("module shutdown failed",
				slog.String("module", name), slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = fmt.Errorf("shutdown module %q: %w", name, err)
			}
		}
	}
	return firstErr
}

// HealthAll reports each module's current health.
func (r *Registry) HealthAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[string]error, len(r.modules))
	for _, name := range r.order {
		results[name] = r.modules[name].Health(ctx)
	}
	return results
}
