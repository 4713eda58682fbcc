package component

import (
	"context"
	"fmt"
	"sync"
)

// Lazy is a Component whose setup runs on first Start or Initialize.
// Initialization that failed is retried on the next call.
type Lazy struct {
	name        string
	mu          sync.RWMutex
	initialized bool
	lastError   error
	initializer func(ctx context.Context) error
	healthCheck func(ctx context.Context) error
	closer      func() error
}

// NewLazy creates a lazy component with the given initializer.
func NewLazy(name string, initializer func(context.Context) error) *Lazy {
	return &Lazy{name: name, initializer: initializer}
}

// Name returns the component name.
func (l *Lazy) Name() string { return l.name }

// Initialize runs the initializer once it has succeeded.
func (l *Lazy) Initialize(ctx context.Context) error {
	l.mu.RLock()
	done := l.initialized
	l.mu.RUnlock()
	if done {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialized {
		return nil
	}
	if l.initializer == nil {
		return fmt.Errorf("component %s has no initializer", l.name)
	}
	if err := l.initializer(ctx); err != nil {
		l.lastError = err
		return fmt.Errorf("initialize %s: %w", l.name, err)
	}
	l.initialized = true
	l.lastError = nil
	return nil
}

// IsInitialized reports whether initialization has succeeded.
func (l *Lazy) IsInitialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialized
}

// Start initializes the component.
func (l *Lazy) Start(ctx context.Context) error { return l.Initialize(ctx) }

// Stop closes the component.
func (l *Lazy) Stop(context.Context) error { return l.Close() }

// Health reports unhealthy until initialized, then the custom check result.
func (l *Lazy) Health(ctx context.Context) Health {
	h := Health{Name: l.name, Status: StatusHealthy}
	l.mu.RLock()
	initialized, lastErr := l.initialized, l.lastError
	l.mu.RUnlock()
	switch {
	case !initialized && lastErr != nil:
		h.Status, h.Message = StatusUnhealthy, lastErr.Error()
	case !initialized:
		h.Status, h.Message = StatusUnhealthy, "not initialized"
	case l.healthCheck != nil:
		if err := l.healthCheck(ctx); err != nil {
			h.Status, h.Message = StatusDegraded, err.Error()
		}
	}
	return h
}

// Close runs the closer and marks the component uninitialized.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	if l.closer != nil && l.initialized {
		err = l.closer()
	}
	l.initialized = false
	return err
}

// WithHealthCheck sets a check run by Health once initialized.
func (l *Lazy) WithHealthCheck(fn func(context.Context) error) *Lazy {
	l.healthCheck = fn
	return l
}

// WithCloser sets the function Close runs.
func (l *Lazy) WithCloser(fn func() error) *Lazy {
	l.closer = fn
	return l
}

var _ Component = (*Lazy)(nil)
