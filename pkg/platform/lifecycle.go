package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Hook is a named pair of start and stop callbacks. Either may be nil.
type Hook struct {
	Name    string
	OnStart func(context.Context) error
	OnStop  func(context.Context) error
}

// Lifecycle starts components in registration order and stops them in
// reverse.
type Lifecycle struct {
	mu sync.Mutex

	hooks   []Hook
	started bool
}

// NewLifecycle creates a new lifecycle manager.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// Append registers a hook.
func (l *Lifecycle) Append(h Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, h)
}

// Start runs every start callback. If one fails, the hooks registered before
// it are stopped in reverse order and the error is returned.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return fmt.Errorf("lifecycle already started")
	}

	for i, h := range l.hooks {
		if h.OnStart == nil {
			continue
		}
		slog.Debug("starting component", "component", hookName(h, i))
		if err := h.OnStart(ctx); err != nil {
			l.rollback(ctx, i)
			return fmt.Errorf("starting %s: %w", hookName(h, i), err)
		}
	}

	l.started = true
	return nil
}

// rollback stops the hooks before failedAt in reverse order.
func (l *Lifecycle) rollback(ctx context.Context, failedAt int) {
	for j := failedAt - 1; j >= 0; j-- {
		h := l.hooks[j]
		if h.OnStop == nil {
			continue
		}
		if err := h.OnStop(ctx); err != nil {
			slog.Warn("lifecycle rollback: stop callback failed",
				"component", hookName(h, j), "error", err)
		}
	}
}

// Stop runs every stop callback in reverse order, even after failures, and
// returns the joined errors.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil
	}

	var errs []error
	for i := len(l.hooks) - 1; i >= 0; i-- {
		h := l.hooks[i]
		if h.OnStop == nil {
			continue
		}
		slog.Debug("stopping component", "component", hookName(h, i))
		if err := h.OnStop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", hookName(h, i), err))
		}
	}

	l.started = false

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}
	return nil
}

// IsStarted returns whether the lifecycle has been started.
func (l *Lifecycle) IsStarted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// Closer is something that can be closed.
type Closer interface {
	Close() error
}

// RegisterCloser closes c on shutdown.
func (l *Lifecycle) RegisterCloser(name string, c Closer) {
	l.Append(Hook{
		Name: name,
		OnStop: func(_ context.Context) error {
			return c.Close()
		},
	})
}

func hookName(h Hook, i int) string {
	if h.Name != "" {
		return h.Name
	}
	return fmt.Sprintf("hook %d", i)
}
