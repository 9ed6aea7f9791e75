package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration
	logger  logger.Logger

	mu    sync.Mutex
	hooks []hook

	trigger chan error
	once    sync.Once
	done    chan struct{}
}

// NewHandler creates a new shutdown handler.
func NewHandler(timeout time.Duration, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		timeout: timeout,
		logger:  log,
		hooks:   make([]hook, 0),
		trigger: make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a named shutdown hook.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// Trigger starts shutdown without a signal. cause, when non-nil, is
// returned by Wait. Only the first call has an effect.
func (h *Handler) Trigger(cause error) {
	h.once.Do(func() {
		h.trigger <- cause
	})
}

// Wait blocks until a signal or Trigger, then runs the hooks. It returns
// the trigger cause joined with every hook error.
func (h *Handler) Wait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var cause error
	select {
	case sig := <-sigCh:
		h.logger.Info("shutdown signal received", "signal", sig.String())
	case cause = <-h.trigger:
		if cause != nil {
			h.logger.Error("shutdown triggered", "error", cause)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	errs := []error{cause}
	for i := len(hooks) - 1; i >= 0; i-- {
		h.logger.Info("shutting down", "component", hooks[i].name)
		if err := hooks[i].fn(ctx); err != nil {
			h.logger.Error("shutdown hook failed", "component", hooks[i].name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, err))
		}
	}

	close(h.done)
	return errors.Join(errs...)
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
