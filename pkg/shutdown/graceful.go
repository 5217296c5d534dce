// Package shutdown runs cleanup hooks in reverse registration order when the
// process is interrupted or a run finishes.
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

	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler collects cleanup hooks: flushing sinks, closing the store,
// shutting down telemetry.
type Handler struct {
	mu     sync.Mutex
	hooks  []hook
	once   sync.Once
	done   chan struct{}
	logger *logger.Logger
}

func NewHandler(log *logger.Logger) *Handler {
	return &Handler{
		done:   make(chan struct{}),
		logger: log.WithComponent("shutdown"),
	}
}

// Register adds a hook. Hooks run last-registered first.
func (h *Handler) Register(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. The
// returned stop function releases the signal handler.
func (h *Handler) SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if parent.Err() == nil && context.Cause(ctx) != nil {
			h.logger.Infow("Received signal, stopping", "cause", context.Cause(ctx).Error())
		}
	}()
	return ctx, stop
}

// Shutdown runs every hook once. Errors are logged and joined.
func (h *Handler) Shutdown(ctx context.Context) error {
	var errs []error
	h.once.Do(func() {
		defer close(h.done)

		h.mu.Lock()
		hooks := append([]hook(nil), h.hooks...)
		h.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i].fn(ctx); err != nil {
				h.logger.Errorw("Shutdown hook failed",
					"hook", hooks[i].name,
					"error", err,
				)
				errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, err))
			}
		}
	})
	return errors.Join(errs...)
}

// ShutdownWithTimeout bounds Shutdown by timeout.
func (h *Handler) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- h.Shutdown(ctx) }()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

// Done is closed once every hook has run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
