// Package lifecycle manages the daemon's long-running goroutines and
// their graceful shutdown.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrShutdownTimeout is returned when graceful shutdown times out.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Manager handles goroutine lifecycle and graceful shutdown.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stopCh chan struct{}
	logger *zap.Logger

	running atomic.Int32
}

// New creates a lifecycle manager scoped to ctx.
func New(ctx context.Context, logger *zap.Logger) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// Start launches a named goroutine under the manager.
func (m *Manager) Start(name string, fn func()) {
	m.wg.Add(1)
	m.running.Add(1)

	go func() {
		defer m.wg.Done()
		defer m.running.Add(-1)

		m.logger.Debug("starting goroutine", zap.String("name", name))
		defer m.logger.Debug("goroutine stopped", zap.String("name", name))

		fn()
	}()
}

// Stop signals every goroutine to stop and waits up to timeout for
// them to finish.
func (m *Manager) Stop(timeout time.Duration) error {
	m.logger.Info("initiating graceful shutdown",
		zap.Int32("running_goroutines", m.running.Load()),
		zap.Duration("timeout", timeout))

	close(m.stopCh)
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("graceful shutdown completed")
		return nil
	case <-time.After(timeout):
		m.logger.Warn("shutdown timeout exceeded",
			zap.Int32("still_running", m.running.Load()))
		return ErrShutdownTimeout
	}
}

// Context returns the lifecycle context, cancelled on Stop.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// StopChannel returns the stop signal channel.
func (m *Manager) StopChannel() <-chan struct{} {
	return m.stopCh
}

// Running returns the number of goroutines still running.
func (m *Manager) Running() int32 {
	return m.running.Load()
}
