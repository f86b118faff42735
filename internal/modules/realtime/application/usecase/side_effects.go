package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultSideEffectTimeout = 5 * time.Second

// SideEffects runs work that must never block or fail a broadcast, such as
// audit appends. Each job gets its own deadline, detached from the caller's
// cancellation. Errors and panics are logged and dropped.
type SideEffects struct {
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewSideEffects(timeout time.Duration) *SideEffects {
	if timeout <= 0 {
		timeout = defaultSideEffectTimeout
	}
	return &SideEffects{timeout: timeout}
}

// Go starts fn in the background and returns immediately.
func (s *SideEffects) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		slog.Warn("best-effort step dropped after close", slog.String("step", name))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	go func() {
		defer s.wg.Done()
		defer cancel()
		bestEffort(jobCtx, name, fn)
	}()
}

// Wait blocks until every started job has returned. Used on shutdown and in tests.
func (s *SideEffects) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// Close refuses new jobs and waits for the running ones. Used on shutdown,
// before the resources the jobs write to are released.
func (s *SideEffects) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

// bestEffort runs fn inline and reports whether it succeeded. Failures are
// logged with name and never returned.
func bestEffort(ctx context.Context, name string, fn func(ctx context.Context) error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("best-effort step panicked", slog.String("step", name), slog.String("panic", fmt.Sprint(r)))
			ok = false
		}
	}()
	if err := fn(ctx); err != nil {
		slog.Warn("best-effort step failed", slog.String("step", name), slog.Any("error", err))
		return false
	}
	return true
}
