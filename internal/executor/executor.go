// Package executor runs pipeline stages on their own goroutines. A stage
// implements Executable: one call to Execute does one unit of work and
// reports whether the stage wants to keep running.
package executor

import (
	"context"
	"log/slog"
	"sync"
)

// Executable is a unit of work driven in a loop by an executor.
// Execute must return promptly once ctx is cancelled.
type Executable interface {
	Name() string
	Execute(ctx context.Context) bool
}

// Failer is implemented by executables that can explain why they stopped.
type Failer interface {
	Err() error
}

// Threaded drives one Executable on a dedicated goroutine.
type Threaded struct {
	exe Executable
	log *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewThreaded creates a stopped executor for exe.
func NewThreaded(exe Executable, log *slog.Logger) *Threaded {
	if log == nil {
		log = slog.Default()
	}
	return &Threaded{
		exe: exe,
		log: log.With("component", "executor", "executable", exe.Name()),
	}
}

// Start launches the loop. It returns false if the executor is already
// running.
func (t *Threaded) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done != nil {
		select {
		case <-t.done:
		default:
			return false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go func() {
		defer close(done)
		defer cancel()
		t.log.Debug("started")
		n := loop(ctx, t.exe)
		t.log.Debug("stopped", "iterations", n)
	}()
	return true
}

// Stop cancels the loop and waits for the goroutine to exit. It returns
// false if the executor was not running.
func (t *Threaded) Stop() bool {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
	}
	cancel()
	<-done
	return true
}

// Running reports whether the loop goroutine is alive.
func (t *Threaded) Running() bool {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the current loop exits, or nil if the
// executor was never started.
func (t *Threaded) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func loop(ctx context.Context, exe Executable) int {
	n := 0
	for ctx.Err() == nil {
		n++
		if !exe.Execute(ctx) {
			break
		}
	}
	return n
}
