package executor

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Pool runs a set of executables together. If one of them stops with an
// error, the others are cancelled.
type Pool struct {
	log  *slog.Logger
	exes []Executable
}

func NewPool(log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{log: log.With("component", "executor-pool")}
}

// Add registers exe. It must be called before Run.
func (p *Pool) Add(exe Executable) {
	p.exes = append(p.exes, exe)
}

// Size returns the number of registered executables.
func (p *Pool) Size() int { return len(p.exes) }

// Run drives every executable until ctx is cancelled or all of them stop.
// It returns the first error reported by a Failer.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, exe := range p.exes {
		g.Go(func() error {
			n := loop(ctx, exe)
			p.log.Debug("executable finished", "name", exe.Name(), "iterations", n)
			if f, ok := exe.(Failer); ok {
				if err := f.Err(); err != nil {
					return fmt.Errorf("%s: %w", exe.Name(), err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
