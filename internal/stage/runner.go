// Package stage implements the generic incremental stage runner: walk a
// source tree, recognize units, gate each one against its would-be
// destination, and invoke the stage's transform on the accepted subset.
package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/casemill/casemill/internal/gate"
)

// Transform processes one unit from src into dest. It must be
// all-or-nothing per unit as far as the pipeline is concerned: on error
// the unit simply fails its completeness bar and is retried next run.
type Transform interface {
	Apply(ctx context.Context, src, dest string) error
}

// TransformFunc adapts a function to the Transform interface.
type TransformFunc func(ctx context.Context, src, dest string) error

// Apply implements Transform.
func (f TransformFunc) Apply(ctx context.Context, src, dest string) error {
	return f(ctx, src, dest)
}

// Logger is the logging surface the runner needs.
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

// Work pairs a unit with its resolved destination.
type Work struct {
	Unit
	Dest string
}

// Outcome aggregates per-run counters for one stage.
type Outcome struct {
	Discovered int
	Processed  int
	Skipped    int
	Failed     int
}

// Runner drives one structure-preserving stage. The destination for a
// unit is computed purely from (DestRoot, RelPath, DestFor), so repeated
// runs map the same unit to the same destination.
type Runner struct {
	Name     string
	DestRoot string

	// Discover enumerates this stage's units under the source root.
	Discover func() ([]Unit, error)

	// DestFor maps a unit's relative path to a relative destination
	// path. Nil means mirror the relative path unchanged.
	DestFor func(relPath string) string

	// Complete is the stage's completeness predicate (see gate).
	Complete gate.Completeness

	Transform Transform
	Workers   int // Minimum 1; units run in sorted order when 1.
	Force     bool
}

// Run discovers, gates, and processes the stage's units. Per-unit
// transform failures are logged and counted but never abort the run;
// only discovery errors and context cancellation do.
func (r *Runner) Run(ctx context.Context, log Logger) (Outcome, error) {
	var o Outcome

	units, err := r.Discover()
	if err != nil {
		return o, fmt.Errorf("%s: discover: %w", r.Name, err)
	}
	o.Discovered = len(units)

	var work []Work
	for _, u := range units {
		rel := u.RelPath
		if r.DestFor != nil {
			rel = r.DestFor(u.RelPath)
		}
		dest := filepath.Join(r.DestRoot, rel)
		if gate.Decide(dest, r.Force, r.Complete) == gate.Skip {
			o.Skipped++
			continue
		}
		work = append(work, Work{Unit: u, Dest: dest})
	}

	log.Info("[%s] %d discovered, %d to process, %d up to date",
		r.Name, o.Discovered, len(work), o.Skipped)

	processed, failed, err := Execute(ctx, log, work, r.Transform, r.Workers)
	o.Processed, o.Failed = processed, failed
	return o, err
}

// Execute runs the transform over the work list with a bounded worker
// pool. A unit failure is isolated: it is logged, counted, and the pool
// moves on. Only context cancellation stops the run early.
func Execute(ctx context.Context, log Logger, work []Work, t Transform, workers int) (processed, failed int, err error) {
	if workers < 1 {
		workers = 1
	}

	var done, bad atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, w := range work {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := os.MkdirAll(filepath.Dir(w.Dest), 0o755); err != nil {
				log.Error("  %s: %v", w.RelPath, err)
				bad.Add(1)
				return nil
			}
			if err := t.Apply(gctx, w.Path, w.Dest); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Error("  %s: %v", w.RelPath, err)
				bad.Add(1)
				return nil
			}
			done.Add(1)
			log.Debug("  done %s", w.RelPath)
			return nil
		})
	}

	werr := g.Wait()
	return int(done.Load()), int(bad.Load()), werr
}
