// Package batch runs extraction and verification jobs over many archive
// entries with a bounded pool of workers.
//
// A batch stops at the first failure and checks for cancellation between
// entries, never in the middle of one. Callers receive a single Outcome
// rather than per-entry errors.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jchantrell/nartool/internal/nar"
)

// Status is the aggregate result of a batch.
type Status int

const (
	Ok Status = iota
	Cancelled
	Failed
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome reports how a batch ended. Err is the first entry error for
// Failed and the context error for Cancelled.
type Outcome struct {
	Status    Status
	Err       error
	Processed int
}

// Func processes one entry.
type Func func(ctx context.Context, e *nar.Entry) error

// ProgressFunc is called after each entry completes. Calls are serialized.
type ProgressFunc func(current, total int, description string)

// Run applies fn to every entry using at most workers goroutines. A
// workers value of zero or less uses GOMAXPROCS.
func Run(ctx context.Context, entries []*nar.Entry, workers int, fn Func, progress ProgressFunc) Outcome {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	total := len(entries)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		processed atomic.Int64
		progMu    sync.Mutex
	)

	for _, e := range entries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// a worker may have been queued behind the limit when the
			// batch failed or was cancelled
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(gctx, e); err != nil {
				return fmt.Errorf("%s: %w", e.Path, err)
			}
			n := processed.Add(1)
			if progress != nil {
				progMu.Lock()
				progress(int(n), total, e.Path)
				progMu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()

	out := Outcome{Processed: int(processed.Load())}
	switch {
	case ctx.Err() != nil && (err != nil || out.Processed < total):
		out.Status = Cancelled
		out.Err = ctx.Err()
	case err != nil:
		out.Status = Failed
		out.Err = err
	default:
		out.Status = Ok
	}
	return out
}
