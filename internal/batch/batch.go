// Package batch groups coerced rows into bounded batches and hands each batch
// to a caller-supplied handler with bounded concurrency.
//
// A batch closes when it holds RowCount rows or when the estimated JSON size
// of its rows reaches SizeMin, whichever happens first. The last non-empty
// batch closes at end of input. Progress is the share of raw input bytes
// consumed when the batch closed; the batch that ends the input reports
// exactly 1.
//
// The producer reads one record ahead so it can tell the final batch apart.
// Once ConcurrentMax handlers are in flight it blocks before reading further
// input.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"ingest/internal/transformer"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultRowCount      = 1000
	DefaultSizeMin       = 10_000_000
	DefaultConcurrentMax = 5
)

// Options governs when a batch closes and how many handlers may run at once.
// Zero values select the defaults.
type Options struct {
	RowCount      int
	SizeMin       int
	ConcurrentMax int
}

func (o Options) withDefaults() Options {
	if o.RowCount <= 0 {
		o.RowCount = DefaultRowCount
	}
	if o.SizeMin <= 0 {
		o.SizeMin = DefaultSizeMin
	}
	if o.ConcurrentMax <= 0 {
		o.ConcurrentMax = DefaultConcurrentMax
	}
	return o
}

// Entry is one coerced row together with the warnings raised while producing
// it and the raw byte offset consumed through its end.
type Entry struct {
	Row      transformer.Row
	Warnings []string
	Offset   int64
}

// Source yields entries in stream order. Next returns io.EOF at end of input;
// Trailing then returns warnings raised after the last entry.
type Source interface {
	Next(ctx context.Context) (Entry, error)
	Trailing() []string
}

// Batch is one closed group of rows.
type Batch struct {
	// Seq is the 1-based position of the batch in stream order.
	Seq      int
	Rows     []transformer.Row
	Warnings []string

	// Progress is the estimated share of the input consumed, in [0,1].
	Progress float64
	Final    bool
}

// Handler consumes one batch. Returned warnings are merged into the run's
// warnings; a returned error fails the run.
type Handler func(ctx context.Context, b Batch) ([]string, error)

// HandlerError reports the batch whose handler failed the run.
type HandlerError struct {
	Batch int
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("batch #%d: handler failed: %v", e.Batch, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Run drains src into batches and calls h for each. total is the raw input
// size used for progress; bytesRead, when non-nil, replaces entry offsets as
// the count of consumed input bytes (compressed or transcoded input).
//
// Warnings are returned in batch order: each batch's own warnings followed by
// whatever its handler returned. The trailing warnings of src belong to the
// final batch, or are returned alone when src yielded nothing.
//
// When a handler fails, the context passed to the other in-flight handlers is
// cancelled, they are awaited, and Run returns a *HandlerError. Batches that
// were already delivered are not undone. A source error cancels in-flight
// handlers the same way and is returned as is.
func Run(ctx context.Context, src Source, total int64, bytesRead func() int64, opts Options, h Handler) ([]string, error) {
	if h == nil {
		return nil, errors.New("batch: nil handler")
	}
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(opts.ConcurrentMax)

	r := &run{
		total:     total,
		bytesRead: bytesRead,
		log:       slog.Default().With("component", "batch"),
		start:     time.Now(),
	}

	prodErr := r.produce(gctx, src, opts, func(b Batch) {
		slot := r.reserve(b.Warnings)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			w, err := h(gctx, b)
			if err != nil {
				r.log.Error("handler failed", "batch", b.Seq, "err", err)
				return &HandlerError{Batch: b.Seq, Err: err}
			}
			r.fill(slot, w)
			return nil
		})
	})
	if prodErr != nil {
		cancel()
	}
	handlerErr := g.Wait()

	warnings := r.collect()
	if handlerErr != nil {
		return warnings, handlerErr
	}
	if prodErr != nil {
		return warnings, prodErr
	}
	if r.batches() == 0 {
		warnings = src.Trailing()
	}
	return warnings, nil
}

type run struct {
	total     int64
	bytesRead func() int64
	log       *slog.Logger
	start     time.Time

	mu    sync.Mutex
	slots [][]string // per batch: own warnings, then handler warnings
}

func (r *run) reserve(w []string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = append(r.slots, append([]string(nil), w...))
	return len(r.slots) - 1
}

func (r *run) fill(slot int, w []string) {
	if len(w) == 0 {
		return
	}
	r.mu.Lock()
	r.slots[slot] = append(r.slots[slot], w...)
	r.mu.Unlock()
}

func (r *run) batches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func (r *run) collect() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.slots {
		out = append(out, s...)
	}
	return out
}

// produce reads entries, closes batches and passes them to dispatch. dispatch
// blocks while the handler pool is saturated.
func (r *run) produce(ctx context.Context, src Source, opts Options, dispatch func(Batch)) error {
	var (
		rows     []transformer.Row
		warnings []string
		size     int
		seq      int
		lastOff  int64
	)

	cur, err := src.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}

	for {
		rows = append(rows, cur.Row)
		warnings = append(warnings, cur.Warnings...)
		size += estimateSize(cur.Row)
		lastOff = cur.Offset

		next, err := src.Next(ctx)
		final := errors.Is(err, io.EOF)
		if err != nil && !final {
			return err
		}

		if final {
			warnings = append(warnings, src.Trailing()...)
		}
		if final || len(rows) >= opts.RowCount || size >= opts.SizeMin {
			if err := ctx.Err(); err != nil {
				return err
			}
			seq++
			b := Batch{
				Seq:      seq,
				Rows:     rows,
				Warnings: warnings,
				Progress: r.progress(lastOff, final),
				Final:    final,
			}
			r.log.Debug(fmt.Sprintf("batch #%d", seq),
				"rows", len(rows),
				"approx_bytes", size,
				"progress", fmt.Sprintf("%.3f", b.Progress),
				"elapsed", time.Since(r.start).Truncate(time.Millisecond),
			)
			dispatch(b)
			rows, warnings, size = nil, nil, 0
		}
		if final {
			return nil
		}
		cur = next
	}
}

// progress converts consumed bytes into a share of total. Only the final
// batch reports 1.
func (r *run) progress(offset int64, final bool) float64 {
	if final {
		return 1
	}
	consumed := offset
	if r.bytesRead != nil {
		consumed = r.bytesRead()
	}
	if r.total <= 0 {
		return 0
	}
	p := float64(consumed) / float64(r.total)
	switch {
	case p < 0:
		return 0
	case p >= 1:
		return maxPartial
	}
	return p
}

// maxPartial caps the progress of a non-final batch when the declared total
// understates the input.
const maxPartial = 0.999

// estimateSize approximates the serialized size of one row in a JSON array.
func estimateSize(row transformer.Row) int {
	b, err := json.Marshal(row)
	if err != nil {
		return 0
	}
	return len(b) + 1
}
