package batch

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/transformer"
)

// sliceSource replays entries; offsets grow by rowBytes per entry.
type sliceSource struct {
	entries  []Entry
	pos      int
	trailing []string
	reads    atomic.Int64
	err      error // returned instead of io.EOF when set
}

func newSource(n int, rowBytes int64) *sliceSource {
	s := &sliceSource{}
	for i := 0; i < n; i++ {
		s.entries = append(s.entries, Entry{
			Row:    transformer.Row{"i": int64(i)},
			Offset: int64(i+1) * rowBytes,
		})
	}
	return s
}

func (s *sliceSource) Next(ctx context.Context) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	if s.pos >= len(s.entries) {
		if s.err != nil {
			return Entry{}, s.err
		}
		return Entry{}, io.EOF
	}
	s.reads.Add(1)
	e := s.entries[s.pos]
	s.pos++
	return e, nil
}

func (s *sliceSource) Trailing() []string { return s.trailing }

func collect(t *testing.T, src Source, total int64, opts Options) ([]Batch, []string) {
	t.Helper()
	var (
		mu  sync.Mutex
		out []Batch
	)
	w, err := Run(context.Background(), src, total, nil, opts, func(_ context.Context, b Batch) ([]string, error) {
		mu.Lock()
		out = append(out, b)
		mu.Unlock()
		return nil, nil
	})
	require.NoError(t, err)
	return out, w
}

func TestRun_RowCountThreshold(t *testing.T) {
	src := newSource(1500, 10)
	batches, _ := collect(t, src, 1500*10, Options{ConcurrentMax: 1})

	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Rows, 1000)
	assert.Len(t, batches[1].Rows, 500)
	assert.InDelta(t, 0.666, batches[0].Progress, 0.01)
	assert.False(t, batches[0].Final)
	assert.Equal(t, 1.0, batches[1].Progress)
	assert.True(t, batches[1].Final)
}

func TestRun_SizeThreshold(t *testing.T) {
	src := newSource(10, 1)
	// {"i":0} is 7 bytes plus a separator.
	batches, _ := collect(t, src, 10, Options{RowCount: 100, SizeMin: 16, ConcurrentMax: 1})

	require.Len(t, batches, 5)
	for _, b := range batches {
		assert.Len(t, b.Rows, 2)
	}
}

func TestRun_ExactMultipleEndsWithFullFinalBatch(t *testing.T) {
	src := newSource(4, 5)
	batches, _ := collect(t, src, 20, Options{RowCount: 2, ConcurrentMax: 1})

	require.Len(t, batches, 2)
	assert.Equal(t, 0.5, batches[0].Progress)
	assert.Equal(t, 1.0, batches[1].Progress)
	assert.True(t, batches[1].Final)
}

func TestRun_ProgressMonotonic(t *testing.T) {
	src := newSource(97, 3)
	batches, _ := collect(t, src, 97*3, Options{RowCount: 10, ConcurrentMax: 1})

	last := 0.0
	for _, b := range batches {
		assert.GreaterOrEqual(t, b.Progress, last)
		last = b.Progress
	}
	assert.Equal(t, 1.0, last)
}

func TestRun_UnderstatedTotalNeverReachesOneEarly(t *testing.T) {
	src := newSource(6, 10)
	batches, _ := collect(t, src, 5, Options{RowCount: 2, ConcurrentMax: 1})

	require.Len(t, batches, 3)
	assert.Less(t, batches[0].Progress, 1.0)
	assert.Less(t, batches[1].Progress, 1.0)
	assert.Equal(t, 1.0, batches[2].Progress)
}

func TestRun_EmptySourceEmitsNothing(t *testing.T) {
	src := newSource(0, 0)
	src.trailing = []string{"tail"}
	batches, w := collect(t, src, 0, Options{})

	assert.Empty(t, batches)
	assert.Equal(t, []string{"tail"}, w)
}

func TestRun_WarningsInBatchOrder(t *testing.T) {
	src := newSource(4, 1)
	src.entries[0].Warnings = []string{"r1"}
	src.entries[3].Warnings = []string{"r4"}
	src.trailing = []string{"tail"}

	w, err := Run(context.Background(), src, 4, nil, Options{RowCount: 2, ConcurrentMax: 3},
		func(_ context.Context, b Batch) ([]string, error) {
			if b.Seq == 1 {
				time.Sleep(20 * time.Millisecond)
			}
			return []string{"handled " + string(rune('0'+b.Seq))}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "handled 1", "r4", "tail", "handled 2"}, w)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	src := newSource(50, 1)
	var inFlight, peak atomic.Int64

	_, err := Run(context.Background(), src, 50, nil, Options{RowCount: 1, ConcurrentMax: 3},
		func(_ context.Context, _ Batch) ([]string, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Greater(t, peak.Load(), int64(1))
}

func TestRun_BackPressureStopsReading(t *testing.T) {
	src := newSource(100, 1)
	release := make(chan struct{})
	started := make(chan struct{}, 10)

	done := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), src, 100, nil, Options{RowCount: 1, ConcurrentMax: 2},
			func(_ context.Context, _ Batch) ([]string, error) {
				started <- struct{}{}
				<-release
				return nil, nil
			})
		done <- err
	}()

	<-started
	<-started
	time.Sleep(20 * time.Millisecond)
	// Two batches in flight, one batch waiting for a slot and one record of
	// lookahead.
	assert.LessOrEqual(t, src.reads.Load(), int64(4))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int64(100), src.reads.Load())
}

func TestRun_HandlerFailureCancelsOthers(t *testing.T) {
	src := newSource(10, 1)
	boom := errors.New("upload refused")
	var cancelled atomic.Int64

	_, err := Run(context.Background(), src, 10, nil, Options{RowCount: 1, ConcurrentMax: 2},
		func(ctx context.Context, b Batch) ([]string, error) {
			if b.Seq == 2 {
				return nil, boom
			}
			select {
			case <-ctx.Done():
				cancelled.Add(1)
			case <-time.After(time.Second):
			}
			return nil, nil
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var he *HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 2, he.Batch)
	assert.GreaterOrEqual(t, cancelled.Load(), int64(1))
}

func TestRun_SourceErrorFailsRun(t *testing.T) {
	src := newSource(3, 1)
	src.err = errors.New("disk gone")

	var calls atomic.Int64
	_, err := Run(context.Background(), src, 3, nil, Options{RowCount: 1, ConcurrentMax: 1},
		func(_ context.Context, _ Batch) ([]string, error) {
			calls.Add(1)
			return nil, nil
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.Equal(t, int64(2), calls.Load())
}

func TestRun_BytesReadOverridesOffsets(t *testing.T) {
	src := newSource(4, 1000)
	var read int64 = 25

	var got []float64
	_, err := Run(context.Background(), src, 100, func() int64 { return read }, Options{RowCount: 2, ConcurrentMax: 1},
		func(_ context.Context, b Batch) ([]string, error) {
			got = append(got, b.Progress)
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 1}, got)
}

func TestRun_NilHandler(t *testing.T) {
	_, err := Run(context.Background(), newSource(1, 1), 1, nil, Options{}, nil)
	assert.Error(t, err)
}
