// Package metrics provides a small, backend-agnostic abstraction for recording
// ingest run metrics.
//
// The package exposes a narrow Backend interface (counters and histograms)
// and a global, pluggable backend that defaults to a no-op, so the recording
// helpers are always safe to call. Concrete systems live in subpackages
// (prompush, datadog).
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by all backends.
const (
	StepTotal       = "ingest_step_total"
	StepDuration    = "ingest_step_duration_seconds"
	RowsTotal       = "ingest_rows_total"
	BatchesTotal    = "ingest_batches_total"
	WarningsTotal   = "ingest_warnings_total"
	BatchRowsSample = "ingest_batch_rows"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a distribution style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil restores the no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency and success/failure of one run step
// ("sample", "parse", "write", ...).
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows increments the row counter for kind, e.g. "parsed",
// "written", "skipped".
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatches increments the batch counter and samples the batch size.
func RecordBatches(job string, rows int) {
	b := current()
	b.IncCounter(BatchesTotal, 1, Labels{"job": job})
	b.ObserveHistogram(BatchRowsSample, float64(rows), Labels{"job": job})
}

// RecordWarnings increments the warning counter.
func RecordWarnings(job string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(WarningsTotal, float64(delta), Labels{"job": job})
}
