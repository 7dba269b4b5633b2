package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	SetBackend(fb)
	t.Cleanup(func() { SetBackend(nil) })
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordStep("jobA", "sample", nil, 2*time.Second)
	RecordStep("jobB", "write", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 || len(fb.callsHistograms) != 2 {
		t.Fatalf("calls = %d counters, %d histograms; want 2, 2", len(fb.callsCounters), len(fb.callsHistograms))
	}

	cc0 := fb.callsCounters[0]
	if cc0.name != StepTotal || cc0.delta != 1 {
		t.Fatalf("counter[0] = %#v; want name=%s, delta=1", cc0, StepTotal)
	}
	if cc0.labels["job"] != "jobA" || cc0.labels["step"] != "sample" || cc0.labels["status"] != "success" {
		t.Fatalf("counter[0].labels = %v", cc0.labels)
	}
	h0 := fb.callsHistograms[0]
	if h0.name != StepDuration || h0.value < 1.999 || h0.value > 2.001 {
		t.Fatalf("hist[0] = %#v; want %s ~2.0", h0, StepDuration)
	}

	if got := fb.callsCounters[1].labels["status"]; got != "failure" {
		t.Fatalf("counter[1].labels[status] = %q; want failure", got)
	}
	if v := fb.callsHistograms[1].value; v < 1.499 || v > 1.501 {
		t.Fatalf("hist[1].value = %v; want ~1.5", v)
	}
}

func TestRecordRowsBatchesWarnings(t *testing.T) {
	fb := install(t)

	RecordRows("jobX", "parsed", 3)
	RecordRows("jobX", "parsed", 0) // ignored
	RecordRows("jobY", "written", 5)
	RecordBatches("jobZ", 250)
	RecordWarnings("jobZ", 0) // ignored
	RecordWarnings("jobZ", 4)

	if len(fb.callsCounters) != 4 {
		t.Fatalf("expected 4 counter calls, got %d: %#v", len(fb.callsCounters), fb.callsCounters)
	}

	c0 := fb.callsCounters[0]
	if c0.name != RowsTotal || c0.delta != 3 || c0.labels["kind"] != "parsed" {
		t.Fatalf("counter[0] = %#v", c0)
	}
	c1 := fb.callsCounters[1]
	if c1.name != RowsTotal || c1.delta != 5 || c1.labels["job"] != "jobY" {
		t.Fatalf("counter[1] = %#v", c1)
	}
	c2 := fb.callsCounters[2]
	if c2.name != BatchesTotal || c2.delta != 1 || c2.labels["job"] != "jobZ" {
		t.Fatalf("counter[2] = %#v", c2)
	}
	c3 := fb.callsCounters[3]
	if c3.name != WarningsTotal || c3.delta != 4 {
		t.Fatalf("counter[3] = %#v", c3)
	}

	if len(fb.callsHistograms) != 1 || fb.callsHistograms[0].name != BatchRowsSample || fb.callsHistograms[0].value != 250 {
		t.Fatalf("histograms = %#v", fb.callsHistograms)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := install(t)

	if current() != fb {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	SetBackend(nil)
	if _, ok := current().(nopBackend); !ok {
		t.Fatalf("SetBackend(nil) should restore the no-op backend, got %T", current())
	}
	RecordRows("job", "parsed", 1) // must not panic
}
