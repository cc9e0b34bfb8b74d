package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoOpSatisfiesObserver(t *testing.T) {
	var o Observer = NoOp{}
	o.ObserveAlloc(1, time.Millisecond, true)
	o.ObserveFree(1, true)
	o.ObserveUpload(1, time.Millisecond, true)
	o.ObserveDownload(1, time.Millisecond, true)
	o.ObserveDispatch(time.Millisecond, true)
	o.ObserveQueueDepth(1, 0)
}

func TestPrometheusObserveAllocCountsUnitsAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.ObserveAlloc(32768, time.Millisecond, true)
	p.ObserveAlloc(0, time.Millisecond, false)

	if got := testutil.ToFloat64(p.allocOps.WithLabelValues("success")); got != 1 {
		t.Fatalf("allocOps success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.allocOps.WithLabelValues("failure")); got != 1 {
		t.Fatalf("allocOps failure = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.allocUnits); got != 32768 {
		t.Fatalf("allocUnits = %v, want 32768", got)
	}
}

func TestPrometheusObserveFreeOnlyCountsUnitsOnSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.ObserveFree(100, false)
	if got := testutil.ToFloat64(p.freeUnits); got != 0 {
		t.Fatalf("freeUnits after failed free = %v, want 0", got)
	}

	p.ObserveFree(100, true)
	if got := testutil.ToFloat64(p.freeUnits); got != 100 {
		t.Fatalf("freeUnits after successful free = %v, want 100", got)
	}
}

func TestPrometheusObserveQueueDepthSetsGaugePerContext(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.ObserveQueueDepth(7, 3)
	if got := testutil.ToFloat64(p.queueDepth.WithLabelValues("7")); got != 3 {
		t.Fatalf("queueDepth[7] = %v, want 3", got)
	}
}

func TestNewPrometheusDefaultsToDefaultRegisterer(t *testing.T) {
	// A second NewPrometheus(nil) in the same process would panic on
	// duplicate registration, so this just exercises the nil-registerer
	// branch once to confirm it doesn't itself panic.
	_ = NewPrometheus(nil)
}
