package dcfsim

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRunCollectorObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	rc, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("NewRunCollector: %v", err)
	}

	res := &Result{Stations: 2, Load: 0.5, Seed: 1, Throughput: 0.42, CollisionProb: 0.1,
		Measured: time.Second, Counters: map[StationID]Counters{
			1: {Transmitted: 10, Received: 9},
			2: {Transmitted: 5},
		}}
	rc.Observe(res)
	rc.Observe(res)

	if got := testutil.ToFloat64(rc.Events.WithLabelValues("2", "0.5", "1", "packetsTransmitted")); got != 20 {
		t.Fatalf("dcf_station_events_total = %v, want 20", got)
	}
	if got := testutil.ToFloat64(rc.Throughput.WithLabelValues("2", "0.5", "1")); got != 0.42 {
		t.Fatalf("dcf_normalized_throughput = %v, want 0.42", got)
	}
	if got := testutil.ToFloat64(rc.Runs); got != 2 {
		t.Fatalf("dcf_runs_total = %v, want 2", got)
	}
}

func TestRunCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("NewRunCollector: %v", err)
	}
	second, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("second NewRunCollector: %v", err)
	}
	if first.Events != second.Events || first.Runs != second.Runs {
		t.Fatalf("second collector did not reuse the registered metrics")
	}
}

func TestNilRunCollectorIgnoresResults(t *testing.T) {
	var rc *RunCollector
	rc.Observe(&Result{Stations: 1})
}
