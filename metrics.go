package dcfsim

// metrics.go exports the counters and derived metrics of finished runs as
// Prometheus collectors, so sweeps can be scraped or dumped to a textfile.

import (
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"strconv"
)

// RunCollector bundles the Prometheus metrics describing simulation runs
type RunCollector struct {
	Events        *prometheus.CounterVec
	Throughput    *prometheus.GaugeVec
	CollisionProb *prometheus.GaugeVec
	Runs          prometheus.Counter
}

// NewRunCollector registers the run metrics against reg, defaulting to the
// global Prometheus registry when nil
func NewRunCollector(reg prometheus.Registerer) (*RunCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dcf_station_events_total",
		Help: "Per-station PHY and MAC event counts, summed over observed runs.",
	}, []string{"stations", "load", "station", "category"}), "dcf_station_events_total")
	if err != nil {
		return nil, err
	}
	thrpt, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dcf_normalized_throughput",
		Help: "Throughput normalized by the duration of a successful exchange.",
	}, []string{"stations", "load", "seed"}), "dcf_normalized_throughput")
	if err != nil {
		return nil, err
	}
	pcol, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dcf_collision_probability",
		Help: "Fraction of transmitted data frames not received; -1 when nothing was sent.",
	}, []string{"stations", "load", "seed"}), "dcf_collision_probability")
	if err != nil {
		return nil, err
	}
	runs, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dcf_runs_total",
		Help: "Number of completed simulation runs.",
	}), "dcf_runs_total")
	if err != nil {
		return nil, err
	}

	return &RunCollector{Events: events, Throughput: thrpt, CollisionProb: pcol, Runs: runs}, nil
}

// Observe records the outcome of one run
func (rc *RunCollector) Observe(res *Result) {
	if rc == nil || res == nil {
		return
	}
	stations := strconv.Itoa(res.Stations)
	load := strconv.FormatFloat(res.Load, 'g', -1, 64)
	seed := strconv.FormatInt(res.Seed, 10)

	for id, ctrs := range res.Counters {
		station := strconv.Itoa(int(id))
		for cat, n := range ctrs {
			rc.Events.WithLabelValues(stations, load, station, cat.String()).Add(float64(n))
		}
	}
	rc.Throughput.WithLabelValues(stations, load, seed).Set(res.Throughput)
	rc.CollisionProb.WithLabelValues(stations, load, seed).Set(res.CollisionProb)
	rc.Runs.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, ctr prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(ctr); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return ctr, nil
}
