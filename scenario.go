package dcfsim

// scenario.go runs one complete experiment: N stations offering a normalized
// load to a sink for a fixed time, and reports the row of results the
// 802.11b contention study tabulates.

import (
	"context"
	"fmt"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"time"
)

// ResultHeader names the columns of Result.Row
const ResultHeader = "Nodes\tLoad\tNet_norm_load\tseed\tNet_norm_thrpt\tp_col"

// Result holds the outcome of one run
type Result struct {
	RunID    string  `json:"runid" yaml:"runid"`
	Stations int     `json:"stations" yaml:"stations"`
	Load     float64 `json:"load" yaml:"load"`
	Seed     int64   `json:"seed" yaml:"seed"`

	// NetNormLoad is the offered payload rate as a fraction of the data rate
	NetNormLoad float64 `json:"netnormload" yaml:"netnormload"`

	// Throughput is the throughput normalized by the exchange duration
	Throughput float64 `json:"throughput" yaml:"throughput"`

	// RateNormThroughput is the received payload rate as a fraction of the data rate
	RateNormThroughput float64 `json:"ratenormthroughput" yaml:"ratenormthroughput"`

	CollisionProb float64 `json:"collisionprob" yaml:"collisionprob"`

	// Measured is the duration the counters cover
	Measured time.Duration `json:"measured" yaml:"measured"`

	Counters map[StationID]Counters `json:"-" yaml:"-"`
}

// Row formats the result as one tab-separated line under ResultHeader
func (res *Result) Row() string {
	return fmt.Sprintf("%d\t%g\t%g\t%d\t%g\t%g", res.Stations, res.Load, res.NetNormLoad, res.Seed,
		res.RateNormThroughput, res.CollisionProb)
}

// Scenario binds a scenario description to the simulation that runs it
type Scenario struct {
	Cfg     *ScenarioCfg
	Sim     *Simulation
	Trace   *TraceManager
	Sources []*TrafficSource
	logger  *log.Logger
}

// CreateScenario validates the description and builds its simulation
func CreateScenario(sc *ScenarioCfg, logger *log.Logger) (*Scenario, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = discardLogger()
	}
	sim, err := NewSimulation(sc.Core, WithLogger(logger))
	if err != nil {
		return nil, err
	}
	scn := &Scenario{Cfg: sc, Sim: sim, logger: logger}
	scn.Trace = CreateTraceManager(sc.Name, sc.Trace.Enabled)
	scn.Trace.Attach(sim)
	return scn, nil
}

// StopTime is when the run ends: traffic start plus the simulation time
func (scn *Scenario) StopTime() time.Duration {
	return secondsToDuration(scn.Cfg.Traffic.Start + scn.Cfg.SimulationTime)
}

// resetCounters is scheduled at the end of the warm-up period
func resetCounters(sched *EventScheduler, context any, data any) any {
	agg := context.(*Aggregator)
	agg.Reset()
	return nil
}

// Run restarts the simulation, offers the traffic, and runs to StopTime.
// Running a scenario twice yields identical counters.
func (scn *Scenario) Run(ctx context.Context) (*Result, error) {
	sc := scn.Cfg
	sim := scn.Sim
	sim.Restart()
	scn.Trace.Traces = make(map[string][]TraceInst)

	stop := scn.StopTime()
	scn.Sources = AttachTraffic(sim, sc.Traffic, stop)
	measured := secondsToDuration(sc.SimulationTime)
	if sc.Warmup > 0.0 {
		sim.Scheduler().Schedule(secondsToDuration(sc.Traffic.Start+sc.Warmup), sim.Aggregator(), nil, resetCounters)
		measured = secondsToDuration(sc.SimulationTime - sc.Warmup)
	}

	runID := uuid.NewString()
	logger := scn.logger.With("run", runID, "stations", sc.Core.Stations, "load", sc.Traffic.Load,
		"seed", sc.Core.Seed)
	logger.Info("starting run", "stop", stop)

	if err := sim.Run(ctx, stop); err != nil {
		logger.Error("run aborted", "err", err)
		return nil, err
	}

	agg := sim.Aggregator()
	res := &Result{
		RunID:              runID,
		Stations:           sc.Core.Stations,
		Load:               sc.Traffic.Load,
		Seed:               sc.Core.Seed,
		NetNormLoad:        NormalizedOfferedLoad(sc.Traffic.Load, sc.Core.PayloadSize, sc.Core.Phy),
		Throughput:         sim.Throughput(measured),
		RateNormThroughput: agg.RateNormalizedThroughput(measured, sc.Core.Phy.DataRate),
		CollisionProb:      agg.CollisionProbability(),
		Measured:           measured,
		Counters:           agg.Snapshot(),
	}
	logger.Info("run complete", "throughput", res.Throughput, "pcol", res.CollisionProb)
	return res, nil
}

// RunScenario builds and runs a scenario in one step
func RunScenario(ctx context.Context, sc *ScenarioCfg, logger *log.Logger) (*Result, error) {
	scn, err := CreateScenario(sc, logger)
	if err != nil {
		return nil, err
	}
	return scn.Run(ctx)
}
