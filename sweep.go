package dcfsim

// sweep.go runs a grid of scenarios (station counts x offered loads x seeds)
// on a bounded pool of workers, each run owning its own simulation, and
// summarizes the metrics of each grid point across seeds.

import (
	"context"
	"fmt"
	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

const tracerName = "github.com/iti/dcfsim"

// SummaryHeader names the columns of Summary.Row
const SummaryHeader = "Nodes\tLoad\tNet_norm_load\truns\tthrpt_mean\tthrpt_std\tp_col_mean\tp_col_std"

// Summary holds the metrics of one grid point across its seeds
type Summary struct {
	Stations       int     `json:"stations" yaml:"stations"`
	Load           float64 `json:"load" yaml:"load"`
	NetNormLoad    float64 `json:"netnormload" yaml:"netnormload"`
	Runs           int     `json:"runs" yaml:"runs"`
	ThroughputMean float64 `json:"throughputmean" yaml:"throughputmean"`
	ThroughputStd  float64 `json:"throughputstd" yaml:"throughputstd"`
	CollisionMean  float64 `json:"collisionmean" yaml:"collisionmean"`
	CollisionStd   float64 `json:"collisionstd" yaml:"collisionstd"`
}

// Row formats the summary as one tab-separated line under SummaryHeader
func (sum *Summary) Row() string {
	return fmt.Sprintf("%d\t%g\t%g\t%d\t%g\t%g\t%g\t%g", sum.Stations, sum.Load, sum.NetNormLoad, sum.Runs,
		sum.ThroughputMean, sum.ThroughputStd, sum.CollisionMean, sum.CollisionStd)
}

// Scenarios expands the sweep grid into one scenario per run, in grid order
func (swc *SweepCfg) Scenarios() []*ScenarioCfg {
	scs := make([]*ScenarioCfg, 0, len(swc.Stations)*len(swc.Loads)*len(swc.Seeds))
	for _, n := range swc.Stations {
		for _, load := range swc.Loads {
			for _, seed := range swc.Seeds {
				sc := swc.Base
				sc.Name = fmt.Sprintf("%s-n%d-l%g-s%d", swc.Base.Name, n, load, seed)
				sc.Core.Stations = n
				sc.Core.Seed = seed
				sc.Traffic.Load = load
				// traces of concurrent runs would overwrite each other
				sc.Trace.Enabled = false
				scs = append(scs, &sc)
			}
		}
	}
	return scs
}

// RunSweep runs every scenario of the grid with at most swc.Workers in
// flight.  Results come back in grid order.  The first failing run cancels
// the runs not yet finished and its error is returned.
func RunSweep(ctx context.Context, swc *SweepCfg, logger *log.Logger) ([]*Result, error) {
	if err := swc.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = discardLogger()
	}
	tracer := otel.Tracer(tracerName)
	ctx, sweepSpan := tracer.Start(ctx, "dcfsim.sweep")
	defer sweepSpan.End()

	scs := swc.Scenarios()
	results := make([]*Result, len(scs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(swc.Workers)

	for idx, sc := range scs {
		idx, sc := idx, sc
		eg.Go(func() error {
			res, err := runTraced(egCtx, tracer, sc, logger)
			if err != nil {
				return fmt.Errorf("run %s: %w", sc.Name, err)
			}
			results[idx] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		sweepSpan.RecordError(err)
		sweepSpan.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	logger.Info("sweep complete", "runs", len(results))
	return results, nil
}

// runTraced runs one scenario inside its own span
func runTraced(ctx context.Context, tracer trace.Tracer, sc *ScenarioCfg, logger *log.Logger) (*Result, error) {
	ctx, span := tracer.Start(ctx, "dcfsim.run", trace.WithAttributes(
		attribute.Int("dcf.stations", sc.Core.Stations),
		attribute.Float64("dcf.load", sc.Traffic.Load),
		attribute.Int64("dcf.seed", sc.Core.Seed)))
	defer span.End()

	res, err := RunScenario(ctx, sc, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("dcf.run_id", res.RunID),
		attribute.Float64("dcf.throughput", res.Throughput),
		attribute.Float64("dcf.collision_probability", res.CollisionProb))
	return res, nil
}

// Summarize groups results by (stations, load) and computes the mean and
// standard deviation of the metrics across seeds.  Runs without any
// transmission are left out of the collision statistics.
func Summarize(results []*Result) []*Summary {
	type gridPoint struct {
		stations int
		load     float64
	}
	groups := make(map[gridPoint][]*Result)
	order := make([]gridPoint, 0)
	for _, res := range results {
		gp := gridPoint{stations: res.Stations, load: res.Load}
		if _, present := groups[gp]; !present {
			order = append(order, gp)
		}
		groups[gp] = append(groups[gp], res)
	}
	slices.SortFunc(order, func(a, b gridPoint) int {
		if a.stations != b.stations {
			return a.stations - b.stations
		}
		switch {
		case a.load < b.load:
			return -1
		case a.load > b.load:
			return 1
		}
		return 0
	})

	sums := make([]*Summary, 0, len(order))
	for _, gp := range order {
		runs := groups[gp]
		thrpt := make([]float64, 0, len(runs))
		pcol := make([]float64, 0, len(runs))
		for _, res := range runs {
			thrpt = append(thrpt, res.Throughput)
			if res.CollisionProb != NoTransmissions {
				pcol = append(pcol, res.CollisionProb)
			}
		}
		sum := &Summary{Stations: gp.stations, Load: gp.load, NetNormLoad: runs[0].NetNormLoad, Runs: len(runs)}
		sum.ThroughputMean, sum.ThroughputStd = meanStd(thrpt)
		sum.CollisionMean, sum.CollisionStd = meanStd(pcol)
		if len(pcol) == 0 {
			sum.CollisionMean = NoTransmissions
		}
		sums = append(sums, sum)
	}
	return sums
}

// meanStd is stat.MeanStdDev, with a zero deviation for fewer than two samples
func meanStd(xs []float64) (float64, float64) {
	switch len(xs) {
	case 0:
		return 0.0, 0.0
	case 1:
		return xs[0], 0.0
	}
	return stat.MeanStdDev(xs, nil)
}
