// Command dcfsim runs the 802.11b DCF contention experiment: a number of
// stations offering a normalized load to one sink over a shared channel.
// It runs either a single scenario, printing one result row, or a sweep of
// station counts, loads and seeds on a pool of workers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/iti/dcfsim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run())
}

// run parses the command line, runs the simulation and returns the exit status
func run() int {
	var cfgFile = pflag.StringP("config", "c", "", "Scenario description, json or yaml.")
	var sweepFile = pflag.StringP("sweep", "s", "", "Sweep description, json or yaml.  Runs the whole grid.")
	var stations = pflag.IntP("stations", "n", 1, "Number of contending stations.")
	var load = pflag.Float64P("load", "l", 1.0, "Offered load, normalized by the successful exchange duration.")
	var seed = pflag.Int64("seed", 1, "Seed of the random streams.")
	var simTime = pflag.Float64P("simulation-time", "t", 10.0, "Measured simulation time, in seconds.")
	var warmup = pflag.Float64("warmup", 0.0, "Seconds after traffic start at which counters are reset.")
	var payload = pflag.Int("payload", 1024, "Payload bytes per packet.")
	var queueSize = pflag.Int("queue-size", 10, "MAC queue size, in packets.")
	var cwMin = pflag.Int("cw-min", 31, "Minimum contention window.")
	var cwMax = pflag.Int("cw-max", 1023, "Maximum contention window.")
	var maxRetries = pflag.Int("max-retries", 7, "Transmission attempts before a frame is dropped.")
	var useRts = pflag.Bool("rts", false, "Protect data frames with RTS/CTS.")
	var maxAmpdu = pflag.Int("max-ampdu", 0, "MPDUs aggregated per A-MPDU, 0 disables aggregation.")
	var poisson = pflag.Bool("poisson", false, "Exponential inter-arrival times instead of constant.")
	var workers = pflag.IntP("workers", "w", 4, "Runs executed concurrently in a sweep.")
	var traceDir = pflag.String("trace-dir", "", "Write cw, backoff, phy-tx, mac-tx and mac-rx traces here.")
	var metricsFile = pflag.String("metrics-file", "", "Write Prometheus metrics of the runs to this textfile.")
	var spans = pflag.Bool("spans", false, "Print OpenTelemetry spans of the runs to stderr.")
	var verbose = pflag.CountP("verbose", "v", "Verbosity, repeat for more.")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - 802.11b DCF channel contention simulator\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		return 0
	}

	logger := dcfsim.NewLogger(os.Stderr, *verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *spans {
		shutdown, err := initTracing(ctx, spanOutput)
		if err != nil {
			logger.Error("tracing setup failed", "err", err)
			return 1
		}
		defer shutdownTracing(ctx, shutdown, logger)
	}

	var collector *dcfsim.RunCollector
	reg := prometheus.NewRegistry()
	if *metricsFile != "" {
		var err error
		collector, err = dcfsim.NewRunCollector(reg)
		if err != nil {
			logger.Error("metrics setup failed", "err", err)
			return 1
		}
	}

	// command line values override the description file only when given
	flags := pflag.CommandLine
	override := func(sc *dcfsim.ScenarioCfg) {
		if flags.Changed("stations") {
			sc.Core.Stations = *stations
		}
		if flags.Changed("load") {
			sc.Traffic.Load = *load
		}
		if flags.Changed("seed") {
			sc.Core.Seed = *seed
		}
		if flags.Changed("simulation-time") {
			sc.SimulationTime = *simTime
		}
		if flags.Changed("warmup") {
			sc.Warmup = *warmup
		}
		if flags.Changed("payload") {
			sc.Core.PayloadSize = *payload
		}
		if flags.Changed("queue-size") {
			sc.Core.Mac.QueueSize = *queueSize
		}
		if flags.Changed("cw-min") {
			sc.Core.Mac.CWmin = *cwMin
		}
		if flags.Changed("cw-max") {
			sc.Core.Mac.CWmax = *cwMax
		}
		if flags.Changed("max-retries") {
			sc.Core.Mac.MaxRetries = *maxRetries
		}
		if flags.Changed("rts") {
			sc.Core.Mac.UseRts = *useRts
		}
		if flags.Changed("max-ampdu") {
			sc.Core.Mac.MaxAmpdu = *maxAmpdu
		}
		if *poisson {
			sc.Traffic.InterArrival = "exponential"
		}
		if *traceDir != "" {
			sc.Trace.Enabled = true
			sc.Trace.Dir = *traceDir
		}
	}

	var err error
	if *sweepFile != "" {
		err = runSweep(ctx, *sweepFile, *workers, flags.Changed("workers"), override, collector, logger)
	} else {
		err = runSingle(ctx, *cfgFile, override, collector, logger)
	}
	if err != nil {
		logger.Error("simulation failed", "err", err)
		return 1
	}

	if collector != nil {
		if err := prometheus.WriteToTextfile(*metricsFile, reg); err != nil {
			logger.Error("writing metrics failed", "file", *metricsFile, "err", err)
			return 1
		}
	}
	return 0
}

// runSingle runs one scenario and prints its result row
func runSingle(ctx context.Context, cfgFile string, override func(*dcfsim.ScenarioCfg),
	collector *dcfsim.RunCollector, logger *log.Logger) error {
	sc := dcfsim.DefaultScenarioCfg()
	if cfgFile != "" {
		var err error
		sc, err = dcfsim.ReadScenarioCfg(cfgFile, dcfsim.UseYAML(cfgFile), []byte{})
		if err != nil {
			return err
		}
	}
	override(sc)

	scn, err := dcfsim.CreateScenario(sc, logger)
	if err != nil {
		return err
	}
	res, err := scn.Run(ctx)
	if err != nil {
		return err
	}
	collector.Observe(res)

	fmt.Println(dcfsim.ResultHeader)
	fmt.Println(res.Row())

	if sc.Trace.Enabled {
		return scn.Trace.WriteTraceFiles(sc.Trace.Dir, sc.Trace.Prefix)
	}
	return nil
}

// runSweep runs the grid of a sweep description and prints every result
// row followed by the per-grid-point summary
func runSweep(ctx context.Context, sweepFile string, workers int, workersGiven bool,
	override func(*dcfsim.ScenarioCfg), collector *dcfsim.RunCollector, logger *log.Logger) error {
	swc, err := dcfsim.ReadSweepCfg(sweepFile, dcfsim.UseYAML(sweepFile), []byte{})
	if err != nil {
		return err
	}
	override(&swc.Base)
	if workersGiven {
		swc.Workers = workers
	}

	results, err := dcfsim.RunSweep(ctx, swc, logger)
	if err != nil {
		return err
	}

	fmt.Println(dcfsim.ResultHeader)
	for _, res := range results {
		collector.Observe(res)
		fmt.Println(res.Row())
	}
	fmt.Println()
	fmt.Println(dcfsim.SummaryHeader)
	for _, sum := range dcfsim.Summarize(results) {
		fmt.Println(sum.Row())
	}
	return nil
}
