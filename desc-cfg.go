package dcfsim

// desc-cfg.go holds the serializable descriptions of a simulation: the
// contention and PHY parameters of the stations, the traffic offered to them,
// the run controls, and the parameter sweeps run over many of these.
// Descriptions are read from and written to json or yaml files.

import (
	"encoding/json"
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"path"
	"strings"
)

// Config is the setup of the contention core
type Config struct {
	// Stations is the number of contending stations, not counting the sink
	Stations int `json:"stations" yaml:"stations"`

	Mac MacParams `json:"mac" yaml:"mac"`
	Phy PhyParams `json:"phy" yaml:"phy"`

	// PayloadSize is the application payload of a data MPDU, in bytes
	PayloadSize int `json:"payloadsize" yaml:"payloadsize"`

	// Seed selects the random streams of the run
	Seed int64 `json:"seed" yaml:"seed"`
}

// DefaultConfig returns a single-station 802.11b setup
func DefaultConfig() Config {
	return Config{Stations: 1, Mac: DefaultMacParams(), Phy: DefaultPhyParams(), PayloadSize: 1024, Seed: 1}
}

// Validate checks the setup, reporting every problem found
func (cfg *Config) Validate() error {
	errs := []error{}
	if cfg.Stations < 1 {
		errs = append(errs, fmt.Errorf("at least one station is needed, %d given", cfg.Stations))
	}
	if cfg.Mac.CWmin < 0 {
		errs = append(errs, fmt.Errorf("CWmin %d is negative", cfg.Mac.CWmin))
	}
	if cfg.Mac.CWmax < cfg.Mac.CWmin {
		errs = append(errs, fmt.Errorf("CWmax %d is smaller than CWmin %d", cfg.Mac.CWmax, cfg.Mac.CWmin))
	}
	if cfg.Mac.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("MaxRetries must be positive, %d given", cfg.Mac.MaxRetries))
	}
	if cfg.Mac.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue size must be positive, %d given", cfg.Mac.QueueSize))
	}
	if cfg.Mac.MaxAmpdu < 0 {
		errs = append(errs, fmt.Errorf("maximum A-MPDU length %d is negative", cfg.Mac.MaxAmpdu))
	}
	if cfg.PayloadSize < 1 {
		errs = append(errs, fmt.Errorf("payload size must be positive, %d given", cfg.PayloadSize))
	}
	errs = append(errs, cfg.Phy.Validate())
	return ReportErrs(errs)
}

// TrafficCfg describes the packets offered to every contending station
type TrafficCfg struct {
	// Load is the network offered load, normalized by the duration of a successful exchange
	Load float64 `json:"load" yaml:"load"`

	// InterArrival is "constant" or "exponential"
	InterArrival string `json:"interarrival" yaml:"interarrival"`

	// Start is when stations start generating packets, in seconds;
	// each station adds a uniform jitter of up to StartJitter seconds
	Start       float64 `json:"start" yaml:"start"`
	StartJitter float64 `json:"startjitter" yaml:"startjitter"`
}

// TraceCfg says which trace files a run writes
type TraceCfg struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Dir     string `json:"dir" yaml:"dir"`
	Prefix  string `json:"prefix" yaml:"prefix"`
}

// ScenarioCfg is a complete single-run description
type ScenarioCfg struct {
	Name    string     `json:"name" yaml:"name"`
	Core    Config     `json:"core" yaml:"core"`
	Traffic TrafficCfg `json:"traffic" yaml:"traffic"`

	// SimulationTime is the measured duration after traffic start, in seconds
	SimulationTime float64 `json:"simulationtime" yaml:"simulationtime"`

	// Warmup is the time after traffic start at which counters are reset, in seconds
	Warmup float64 `json:"warmup" yaml:"warmup"`

	Trace TraceCfg `json:"trace" yaml:"trace"`
}

// DefaultScenarioCfg returns the defaults of the 802.11b contention experiment
func DefaultScenarioCfg() *ScenarioCfg {
	return &ScenarioCfg{
		Name:           "dcf-11b",
		Core:           DefaultConfig(),
		Traffic:        TrafficCfg{Load: 1.0, InterArrival: "constant", Start: 1.0, StartJitter: 0.01},
		SimulationTime: 10.0,
		Trace:          TraceCfg{Dir: ".", Prefix: "wifi-dcf"},
	}
}

// Validate checks the scenario, reporting every problem found
func (sc *ScenarioCfg) Validate() error {
	errs := []error{sc.Core.Validate()}
	if sc.Traffic.Load < 0.0 {
		errs = append(errs, fmt.Errorf("offered load %g is negative", sc.Traffic.Load))
	}
	if _, present := interArrivalSamplers[sc.Traffic.InterArrival]; !present {
		errs = append(errs, fmt.Errorf("inter-arrival distribution %q is not one of constant, exponential",
			sc.Traffic.InterArrival))
	}
	if sc.Traffic.Start < 0.0 || sc.Traffic.StartJitter < 0.0 {
		errs = append(errs, errors.New("traffic start and jitter must not be negative"))
	}
	if sc.SimulationTime <= 0.0 {
		errs = append(errs, fmt.Errorf("simulation time must be positive, %g given", sc.SimulationTime))
	}
	if sc.Warmup < 0.0 || sc.Warmup >= sc.SimulationTime {
		errs = append(errs, fmt.Errorf("warm-up %g must lie in [0, %g)", sc.Warmup, sc.SimulationTime))
	}
	return ReportErrs(errs)
}

// WriteToFile stores the ScenarioCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (sc *ScenarioCfg) WriteToFile(filename string) error {
	return writeDesc(filename, *sc)
}

// ReadScenarioCfg deserializes a byte slice holding a representation of a ScenarioCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  Fields absent from the representation keep their default values.
func ReadScenarioCfg(filename string, useYAML bool, dict []byte) (*ScenarioCfg, error) {
	sc := DefaultScenarioCfg()
	if err := readDesc(filename, useYAML, dict, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// SweepCfg describes a grid of scenarios, each run once per seed
type SweepCfg struct {
	Base     ScenarioCfg `json:"base" yaml:"base"`
	Stations []int       `json:"stations" yaml:"stations"`
	Loads    []float64   `json:"loads" yaml:"loads"`
	Seeds    []int64     `json:"seeds" yaml:"seeds"`

	// Workers bounds the number of runs executing at once
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultSweepCfg returns the station counts, loads and seeds of the 802.11b study
func DefaultSweepCfg() *SweepCfg {
	loads := make([]float64, 0, 20)
	for idx := 1; idx <= 20; idx++ {
		loads = append(loads, roundFloat(0.1*float64(idx), 2))
	}
	return &SweepCfg{Base: *DefaultScenarioCfg(), Stations: []int{5, 10, 20}, Loads: loads,
		Seeds: []int64{1, 2}, Workers: 4}
}

// Validate checks the sweep grid and its base scenario
func (swc *SweepCfg) Validate() error {
	errs := []error{swc.Base.Validate()}
	if len(swc.Stations) == 0 || len(swc.Loads) == 0 || len(swc.Seeds) == 0 {
		errs = append(errs, errors.New("sweep needs at least one station count, load and seed"))
	}
	for _, n := range swc.Stations {
		if n < 1 {
			errs = append(errs, fmt.Errorf("sweep station count %d is not positive", n))
		}
	}
	if swc.Workers < 1 {
		errs = append(errs, fmt.Errorf("sweep needs at least one worker, %d given", swc.Workers))
	}
	return ReportErrs(errs)
}

// WriteToFile stores the SweepCfg struct to the file whose name is given
func (swc *SweepCfg) WriteToFile(filename string) error {
	return writeDesc(filename, *swc)
}

// ReadSweepCfg deserializes a SweepCfg the way ReadScenarioCfg does a ScenarioCfg
func ReadSweepCfg(filename string, useYAML bool, dict []byte) (*SweepCfg, error) {
	swc := DefaultSweepCfg()
	if err := readDesc(filename, useYAML, dict, swc); err != nil {
		return nil, err
	}
	return swc, nil
}

// UseYAML reports whether the file name carries a yaml extension
func UseYAML(filename string) bool {
	pathExt := strings.ToLower(path.Ext(filename))
	return pathExt == ".yaml" || pathExt == ".yml"
}

// writeDesc serializes a description to json or yaml, selected by the file extension
func writeDesc(filename string, desc any) error {
	pathExt := strings.ToLower(path.Ext(filename))
	var bytes []byte
	var merr error

	switch pathExt {
	case ".yaml", ".yml":
		bytes, merr = yaml.Marshal(desc)
	case ".json":
		bytes, merr = json.MarshalIndent(desc, "", "\t")
	default:
		return fmt.Errorf("file %s has neither a json nor a yaml extension", filename)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// readDesc fills 'desc' from dict, or from the named file when dict is empty
func readDesc(filename string, useYAML bool, dict []byte, desc any) error {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return err
		}
	}

	if useYAML {
		err = yaml.Unmarshal(dict, desc)
	} else {
		err = json.Unmarshal(dict, desc)
	}
	return err
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}

	return errors.New(strings.Join(errMsg, ","))
}
