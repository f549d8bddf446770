package dcfsim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadScenarioCfgKeepsDefaults(t *testing.T) {
	dict := []byte(`{"name": "small", "core": {"stations": 3, "mac": {"cwmin": 15, "cwmax": 1023,
		"maxretries": 4, "queuesize": 10}}, "traffic": {"load": 0.4, "interarrival": "exponential"}}`)
	sc, err := ReadScenarioCfg("", false, dict)
	require.NoError(t, err)

	assert.Equal(t, "small", sc.Name)
	assert.Equal(t, 3, sc.Core.Stations)
	assert.Equal(t, 15, sc.Core.Mac.CWmin)
	assert.Equal(t, 4, sc.Core.Mac.MaxRetries)
	assert.Equal(t, 0.4, sc.Traffic.Load)
	assert.Equal(t, "exponential", sc.Traffic.InterArrival)

	// fields absent from the description keep their defaults
	assert.Equal(t, 1024, sc.Core.PayloadSize)
	assert.Equal(t, 11e6, sc.Core.Phy.DataRate)
	assert.Equal(t, 1.0, sc.Traffic.Start)
	assert.Equal(t, 10.0, sc.SimulationTime)
	assert.NoError(t, sc.Validate())
}

func TestReadScenarioCfgYAML(t *testing.T) {
	dict := []byte("name: yaml-run\nsimulationtime: 2.5\nwarmup: 0.5\ntrace:\n  enabled: true\n")
	sc, err := ReadScenarioCfg("", true, dict)
	require.NoError(t, err)
	assert.Equal(t, "yaml-run", sc.Name)
	assert.Equal(t, 2.5, sc.SimulationTime)
	assert.Equal(t, 0.5, sc.Warmup)
	assert.True(t, sc.Trace.Enabled)
	assert.Equal(t, DefaultConfig(), sc.Core)
}

func TestScenarioCfgRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sc := DefaultScenarioCfg()
	sc.Core.Stations = 7
	sc.Core.Mac.UseRts = true
	sc.Traffic.InterArrival = "exponential"

	for _, name := range []string{"scenario.yaml", "scenario.json"} {
		filename := filepath.Join(dir, name)
		require.NoError(t, sc.WriteToFile(filename))
		back, err := ReadScenarioCfg(filename, UseYAML(filename), nil)
		require.NoError(t, err)
		assert.Equal(t, sc, back, name)
	}
	assert.Error(t, sc.WriteToFile(filepath.Join(dir, "scenario.txt")))

	_, err := ReadScenarioCfg(filepath.Join(dir, "missing.yaml"), true, nil)
	assert.Error(t, err)
}

func TestSweepCfgRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "sweep.yml")
	swc := DefaultSweepCfg()
	swc.Loads = []float64{0.25, 0.75}
	require.NoError(t, swc.WriteToFile(filename))

	back, err := ReadSweepCfg(filename, UseYAML(filename), nil)
	require.NoError(t, err)
	assert.Equal(t, swc, back)
	assert.NoError(t, back.Validate())
}

func TestConfigValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stations = 0
	cfg.Mac.CWmin = 63
	cfg.Mac.CWmax = 31
	cfg.Mac.MaxRetries = 0
	cfg.Phy.DataRate = 54e6

	err := cfg.Validate()
	require.Error(t, err)
	for _, part := range []string{"at least one station", "CWmax 31 is smaller than CWmin 63",
		"MaxRetries", "data rate"} {
		assert.Contains(t, err.Error(), part)
	}

	assert.NoError(t, ReportErrs([]error{nil, nil}))
}

func TestScenarioCfgValidateWarmup(t *testing.T) {
	sc := DefaultScenarioCfg()
	sc.Warmup = sc.SimulationTime
	err := sc.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warm-up")
}

func TestUseYAML(t *testing.T) {
	assert.True(t, UseYAML("a/b.YAML"))
	assert.True(t, UseYAML("b.yml"))
	assert.False(t, UseYAML("b.json"))
}
