package dcfsim

// trace.go holds the trace manager, which records per-station time series
// (contention window, backoff draws, PHY transmissions, MAC enqueues and
// deliveries) for post-run analysis.  Traces are written either as plain
// "time stationId value" lines, one file per series, or as a single
// json/yaml dump.

import (
	"bufio"
	"encoding/json"
	"fmt"
	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// TraceRecordType names one traced time series
type TraceRecordType int

const (
	CwTrace TraceRecordType = iota
	BackoffTrace
	PhyTxTrace
	MacTxTrace
	MacRxTrace
)

var trtToStr map[TraceRecordType]string = map[TraceRecordType]string{
	CwTrace: "cw", BackoffTrace: "backoff", PhyTxTrace: "phy-tx", MacTxTrace: "mac-tx", MacRxTrace: "mac-rx"}

// TraceRecordTypes lists the traced series in file order
var TraceRecordTypes []TraceRecordType = []TraceRecordType{CwTrace, BackoffTrace, PhyTxTrace, MacTxTrace, MacRxTrace}

func (trt TraceRecordType) String() string {
	return trtToStr[trt]
}

// TraceInst is one point of a traced series
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	Ticks     int64  `json:"ticks" yaml:"ticks"`
	Priority  int64  `json:"priority" yaml:"priority"`
	StationID int    `json:"stationid" yaml:"stationid"`
	Value     int64  `json:"value" yaml:"value"`
}

// NameType is a an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers the traced series of one run
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each station id
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, by series name
	Traces map[string][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[string][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace appends a point to the series 'trt'
func (tm *TraceManager) AddTrace(vrt vrtime.Time, trt TraceRecordType, id StationID, value int64) {
	// return if we aren't using the trace manager
	if !tm.InUse {
		return
	}
	trcInst := TraceInst{TraceTime: strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64),
		Ticks: vrt.Ticks(), Priority: vrt.Pri(), StationID: int(id), Value: value}
	tm.Traces[trt.String()] = append(tm.Traces[trt.String()], trcInst)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if tm.InUse {
		_, present := tm.NameByID[id]
		if present {
			panic("duplicated id in AddName")
		}
		tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	}
}

// Attach subscribes the trace manager to the event streams of sim and
// names its stations
func (tm *TraceManager) Attach(sim *Simulation) {
	if !tm.InUse {
		return
	}
	for _, st := range sim.Stations() {
		desc := "station"
		if st.ID() == 0 {
			desc = "sink"
		}
		tm.AddName(int(st.ID()), fmt.Sprintf("sta%d", st.ID()), desc)
	}

	// points are stamped with the dispatching event's virtual time, whose
	// priority orders points recorded at the same tick
	sched := sim.Scheduler()
	streams := sim.Streams()
	streams.Cw.Subscribe(func(evt CwEvent) {
		tm.AddTrace(sched.VirtualTime(), CwTrace, evt.Station, int64(evt.Cw))
	})
	streams.Backoff.Subscribe(func(evt BackoffEvent) {
		tm.AddTrace(sched.VirtualTime(), BackoffTrace, evt.Station, int64(evt.Slots))
	})
	streams.PhyTxBegin.Subscribe(func(evt TxEvent) {
		tm.AddTrace(sched.VirtualTime(), PhyTxTrace, evt.Station, int64(evt.Frame.Bytes))
	})
	streams.MacTx.Subscribe(func(evt MacEvent) {
		tm.AddTrace(sched.VirtualTime(), MacTxTrace, evt.Station, int64(evt.Packet.Bytes))
	})
	streams.MacRx.Subscribe(func(evt MacEvent) {
		tm.AddTrace(sched.VirtualTime(), MacRxTrace, evt.Station, int64(evt.Packet.Bytes))
	})
}

// Records returns the points of series 'trt'
func (tm *TraceManager) Records(trt TraceRecordType) []TraceInst {
	return tm.Traces[trt.String()]
}

// WriteLines writes series 'trt' as "time stationId value" lines
func (tm *TraceManager) WriteLines(w io.Writer, trt TraceRecordType) error {
	bw := bufio.NewWriter(w)
	for _, trc := range tm.Traces[trt.String()] {
		if _, err := fmt.Fprintf(bw, "%s %d %d\n", trc.TraceTime, trc.StationID, trc.Value); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteTraceFiles writes every series to dir/<prefix>-<series>.tr
func (tm *TraceManager) WriteTraceFiles(dir, prefix string) error {
	if !tm.InUse {
		return nil
	}
	errs := []error{}
	for _, trt := range TraceRecordTypes {
		filename := filepath.Join(dir, fmt.Sprintf("%s-%s.tr", prefix, trt))
		f, err := os.Create(filename)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, tm.WriteLines(f, trt), f.Close())
	}
	return ReportErrs(errs)
}

// WriteToFile stores the TraceManager struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.InUse {
		return nil
	}
	pathExt := strings.ToLower(path.Ext(filename))
	var bytes []byte
	var merr error

	switch pathExt {
	case ".yaml", ".yml":
		bytes, merr = yaml.Marshal(*tm)
	case ".json":
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
	default:
		return fmt.Errorf("trace file %s has neither a json nor a yaml extension", filename)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0o644)
}
