package dcfsim

// stats.go holds the aggregator that turns the PHY and MAC event streams
// into per-station counters, and the derived metrics computed from them:
// collision probability and normalized throughput.

import (
	"fmt"
	"github.com/charmbracelet/log"
	"golang.org/x/exp/slices"
	"time"
)

// Category names one per-station counter
type Category int

const (
	noCategory Category = iota
	Received
	BytesReceived
	Transmitted
	PsduSucceeded
	PsduFailed
	PhyHeaderFailed
	RxWhileTransmitting
	RxWhileReceiving
	RxWhileDecodingPreamble
	RxAbortedByTx
	Collisions
	MacTxDropped
	QueueDropped
	MacTx
	MacRx
)

var categoryToStr map[Category]string = map[Category]string{
	Received:                "packetsReceived",
	BytesReceived:           "bytesReceived",
	Transmitted:             "packetsTransmitted",
	PsduSucceeded:           "psduSucceeded",
	PsduFailed:              "psduFailed",
	PhyHeaderFailed:         "phyHeaderFailed",
	RxWhileTransmitting:     "rxEventWhileTxing",
	RxWhileReceiving:        "rxEventWhileRxing",
	RxWhileDecodingPreamble: "rxEventWhileDecodingPreamble",
	RxAbortedByTx:           "rxEventAbortedByTx",
	Collisions:              "collisions",
	MacTxDropped:            "macTxDropped",
	QueueDropped:            "queueDropped",
	MacTx:                   "macTx",
	MacRx:                   "macRx",
}

func (c Category) String() string {
	str, present := categoryToStr[c]
	if !present {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return str
}

// Categories lists every counter category in a stable order
func Categories() []Category {
	cats := make([]Category, 0, len(categoryToStr))
	for cat := range categoryToStr {
		cats = append(cats, cat)
	}
	slices.Sort(cats)
	return cats
}

// Counters maps a category to its count at one station
type Counters map[Category]uint64

// NoTransmissions is returned by CollisionProbability when no data frame
// was ever transmitted
const NoTransmissions = -1.0

// Aggregator owns the counters of one simulation run
type Aggregator struct {
	counters map[StationID]Counters
	onAir    map[uint64]*Frame // data frames whose outcome is not known yet, by frame id
	logger   *log.Logger
}

// CreateAggregator is a constructor
func CreateAggregator(logger *log.Logger) *Aggregator {
	agg := new(Aggregator)
	agg.counters = make(map[StationID]Counters)
	agg.onAir = make(map[uint64]*Frame)
	agg.logger = logger
	return agg
}

// RecordEvent increments the counter 'cat' of station 'id'
func (agg *Aggregator) RecordEvent(id StationID, cat Category) {
	agg.Add(id, cat, 1)
}

// Add increases the counter 'cat' of station 'id' by n
func (agg *Aggregator) Add(id StationID, cat Category, n uint64) {
	ctrs, present := agg.counters[id]
	if !present {
		ctrs = make(Counters)
		agg.counters[id] = ctrs
	}
	ctrs[cat] += n
}

// RecordDrop classifies a PHY drop reason at station 'id'.  Counted reasons
// increment their category; fatal reasons return a *ModelViolation.
func (agg *Aggregator) RecordDrop(id StationID, reason FailureReason, at time.Duration) error {
	action, cat := reason.Policy()
	if action == Fatal {
		return newModelViolation(reason, id, at, "")
	}
	agg.RecordEvent(id, cat)
	return nil
}

// Count returns the counter 'cat' of station 'id'
func (agg *Aggregator) Count(id StationID, cat Category) uint64 {
	return agg.counters[id][cat]
}

// Total sums the counter 'cat' over all stations
func (agg *Aggregator) Total(cat Category) uint64 {
	var sum uint64
	for _, ctrs := range agg.counters {
		sum += ctrs[cat]
	}
	return sum
}

// Stations returns the stations that have at least one counter, in order
func (agg *Aggregator) Stations() []StationID {
	ids := make([]StationID, 0, len(agg.counters))
	for id := range agg.counters {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Snapshot returns a copy of all counters
func (agg *Aggregator) Snapshot() map[StationID]Counters {
	snap := make(map[StationID]Counters, len(agg.counters))
	for id, ctrs := range agg.counters {
		cp := make(Counters, len(ctrs))
		for cat, n := range ctrs {
			cp[cat] = n
		}
		snap[id] = cp
	}
	return snap
}

// Reset zeroes all counters, e.g. at the end of a warm-up period
func (agg *Aggregator) Reset() {
	agg.counters = make(map[StationID]Counters)
	agg.onAir = make(map[uint64]*Frame)
}

// InFlight returns the number of data frames transmitted since the last
// Reset whose outcome is not known yet
func (agg *Aggregator) InFlight() int {
	return len(agg.onAir)
}

// resolve counts a data frame's MPDUs as transmitted once its outcome is
// known.  It is false for frames that went on the air before the last Reset,
// or were resolved already.
func (agg *Aggregator) resolve(f *Frame) bool {
	if _, present := agg.onAir[f.ID]; !present {
		return false
	}
	delete(agg.onAir, f.ID)
	agg.Add(f.Src, Transmitted, uint64(f.Mpdus))
	return true
}

// CollisionProbability is the fraction of transmitted data frames that were
// not received, over all stations that transmitted at least once.  It
// returns NoTransmissions when nothing was transmitted.  A data frame counts
// as transmitted once its outcome is known, so frames still on the air are
// left out.
func (agg *Aggregator) CollisionProbability() float64 {
	var tx, rx uint64
	for _, ctrs := range agg.counters {
		if ctrs[Transmitted] == 0 {
			continue
		}
		tx += ctrs[Transmitted]
		rx += ctrs[Received]
	}
	if tx == 0 {
		return NoTransmissions
	}
	return (float64(tx) - float64(rx)) / float64(tx)
}

// ThroughputBps is the received payload rate over 'duration'
func (agg *Aggregator) ThroughputBps(duration time.Duration) float64 {
	if duration <= 0 {
		return 0.0
	}
	return float64(agg.Total(BytesReceived)*8) / duration.Seconds()
}

// Throughput is the throughput normalized by the channel capacity: received
// frames per second of 'frameSize' payload bytes, times the duration of one
// successful exchange carrying such a frame.
func (agg *Aggregator) Throughput(duration time.Duration, frameSize int) float64 {
	return agg.throughput(duration, frameSize, DefaultPhyParams())
}

func (agg *Aggregator) throughput(duration time.Duration, frameSize int, phy PhyParams) float64 {
	if frameSize <= 0 {
		return 0.0
	}
	framesPerSec := agg.ThroughputBps(duration) / float64(frameSize*8)
	return framesPerSec * phy.SuccessTime(frameSize).Seconds()
}

// RateNormalizedThroughput is the received payload rate as a fraction of the data rate
func (agg *Aggregator) RateNormalizedThroughput(duration time.Duration, dataRate float64) float64 {
	return agg.ThroughputBps(duration) / dataRate
}

// Subscribe feeds the aggregator from a simulation's event streams.  Only
// data frames contribute to the PHY counters.
func (agg *Aggregator) Subscribe(streams *EventStreams) {
	streams.PhyTxBegin.Subscribe(func(evt TxEvent) {
		if evt.Frame.IsData() {
			agg.onAir[evt.Frame.ID] = evt.Frame
		}
	})
	streams.Delivery.Subscribe(func(evt DeliveryEvent) {
		// keyed by the sender, so received and transmitted line up per station
		f := evt.Frame
		if !agg.resolve(f) {
			return
		}
		agg.Add(f.Src, Received, uint64(f.Mpdus))
		agg.Add(f.Src, BytesReceived, uint64(f.Mpdus*f.Payload))
	})
	streams.FrameSuccess.Subscribe(func(evt ExchangeEvent) {
		if evt.Frame.IsData() {
			agg.resolve(evt.Frame)
		}
	})
	streams.RxOk.Subscribe(func(evt RxEvent) {
		if evt.Frame.IsData() {
			agg.RecordEvent(evt.Station, PsduSucceeded)
		}
	})
	streams.RxError.Subscribe(func(evt RxEvent) {
		if evt.Frame.IsData() {
			agg.RecordEvent(evt.Station, PsduFailed)
		}
	})
	streams.RxDrop.Subscribe(func(evt RxDropEvent) {
		if !evt.Frame.IsData() {
			return
		}
		// fatal reasons never reach the stream, the medium halts on them
		if err := agg.RecordDrop(evt.Station, evt.Reason, evt.Time); err != nil {
			agg.logger.Error("unexpected drop reason", "err", err)
		}
	})
	streams.FrameCollision.Subscribe(func(evt ExchangeEvent) {
		if evt.Frame.IsData() {
			agg.resolve(evt.Frame)
		}
		agg.RecordEvent(evt.Station, Collisions)
	})
	streams.MacTxDrop.Subscribe(func(evt ExchangeEvent) {
		agg.RecordEvent(evt.Station, MacTxDropped)
	})
	streams.MacQueueDrop.Subscribe(func(evt MacEvent) {
		agg.RecordEvent(evt.Station, QueueDropped)
	})
	streams.MacTx.Subscribe(func(evt MacEvent) {
		agg.RecordEvent(evt.Station, MacTx)
	})
	streams.MacRx.Subscribe(func(evt MacEvent) {
		agg.RecordEvent(evt.Station, MacRx)
	})
}
