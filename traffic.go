package dcfsim

// traffic.go holds the packet generators that offer load to the contending
// stations.  Each station sends fixed-size packets to the sink, with
// inter-arrival times drawn from a constant or an exponential distribution.

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"math"
	"time"
)

// interArrivalSampler returns the next inter-arrival time, in seconds, for
// packets generated at 'rate' per second
type interArrivalSampler func(src rand.Source, rate float64) func() float64

var interArrivalSamplers map[string]interArrivalSampler = map[string]interArrivalSampler{
	"constant":    sampleConst,
	"exponential": sampleExpRV,
}

// sampleExpRV draws exponentially distributed inter-arrival times, for Poisson arrivals
func sampleExpRV(src rand.Source, rate float64) func() float64 {
	dist := distuv.Exponential{Rate: rate, Src: src}
	return dist.Rand
}

// sampleConst returns the constant inter-arrival time 1/rate
func sampleConst(src rand.Source, rate float64) func() float64 {
	return func() float64 { return 1.0 / rate }
}

var rdigits uint = 9

// roundFloat rounds computed times to avoid non-sensical comparisons
// induced by rounding error
func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// secondsToDuration converts seconds of simulation time to a Duration
func secondsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(roundFloat(secs, rdigits) * 1e9))
}

// NetworkPacketRate converts a normalized offered load into the packet rate
// offered to the whole network: load successful exchanges per exchange time
func NetworkPacketRate(load float64, payload int, phy PhyParams) float64 {
	return load / phy.SuccessTime(payload).Seconds()
}

// NormalizedOfferedLoad is the offered payload rate as a fraction of the data rate
func NormalizedOfferedLoad(load float64, payload int, phy PhyParams) float64 {
	return NetworkPacketRate(load, payload, phy) * float64(payload*8) / phy.DataRate
}

// TrafficSource generates the packets of one station
type TrafficSource struct {
	sim     *Simulation
	src     StationID
	dst     StationID
	bytes   int
	stop    time.Duration
	nxtGap  func() float64
	packets int
}

// Packets returns the number of packets generated so far
func (ts *TrafficSource) Packets() int {
	return ts.packets
}

// generatePacket is scheduled at each packet generation time
func generatePacket(sched *EventScheduler, context any, data any) any {
	ts := context.(*TrafficSource)
	ts.packets += 1
	ts.sim.ScheduleFrameReady(sched.Now(), ts.src, ts.dst, ts.bytes)

	nxt := sched.Now() + secondsToDuration(ts.nxtGap())
	if nxt < ts.stop {
		sched.Schedule(nxt, ts, nil, generatePacket)
	}
	return nil
}

// AttachTraffic creates a generator at every contending station of sim,
// sending to the sink, as described by tc.  Generation begins at tc.Start
// plus a uniform jitter and ends at 'stop'.
func AttachTraffic(sim *Simulation, tc TrafficCfg, stop time.Duration) []*TrafficSource {
	cfg := sim.Config()
	netRate := NetworkPacketRate(tc.Load, cfg.PayloadSize, cfg.Phy)
	srcs := make([]*TrafficSource, 0, cfg.Stations)
	if netRate <= 0.0 {
		return srcs
	}
	stationRate := netRate / float64(cfg.Stations)
	sampler, present := interArrivalSamplers[tc.InterArrival]
	if !present {
		sampler = sampleConst
	}

	for idx := 1; idx <= cfg.Stations; idx++ {
		rsrc := sim.Source(uint64(idx))
		jitter := distuv.Uniform{Min: 0.0, Max: tc.StartJitter, Src: rsrc}
		start := tc.Start
		if tc.StartJitter > 0.0 {
			start += jitter.Rand()
		}
		ts := &TrafficSource{sim: sim, src: StationID(idx), dst: 0, bytes: cfg.PayloadSize, stop: stop,
			nxtGap: sampler(rsrc, stationRate)}
		at := secondsToDuration(start)
		if at < stop {
			sim.Scheduler().Schedule(at, ts, nil, generatePacket)
		}
		srcs = append(srcs, ts)
	}
	return srcs
}
