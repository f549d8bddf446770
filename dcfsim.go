package dcfsim

// dcfsim.go assembles a simulation: the scheduler, the shared medium, the
// stations attached to it, and the aggregator counting what happens.  A
// simulation can be restarted to replay the identical run.

import (
	"context"
	"github.com/charmbracelet/log"
	"golang.org/x/exp/rand"
	"time"
)

// Option adjusts a Simulation under construction
type Option func(*Simulation)

// WithLogger sets the logger used by the simulation and its components
func WithLogger(logger *log.Logger) Option {
	return func(sim *Simulation) {
		sim.logger = logger
	}
}

// Simulation is one independent run of the contention model
type Simulation struct {
	cfg      Config
	sched    *EventScheduler
	streams  *EventStreams
	medium   *Medium
	stations []*Station
	agg      *Aggregator
	logger   *log.Logger
	nxtPkt   uint64
}

// NewSimulation builds the stations of cfg, numbered 0 through cfg.Stations,
// on a shared medium.  Station 0 is the sink the generated traffic is sent to.
func NewSimulation(cfg Config, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sim := &Simulation{cfg: cfg}
	for _, opt := range opts {
		opt(sim)
	}
	if sim.logger == nil {
		sim.logger = discardLogger()
	}

	sim.sched = NewEventScheduler()
	sim.streams = NewEventStreams()
	sim.medium = createMedium(sim.sched, sim.streams, sim.logger)
	sim.agg = CreateAggregator(sim.logger)
	sim.agg.Subscribe(sim.streams)
	AttachEventLog(sim.streams, sim.logger)

	sim.stations = make([]*Station, 0, cfg.Stations+1)
	for idx := 0; idx <= cfg.Stations; idx++ {
		id := StationID(idx)
		st := createStation(id, cfg.Mac, cfg.Phy, sim.sched, sim.medium, sim.streams, sim.logger,
			sim.stationRng(id))
		sim.medium.attach(id, st)
		sim.stations = append(sim.stations, st)
	}
	return sim, nil
}

// streamSeed derives the seed of random stream 'stream' from the run seed
func streamSeed(seed int64, stream uint64) uint64 {
	return uint64(seed)*0x9E3779B97F4A7C15 + stream*0xBF58476D1CE4E5B9 + 1
}

func (sim *Simulation) stationRng(id StationID) *rand.Rand {
	return rand.New(rand.NewSource(streamSeed(sim.cfg.Seed, uint64(id))))
}

// Source returns a random source, independent of the stations' sources, for
// collaborators such as traffic generators.  The same stream number yields
// the same sequence after a Restart.
func (sim *Simulation) Source(stream uint64) rand.Source {
	return rand.NewSource(streamSeed(sim.cfg.Seed, 1<<32+stream))
}

// Config returns the setup of the simulation
func (sim *Simulation) Config() Config { return sim.cfg }

// Scheduler returns the event scheduler driving the run
func (sim *Simulation) Scheduler() *EventScheduler { return sim.sched }

// Streams returns the event streams the run publishes
func (sim *Simulation) Streams() *EventStreams { return sim.streams }

// Medium returns the shared medium
func (sim *Simulation) Medium() *Medium { return sim.medium }

// Aggregator returns the counters of the run
func (sim *Simulation) Aggregator() *Aggregator { return sim.agg }

// Logger returns the logger of the run
func (sim *Simulation) Logger() *log.Logger { return sim.logger }

// Station returns the station with identifier id
func (sim *Simulation) Station(id StationID) *Station {
	return sim.stations[id]
}

// Stations returns all stations, the sink first
func (sim *Simulation) Stations() []*Station {
	return sim.stations
}

// packetReady carries a packet to be enqueued by a scheduled event
type packetReady struct {
	st  *Station
	pkt *Packet
}

// enqueuePacket is scheduled when a packet becomes ready at its station
func enqueuePacket(sched *EventScheduler, context any, data any) any {
	pr := data.(packetReady)
	pr.pkt.Created = sched.Now()
	pr.st.Enqueue(pr.pkt)
	return nil
}

// ScheduleFrameReady arranges for a packet of 'bytes' payload bytes, from src
// to dst, to be handed to src's MAC at time 'at'
func (sim *Simulation) ScheduleFrameReady(at time.Duration, src, dst StationID, bytes int) *EventHandle {
	sim.nxtPkt += 1
	pkt := &Packet{ID: sim.nxtPkt, Src: src, Dst: dst, Bytes: bytes}
	return sim.sched.Schedule(at, sim, packetReady{st: sim.stations[src], pkt: pkt}, enqueuePacket)
}

// Run dispatches events until 'stop'.  It returns a *ModelViolation when an
// event showed the model's assumptions no longer hold, or the context's
// error when ctx is cancelled first.
func (sim *Simulation) Run(ctx context.Context, stop time.Duration) error {
	start := time.Now()
	err := sim.sched.Run(ctx, stop)
	sim.logger.Info("run finished", "simtime", sim.sched.Now(), "events", sim.sched.Dispatched(),
		"wallclock", time.Since(start), "err", err)
	return err
}

// Restart returns every component to its initial state, reseeding all
// random streams, so that the same traffic reproduces the same counters
func (sim *Simulation) Restart() {
	sim.sched.Reset()
	sim.medium.reset()
	sim.agg.Reset()
	sim.nxtPkt = 0
	for _, st := range sim.stations {
		st.reset(sim.stationRng(st.id))
	}
}

// CollisionProbability is the collision probability of the run so far
func (sim *Simulation) CollisionProbability() float64 {
	return sim.agg.CollisionProbability()
}

// Throughput is the normalized throughput over 'duration' at the run's rates
func (sim *Simulation) Throughput(duration time.Duration) float64 {
	return sim.agg.throughput(duration, sim.cfg.PayloadSize, sim.cfg.Phy)
}
