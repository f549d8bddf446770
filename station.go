package dcfsim

// station.go holds the per-station DCF contention state machine: backoff
// draws, slot countdown frozen while the medium is busy, binary exponential
// growth of the contention window, retry limits, and the SIFS-separated
// responses (ACK, CTS) of the frame exchange.

import (
	"fmt"
	"github.com/charmbracelet/log"
	"golang.org/x/exp/rand"
	"time"
)

// StationState is the contention state of a station
type StationState int

const (
	Idle StationState = iota
	Backoff
	Deferring
	Transmitting
	Receiving
)

var stationStateToStr map[StationState]string = map[StationState]string{
	Idle: "idle", Backoff: "backoff", Deferring: "deferring",
	Transmitting: "transmitting", Receiving: "receiving"}

func (ss StationState) String() string {
	str, present := stationStateToStr[ss]
	if !present {
		return fmt.Sprintf("StationState(%d)", int(ss))
	}
	return str
}

// MacParams are the contention parameters shared by all stations
type MacParams struct {
	CWmin      int  `json:"cwmin" yaml:"cwmin"`
	CWmax      int  `json:"cwmax" yaml:"cwmax"`
	MaxRetries int  `json:"maxretries" yaml:"maxretries"`
	UseRts     bool `json:"userts" yaml:"userts"`
	QueueSize  int  `json:"queuesize" yaml:"queuesize"`
	MaxAmpdu   int  `json:"maxampdu" yaml:"maxampdu"`
	Eifs       bool `json:"eifs" yaml:"eifs"`
}

// DefaultMacParams returns the 802.11b DSSS contention parameters
func DefaultMacParams() MacParams {
	return MacParams{CWmin: 31, CWmax: 1023, MaxRetries: 7, QueueSize: 10, Eifs: true}
}

// Station is one contending MAC and its queue
type Station struct {
	id      StationID
	mac     MacParams
	phy     PhyParams
	sched   *EventScheduler
	medium  *Medium
	streams *EventStreams
	logger  *log.Logger
	rng     *rand.Rand

	state     StationState
	cw        int
	retry     int
	slots     int           // backoff slots still to count down
	countFrom time.Duration // when the current countdown started counting slots
	idleSince time.Duration // when carrier sense last went idle
	eifs      bool          // the next countdown waits EIFS instead of DIFS

	backoffEvt *EventHandle
	timeoutEvt *EventHandle
	awaiting   FrameKind // response expected for the exchange in progress
	txFrame    *Frame    // data frame of the exchange in progress
	inFlight   int       // queued packets carried by txFrame
	responding bool

	queue     []*Packet
	nxtSeq    uint64
	lastRxSeq map[StationID]uint64
}

// createStation is a constructor
func createStation(id StationID, mac MacParams, phy PhyParams, sched *EventScheduler,
	medium *Medium, streams *EventStreams, logger *log.Logger, rng *rand.Rand) *Station {
	st := &Station{id: id, mac: mac, phy: phy, sched: sched, medium: medium,
		streams: streams, logger: logger, rng: rng}
	st.reset(rng)
	return st
}

// reset returns the station to its initial state with a new random source
func (st *Station) reset(rng *rand.Rand) {
	st.rng = rng
	st.state = Idle
	st.cw = st.mac.CWmin
	st.retry = 0
	st.slots = 0
	st.countFrom = 0
	st.idleSince = 0
	st.eifs = false
	st.backoffEvt = nil
	st.timeoutEvt = nil
	st.txFrame = nil
	st.inFlight = 0
	st.responding = false
	st.queue = make([]*Packet, 0, st.mac.QueueSize)
	st.nxtSeq = 0
	st.lastRxSeq = make(map[StationID]uint64)
}

// ID returns the station identifier
func (st *Station) ID() StationID { return st.id }

// State returns the contention state.  A station sending an ACK or CTS
// reports Transmitting.
func (st *Station) State() StationState {
	if st.responding {
		return Transmitting
	}
	return st.state
}

// CW returns the current contention window
func (st *Station) CW() int { return st.cw }

// Retry returns the retry counter of the frame at the head of the queue
func (st *Station) Retry() int { return st.retry }

// BackoffSlots returns the slots left to count down
func (st *Station) BackoffSlots() int { return st.slots }

// QueueLen returns the number of packets in the MAC queue, including those in flight
func (st *Station) QueueLen() int { return len(st.queue) }

// Enqueue hands a packet to the MAC.  It returns false when the queue is
// full and the packet is dropped.
func (st *Station) Enqueue(pkt *Packet) bool {
	now := st.sched.Now()
	if len(st.queue) >= st.mac.QueueSize {
		st.streams.MacQueueDrop.emit(MacEvent{Time: now, Station: st.id, Packet: pkt})
		return false
	}
	st.nxtSeq += 1
	pkt.Seq = st.nxtSeq
	st.queue = append(st.queue, pkt)
	st.streams.MacTx.emit(MacEvent{Time: now, Station: st.id, Packet: pkt})

	if st.state == Idle || st.state == Receiving {
		st.startAccess()
	}
	return true
}

// startAccess draws a fresh backoff for the frame at the head of the queue
func (st *Station) startAccess() {
	st.slots = st.rng.Intn(st.cw + 1)
	st.streams.Backoff.emit(BackoffEvent{Time: st.sched.Now(), Station: st.id, Slots: st.slots})
	if st.medium.Busy(st.id) {
		st.state = Deferring
		return
	}
	st.resume()
}

// resume starts (or restarts) the slot countdown on an idle medium.  Slots
// only count once the medium has been idle for DIFS, or EIFS after an
// erroneous reception.
func (st *Station) resume() {
	ifs := DIFS
	if st.eifs && st.mac.Eifs {
		ifs = st.phy.EIFS()
	}
	st.countFrom = max(st.sched.Now(), st.idleSince+ifs)
	st.state = Backoff
	at := st.countFrom + time.Duration(st.slots)*Slot
	st.backoffEvt = st.sched.Schedule(at, st, nil, backoffExpires)
}

// freeze stops the countdown when the medium goes busy.  Fully elapsed
// idle slots are consumed, a partial slot is not.
func (st *Station) freeze() {
	st.sched.Cancel(st.backoffEvt)
	st.backoffEvt = nil
	now := st.sched.Now()
	if now > st.countFrom {
		used := int((now - st.countFrom) / Slot)
		st.slots = max(0, st.slots-used)
	}
	st.state = Deferring
}

func (st *Station) mediumBusy() {
	switch st.state {
	case Backoff:
		st.freeze()
	case Idle:
		st.state = Receiving
	}
}

func (st *Station) mediumIdle(eifs bool) {
	st.idleSince = st.sched.Now()
	st.eifs = eifs
	switch st.state {
	case Deferring:
		st.resume()
	case Receiving:
		st.state = Idle
	}
}

// backoffExpires is scheduled at the end of the countdown
func backoffExpires(sched *EventScheduler, context any, data any) any {
	st := context.(*Station)
	st.backoffEvt = nil
	st.slots = 0
	st.transmitHead()
	return nil
}

// transmitHead starts the exchange for the packets at the head of the queue
func (st *Station) transmitHead() {
	n := 1
	if st.mac.MaxAmpdu > 0 {
		n = min(len(st.queue), st.mac.MaxAmpdu)
	}
	st.inFlight = n
	head := st.queue[0]
	st.txFrame = &Frame{Kind: DataFrame, Src: st.id, Dst: head.Dst, Payload: head.Bytes, Mpdus: n,
		Bytes: n * (MacHeaderBytes + head.Bytes), Seq: head.Seq, Retry: st.retry,
		Duration: st.phy.DataDuration(head.Bytes, n)}
	st.state = Transmitting

	if st.mac.UseRts {
		rts := &Frame{Kind: RtsFrame, Src: st.id, Dst: head.Dst, Bytes: RtsBytes, Retry: st.retry,
			Duration: st.phy.RtsDuration()}
		st.awaiting = CtsFrame
		st.medium.Transmit(rts)
		return
	}
	st.awaiting = AckFrame
	st.medium.Transmit(st.txFrame)
}

// txDone is called by the medium when this station's frame leaves the air
func (st *Station) txDone(f *Frame) {
	switch f.Kind {
	case DataFrame:
		st.timeoutEvt = st.sched.ScheduleAfter(st.phy.ResponseTimeout(st.phy.AckDuration()), st, f, responseTimesOut)
	case RtsFrame:
		st.timeoutEvt = st.sched.ScheduleAfter(st.phy.ResponseTimeout(st.phy.CtsDuration()), st, f, responseTimesOut)
	case AckFrame, CtsFrame:
		st.responding = false
	}
}

// frameReceived is called by the medium for every frame received without error
func (st *Station) frameReceived(f *Frame) {
	if f.IsData() && !st.checkAggregation(f) {
		return
	}
	if f.Dst != st.id {
		return
	}
	switch f.Kind {
	case DataFrame:
		st.acceptData(f)
		st.respond(AckFrame, f)
	case RtsFrame:
		st.respond(CtsFrame, f)
	case CtsFrame:
		if st.awaiting != CtsFrame || !st.timeoutEvt.Pending() {
			return
		}
		st.sched.Cancel(st.timeoutEvt)
		st.timeoutEvt = nil
		st.awaiting = AckFrame
		st.sched.ScheduleAfter(SIFS, st, st.txFrame, sendFrame)
	case AckFrame:
		if st.awaiting != AckFrame || !st.timeoutEvt.Pending() {
			return
		}
		st.sched.Cancel(st.timeoutEvt)
		st.timeoutEvt = nil
		st.succeed()
	}
}

// checkAggregation compares the MPDU count of a data frame received without
// error, whatever its destination, with the configured maximum.  An A-MPDU
// larger than the maximum halts the run and checkAggregation returns false.
func (st *Station) checkAggregation(f *Frame) bool {
	if st.mac.MaxAmpdu == 0 || f.Mpdus == st.mac.MaxAmpdu {
		return true
	}
	if f.Mpdus > st.mac.MaxAmpdu {
		mv := newModelViolation(UnsupportedSettings, st.id, st.sched.Now(),
			fmt.Sprintf("A-MPDU of %d MPDUs exceeds the configured maximum %d", f.Mpdus, st.mac.MaxAmpdu))
		st.medium.fail(mv)
		return false
	}
	st.logger.Warn("A-MPDU smaller than configured maximum", "station", st.id, "from", f.Src,
		"mpdus", f.Mpdus, "max", st.mac.MaxAmpdu)
	return true
}

// acceptData delivers the packets of a data frame addressed to this station
func (st *Station) acceptData(f *Frame) {
	now := st.sched.Now()
	st.streams.Delivery.emit(DeliveryEvent{Time: now, Station: st.id, Frame: f})

	// a retransmission after a lost ACK is not handed up twice
	if last, seen := st.lastRxSeq[f.Src]; seen && f.Seq <= last {
		return
	}
	st.lastRxSeq[f.Src] = f.Seq + uint64(f.Mpdus) - 1
	for idx := 0; idx < f.Mpdus; idx++ {
		pkt := &Packet{Src: f.Src, Dst: f.Dst, Bytes: f.Payload, Seq: f.Seq + uint64(idx)}
		st.streams.MacRx.emit(MacEvent{Time: now, Station: st.id, Packet: pkt})
	}
}

// respond sends an ACK or CTS to the sender of 'to', SIFS from now
func (st *Station) respond(kind FrameKind, to *Frame) {
	resp := &Frame{Kind: kind, Src: st.id, Dst: to.Src}
	if kind == AckFrame {
		resp.Bytes = AckBytes
		resp.Duration = st.phy.AckDuration()
	} else {
		resp.Bytes = CtsBytes
		resp.Duration = st.phy.CtsDuration()
	}
	st.responding = true
	st.sched.ScheduleAfter(SIFS, st, resp, sendFrame)
}

// sendFrame is scheduled SIFS after a reception to send a response, or the
// data frame following a CTS
func sendFrame(sched *EventScheduler, context any, data any) any {
	st := context.(*Station)
	f := data.(*Frame)
	if st.medium.Transmitting(st.id) {
		st.logger.Debug("response suppressed, already transmitting", "station", st.id, "frame", f)
		if f.Kind == DataFrame {
			st.failAttempt()
		} else {
			st.responding = false
		}
		return nil
	}
	st.medium.Transmit(f)
	return nil
}

// responseTimesOut is scheduled after a data frame or RTS; it fires when no
// ACK or CTS came back
func responseTimesOut(sched *EventScheduler, context any, data any) any {
	st := context.(*Station)
	st.timeoutEvt = nil
	st.failAttempt()
	return nil
}

// succeed closes an acknowledged exchange
func (st *Station) succeed() {
	now := st.sched.Now()
	pkts := st.popInFlight()
	st.streams.FrameSuccess.emit(ExchangeEvent{Time: now, Station: st.id, Frame: st.txFrame,
		Retry: st.retry, Packets: pkts})
	st.retry = 0
	st.setCw(st.mac.CWmin)
	st.txFrame = nil
	st.next()
}

// failAttempt handles a missing response: the window doubles until the
// retry limit is hit, where the frame is dropped and the window resets
func (st *Station) failAttempt() {
	now := st.sched.Now()
	st.streams.FrameCollision.emit(ExchangeEvent{Time: now, Station: st.id, Frame: st.txFrame,
		Retry: st.retry})
	st.retry += 1
	if st.retry >= st.mac.MaxRetries {
		pkts := st.popInFlight()
		st.streams.MacTxDrop.emit(ExchangeEvent{Time: now, Station: st.id, Frame: st.txFrame,
			Retry: st.retry, Packets: pkts})
		st.retry = 0
		st.setCw(st.mac.CWmin)
	} else {
		st.setCw(min(2*(st.cw+1)-1, st.mac.CWmax))
	}
	st.txFrame = nil
	st.next()
}

func (st *Station) setCw(cw int) {
	st.cw = cw
	st.streams.Cw.emit(CwEvent{Time: st.sched.Now(), Station: st.id, Cw: cw})
}

// popInFlight removes the packets of the finished exchange from the queue
func (st *Station) popInFlight() []*Packet {
	pkts := make([]*Packet, st.inFlight)
	copy(pkts, st.queue[:st.inFlight])
	st.queue = append(st.queue[:0], st.queue[st.inFlight:]...)
	st.inFlight = 0
	return pkts
}

// next moves to the next queued frame, or goes quiet
func (st *Station) next() {
	if len(st.queue) > 0 {
		st.startAccess()
		return
	}
	if st.medium.Busy(st.id) {
		st.state = Receiving
	} else {
		st.state = Idle
	}
}
