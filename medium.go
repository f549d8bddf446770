package dcfsim

// medium.go holds the shared-medium arbiter.  Every station hears every
// other station after the same propagation delay.  For each receiver the
// arbiter tracks which signals are present and which one the PHY is
// synchronised on, and decides how each arriving frame is received.
// There is no capture effect: any overlap corrupts the frame being received.

import (
	"github.com/charmbracelet/log"
	"time"
)

// channelUser is the MAC sitting on top of one radio
type channelUser interface {
	// mediumBusy is called when carrier sense goes from idle to busy
	mediumBusy()

	// mediumIdle is called when carrier sense goes from busy to idle.  eifs is
	// true when the last reception ended in error.
	mediumIdle(eifs bool)

	// txDone is called when the station's own transmission ends
	txDone(f *Frame)

	// frameReceived is called for every frame the PHY received without error
	frameReceived(f *Frame)
}

// reception is a frame the receiver's PHY is synchronised on
type reception struct {
	frame       *Frame
	arrival     time.Duration
	corrupted   bool
	corruptedAt time.Duration
	headerEvt   *EventHandle
}

// radioState is one station's PHY-level view of the channel
type radioState struct {
	id           StationID
	transmitting bool
	signals      int // signals from other stations currently arriving
	lock         *reception
	rxFailed     bool // the last reception ended in error
}

func (rs *radioState) busy() bool {
	return rs.transmitting || rs.signals > 0
}

// signal pairs a medium event with one receiver, as event data
type signal struct {
	rx *radioState
	me *MediumEvent
}

// headerCheck pairs a reception with its receiver, as event data
type headerCheck struct {
	rx  *radioState
	rec *reception
}

// Medium is the single collision domain shared by all stations
type Medium struct {
	sched   *EventScheduler
	streams *EventStreams
	logger  *log.Logger
	radios  []*radioState
	users   []channelUser
	active  []*MediumEvent
	nxtID   uint64
}

// createMedium is a constructor
func createMedium(sched *EventScheduler, streams *EventStreams, logger *log.Logger) *Medium {
	m := new(Medium)
	m.sched = sched
	m.streams = streams
	m.logger = logger
	m.radios = make([]*radioState, 0)
	m.users = make([]channelUser, 0)
	m.active = make([]*MediumEvent, 0)
	return m
}

// attach adds a station's radio to the medium.  Stations are attached in
// StationID order starting from zero.
func (m *Medium) attach(id StationID, user channelUser) {
	if int(id) != len(m.radios) {
		panic("stations must be attached to the medium in identifier order")
	}
	m.radios = append(m.radios, &radioState{id: id})
	m.users = append(m.users, user)
}

// reset forgets all transmissions and radio state, keeping the attached stations
func (m *Medium) reset() {
	for idx := range m.radios {
		m.radios[idx] = &radioState{id: StationID(idx)}
	}
	m.active = make([]*MediumEvent, 0)
	m.nxtID = 0
}

// Busy is the carrier-sense view of the channel at station id
func (m *Medium) Busy(id StationID) bool {
	return m.radios[id].busy()
}

// Receiving is true while station id is synchronised on an incoming frame
func (m *Medium) Receiving(id StationID) bool {
	return m.radios[id].lock != nil
}

// Transmitting is true while station id is on the air
func (m *Medium) Transmitting(id StationID) bool {
	return m.radios[id].transmitting
}

// Active returns the medium events still present at some receiver
func (m *Medium) Active() []MediumEvent {
	active := make([]MediumEvent, len(m.active))
	for idx, me := range m.active {
		active[idx] = *me
	}
	return active
}

// Transmit puts the frame on the air now.  The frame's Duration must be set;
// its Start and ID are filled in here.
func (m *Medium) Transmit(f *Frame) {
	now := m.sched.Now()
	src := m.radios[f.Src]
	if src.transmitting {
		panic("station started a transmission while already transmitting")
	}

	// starting to transmit ends whatever reception was in progress
	if src.lock != nil {
		rec := src.lock
		m.sched.Cancel(rec.headerEvt)
		src.lock = nil
		m.drop(src, rec.frame, ReceptionAbortedByTx, RxAbortedByOwnTransmission)
	}

	wasBusy := src.busy()
	src.transmitting = true
	src.rxFailed = false

	m.nxtID += 1
	f.ID = m.nxtID
	f.Start = now
	me := &MediumEvent{Start: now, End: now + f.Duration, Src: f.Src, Frame: f,
		remaining: len(m.radios) - 1}
	if me.remaining > 0 {
		m.active = append(m.active, me)
	}

	m.streams.PhyTxBegin.emit(TxEvent{Time: now, Station: f.Src, Frame: f})
	if !wasBusy {
		m.users[f.Src].mediumBusy()
	}

	for _, rx := range m.radios {
		if rx.id == f.Src {
			continue
		}
		sig := signal{rx: rx, me: me}
		m.sched.Schedule(me.Start+PropagationDelay, m, sig, signalArrives)
		m.sched.Schedule(me.End+PropagationDelay, m, sig, signalDeparts)
	}
	m.sched.Schedule(me.End, m, me, transmissionEnds)
}

// transmissionEnds is scheduled at the end of a sender's frame
func transmissionEnds(sched *EventScheduler, context any, data any) any {
	m := context.(*Medium)
	me := data.(*MediumEvent)
	src := m.radios[me.Src]
	src.transmitting = false

	m.streams.PhyTxEnd.emit(TxEvent{Time: sched.Now(), Station: me.Src, Frame: me.Frame})
	m.users[me.Src].txDone(me.Frame)
	if !src.busy() {
		m.users[me.Src].mediumIdle(false)
	}
	return nil
}

// signalArrives is scheduled when the leading edge of a frame reaches a receiver
func signalArrives(sched *EventScheduler, context any, data any) any {
	m := context.(*Medium)
	sig := data.(signal)
	m.arrive(sig.rx, sig.me.Frame)
	return nil
}

func (m *Medium) arrive(rx *radioState, f *Frame) {
	now := m.sched.Now()
	wasBusy := rx.busy()
	rx.signals += 1

	switch {
	case rx.transmitting:
		m.drop(rx, f, Txing, RxCollisionWhileTransmitting)
	case rx.lock != nil:
		rec := rx.lock
		if now-rec.arrival < PreambleDetection {
			m.drop(rx, f, BusyDecodingPreamble, RxCollisionWhileDecodingPreamble)
		} else {
			m.drop(rx, f, Rxing, RxCollisionWhileReceiving)
		}
		if !rec.corrupted {
			rec.corrupted = true
			rec.corruptedAt = now
		}
	default:
		rec := &reception{frame: f, arrival: now}
		if rx.signals > 1 {
			// other energy is already on the channel
			rec.corrupted = true
			rec.corruptedAt = now
		}
		rx.lock = rec
		m.streams.PhyRxBegin.emit(RxEvent{Time: now, Station: rx.id, Frame: f})
		rec.headerEvt = m.sched.Schedule(now+PhyHeader, m, headerCheck{rx: rx, rec: rec}, headerEnds)
	}

	if !wasBusy {
		m.users[rx.id].mediumBusy()
	}
}

// headerEnds is scheduled at the end of the PHY header of a locked reception
func headerEnds(sched *EventScheduler, context any, data any) any {
	m := context.(*Medium)
	hc := data.(headerCheck)
	rec := hc.rec
	if hc.rx.lock != rec {
		return nil
	}
	rec.headerEvt = nil

	if rec.corrupted {
		hc.rx.lock = nil
		hc.rx.rxFailed = true
		m.drop(hc.rx, rec.frame, LSigFailure, RxCorrupted)
		return nil
	}
	m.streams.PhyRxPayload.emit(RxEvent{Time: sched.Now(), Station: hc.rx.id, Frame: rec.frame})
	return nil
}

// signalDeparts is scheduled when the trailing edge of a frame passes a receiver
func signalDeparts(sched *EventScheduler, context any, data any) any {
	m := context.(*Medium)
	sig := data.(signal)
	m.depart(sig.rx, sig.me)
	return nil
}

func (m *Medium) depart(rx *radioState, me *MediumEvent) {
	now := m.sched.Now()
	f := me.Frame
	rx.signals -= 1

	var received *Frame
	if rx.lock != nil && rx.lock.frame == f {
		rec := rx.lock
		rx.lock = nil
		if rec.corrupted {
			rx.rxFailed = true
			m.streams.RxError.emit(RxEvent{Time: now, Station: rx.id, Frame: f, Outcome: RxCorrupted})
		} else {
			rx.rxFailed = false
			m.streams.RxOk.emit(RxEvent{Time: now, Station: rx.id, Frame: f, Outcome: RxSuccess})
			received = f
		}
		m.streams.PhyRxEnd.emit(RxEvent{Time: now, Station: rx.id, Frame: f})
	}

	me.remaining -= 1
	if me.remaining == 0 {
		m.retire(me)
	}

	// carrier sense first, so a MAC reacting to the frame sees the idle channel
	if !rx.busy() {
		m.users[rx.id].mediumIdle(rx.rxFailed)
	}
	if received != nil && m.sched.Halted() == nil {
		m.users[rx.id].frameReceived(received)
	}
}

// retire removes a medium event once its signal has left every receiver
func (m *Medium) retire(me *MediumEvent) {
	for idx, active := range m.active {
		if active == me {
			m.active = append(m.active[:idx], m.active[idx+1:]...)
			return
		}
	}
}

// drop reports a frame the receiver could not receive.  Reasons the model
// does not tolerate halt the run.
func (m *Medium) drop(rx *radioState, f *Frame, reason FailureReason, outcome RxOutcome) {
	now := m.sched.Now()
	if action, _ := reason.Policy(); action == Fatal {
		m.fail(newModelViolation(reason, rx.id, now, ""))
		return
	}
	m.streams.RxDrop.emit(RxDropEvent{Time: now, Station: rx.id, Frame: f, Reason: reason, Outcome: outcome})
}

// fail halts the run with a model violation
func (m *Medium) fail(mv *ModelViolation) {
	m.logger.Error("model violation", "station", mv.Station, "reason", mv.Reason, "detail", mv.Detail)
	m.sched.Halt(mv)
}

// SwitchChannel requests a channel switch at a station.  The model has a
// single fixed channel, so the request halts the run.
func (m *Medium) SwitchChannel(id StationID) {
	m.fail(newModelViolation(ChannelSwitching, id, m.sched.Now(), ""))
}

// Sleep requests power save at a station, which the model does not support
func (m *Medium) Sleep(id StationID) {
	m.fail(newModelViolation(Sleeping, id, m.sched.Now(), ""))
}
