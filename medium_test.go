package dcfsim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const us = time.Microsecond

// fakeUser records what the medium tells one station
type fakeUser struct {
	sched    *EventScheduler
	busy     []time.Duration
	idle     []time.Duration
	eifs     []bool
	sent     []*Frame
	received []*Frame
}

func (fu *fakeUser) mediumBusy() { fu.busy = append(fu.busy, fu.sched.Now()) }
func (fu *fakeUser) mediumIdle(eifs bool) {
	fu.idle = append(fu.idle, fu.sched.Now())
	fu.eifs = append(fu.eifs, eifs)
}
func (fu *fakeUser) txDone(f *Frame)        { fu.sent = append(fu.sent, f) }
func (fu *fakeUser) frameReceived(f *Frame) { fu.received = append(fu.received, f) }

type mediumFixture struct {
	sched   *EventScheduler
	streams *EventStreams
	medium  *Medium
	users   []*fakeUser
	drops   []RxDropEvent
	oks     []RxEvent
	errs    []RxEvent
}

func newMediumFixture(stations int) *mediumFixture {
	mf := &mediumFixture{sched: NewEventScheduler(), streams: NewEventStreams()}
	mf.medium = createMedium(mf.sched, mf.streams, discardLogger())
	for idx := 0; idx < stations; idx++ {
		fu := &fakeUser{sched: mf.sched}
		mf.users = append(mf.users, fu)
		mf.medium.attach(StationID(idx), fu)
	}
	mf.streams.RxDrop.Subscribe(func(evt RxDropEvent) { mf.drops = append(mf.drops, evt) })
	mf.streams.RxOk.Subscribe(func(evt RxEvent) { mf.oks = append(mf.oks, evt) })
	mf.streams.RxError.Subscribe(func(evt RxEvent) { mf.errs = append(mf.errs, evt) })
	return mf
}

// transmitAt puts a data frame from src on the air at 'at'
func (mf *mediumFixture) transmitAt(at time.Duration, src StationID, duration time.Duration) *Frame {
	f := &Frame{Kind: DataFrame, Src: src, Dst: 0, Payload: 100, Mpdus: 1, Duration: duration}
	mf.sched.Schedule(at, mf.medium, f, func(sched *EventScheduler, context any, data any) any {
		context.(*Medium).Transmit(data.(*Frame))
		return nil
	})
	return f
}

func (mf *mediumFixture) dropsAt(id StationID) map[FailureReason][]*Frame {
	found := make(map[FailureReason][]*Frame)
	for _, evt := range mf.drops {
		if evt.Station == id {
			found[evt.Reason] = append(found[evt.Reason], evt.Frame)
		}
	}
	return found
}

func TestMediumSingleTransmissionSucceeds(t *testing.T) {
	mf := newMediumFixture(3)
	a := mf.transmitAt(0, 1, 1000*us)
	require.NoError(t, mf.sched.Run(context.Background(), time.Second))

	assert.Empty(t, mf.drops)
	assert.Empty(t, mf.errs)
	assert.Len(t, mf.oks, 2)
	assert.Equal(t, []*Frame{a}, mf.users[0].received)
	assert.Equal(t, []*Frame{a}, mf.users[2].received, "overheard frames reach the MAC too")
	assert.Equal(t, []*Frame{a}, mf.users[1].sent)

	assert.Equal(t, []time.Duration{2 * us}, mf.users[0].busy)
	assert.Equal(t, []time.Duration{1002 * us}, mf.users[0].idle)
	assert.Equal(t, []bool{false}, mf.users[0].eifs)
	assert.Equal(t, []time.Duration{0}, mf.users[1].busy)
	assert.Equal(t, []time.Duration{1000 * us}, mf.users[1].idle)
	assert.Empty(t, mf.medium.Active())
	assert.Equal(t, 1000*us, a.End())
	assert.Equal(t, uint64(1), a.ID)
}

func TestMediumOverlapDuringHeader(t *testing.T) {
	mf := newMediumFixture(3)
	a := mf.transmitAt(0, 1, 1000*us)
	b := mf.transmitAt(100*us, 2, 1000*us)
	require.NoError(t, mf.sched.Run(context.Background(), time.Second))

	sink := mf.dropsAt(0)
	assert.Equal(t, []*Frame{b}, sink[Rxing], "late frame arrives while receiving")
	assert.Equal(t, []*Frame{a}, sink[LSigFailure], "locked frame fails its header")
	assert.Equal(t, []*Frame{a}, mf.dropsAt(2)[ReceptionAbortedByTx])
	assert.Equal(t, []*Frame{b}, mf.dropsAt(1)[Txing])
	assert.Empty(t, mf.oks)
	assert.Empty(t, mf.errs)
	assert.Empty(t, mf.users[0].received)

	// the sink waits EIFS after the failed reception
	assert.Equal(t, []time.Duration{1102 * us}, mf.users[0].idle)
	assert.Equal(t, []bool{true}, mf.users[0].eifs)
}

func TestMediumOverlapDuringPreamble(t *testing.T) {
	mf := newMediumFixture(3)
	a := mf.transmitAt(0, 1, 1000*us)
	b := mf.transmitAt(1*us, 2, 1000*us)
	require.NoError(t, mf.sched.Run(context.Background(), time.Second))

	sink := mf.dropsAt(0)
	assert.Equal(t, []*Frame{b}, sink[BusyDecodingPreamble])
	assert.Equal(t, []*Frame{a}, sink[LSigFailure])
	assert.Equal(t, []*Frame{b}, mf.dropsAt(1)[Txing])
	assert.Equal(t, []*Frame{a}, mf.dropsAt(2)[Txing])
	for _, evt := range mf.drops {
		if evt.Reason == BusyDecodingPreamble {
			assert.Equal(t, RxCollisionWhileDecodingPreamble, evt.Outcome)
		}
	}
}

func TestMediumOverlapDuringPayload(t *testing.T) {
	mf := newMediumFixture(3)
	a := mf.transmitAt(0, 1, 1000*us)
	b := mf.transmitAt(500*us, 2, 100*us)
	payloads := []RxEvent{}
	mf.streams.PhyRxPayload.Subscribe(func(evt RxEvent) { payloads = append(payloads, evt) })
	require.NoError(t, mf.sched.Run(context.Background(), time.Second))

	assert.Equal(t, []*Frame{b}, mf.dropsAt(0)[Rxing])
	assert.Empty(t, mf.dropsAt(0)[LSigFailure])
	require.Len(t, mf.errs, 1)
	assert.Equal(t, a, mf.errs[0].Frame)
	assert.Equal(t, StationID(0), mf.errs[0].Station)
	assert.Equal(t, 1002*us, mf.errs[0].Time)
	assert.Equal(t, []*Frame{a}, mf.dropsAt(2)[ReceptionAbortedByTx])

	// header of a decoded at the sink and at station 2 before it started sending
	assert.Len(t, payloads, 2)
}

func TestMediumBusyWhileSignalsOverlap(t *testing.T) {
	mf := newMediumFixture(3)
	mf.transmitAt(0, 1, 100*us)
	mf.transmitAt(50*us, 2, 100*us)
	require.NoError(t, mf.sched.Run(context.Background(), 60*us))

	assert.True(t, mf.medium.Busy(0))
	assert.True(t, mf.medium.Receiving(0))
	assert.False(t, mf.medium.Receiving(2), "sending aborted the reception")
	assert.Len(t, mf.medium.Active(), 2)
	assert.True(t, mf.medium.Transmitting(1))
	assert.True(t, mf.medium.Transmitting(2))
	active := mf.medium.Active()
	assert.True(t, active[0].Overlaps(&active[1]))
	from, until := active[0].ArrivalWindow()
	assert.Equal(t, 2*us, from)
	assert.Equal(t, 102*us, until)

	require.NoError(t, mf.sched.Run(context.Background(), time.Second))
	assert.False(t, mf.medium.Busy(0))
	assert.Equal(t, []time.Duration{2 * us}, mf.users[0].busy)
	assert.Equal(t, []time.Duration{152 * us}, mf.users[0].idle)
}

func TestMediumUnsupportedRequestsHalt(t *testing.T) {
	mf := newMediumFixture(2)
	mf.sched.Schedule(10*us, mf.medium, nil, func(sched *EventScheduler, context any, data any) any {
		context.(*Medium).SwitchChannel(1)
		return nil
	})
	mf.transmitAt(20*us, 1, 100*us)

	err := mf.sched.Run(context.Background(), time.Second)
	var mv *ModelViolation
	require.ErrorAs(t, err, &mv)
	assert.Equal(t, ChannelSwitching, mv.Reason)
	assert.Equal(t, StationID(1), mv.Station)
	assert.Equal(t, 10*us, mv.Time)
	assert.False(t, mf.medium.Transmitting(1), "no event runs after the halt")
}
