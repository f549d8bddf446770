package dcfsim

// events.go defines the typed event streams the stations and the medium
// publish to.  Statistics, tracing, logging and metrics export all subscribe
// here rather than parsing textual trace paths.

import (
	"time"
)

// Stream is a typed publish point.  Listeners run synchronously, in
// subscription order, inside the dispatching event handler.
type Stream[E any] struct {
	listeners []func(E)
}

// Subscribe adds a listener to the stream
func (st *Stream[E]) Subscribe(fn func(E)) {
	st.listeners = append(st.listeners, fn)
}

func (st *Stream[E]) emit(evt E) {
	for _, fn := range st.listeners {
		fn(evt)
	}
}

// CwEvent reports a new contention window value
type CwEvent struct {
	Time    time.Duration
	Station StationID
	Cw      int
}

// BackoffEvent reports a fresh backoff draw, in slots
type BackoffEvent struct {
	Time    time.Duration
	Station StationID
	Slots   int
}

// TxEvent reports the start or end of a station's transmission
type TxEvent struct {
	Time    time.Duration
	Station StationID
	Frame   *Frame
}

// RxEvent reports a reception milestone at a receiving station
type RxEvent struct {
	Time    time.Duration
	Station StationID
	Frame   *Frame
	Outcome RxOutcome
}

// RxDropEvent reports a frame the receiver's PHY could not receive
type RxDropEvent struct {
	Time    time.Duration
	Station StationID
	Frame   *Frame
	Reason  FailureReason
	Outcome RxOutcome
}

// MacEvent reports a packet crossing the MAC boundary
type MacEvent struct {
	Time    time.Duration
	Station StationID
	Packet  *Packet
}

// DeliveryEvent reports a data frame successfully received by its destination
type DeliveryEvent struct {
	Time    time.Duration
	Station StationID // the receiver
	Frame   *Frame
}

// ExchangeEvent reports the outcome of one transmission attempt at its sender
type ExchangeEvent struct {
	Time    time.Duration
	Station StationID
	Frame   *Frame
	Retry   int
	Packets []*Packet
}

// EventStreams gathers every stream published by a simulation
type EventStreams struct {
	Cw             Stream[CwEvent]
	Backoff        Stream[BackoffEvent]
	PhyTxBegin     Stream[TxEvent]
	PhyTxEnd       Stream[TxEvent]
	PhyRxBegin     Stream[RxEvent]
	PhyRxPayload   Stream[RxEvent]
	PhyRxEnd       Stream[RxEvent]
	RxOk           Stream[RxEvent]
	RxError        Stream[RxEvent]
	RxDrop         Stream[RxDropEvent]
	MacTx          Stream[MacEvent]
	MacRx          Stream[MacEvent]
	MacQueueDrop   Stream[MacEvent]
	Delivery       Stream[DeliveryEvent]
	FrameSuccess   Stream[ExchangeEvent]
	FrameCollision Stream[ExchangeEvent]
	MacTxDrop      Stream[ExchangeEvent]
}

// NewEventStreams is a constructor
func NewEventStreams() *EventStreams {
	return new(EventStreams)
}
