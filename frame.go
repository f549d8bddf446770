package dcfsim

// frame.go holds the units of work that move through the model: application
// packets waiting in a MAC queue, frames on the air, and the medium events
// that record a frame's occupancy of the channel.

import (
	"fmt"
	"time"
)

// StationID identifies a station.  Station 0 is the sink in generated scenarios.
type StationID int

// FrameKind distinguishes the frames of a DCF exchange
type FrameKind int

const (
	DataFrame FrameKind = iota
	AckFrame
	RtsFrame
	CtsFrame
)

var frameKindToStr map[FrameKind]string = map[FrameKind]string{
	DataFrame: "DATA", AckFrame: "ACK", RtsFrame: "RTS", CtsFrame: "CTS"}

func (fk FrameKind) String() string {
	str, present := frameKindToStr[fk]
	if !present {
		return fmt.Sprintf("FrameKind(%d)", int(fk))
	}
	return str
}

// Packet is an application payload handed to a station's MAC
type Packet struct {
	ID      uint64
	Src     StationID
	Dst     StationID
	Bytes   int
	Created time.Duration
	Seq     uint64 // MAC sequence number, assigned on enqueue
}

// Frame is one PSDU on the air
type Frame struct {
	ID       uint64
	Kind     FrameKind
	Src      StationID
	Dst      StationID
	Payload  int // payload bytes per MPDU, zero for control frames
	Mpdus    int // number of MPDUs carried, more than one means an A-MPDU
	Bytes    int // PSDU size
	Seq      uint64
	Retry    int // retransmission index of the exchange
	Start    time.Duration
	Duration time.Duration
}

// End is the time the sender finishes transmitting the frame
func (f *Frame) End() time.Duration {
	return f.Start + f.Duration
}

// IsData is true for frames carrying application payload
func (f *Frame) IsData() bool {
	return f.Kind == DataFrame
}

// Aggregated is true when the frame is an A-MPDU
func (f *Frame) Aggregated() bool {
	return f.Mpdus > 1
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s#%d %d->%d %dB", f.Kind, f.ID, f.Src, f.Dst, f.Bytes)
}

// MediumEvent records the occupancy of the channel by one transmission.
// A receiver sees the frame during [Start+PropagationDelay, End+PropagationDelay).
type MediumEvent struct {
	Start time.Duration
	End   time.Duration
	Src   StationID
	Frame *Frame

	remaining int // receivers the signal has not yet departed from
}

// ArrivalWindow returns the interval during which the frame is present at a receiver
func (me *MediumEvent) ArrivalWindow() (time.Duration, time.Duration) {
	return me.Start + PropagationDelay, me.End + PropagationDelay
}

// Overlaps is true when the two events' occupancy intervals intersect
func (me *MediumEvent) Overlaps(other *MediumEvent) bool {
	return me.Start < other.End && other.Start < me.End
}
