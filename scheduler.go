package dcfsim

// scheduler.go holds the discrete-event clock and the time-ordered queue
// of pending events that drives every station and the shared medium.
// Events are dispatched in non-decreasing time order; events scheduled for
// the same instant are dispatched in the order they were scheduled.
// The queue and the clock are those of an evtm.EventManager, with one
// virtual-time tick per nanosecond.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

func init() {
	vrtime.SetTicksPerSecond(int64(time.Second))
}

// evtm numbers Schedule calls in a package-level counter, so schedulers
// running in parallel (a sweep) take turns inserting events
var scheduleMu sync.Mutex

// EventHandlerFunction is the signature of every scheduled handler.  The context
// and data arguments are handed back exactly as they were given to Schedule.
type EventHandlerFunction func(sched *EventScheduler, context any, data any) any

// EventHandle identifies a scheduled event so that it can be cancelled
type EventHandle struct {
	id      int
	at      time.Duration
	context any
	data    any
	handler EventHandlerFunction
	done    bool
}

// Time returns the simulation time the event is scheduled for
func (eh *EventHandle) Time() time.Duration {
	return eh.at
}

// Pending is true while the event is still waiting to be dispatched
func (eh *EventHandle) Pending() bool {
	return eh != nil && !eh.done
}

// ctxCheckInterval is the number of dispatches between checks of the run context
const ctxCheckInterval = 1024

// EventScheduler owns the simulation clock and the pending event queue
type EventScheduler struct {
	evtMgr     *evtm.EventManager
	live       map[int]*EventHandle // pending events, by evtm event id
	dispatched uint64
	halted     error
	ctx        context.Context
}

// NewEventScheduler is a constructor
func NewEventScheduler() *EventScheduler {
	sched := new(EventScheduler)
	sched.evtMgr = evtm.New()
	sched.live = make(map[int]*EventHandle)
	return sched
}

// Now returns the current simulation time
func (sched *EventScheduler) Now() time.Duration {
	return time.Duration(sched.evtMgr.CurrentTicks())
}

// VirtualTime returns the current time as the event manager holds it, the
// priority telling apart events dispatched at the same tick
func (sched *EventScheduler) VirtualTime() vrtime.Time {
	return sched.evtMgr.CurrentTime()
}

// Pending returns the number of events waiting to be dispatched
func (sched *EventScheduler) Pending() int {
	return len(sched.live)
}

// Dispatched returns the number of events dispatched since the last Reset
func (sched *EventScheduler) Dispatched() uint64 {
	return sched.dispatched
}

// insert hands an event 'at' to the event manager and returns its event id
func (sched *EventScheduler) insert(at time.Duration, context any, data any,
	handler evtm.EventHandlerFunction) int {
	offset := vrtime.CreateTime(int64(at-sched.Now()), 0)
	scheduleMu.Lock()
	eventID, _ := sched.evtMgr.Schedule(context, data, handler, offset)
	scheduleMu.Unlock()
	return eventID
}

// Schedule inserts an event at absolute time 'at'.  Scheduling an event
// in the past is a modeling error and panics.
func (sched *EventScheduler) Schedule(at time.Duration, context any, data any,
	handler EventHandlerFunction) *EventHandle {
	if at < sched.Now() {
		panic(fmt.Errorf("event scheduled at %v, before current time %v", at, sched.Now()))
	}
	if handler == nil {
		panic(fmt.Errorf("event scheduled at %v without a handler", at))
	}
	eh := &EventHandle{at: at, context: context, data: data, handler: handler}
	eh.id = sched.insert(at, sched, eh, dispatchEvent)
	sched.live[eh.id] = eh
	return eh
}

// ScheduleAfter inserts an event 'offset' after the current time
func (sched *EventScheduler) ScheduleAfter(offset time.Duration, context any, data any,
	handler EventHandlerFunction) *EventHandle {
	return sched.Schedule(sched.Now()+offset, context, data, handler)
}

// Cancel removes a pending event.  It returns false when the handle is nil,
// or the event has already been dispatched or cancelled.
func (sched *EventScheduler) Cancel(eh *EventHandle) bool {
	if eh == nil || eh.done || sched.live[eh.id] != eh {
		return false
	}
	if !sched.evtMgr.RemoveEvent(eh.id) {
		return false
	}
	delete(sched.live, eh.id)
	eh.done = true
	return true
}

// Halt stops the dispatch loop once the current handler returns.  Run
// reports err to its caller.
func (sched *EventScheduler) Halt(err error) {
	if sched.halted == nil {
		sched.halted = err
	}
	sched.evtMgr.Stop()
}

// Halted returns the error given to Halt, if any
func (sched *EventScheduler) Halted() error {
	return sched.halted
}

// dispatchEvent is the evtm handler of every scheduled event.  Events the
// event manager pulls off its list after a Halt are dropped unexecuted.
func dispatchEvent(evtMgr *evtm.EventManager, context any, data any) any {
	sched := context.(*EventScheduler)
	eh := data.(*EventHandle)
	delete(sched.live, eh.id)
	eh.done = true
	if sched.halted != nil {
		return nil
	}

	eh.handler(sched, eh.context, eh.data)
	sched.dispatched += 1
	if sched.dispatched%ctxCheckInterval == 0 && sched.ctx != nil {
		if err := sched.ctx.Err(); err != nil {
			sched.Halt(err)
		}
	}
	return nil
}

// horizonReached marks the first tick past a Run's stop time; it is removed
// before it can fire
func horizonReached(evtMgr *evtm.EventManager, context any, data any) any {
	return nil
}

// Run dispatches events in time order until the next event lies beyond 'stop',
// the queue empties, Halt is called, or ctx is done.  Unless halted, the clock
// is left at 'stop'.
func (sched *EventScheduler) Run(ctx context.Context, stop time.Duration) error {
	if sched.halted != nil {
		return sched.halted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if stop < sched.Now() {
		return nil
	}
	sched.ctx = ctx
	defer func() { sched.ctx = nil }()

	// the event manager must always find an event past 'stop' to leave its
	// loop once stopped
	horizon := sched.insert(stop+1, nil, nil, horizonReached)
	defer sched.evtMgr.RemoveEvent(horizon)

	// evtm.Run returns after the first event dispatched exactly at the limit,
	// so it is re-entered until everything up to 'stop' has been dispatched
	limit := stop.Seconds()
	for {
		sched.evtMgr.Run(limit)
		if sched.halted != nil {
			return sched.halted
		}
		if len(sched.live) == 0 || sched.evtMgr.EventList.MinTime().Ticks() > int64(stop) {
			return nil
		}
	}
}

// Reset empties the queue and rewinds the clock to zero
func (sched *EventScheduler) Reset() {
	for _, eh := range sched.live {
		eh.done = true
	}
	sched.evtMgr = evtm.New()
	sched.live = make(map[int]*EventHandle)
	sched.dispatched = 0
	sched.halted = nil
}
