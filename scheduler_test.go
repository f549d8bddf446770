package dcfsim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"
)

// recordLabel appends the event's data to the slice given as context
func recordLabel(sched *EventScheduler, context any, data any) any {
	fired := context.(*[]string)
	*fired = append(*fired, data.(string))
	return nil
}

func TestSchedulerOrdersByTimeThenInsertion(t *testing.T) {
	sched := NewEventScheduler()
	fired := []string{}

	sched.Schedule(30*time.Microsecond, &fired, "c", recordLabel)
	sched.Schedule(10*time.Microsecond, &fired, "a1", recordLabel)
	sched.Schedule(20*time.Microsecond, &fired, "b", recordLabel)
	sched.Schedule(10*time.Microsecond, &fired, "a2", recordLabel)
	sched.Schedule(10*time.Microsecond, &fired, "a3", recordLabel)

	require.NoError(t, sched.Run(context.Background(), time.Second))
	assert.Equal(t, []string{"a1", "a2", "a3", "b", "c"}, fired)
	assert.Equal(t, time.Second, sched.Now(), "an emptied queue leaves the clock at the stop time")
	assert.Equal(t, uint64(5), sched.Dispatched())
}

func TestSchedulerCancel(t *testing.T) {
	sched := NewEventScheduler()
	fired := []string{}

	sched.Schedule(10*time.Microsecond, &fired, "keep", recordLabel)
	eh := sched.Schedule(20*time.Microsecond, &fired, "cancelled", recordLabel)
	assert.True(t, eh.Pending())

	assert.True(t, sched.Cancel(eh))
	assert.False(t, eh.Pending())
	assert.False(t, sched.Cancel(eh), "second cancel must report nothing removed")
	assert.False(t, sched.Cancel(nil))

	require.NoError(t, sched.Run(context.Background(), time.Second))
	assert.Equal(t, []string{"keep"}, fired)
}

func TestSchedulerCancelAfterDispatch(t *testing.T) {
	sched := NewEventScheduler()
	fired := []string{}
	eh := sched.Schedule(time.Microsecond, &fired, "x", recordLabel)
	require.NoError(t, sched.Run(context.Background(), time.Second))
	assert.False(t, sched.Cancel(eh))
}

func TestSchedulerPastEventPanics(t *testing.T) {
	sched := NewEventScheduler()
	sched.Schedule(50*time.Microsecond, nil, nil, func(s *EventScheduler, context any, data any) any {
		s.Schedule(40*time.Microsecond, nil, nil, func(*EventScheduler, any, any) any { return nil })
		return nil
	})
	assert.Panics(t, func() {
		_ = sched.Run(context.Background(), time.Second)
	})
}

func TestSchedulerStopsAtStopTime(t *testing.T) {
	sched := NewEventScheduler()
	fired := []string{}
	sched.Schedule(time.Millisecond, &fired, "early", recordLabel)
	sched.Schedule(2*time.Millisecond, &fired, "at-stop", recordLabel)
	sched.Schedule(3*time.Millisecond, &fired, "late", recordLabel)
	sched.Schedule(2*time.Millisecond, &fired, "also-at-stop", recordLabel)

	require.NoError(t, sched.Run(context.Background(), 2*time.Millisecond))
	assert.Equal(t, []string{"early", "at-stop", "also-at-stop"}, fired)
	assert.Equal(t, 2*time.Millisecond, sched.Now())
	assert.Equal(t, 1, sched.Pending())

	require.NoError(t, sched.Run(context.Background(), time.Second))
	assert.Equal(t, []string{"early", "at-stop", "also-at-stop", "late"}, fired)
	assert.Equal(t, 0, sched.Pending())
}

func TestSchedulerHalt(t *testing.T) {
	sched := NewEventScheduler()
	fired := []string{}
	boom := errors.New("boom")

	sched.Schedule(time.Microsecond, nil, nil, func(s *EventScheduler, context any, data any) any {
		s.Halt(boom)
		return nil
	})
	sched.Schedule(2*time.Microsecond, &fired, "never", recordLabel)

	err := sched.Run(context.Background(), time.Second)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, fired)
	assert.Equal(t, boom, sched.Halted())
}

func TestSchedulerHaltAtStopTime(t *testing.T) {
	sched := NewEventScheduler()
	fired := []string{}
	boom := errors.New("boom")

	sched.Schedule(time.Millisecond, nil, nil, func(s *EventScheduler, context any, data any) any {
		s.Halt(boom)
		return nil
	})
	sched.Schedule(time.Millisecond, &fired, "same-tick", recordLabel)

	assert.ErrorIs(t, sched.Run(context.Background(), time.Millisecond), boom)
	assert.Empty(t, fired)
	assert.Equal(t, 0, sched.Pending())
	assert.ErrorIs(t, sched.Run(context.Background(), time.Second), boom, "a halted scheduler stays halted")
}

func TestSchedulerVirtualTime(t *testing.T) {
	sched := NewEventScheduler()
	pris := []int64{}
	record := func(s *EventScheduler, context any, data any) any {
		vt := s.VirtualTime()
		if vt.Ticks() != int64(s.Now()) {
			panic("virtual time and clock disagree")
		}
		pris = append(pris, vt.Pri())
		return nil
	}
	sched.Schedule(1500*time.Nanosecond, nil, nil, record)
	sched.Schedule(1500*time.Nanosecond, nil, nil, record)
	require.NoError(t, sched.Run(context.Background(), time.Millisecond))

	require.Len(t, pris, 2)
	assert.Less(t, pris[0], pris[1])
	assert.InDelta(t, 1e-3, sched.VirtualTime().Seconds(), 1e-15)
}

func TestSchedulersRunInParallel(t *testing.T) {
	var eg errgroup.Group
	counts := make([]int, 8)
	for idx := range counts {
		idx := idx
		eg.Go(func() error {
			sched := NewEventScheduler()
			var tick EventHandlerFunction
			tick = func(s *EventScheduler, context any, data any) any {
				counts[idx] += 1
				s.ScheduleAfter(time.Microsecond, nil, nil, tick)
				return nil
			}
			sched.Schedule(0, nil, nil, tick)
			return sched.Run(context.Background(), time.Millisecond)
		})
	}
	require.NoError(t, eg.Wait())
	for _, n := range counts {
		assert.Equal(t, 1001, n)
	}
}

func TestSchedulerContextCancelled(t *testing.T) {
	sched := NewEventScheduler()
	fired := []string{}
	sched.Schedule(time.Microsecond, &fired, "x", recordLabel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sched.Run(ctx, time.Second), context.Canceled)
	assert.Empty(t, fired)
}

func TestSchedulerReset(t *testing.T) {
	sched := NewEventScheduler()
	fired := []string{}
	eh := sched.Schedule(time.Millisecond, &fired, "x", recordLabel)
	sched.Schedule(2*time.Millisecond, &fired, "y", recordLabel)
	require.NoError(t, sched.Run(context.Background(), time.Millisecond))

	sched.Reset()
	assert.Equal(t, time.Duration(0), sched.Now())
	assert.Equal(t, 0, sched.Pending())
	assert.False(t, sched.Cancel(eh))
}

func TestSchedulerDispatchOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sched := NewEventScheduler()
		type stamp struct {
			at  time.Duration
			seq int
		}
		fired := []stamp{}
		cancelled := map[int]bool{}

		times := rapid.SliceOfN(rapid.IntRange(0, 50), 1, 100).Draw(t, "times")
		handles := make([]*EventHandle, len(times))
		for idx, tm := range times {
			handles[idx] = sched.Schedule(time.Duration(tm)*time.Microsecond, nil, idx,
				func(s *EventScheduler, context any, data any) any {
					fired = append(fired, stamp{at: s.Now(), seq: data.(int)})
					return nil
				})
		}
		for idx := range handles {
			if rapid.Bool().Draw(t, "cancel") {
				cancelled[idx] = sched.Cancel(handles[idx])
			}
		}

		if err := sched.Run(context.Background(), time.Second); err != nil {
			t.Fatalf("run: %v", err)
		}
		if len(fired)+len(cancelled) != len(times) {
			t.Fatalf("%d fired and %d cancelled out of %d", len(fired), len(cancelled), len(times))
		}
		for idx := 1; idx < len(fired); idx++ {
			prev, cur := fired[idx-1], fired[idx]
			if cur.at < prev.at {
				t.Fatalf("time went backwards: %v after %v", cur.at, prev.at)
			}
			if cur.at == prev.at && cur.seq < prev.seq {
				t.Fatalf("tie at %v dispatched out of insertion order", cur.at)
			}
		}
		for _, st := range fired {
			if cancelled[st.seq] {
				t.Fatalf("cancelled event %d fired", st.seq)
			}
		}
	})
}
