// Package clock provides the time source used by components that schedule
// delayed work, so tests can drive them with virtual time.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer; false means it already fired or was stopped.
	Stop() bool
}

// Scheduler is a source of time and delayed callbacks.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real returns the wall-clock scheduler.
func Real() Scheduler { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Virtual is a manually advanced scheduler. Callbacks run synchronously on
// the goroutine calling Advance, in due order; ties run in scheduling order.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*virtualTimer
}

type virtualTimer struct {
	v   *Virtual
	due time.Time
	seq int
	f   func()
}

// NewVirtual returns a virtual scheduler starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the current virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// AfterFunc schedules f to run once virtual time has advanced by d.
func (v *Virtual) AfterFunc(d time.Duration, f func()) Timer {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := &virtualTimer{v: v, due: v.now.Add(d), seq: v.seq, f: f}
	v.seq++
	v.timers = append(v.timers, t)
	return t
}

// Pending returns the number of timers that have not fired or been stopped.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}

// Advance moves virtual time forward by d, running every callback that
// becomes due, including ones scheduled by callbacks during the advance.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	for {
		v.mu.Lock()
		sort.Slice(v.timers, func(i, j int) bool {
			if v.timers[i].due.Equal(v.timers[j].due) {
				return v.timers[i].seq < v.timers[j].seq
			}
			return v.timers[i].due.Before(v.timers[j].due)
		})
		if len(v.timers) == 0 || v.timers[0].due.After(target) {
			v.now = target
			v.mu.Unlock()
			return
		}
		next := v.timers[0]
		v.timers = v.timers[1:]
		v.now = next.due
		v.mu.Unlock()

		next.f()
	}
}

func (t *virtualTimer) Stop() bool {
	t.v.mu.Lock()
	defer t.v.mu.Unlock()
	for i, other := range t.v.timers {
		if other == t {
			t.v.timers = append(t.v.timers[:i], t.v.timers[i+1:]...)
			return true
		}
	}
	return false
}
