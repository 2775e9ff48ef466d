package clock

import (
	"testing"
	"time"
)

func TestVirtualRunsInDueOrder(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	var got []string
	v.AfterFunc(300*time.Millisecond, func() { got = append(got, "c") })
	v.AfterFunc(100*time.Millisecond, func() { got = append(got, "a") })
	v.AfterFunc(100*time.Millisecond, func() { got = append(got, "b") })

	v.Advance(99 * time.Millisecond)
	if len(got) != 0 {
		t.Fatalf("callbacks ran early: %v", got)
	}
	v.Advance(time.Second)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("order = %v, want [a b c]", got)
	}
	if want := time.Unix(0, 0).Add(1099 * time.Millisecond); !v.Now().Equal(want) {
		t.Errorf("Now = %v, want %v", v.Now(), want)
	}
}

func TestVirtualNestedScheduling(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	var at []time.Duration
	start := v.Now()
	v.AfterFunc(100*time.Millisecond, func() {
		at = append(at, v.Now().Sub(start))
		v.AfterFunc(500*time.Millisecond, func() {
			at = append(at, v.Now().Sub(start))
		})
	})

	v.Advance(time.Second)
	if len(at) != 2 || at[0] != 100*time.Millisecond || at[1] != 600*time.Millisecond {
		t.Errorf("fired at %v, want [100ms 600ms]", at)
	}
}

func TestVirtualStop(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	fired := false
	timer := v.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Error("Stop() = false on pending timer")
	}
	if timer.Stop() {
		t.Error("second Stop() = true")
	}
	v.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if v.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", v.Pending())
	}
}
