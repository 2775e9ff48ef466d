package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("engine.", 10)
	defer unsub()

	b.Publish(Event{Kind: "engine.status_changed", Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != "engine.status_changed" {
			t.Errorf("got kind %q, want engine.status_changed", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Publish(Event{Kind: "engine.status_changed"})
	b.Publish(Event{Kind: "sync.write_failed"})

	select {
	case evt := <-ch:
		if evt.Kind != "sync.write_failed" {
			t.Errorf("got kind %q, want sync.write_failed", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure engine event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("engine.", 10)
	unsub()

	b.Publish(Event{Kind: "engine.status_changed"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestSubscribeFuncOrdered(t *testing.T) {
	b := New()
	var got []string
	unsub := b.SubscribeFunc("activity.", func(evt Event) {
		got = append(got, evt.Kind)
	})
	defer unsub()

	for _, k := range []string{"activity.one", "connection.skip", "activity.two", "activity.three"} {
		b.Publish(Event{Kind: k})
	}

	want := []string{"activity.one", "activity.two", "activity.three"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSubscribeFuncUnsubscribe(t *testing.T) {
	b := New()
	calls := 0
	unsub := b.SubscribeFunc("activity.", func(Event) { calls++ })

	b.Publish(Event{Kind: "activity.one"})
	unsub()
	unsub()
	b.Publish(Event{Kind: "activity.two"})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
