package sched

import (
	"testing"
	"time"
)

func TestFakeFiresInTimeThenScheduleOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var order []string
	f.After(2*time.Second, func() { order = append(order, "b") })
	f.After(1*time.Second, func() { order = append(order, "a") })
	f.After(2*time.Second, func() { order = append(order, "c") })

	f.Advance(3 * time.Second)

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestFakeAdvanceIsPartial(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	f.After(5*time.Second, func() { fired = true })

	f.Advance(4 * time.Second)
	if fired {
		t.Fatal("timer fired early")
	}
	f.Advance(1 * time.Second)
	if !fired {
		t.Fatal("timer never fired")
	}
}

func TestFakeStopPreventsCallback(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	tm := f.After(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Fatal("Stop should report cancellation")
	}
	if tm.Stop() {
		t.Fatal("second Stop should report false")
	}
	f.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if f.PendingCount() != 0 {
		t.Fatal("stopped timer still counted pending")
	}
}

func TestCallbackMaySchedule(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var order []string
	f.After(time.Second, func() {
		order = append(order, "outer")
		f.After(time.Second, func() { order = append(order, "inner") })
	})
	f.Advance(2 * time.Second)
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("expected chained timers to fire, got %v", order)
	}
}
