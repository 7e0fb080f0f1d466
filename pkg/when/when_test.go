package when

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestManual(t *testing.T) {
	m := &Manual{}

	var ticks, fired int

	ticker := m.Every(100*time.Millisecond, func() { ticks++ })
	m.After(250*time.Millisecond, func() { fired++ })

	m.Advance(550 * time.Millisecond)

	if ticks != 5 || fired != 1 {
		t.Errorf("expected 5 ticks and 1 fire, got %d and %d", ticks, fired)
	}

	ticker.Stop()
	m.Advance(time.Second)

	if ticks != 5 {
		t.Error("stopped ticker should not fire")
	}

	if m.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", m.Pending())
	}
}

func TestDebouncer(t *testing.T) {
	m := &Manual{}
	d := &Debouncer{Scheduler: m, Wait: 250 * time.Millisecond}

	calls := 0

	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls++ })
		m.Advance(100 * time.Millisecond)
	}

	if calls != 0 {
		t.Error("debounced call should not have run during the burst")
	}

	m.Advance(200 * time.Millisecond)

	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestInterval(t *testing.T) {
	m := &Manual{}
	i := &Interval{Scheduler: m, Period: 500 * time.Millisecond}

	calls := 0
	i.Start(func() { calls++ })
	i.Start(func() { calls += 100 })

	m.Advance(time.Second)

	if calls != 2 {
		t.Errorf("expected the first interval only, got %d", calls)
	}

	i.Stop()

	if i.Running() {
		t.Error("interval should be stopped")
	}
}

func TestClock(t *testing.T) {
	var count int32

	timer := Clock{}.Every(5*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(60 * time.Millisecond)
	timer.Stop()
	timer.Stop()

	if atomic.LoadInt32(&count) == 0 {
		t.Error("expected the clock to tick")
	}

	done := make(chan struct{})
	Clock{}.After(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("After did not fire")
	}
}
