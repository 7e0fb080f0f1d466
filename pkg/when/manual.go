package when

import (
	"sync"
	"time"
)

// Manual is a Scheduler whose time only moves when Advance is called. Callbacks run synchronously
// inside Advance, in the order they fall due.
type Manual struct {
	mutex  sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	manual  *Manual
	at      time.Duration
	every   time.Duration
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() {
	t.manual.mutex.Lock()
	defer t.manual.mutex.Unlock()

	t.stopped = true
}

func (m *Manual) Every(interval time.Duration, fn func()) Timer {
	return m.add(interval, interval, fn)
}

func (m *Manual) After(d time.Duration, fn func()) Timer {
	return m.add(d, 0, fn)
}

func (m *Manual) add(d, every time.Duration, fn func()) Timer {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t := &manualTimer{
		manual: m,
		at:     m.now + d,
		every:  every,
		fn:     fn,
	}

	m.timers = append(m.timers, t)

	return t
}

// Now is the time elapsed since the Manual was created.
func (m *Manual) Now() time.Duration {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.now
}

func (m *Manual) Advance(d time.Duration) {
	m.mutex.Lock()
	target := m.now + d

	for {
		var next *manualTimer

		for _, t := range m.timers {
			if t.stopped || t.at > target {
				continue
			}

			if next == nil || t.at < next.at {
				next = t
			}
		}

		if next == nil {
			break
		}

		m.now = next.at

		if next.every > 0 {
			next.at += next.every
		} else {
			next.stopped = true
		}

		m.mutex.Unlock()
		next.fn()
		m.mutex.Lock()
	}

	m.now = target

	var live []*manualTimer

	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}

	m.timers = live
	m.mutex.Unlock()
}

// Pending is the number of timers which have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	count := 0

	for _, t := range m.timers {
		if !t.stopped {
			count++
		}
	}

	return count
}
