// Package when schedules repeating and one-shot callbacks.
//
// Callbacks run on their own goroutine; owners which are not goroutine safe should hand them off
// to their own event loop.
package when

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Timer interface {
	Stop()
}

type Scheduler interface {
	// Every calls fn every interval until the returned Timer is stopped.
	Every(interval time.Duration, fn func()) Timer
	// After calls fn once, after d.
	After(d time.Duration, fn func()) Timer
}

// Clock is a Scheduler backed by real time.
type Clock struct{}

func (Clock) Every(interval time.Duration, fn func()) Timer {
	t := &ticker{
		stop: make(chan struct{}),
	}

	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()

		for {
			select {
			case <-tick.C:
				fn()
			case <-t.stop:
				return
			}
		}
	}()

	return t
}

func (Clock) After(d time.Duration, fn func()) Timer {
	return afterTimer{time.AfterFunc(d, fn)}
}

type afterTimer struct {
	timer *time.Timer
}

func (t afterTimer) Stop() {
	t.timer.Stop()
}

type ticker struct {
	once sync.Once
	stop chan struct{}
}

func (t *ticker) Stop() {
	t.once.Do(func() {
		close(t.stop)
	})
}

// Debouncer runs only the last of a burst of calls, once the burst has been quiet for Wait.
// It is not safe for concurrent use.
type Debouncer struct {
	Scheduler Scheduler
	Wait      time.Duration

	timer Timer
}

func (d *Debouncer) Trigger(fn func()) {
	d.Cancel()

	d.timer = d.Scheduler.After(d.Wait, fn)
}

func (d *Debouncer) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Interval is a restartable repeating timer. Starting a running Interval is a no-op.
// It is not safe for concurrent use.
type Interval struct {
	Scheduler Scheduler
	Period    time.Duration

	timer Timer
}

func (i *Interval) Start(fn func()) {
	if i.timer != nil {
		return
	}

	logrus.Debugf("when: starting %s interval", i.Period)

	i.timer = i.Scheduler.Every(i.Period, fn)
}

func (i *Interval) Stop() {
	if i.timer == nil {
		return
	}

	logrus.Debugf("when: stopping %s interval", i.Period)

	i.timer.Stop()
	i.timer = nil
}

func (i *Interval) Running() bool {
	return i.timer != nil
}
