package remote

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JustaPenguin/kart-session-viewer/pkg/when"
)

type Status string

const (
	StatusConnecting   Status = "Connecting"
	StatusReady        Status = "Ready"
	StatusReconnecting Status = "Reconnecting..."
	StatusFailed       Status = "Failed"
	StatusError        Status = "Error"
)

const (
	DefaultMaxAttempts    = 3
	DefaultReconnectDelay = 3 * time.Second
	DefaultErrorDelay     = 5 * time.Second
)

// Reconnector is the retry policy for a rendezvous connection. A dropped connection is retried a
// fixed number of times after a fixed delay before giving up. A network error tears the connection
// down and starts again after a longer delay, without counting towards the attempts.
type Reconnector struct {
	Scheduler   when.Scheduler
	MaxAttempts int
	Delay       time.Duration
	ErrorDelay  time.Duration

	// OnStatus is called on every status change.
	OnStatus func(Status)

	attempts int
	status   Status
	pending  when.Timer
}

func (r *Reconnector) init() {
	if r.Scheduler == nil {
		r.Scheduler = when.Clock{}
	}

	if r.MaxAttempts <= 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}

	if r.Delay <= 0 {
		r.Delay = DefaultReconnectDelay
	}

	if r.ErrorDelay <= 0 {
		r.ErrorDelay = DefaultErrorDelay
	}
}

func (r *Reconnector) setStatus(s Status) {
	if r.status == s {
		return
	}

	r.status = s

	if r.OnStatus != nil {
		r.OnStatus(s)
	}
}

func (r *Reconnector) Status() Status {
	return r.status
}

func (r *Reconnector) Attempts() int {
	return r.attempts
}

func (r *Reconnector) Connecting() {
	r.setStatus(StatusConnecting)
}

// Connected resets the attempt count.
func (r *Reconnector) Connected() {
	r.cancel()
	r.attempts = 0
	r.setStatus(StatusReady)
}

// Disconnected schedules reconnect, or gives up once the attempts are used.
func (r *Reconnector) Disconnected(reconnect func()) {
	r.init()
	r.cancel()

	if r.attempts >= r.MaxAttempts {
		logrus.Errorf("remote: giving up after %d reconnection attempts", r.attempts)
		r.setStatus(StatusFailed)
		return
	}

	r.attempts++
	logrus.Infof("remote: reconnecting in %s (attempt %d of %d)", r.Delay, r.attempts, r.MaxAttempts)
	r.setStatus(StatusReconnecting)
	r.pending = r.Scheduler.After(r.Delay, reconnect)
}

// Errored schedules reinit if err is a network error. Other errors are terminal.
func (r *Reconnector) Errored(err error, network bool, reinit func()) {
	r.init()
	r.cancel()

	logrus.WithError(err).Error("remote: connection error")
	r.setStatus(StatusError)

	if network {
		r.pending = r.Scheduler.After(r.ErrorDelay, reinit)
	}
}

func (r *Reconnector) cancel() {
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}

// Stop cancels any scheduled attempt.
func (r *Reconnector) Stop() {
	r.cancel()
}
