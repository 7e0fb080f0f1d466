package remote

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/JustaPenguin/kart-session-viewer/pkg/playback"
	"github.com/JustaPenguin/kart-session-viewer/pkg/when"
)

type recordingChannel struct {
	id   string
	sent []Stats
	err  error
}

func (c *recordingChannel) ID() string {
	return c.id
}

func (c *recordingChannel) Send(stats Stats) error {
	if c.err != nil {
		return c.err
	}

	c.sent = append(c.sent, stats)

	return nil
}

type recordingController struct {
	calls []string
	seek  float64
}

func (c *recordingController) NextLap()         { c.calls = append(c.calls, "next") }
func (c *recordingController) PrevLap()         { c.calls = append(c.calls, "prev") }
func (c *recordingController) TogglePlayPause() { c.calls = append(c.calls, "toggle") }
func (c *recordingController) SeekToTime(seconds float64) {
	c.calls = append(c.calls, "seek")
	c.seek = seconds
}

func TestNewStats(t *testing.T) {
	stats := NewStats(playback.Snapshot{Lap: 2, TotalLaps: 10, CurrentTime: 12.5, Duration: 600, IsPlaying: true}, "")

	if stats.FastestLap != Unknown || stats.Time != Unknown {
		t.Errorf("missing lap times should be shown as unknown, got %+v", stats)
	}

	b, err := json.Marshal(stats)

	if err != nil {
		t.Fatal(err)
	}

	expected := `{"type":"STATS","lap":2,"totalLaps":10,"fastestLap":"--:--","time":"--:--","currentTime":12.5,"duration":600,"isPlaying":true}`

	if string(b) != expected {
		t.Errorf("unexpected stats message\n%s\n%s", b, expected)
	}
}

func TestDispatch(t *testing.T) {
	testCases := []struct {
		message  string
		call     string
		seek     float64
		accepted bool
	}{
		{`{"type":"NEXT_LAP"}`, "next", 0, true},
		{`{"type":"PREV_LAP"}`, "prev", 0, true},
		{`{"type":"PLAY_PAUSE"}`, "toggle", 0, true},
		{`{"type":"SEEK","value":93.5}`, "seek", 93.5, true},
		{`{"type":"SEEK","value":"93.5"}`, "seek", 93.5, true},
		{`{"type":"SEEK"}`, "", 0, false},
		{`{"type":"DANCE"}`, "", 0, false},
	}

	for _, testCase := range testCases {
		c, err := ParseCommand([]byte(testCase.message))

		if err != nil {
			t.Fatal(err)
		}

		controller := &recordingController{}
		accepted := Dispatch(c, controller)

		if accepted != testCase.accepted {
			t.Errorf("%s: expected accepted %t", testCase.message, testCase.accepted)
		}

		if testCase.call == "" {
			if len(controller.calls) != 0 {
				t.Errorf("%s: expected no calls, got %v", testCase.message, controller.calls)
			}

			continue
		}

		if len(controller.calls) != 1 || controller.calls[0] != testCase.call || controller.seek != testCase.seek {
			t.Errorf("%s: unexpected calls %v (seek %f)", testCase.message, controller.calls, controller.seek)
		}
	}
}

func TestBroadcaster(t *testing.T) {
	scheduler := &when.Manual{}
	lap := 1

	b := NewBroadcaster(func() Stats {
		return Stats{Type: MessageStats, Lap: lap}
	}, BroadcasterOptions{Scheduler: scheduler})

	if b.Running() {
		t.Error("no timer should run without channels")
	}

	phone := &recordingChannel{id: "phone"}
	tablet := &recordingChannel{id: "tablet"}

	b.Connect(phone)
	b.Connect(tablet)

	scheduler.Advance(500 * time.Millisecond)
	lap = 2
	scheduler.Advance(500 * time.Millisecond)

	if len(phone.sent) != 2 || phone.sent[1].Lap != 2 || len(tablet.sent) != 2 {
		t.Errorf("expected both channels to get two stats messages, got %d and %d", len(phone.sent), len(tablet.sent))
	}

	t.Run("Send failure disconnects", func(t *testing.T) {
		tablet.err = errors.New("closed")
		scheduler.Advance(500 * time.Millisecond)

		if b.Connected() != 1 || !b.Running() {
			t.Error("failed channel should be removed, leaving the timer running")
		}
	})

	t.Run("Timer stops when empty", func(t *testing.T) {
		b.Disconnect("phone")

		if b.Running() {
			t.Error("timer should stop with no channels")
		}

		sent := len(phone.sent)
		scheduler.Advance(time.Second)

		if len(phone.sent) != sent {
			t.Error("disconnected channel should not be sent to")
		}
	})

	t.Run("Restarts", func(t *testing.T) {
		b.Connect(phone)
		scheduler.Advance(500 * time.Millisecond)

		if !b.Running() || phone.sent[len(phone.sent)-1].Lap != 2 {
			t.Error("expected stats after reconnecting")
		}

		b.Close()

		if b.Connected() != 0 || b.Running() {
			t.Error("close should disconnect everything")
		}
	})
}

func TestReconnector(t *testing.T) {
	scheduler := &when.Manual{}

	var statuses []Status

	r := &Reconnector{Scheduler: scheduler, OnStatus: func(s Status) { statuses = append(statuses, s) }}
	attempts := 0
	reconnect := func() { attempts++ }

	r.Connecting()
	r.Connected()

	for i := 0; i < 3; i++ {
		r.Disconnected(reconnect)

		if r.Status() != StatusReconnecting {
			t.Fatalf("expected to be reconnecting, got %s", r.Status())
		}

		scheduler.Advance(2 * time.Second)

		if attempts != i {
			t.Fatal("reconnect should wait for the delay")
		}

		scheduler.Advance(time.Second)

		if attempts != i+1 {
			t.Fatalf("expected attempt %d", i+1)
		}
	}

	r.Disconnected(reconnect)
	scheduler.Advance(time.Minute)

	if r.Status() != StatusFailed || attempts != 3 {
		t.Errorf("expected to give up after 3 attempts, got %s after %d", r.Status(), attempts)
	}

	t.Run("Connecting resets attempts", func(t *testing.T) {
		r.Connected()

		if r.Attempts() != 0 || r.Status() != StatusReady {
			t.Error("a successful connection should reset the attempts")
		}
	})

	t.Run("Network errors reinitialise", func(t *testing.T) {
		reinit := 0
		r.Errored(errors.New("network"), true, func() { reinit++ })

		scheduler.Advance(5 * time.Second)

		if r.Status() != StatusError || reinit != 1 {
			t.Errorf("expected reinit after 5s, got %d", reinit)
		}

		r.Errored(errors.New("id taken"), false, func() { reinit++ })
		scheduler.Advance(time.Minute)

		if reinit != 1 {
			t.Error("other errors should not reinit")
		}
	})

	expected := []Status{StatusConnecting, StatusReady, StatusReconnecting, StatusFailed, StatusReady, StatusError}

	if len(statuses) != len(expected) {
		t.Fatalf("unexpected statuses %v", statuses)
	}

	for i := range expected {
		if statuses[i] != expected[i] {
			t.Errorf("status %d: expected %s, got %s", i, expected[i], statuses[i])
		}
	}
}
