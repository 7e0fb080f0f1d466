// Package remote lets a second device control playback and follow along.
//
// A controller connects through the view's rendezvous id, sends commands and receives a stats
// message every StatsInterval for as long as it stays connected.
package remote

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JustaPenguin/kart-session-viewer/pkg/laptime"
	"github.com/JustaPenguin/kart-session-viewer/pkg/playback"
	"github.com/JustaPenguin/kart-session-viewer/pkg/when"
)

// StatsInterval is how often connected controllers are sent stats.
const StatsInterval = 500 * time.Millisecond

// Unknown is shown in place of a lap time which is not known.
const Unknown = "--:--"

type MessageType string

const (
	MessageStats     MessageType = "STATS"
	MessageNextLap   MessageType = "NEXT_LAP"
	MessagePrevLap   MessageType = "PREV_LAP"
	MessagePlayPause MessageType = "PLAY_PAUSE"
	MessageSeek      MessageType = "SEEK"
)

type Stats struct {
	Type        MessageType `json:"type"`
	Lap         int         `json:"lap"`
	TotalLaps   int         `json:"totalLaps"`
	FastestLap  string      `json:"fastestLap"`
	Time        string      `json:"time"`
	CurrentTime float64     `json:"currentTime"`
	Duration    float64     `json:"duration"`
	IsPlaying   bool        `json:"isPlaying"`
}

// NewStats builds the stats message for a playback snapshot. fastestLap is the session's recorded
// fastest lap.
func NewStats(snapshot playback.Snapshot, fastestLap string) Stats {
	stats := Stats{
		Type:        MessageStats,
		Lap:         snapshot.Lap,
		TotalLaps:   snapshot.TotalLaps,
		FastestLap:  fastestLap,
		Time:        snapshot.LapTime,
		CurrentTime: snapshot.CurrentTime,
		Duration:    snapshot.Duration,
		IsPlaying:   snapshot.IsPlaying,
	}

	if stats.FastestLap == "" {
		stats.FastestLap = Unknown
	}

	if stats.Time == "" {
		stats.Time = Unknown
	}

	return stats
}

// Command is a message from a controller. Value is only used by SEEK, and may be sent as a number
// or a string.
type Command struct {
	Type  MessageType    `json:"type"`
	Value *laptime.Value `json:"value,omitempty"`
}

func ParseCommand(data []byte) (Command, error) {
	var c Command

	err := json.Unmarshal(data, &c)

	return c, err
}

// Controller is what commands act on.
type Controller interface {
	NextLap()
	PrevLap()
	TogglePlayPause()
	SeekToTime(seconds float64)
}

// Dispatch runs a command. Unknown commands, and SEEK without a value, are ignored.
func Dispatch(c Command, controller Controller) bool {
	switch c.Type {
	case MessageNextLap:
		controller.NextLap()
	case MessagePrevLap:
		controller.PrevLap()
	case MessagePlayPause:
		controller.TogglePlayPause()
	case MessageSeek:
		if c.Value == nil {
			return false
		}

		controller.SeekToTime(c.Value.Seconds())
	default:
		logrus.Debugf("remote: ignoring unknown command %q", c.Type)
		return false
	}

	return true
}

// Channel is an ordered message channel to one controller.
type Channel interface {
	ID() string
	Send(stats Stats) error
}

type BroadcasterOptions struct {
	Scheduler when.Scheduler
	Interval  time.Duration
	// Post hands a tick to the goroutine which owns the Broadcaster. Ticks run inline if nil.
	Post func(func())
}

// Broadcaster sends stats to every connected channel. A channel which fails to send is
// disconnected. The stats timer runs only while at least one channel is connected.
//
// Broadcaster is not safe for concurrent use.
type Broadcaster struct {
	stats    func() Stats
	post     func(func())
	interval *when.Interval

	channels map[string]Channel
	order    []string

	// OnChange is called whenever a channel connects or disconnects.
	OnChange func(connected int)
}

func NewBroadcaster(stats func() Stats, opts BroadcasterOptions) *Broadcaster {
	if opts.Scheduler == nil {
		opts.Scheduler = when.Clock{}
	}

	if opts.Interval <= 0 {
		opts.Interval = StatsInterval
	}

	if opts.Post == nil {
		opts.Post = func(fn func()) { fn() }
	}

	return &Broadcaster{
		stats:    stats,
		post:     opts.Post,
		interval: &when.Interval{Scheduler: opts.Scheduler, Period: opts.Interval},
		channels: make(map[string]Channel),
	}
}

func (b *Broadcaster) Connect(c Channel) {
	if _, ok := b.channels[c.ID()]; !ok {
		b.order = append(b.order, c.ID())
	}

	b.channels[c.ID()] = c

	logrus.Infof("remote: controller %s connected (%d connected)", c.ID(), len(b.channels))

	b.interval.Start(func() {
		b.post(b.Broadcast)
	})

	b.changed()
}

func (b *Broadcaster) Disconnect(id string) {
	if _, ok := b.channels[id]; !ok {
		return
	}

	delete(b.channels, id)

	for i, other := range b.order {
		if other == id {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}

	logrus.Infof("remote: controller %s disconnected (%d connected)", id, len(b.channels))

	if len(b.channels) == 0 {
		b.interval.Stop()
	}

	b.changed()
}

func (b *Broadcaster) changed() {
	if b.OnChange != nil {
		b.OnChange(len(b.channels))
	}
}

// Broadcast sends the current stats to every channel.
func (b *Broadcaster) Broadcast() {
	if len(b.channels) == 0 {
		return
	}

	stats := b.stats()

	for _, id := range append([]string(nil), b.order...) {
		if err := b.channels[id].Send(stats); err != nil {
			logrus.WithError(err).Warnf("remote: could not send stats to %s", id)
			b.Disconnect(id)
		}
	}
}

func (b *Broadcaster) Connected() int {
	return len(b.channels)
}

func (b *Broadcaster) Running() bool {
	return b.interval.Running()
}

// Close disconnects every channel.
func (b *Broadcaster) Close() {
	for _, id := range append([]string(nil), b.order...) {
		b.Disconnect(id)
	}

	b.interval.Stop()
}
