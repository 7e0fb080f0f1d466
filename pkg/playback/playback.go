// Package playback keeps several videos of the same laps in lockstep.
//
// Every video has its own lap durations and start offset. Seeking to a lap moves each video to the
// start of that lap in its own recording, so videos stay aligned by lap even though drivers lap at
// different speeds.
package playback

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
	"github.com/JustaPenguin/kart-session-viewer/pkg/timeline"
	"github.com/JustaPenguin/kart-session-viewer/pkg/video"
	"github.com/JustaPenguin/kart-session-viewer/pkg/when"
)

// DefaultPollInterval is how often the primary video's time is read while it plays.
const DefaultPollInterval = 100 * time.Millisecond

// Videos is the set of mounted videos, in display order.
type Videos interface {
	Mounted() []string
	Surface(sessionID string) (video.Surface, bool)
	Config(sessionID string) (video.Config, bool)
}

// Playhead is the position drawn on the chart.
type Playhead struct {
	// VideoTime is the primary video's time, when known.
	VideoTime float64
	HasTime   bool
	// Lap is the current lap marker, used when VideoTime is unknown.
	Lap int
}

type Observer interface {
	LapChanged(lap, totalLaps int)
	Redraw(playhead Playhead)
}

type nilObserver struct{}

func (nilObserver) LapChanged(int, int) {}
func (nilObserver) Redraw(Playhead)     {}

type Options struct {
	Scheduler    when.Scheduler
	PollInterval time.Duration
	// Post hands a poll tick to the goroutine which owns the Synchronizer. Ticks run inline if nil.
	Post func(func())
}

// Snapshot is the playback state reported to remote controllers.
type Snapshot struct {
	Lap         int
	TotalLaps   int
	LapTime     string
	CurrentTime float64
	Duration    float64
	IsPlaying   bool
}

// Synchronizer is not safe for concurrent use. All calls, including poll ticks, must come from the
// goroutine which owns it.
type Synchronizer struct {
	videos   Videos
	observer Observer
	post     func(func())
	poll     *when.Interval

	primary    string
	laps       map[string][]session.Lap
	durations  map[string][]float64
	currentLap int

	table       timeline.Table
	tableOffset float64
	tableStale  bool
}

func NewSynchronizer(videos Videos, observer Observer, opts Options) *Synchronizer {
	if observer == nil {
		observer = nilObserver{}
	}

	if opts.Scheduler == nil {
		opts.Scheduler = when.Clock{}
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	if opts.Post == nil {
		opts.Post = func(fn func()) { fn() }
	}

	return &Synchronizer{
		videos:     videos,
		observer:   observer,
		post:       opts.Post,
		poll:       &when.Interval{Scheduler: opts.Scheduler, Period: opts.PollInterval},
		laps:       make(map[string][]session.Lap),
		durations:  make(map[string][]float64),
		currentLap: 1,
		tableStale: true,
	}
}

// SetLaps stores the valid laps of a session.
func (s *Synchronizer) SetLaps(sessionID string, laps []session.Lap) {
	s.laps[sessionID] = laps
	s.durations[sessionID] = session.Durations(laps)

	if sessionID == s.primary {
		s.tableStale = true
	}
}

// RemoveLaps forgets a session which is no longer compared.
func (s *Synchronizer) RemoveLaps(sessionID string) {
	delete(s.laps, sessionID)
	delete(s.durations, sessionID)
}

// SetPrimary chooses the session whose video drives the lap display and chart playhead.
func (s *Synchronizer) SetPrimary(sessionID string) {
	s.primary = sessionID
	s.tableStale = true
	s.currentLap = 1
}

func (s *Synchronizer) Primary() string {
	return s.primary
}

func (s *Synchronizer) offset(sessionID string) float64 {
	if config, ok := s.videos.Config(sessionID); ok {
		return config.StartTime
	}

	return 0
}

// Timeline is the primary session's lap start table. It is rebuilt whenever the primary's laps or
// start offset change.
func (s *Synchronizer) Timeline() timeline.Table {
	offset := s.offset(s.primary)

	if s.tableStale || offset != s.tableOffset {
		s.table = timeline.Build(s.durations[s.primary], offset)
		s.tableOffset = offset
		s.tableStale = false
	}

	return s.table
}

func (s *Synchronizer) LapCount() int {
	return len(s.durations[s.primary])
}

func (s *Synchronizer) CurrentLap() int {
	return s.currentLap
}

func (s *Synchronizer) primarySurface() (video.Surface, bool) {
	if s.primary == "" {
		return nil, false
	}

	return s.videos.Surface(s.primary)
}

// HandleStateChange propagates play and pause from one video to the others. Only videos which
// need to change are commanded, so the resulting state changes settle rather than echo back and
// forth. Other states propagate nothing.
func (s *Synchronizer) HandleStateChange(source string, state video.State) {
	switch state {
	case video.StatePlaying:
		s.forEachOther(source, func(id string, surface video.Surface) {
			if !surface.State().Active() {
				s.ignore(id, "play", surface.Play())
			}
		})
	case video.StatePaused:
		s.forEachOther(source, func(id string, surface video.Surface) {
			if surface.State().Active() {
				s.ignore(id, "pause", surface.Pause())
			}
		})
	}

	if source != s.primary {
		return
	}

	if state == video.StatePlaying {
		s.poll.Start(func() {
			s.post(s.Tick)
		})
	} else {
		s.poll.Stop()
	}
}

func (s *Synchronizer) forEachOther(source string, fn func(id string, surface video.Surface)) {
	for _, id := range s.videos.Mounted() {
		if id == source {
			continue
		}

		if surface, ok := s.videos.Surface(id); ok {
			fn(id, surface)
		}
	}
}

func (s *Synchronizer) ignore(sessionID, action string, err error) {
	if err != nil {
		logrus.WithError(err).Debugf("playback: could not %s video for session %s", action, sessionID)
	}
}

// HandleReady lines a freshly loaded video up with the others. The primary video starts at lap 1,
// any other video moves to its own position for the primary's current lap.
func (s *Synchronizer) HandleReady(sessionID string) {
	if sessionID == s.primary {
		s.SeekToLap(1)
		return
	}

	surface, ok := s.videos.Surface(sessionID)

	if !ok {
		return
	}

	lap, fraction := s.currentPosition()

	if lap == 0 {
		return
	}

	s.ignore(sessionID, "seek", surface.SeekTo(s.target(sessionID, lap, fraction)))
}

// currentPosition is the primary's lap and progress through it, or the lap marker when the primary
// video's time is unavailable.
func (s *Synchronizer) currentPosition() (lap int, fraction float64) {
	if s.LapCount() == 0 {
		return 0, 0
	}

	if surface, ok := s.primarySurface(); ok {
		if t, err := surface.CurrentTime(); err == nil {
			if index, fraction, ok := s.Timeline().Progress(t, s.durations[s.primary]); ok {
				return index + 1, fraction
			}
		}
	}

	return s.currentLap, 0
}

func sum(durations []float64) float64 {
	var total float64

	for _, d := range durations {
		total += d
	}

	return total
}

func (s *Synchronizer) primaryRelative(lap int, fraction float64) float64 {
	durations := s.durations[s.primary]

	return sum(durations[:lap-1]) + fraction*durations[lap-1]
}

// target is where a video should be for a lap and fraction of it. A video with fewer laps than the
// primary falls back to its offset plus the primary's elapsed time, which is only approximate.
func (s *Synchronizer) target(sessionID string, lap int, fraction float64) float64 {
	durations := s.durations[sessionID]
	offset := s.offset(sessionID)

	if len(durations) >= lap {
		return offset + sum(durations[:lap-1]) + fraction*durations[lap-1]
	}

	return offset + s.primaryRelative(lap, fraction)
}

// SeekToLap moves every mounted video to the start of lap in its own recording.
func (s *Synchronizer) SeekToLap(lap int) {
	s.SeekToLapFraction(lap, 0)
}

// SeekToLapFraction moves every mounted video to fraction of the way through lap. lap is clamped
// to the primary's laps.
func (s *Synchronizer) SeekToLapFraction(lap int, fraction float64) {
	total := s.LapCount()

	if total == 0 {
		return
	}

	if lap < 1 {
		lap = 1
	}

	if lap > total {
		lap = total
	}

	if fraction < 0 {
		fraction = 0
	}

	if fraction > 1 {
		fraction = 1
	}

	primaryTarget := s.offset(s.primary) + s.primaryRelative(lap, fraction)

	for _, id := range s.videos.Mounted() {
		surface, ok := s.videos.Surface(id)

		if !ok {
			continue
		}

		target := primaryTarget

		if id != s.primary {
			target = s.target(id, lap, fraction)
		}

		s.ignore(id, "seek", surface.SeekTo(target))
	}

	s.currentLap = lap
	s.observer.LapChanged(lap, total)
	s.observer.Redraw(Playhead{VideoTime: primaryTarget, HasTime: true, Lap: lap})
}

// SeekToTime seeks the primary video to t. Inside the primary's laps this is the equivalent lap
// and fraction, so every video stays aligned by lap. Outside them, other videos move by the same
// amount relative to their own offsets.
func (s *Synchronizer) SeekToTime(t float64) {
	if t < 0 {
		t = 0
	}

	table := s.Timeline()

	if index, fraction, ok := table.Progress(t, s.durations[s.primary]); ok {
		s.SeekToLapFraction(index+1, fraction)
		return
	}

	relative := t - s.offset(s.primary)

	for _, id := range s.videos.Mounted() {
		surface, ok := s.videos.Surface(id)

		if !ok {
			continue
		}

		target := t

		if id != s.primary {
			target = s.offset(id) + relative
		}

		if target < 0 {
			target = 0
		}

		s.ignore(id, "seek", surface.SeekTo(target))
	}

	lap := table.CurrentLap(t)

	if lap != s.currentLap {
		s.currentLap = lap
		s.observer.LapChanged(lap, s.LapCount())
	}

	s.observer.Redraw(Playhead{VideoTime: t, HasTime: true, Lap: lap})
}

// NextLap does nothing on the last lap.
func (s *Synchronizer) NextLap() {
	if s.currentLap < s.LapCount() {
		s.SeekToLap(s.currentLap + 1)
	}
}

// PrevLap does nothing on the first lap.
func (s *Synchronizer) PrevLap() {
	if s.currentLap > 1 && s.LapCount() > 0 {
		s.SeekToLap(s.currentLap - 1)
	}
}

// TogglePlayPause pauses every mounted video if the primary is playing, otherwise plays them all.
func (s *Synchronizer) TogglePlayPause() {
	primary, ok := s.primarySurface()

	if !ok {
		return
	}

	playing := primary.State() == video.StatePlaying

	for _, id := range s.videos.Mounted() {
		surface, ok := s.videos.Surface(id)

		if !ok {
			continue
		}

		if playing {
			s.ignore(id, "pause", surface.Pause())
		} else {
			s.ignore(id, "play", surface.Play())
		}
	}
}

// Tick reads the primary video's time, updating the lap marker when the lap changes. The chart is
// redrawn on every tick so the playhead moves smoothly within a lap.
func (s *Synchronizer) Tick() {
	surface, ok := s.primarySurface()

	if !ok {
		return
	}

	t, err := surface.CurrentTime()

	if err != nil {
		s.ignore(s.primary, "read time of", err)
		return
	}

	if lap := s.Timeline().CurrentLap(t); lap != s.currentLap {
		s.currentLap = lap
		s.observer.LapChanged(lap, s.LapCount())
	}

	s.observer.Redraw(Playhead{VideoTime: t, HasTime: true, Lap: s.currentLap})
}

// Polling reports whether the primary's time is being polled.
func (s *Synchronizer) Polling() bool {
	return s.poll.Running()
}

func (s *Synchronizer) Snapshot() Snapshot {
	snapshot := Snapshot{
		Lap:       s.currentLap,
		TotalLaps: s.LapCount(),
	}

	if laps := s.laps[s.primary]; s.currentLap >= 1 && s.currentLap <= len(laps) {
		snapshot.LapTime = laps[s.currentLap-1].Time
	}

	if surface, ok := s.primarySurface(); ok {
		if t, err := surface.CurrentTime(); err == nil {
			snapshot.CurrentTime = t
		}

		if d, err := surface.Duration(); err == nil {
			snapshot.Duration = d
		}

		snapshot.IsPlaying = surface.State() == video.StatePlaying
	}

	return snapshot
}

// Close stops polling.
func (s *Synchronizer) Close() {
	s.poll.Stop()
}
