// Package session holds the recorded kart session model, lap validation and the statistics shown
// alongside a session.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/JustaPenguin/kart-session-viewer/pkg/laptime"
)

// MaxLapSeconds is the exclusive upper bound for a lap to be considered valid.
const MaxLapSeconds = 600

// PendingVideo is the video_url placeholder for sessions whose footage is not yet uploaded.
const PendingVideo = "pending"

var ErrNoValidLaps = errors.New("session: no valid laps")

type Track struct {
	Name          string `json:"name"`
	Configuration string `json:"configuration"`
	MapsLink      string `json:"maps_link"`
}

// Lap is a single recorded lap. Time is kept in its raw form so tooltips can show exactly what
// was recorded.
type Lap struct {
	Lap  int    `json:"lap"`
	Time string `json:"time"`
}

func (l *Lap) UnmarshalJSON(b []byte) error {
	var raw struct {
		Lap  json.Number `json:"lap"`
		Time interface{} `json:"time"`
	}

	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()

	if err := d.Decode(&raw); err != nil {
		return err
	}

	if n, err := raw.Lap.Int64(); err == nil {
		l.Lap = int(n)
	} else if f, err := raw.Lap.Float64(); err == nil && f == math.Trunc(f) {
		l.Lap = int(f)
	} else {
		l.Lap = 0
	}

	switch t := raw.Time.(type) {
	case string:
		l.Time = t
	case json.Number:
		l.Time = t.String()
	default:
		l.Time = ""
	}

	return nil
}

// Seconds is the decoded lap time using the detail policy.
func (l Lap) Seconds() float64 {
	return laptime.Decode(l.Time)
}

func (l Lap) Valid() bool {
	seconds := l.Seconds()

	return l.Lap > 0 && seconds > 0 && seconds < MaxLapSeconds
}

type Session struct {
	ID             string        `json:"id"`
	Driver         string        `json:"driver"`
	SessionDate    string        `json:"session_date"`
	Kart           string        `json:"kart"`
	Track          Track         `json:"track"`
	VideoURL       string        `json:"video_url"`
	VideoStartTime laptime.Value `json:"video_start_time"`
	FastestLap     string        `json:"fastest_lap"`
	Laps           []Lap         `json:"laps"`

	// LegacyID is the identifier field used by older session documents.
	LegacyID string `json:"session_id,omitempty"`
}

// Normalise fills the session ID from legacy documents or the id it was requested by.
func (s *Session) Normalise(requestedID string) {
	if s.ID == "" {
		s.ID = s.LegacyID
	}

	if s.ID == "" {
		s.ID = requestedID
	}

	s.LegacyID = ""
}

// HasVideo reports whether the session has footage that can be embedded.
func (s *Session) HasVideo() bool {
	url := strings.TrimSpace(s.VideoURL)

	return url != "" && !strings.EqualFold(url, PendingVideo)
}

func (s *Session) VideoPending() bool {
	return strings.EqualFold(strings.TrimSpace(s.VideoURL), PendingVideo)
}

// ValidLaps drops laps without a positive lap number or with a time outside (0, 600) seconds.
// Remaining laps are not renumbered.
func (s *Session) ValidLaps() []Lap {
	return ValidLaps(s.Laps)
}

func ValidLaps(laps []Lap) []Lap {
	var out []Lap

	for _, lap := range laps {
		if lap.Valid() {
			out = append(out, lap)
		}
	}

	return out
}

// Validated returns a copy of the session with invalid laps removed, or ErrNoValidLaps.
func (s Session) Validated() (*Session, error) {
	s.Laps = s.ValidLaps()

	if len(s.Laps) == 0 {
		return nil, ErrNoValidLaps
	}

	return &s, nil
}

// Durations decodes each lap time.
func Durations(laps []Lap) []float64 {
	out := make([]float64, len(laps))

	for i, lap := range laps {
		out[i] = lap.Seconds()
	}

	return out
}

// BestIndex is the index of the first lap with the minimum duration, or -1 for no laps.
func BestIndex(laps []Lap) int {
	best := -1
	bestTime := math.Inf(1)

	for i, lap := range laps {
		if seconds := lap.Seconds(); seconds < bestTime {
			best = i
			bestTime = seconds
		}
	}

	return best
}

// FastestLapIndex prefers the lap whose recorded time matches the session's fastest_lap,
// falling back to BestIndex.
func (s *Session) FastestLapIndex() int {
	if s.FastestLap != "" {
		for i, lap := range s.Laps {
			if lap.Time == s.FastestLap {
				return i
			}
		}
	}

	return BestIndex(s.Laps)
}

// LapByNumber finds a lap by its recorded lap number.
func (s *Session) LapByNumber(n int) (Lap, bool) {
	for _, lap := range s.Laps {
		if lap.Lap == n {
			return lap, true
		}
	}

	return Lap{}, false
}

func (s *Session) TrackName() string {
	if s.Track.Name == "" {
		return "N/A"
	}

	return s.Track.Name
}

func (s *Session) TrackConfiguration() string {
	if s.Track.Configuration == "" {
		return "N/A"
	}

	return s.Track.Configuration
}

func (l Lap) String() string {
	return "L" + strconv.Itoa(l.Lap) + " " + l.Time
}
