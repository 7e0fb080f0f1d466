// Package video describes embedded video players and keeps track of which of them are on screen.
package video

import (
	"errors"
	"regexp"
	"strconv"
)

// State is a player state, using the embed platform's numeric codes.
type State int

const (
	StateUnstarted State = -1
	StateEnded     State = 0
	StatePlaying   State = 1
	StatePaused    State = 2
	StateBuffering State = 3
	StateCued      State = 5
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "UNSTARTED"
	case StateEnded:
		return "ENDED"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateBuffering:
		return "BUFFERING"
	case StateCued:
		return "CUED"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(s)) + ")"
	}
}

// Active is true while a player is playing or trying to.
func (s State) Active() bool {
	return s == StatePlaying || s == StateBuffering
}

// ErrNotReady is returned by a Surface which has been created but has not yet finished loading.
var ErrNotReady = errors.New("video: player not ready")

// Surface is a playable embedded video.
type Surface interface {
	Play() error
	Pause() error
	SeekTo(seconds float64) error

	CurrentTime() (float64, error)
	Duration() (float64, error)
	State() State

	Mute() error
	Unmute() error
	IsMuted() bool

	Destroy()
}

type EventType string

const (
	EventReady       EventType = "READY"
	EventStateChange EventType = "STATE_CHANGE"
	EventError       EventType = "ERROR"
)

// Event is a notification from a Surface. ErrorCode is set for player errors, Err for failures to
// create the player at all.
type Event struct {
	SessionID string
	Type      EventType
	State     State
	ErrorCode int
	Err       error
}

type Listener func(Event)

// Config describes one registered video.
type Config struct {
	SessionID string  `json:"sessionId"`
	VideoID   string  `json:"videoId"`
	StartTime float64 `json:"startTime"`
	Label     string  `json:"label"`
}

// Factory creates surfaces. The listener must be called for every event of the created surface.
type Factory interface {
	Create(config Config, listener Listener) (Surface, error)
}

var idRegex = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`)

// ExtractID finds the 11 character video id in a watch page, embed or short link URL.
func ExtractID(url string) (string, bool) {
	m := idRegex.FindStringSubmatch(url)

	if m == nil {
		return "", false
	}

	return m[1], true
}

// ErrorMessage describes a player error code.
func ErrorMessage(code int) string {
	switch code {
	case 2:
		return "Invalid video ID or parameters"
	case 5:
		return "HTML5 player error - Try refreshing"
	case 100:
		return "Video not found or removed"
	case 101, 150:
		return "Embedding restricted by owner"
	default:
		return "Unknown error (code " + strconv.Itoa(code) + ")"
	}
}
