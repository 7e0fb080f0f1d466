// Package videotest provides in-memory video surfaces for tests.
package videotest

import (
	"errors"
	"fmt"

	"github.com/JustaPenguin/kart-session-viewer/pkg/video"
)

// Surface records every call made to it. Calls return video.ErrNotReady until the surface is
// ready. Commands change the surface's state immediately but emit no events; use Emit to play the
// part of the embedded player reporting back.
type Surface struct {
	Config   video.Config
	Listener video.Listener

	Calls     []string
	Seeks     []float64
	Ready     bool
	Destroyed bool

	state    video.State
	time     float64
	duration float64
	muted    bool
}

func NewSurface(config video.Config, listener video.Listener) *Surface {
	return &Surface{
		Config:   config,
		Listener: listener,
		state:    video.StateUnstarted,
		duration: 3600,
	}
}

func (s *Surface) record(call string) error {
	if s.Destroyed {
		return errors.New("videotest: surface destroyed")
	}

	if !s.Ready {
		return video.ErrNotReady
	}

	s.Calls = append(s.Calls, call)

	return nil
}

func (s *Surface) Play() error {
	if err := s.record("play"); err != nil {
		return err
	}

	s.state = video.StatePlaying

	return nil
}

func (s *Surface) Pause() error {
	if err := s.record("pause"); err != nil {
		return err
	}

	s.state = video.StatePaused

	return nil
}

func (s *Surface) SeekTo(seconds float64) error {
	if err := s.record(fmt.Sprintf("seek %.3f", seconds)); err != nil {
		return err
	}

	s.time = seconds
	s.Seeks = append(s.Seeks, seconds)

	return nil
}

func (s *Surface) CurrentTime() (float64, error) {
	if !s.Ready {
		return 0, video.ErrNotReady
	}

	return s.time, nil
}

func (s *Surface) Duration() (float64, error) {
	if !s.Ready {
		return 0, video.ErrNotReady
	}

	return s.duration, nil
}

func (s *Surface) State() video.State {
	return s.state
}

func (s *Surface) Mute() error {
	if err := s.record("mute"); err != nil {
		return err
	}

	s.muted = true

	return nil
}

func (s *Surface) Unmute() error {
	if err := s.record("unmute"); err != nil {
		return err
	}

	s.muted = false

	return nil
}

func (s *Surface) IsMuted() bool {
	return s.muted
}

func (s *Surface) Destroy() {
	s.Destroyed = true
}

// SetTime moves the playhead without recording a call, as playback would.
func (s *Surface) SetTime(seconds float64) {
	s.time = seconds
}

// SetState changes the state silently.
func (s *Surface) SetState(state video.State) {
	s.state = state
}

// Emit changes the state and notifies the listener, as the player would.
func (s *Surface) Emit(state video.State) {
	s.state = state

	if s.Listener != nil {
		s.Listener(video.Event{SessionID: s.Config.SessionID, Type: video.EventStateChange, State: state})
	}
}

// MakeReady marks the surface ready and notifies the listener.
func (s *Surface) MakeReady() {
	s.Ready = true

	if s.Listener != nil {
		s.Listener(video.Event{SessionID: s.Config.SessionID, Type: video.EventReady})
	}
}

// ResetCalls forgets recorded calls and seeks.
func (s *Surface) ResetCalls() {
	s.Calls = nil
	s.Seeks = nil
}

// Factory creates Surfaces, remembering the latest one per session.
type Factory struct {
	// Ready creates surfaces which are already loaded.
	Ready bool
	// Fail makes creation fail for the given sessions.
	Fail map[string]error

	Surfaces map[string]*Surface
	Created  []string
}

func (f *Factory) Create(config video.Config, listener video.Listener) (video.Surface, error) {
	if err, ok := f.Fail[config.SessionID]; ok {
		return nil, err
	}

	if f.Surfaces == nil {
		f.Surfaces = make(map[string]*Surface)
	}

	s := NewSurface(config, listener)
	s.Ready = f.Ready

	f.Surfaces[config.SessionID] = s
	f.Created = append(f.Created, config.SessionID)

	return s, nil
}
