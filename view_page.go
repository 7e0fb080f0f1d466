package sessionviewer

import (
	"time"

	"github.com/JustaPenguin/kart-session-viewer/pkg/chart"
	"github.com/JustaPenguin/kart-session-viewer/pkg/laptime"
	"github.com/JustaPenguin/kart-session-viewer/pkg/remote"
	"github.com/JustaPenguin/kart-session-viewer/pkg/video"
)

// PageMessageType is a message sent from a view to the pages hosting it.
type PageMessageType string

const (
	PageMessageInit          PageMessageType = "INIT"
	PageMessageState         PageMessageType = "STATE"
	PageMessageCreatePlayer  PageMessageType = "CREATE_PLAYER"
	PageMessageDestroyPlayer PageMessageType = "DESTROY_PLAYER"
	PageMessagePlay          PageMessageType = "PLAY"
	PageMessagePause         PageMessageType = "PAUSE"
	PageMessageSeek          PageMessageType = "SEEK"
	PageMessageMute          PageMessageType = "MUTE"
	PageMessageUnmute        PageMessageType = "UNMUTE"
	PageMessageLap           PageMessageType = "LAP"
	PageMessageChart         PageMessageType = "CHART"
	PageMessageTooltip       PageMessageType = "TOOLTIP"
	PageMessageTooltipHide   PageMessageType = "TOOLTIP_HIDE"
	PageMessageRemote        PageMessageType = "REMOTE"
	PageMessageVideoError    PageMessageType = "VIDEO_ERROR"
	PageMessageCompareError  PageMessageType = "COMPARE_ERROR"
)

type PageMessage struct {
	Type      PageMessageType `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      interface{}     `json:"data,omitempty"`
}

type seekData struct {
	Seconds float64 `json:"seconds"`
}

type lapData struct {
	Lap       int `json:"lap"`
	TotalLaps int `json:"totalLaps"`
}

type chartData struct {
	SVG    string              `json:"svg"`
	Width  float64             `json:"width"`
	Height float64             `json:"height"`
	Legend []chart.LegendEntry `json:"legend"`
}

type tooltipData struct {
	Tooltip   chart.Tooltip   `json:"tooltip"`
	Placement chart.Placement `json:"placement"`
}

type remoteData struct {
	Connected int    `json:"connected"`
	URL       string `json:"url"`
}

type errorData struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// PageEventType is a message sent from a hosting page to its view.
type PageEventType string

const (
	PageEventReady        PageEventType = "READY"
	PageEventStateChange  PageEventType = "STATE_CHANGE"
	PageEventTime         PageEventType = "TIME"
	PageEventPlayerError  PageEventType = "PLAYER_ERROR"
	PageEventPointerMove  PageEventType = "POINTER_MOVE"
	PageEventPointerLeave PageEventType = "POINTER_LEAVE"
	PageEventClick        PageEventType = "CLICK"
	PageEventResize       PageEventType = "RESIZE"
	PageEventTooltipSize  PageEventType = "TOOLTIP_SIZE"
	PageEventCommand      PageEventType = "COMMAND"
	PageEventToggleVideo  PageEventType = "TOGGLE_VIDEO"
	PageEventSelectSwap   PageEventType = "SELECT_SWAP"
	PageEventLayout       PageEventType = "LAYOUT"
	PageEventAudio        PageEventType = "AUDIO"
	PageEventMode         PageEventType = "MODE"
	PageEventCompare      PageEventType = "COMPARE"
)

type PageEvent struct {
	Type      PageEventType `json:"type"`
	SessionID string        `json:"sessionId"`

	// player reports
	State     video.State `json:"state"`
	Time      float64     `json:"time"`
	Duration  float64     `json:"duration"`
	Muted     bool        `json:"muted"`
	ErrorCode int         `json:"errorCode"`

	// chart pointer, resize and tooltip size
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// controls
	Command    remote.MessageType `json:"command"`
	Value      *laptime.Value     `json:"value"`
	Active     bool               `json:"active"`
	Layout     video.Layout       `json:"layout"`
	Mode       ViewMode           `json:"mode"`
	CompareIDs []string           `json:"compareIds"`
}

// PageChannel delivers messages to every page hosting a view.
type PageChannel interface {
	Send(message PageMessage) error
}

type NilPageChannel struct{}

func (NilPageChannel) Send(message PageMessage) error {
	return nil
}

// pageFactory creates players embedded in the hosting pages.
type pageFactory struct {
	page PageChannel
	now  func() time.Time

	surfaces map[string]*pageSurface
}

func newPageFactory(page PageChannel, now func() time.Time) *pageFactory {
	return &pageFactory{
		page:     page,
		now:      now,
		surfaces: make(map[string]*pageSurface),
	}
}

func (f *pageFactory) Create(config video.Config, listener video.Listener) (video.Surface, error) {
	surface := &pageSurface{
		config:   config,
		factory:  f,
		listener: listener,
		state:    video.StateUnstarted,
	}

	f.surfaces[config.SessionID] = surface
	f.send(PageMessageCreatePlayer, config.SessionID, config)

	return surface, nil
}

func (f *pageFactory) send(t PageMessageType, sessionID string, data interface{}) {
	_ = f.page.Send(PageMessage{Type: t, SessionID: sessionID, Data: data})
}

func (f *pageFactory) unready() {
	for _, s := range f.surfaces {
		s.ready = false
		s.state = video.StateUnstarted
	}
}

func (f *pageFactory) surface(sessionID string) (*pageSurface, bool) {
	s, ok := f.surfaces[sessionID]

	return s, ok
}

// pageSurface is a player embedded in the hosting page. Commands are sent to the page, and the
// player's state is whatever the page last reported. While playing, the current time is
// extrapolated from the last report.
type pageSurface struct {
	config   video.Config
	factory  *pageFactory
	listener video.Listener

	ready     bool
	destroyed bool
	state     video.State
	time      float64
	reported  time.Time
	duration  float64
	muted     bool
}

func (s *pageSurface) command(t PageMessageType, data interface{}) error {
	if s.destroyed || !s.ready {
		return video.ErrNotReady
	}

	s.factory.send(t, s.config.SessionID, data)

	return nil
}

func (s *pageSurface) Play() error {
	return s.command(PageMessagePlay, nil)
}

func (s *pageSurface) Pause() error {
	return s.command(PageMessagePause, nil)
}

func (s *pageSurface) SeekTo(seconds float64) error {
	if err := s.command(PageMessageSeek, seekData{Seconds: seconds}); err != nil {
		return err
	}

	s.setTime(seconds)

	return nil
}

func (s *pageSurface) CurrentTime() (float64, error) {
	if s.destroyed || !s.ready {
		return 0, video.ErrNotReady
	}

	t := s.time

	if s.state == video.StatePlaying && !s.reported.IsZero() {
		t += s.factory.now().Sub(s.reported).Seconds()
	}

	if s.duration > 0 && t > s.duration {
		t = s.duration
	}

	return t, nil
}

func (s *pageSurface) Duration() (float64, error) {
	if s.destroyed || !s.ready {
		return 0, video.ErrNotReady
	}

	return s.duration, nil
}

func (s *pageSurface) State() video.State {
	return s.state
}

func (s *pageSurface) Mute() error {
	if err := s.command(PageMessageMute, nil); err != nil {
		return err
	}

	s.muted = true

	return nil
}

func (s *pageSurface) Unmute() error {
	if err := s.command(PageMessageUnmute, nil); err != nil {
		return err
	}

	s.muted = false

	return nil
}

func (s *pageSurface) IsMuted() bool {
	return s.muted
}

func (s *pageSurface) Destroy() {
	if s.destroyed {
		return
	}

	s.destroyed = true
	s.factory.send(PageMessageDestroyPlayer, s.config.SessionID, nil)

	if current, ok := s.factory.surfaces[s.config.SessionID]; ok && current == s {
		delete(s.factory.surfaces, s.config.SessionID)
	}
}

func (s *pageSurface) setTime(t float64) {
	s.time = t
	s.reported = s.factory.now()
}

// report applies a player report from the page and notifies the listener.
func (s *pageSurface) report(e PageEvent) {
	if s.destroyed {
		return
	}

	switch e.Type {
	case PageEventReady:
		s.ready = true
		s.duration = e.Duration
		s.muted = e.Muted
		s.setTime(e.Time)
		s.emit(video.Event{Type: video.EventReady})
	case PageEventStateChange:
		s.state = e.State
		s.setTime(e.Time)

		if e.Duration > 0 {
			s.duration = e.Duration
		}

		s.emit(video.Event{Type: video.EventStateChange, State: e.State})
	case PageEventTime:
		s.setTime(e.Time)
	case PageEventPlayerError:
		s.emit(video.Event{Type: video.EventError, ErrorCode: e.ErrorCode})
	}
}

func (s *pageSurface) emit(e video.Event) {
	e.SessionID = s.config.SessionID

	if s.listener != nil {
		s.listener(e)
	}
}
