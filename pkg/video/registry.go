package video

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// MaxActive is the most videos which can be active at once.
const MaxActive = 4

type Layout string

const (
	LayoutSingle   Layout = "single"
	LayoutDual     Layout = "dual"
	LayoutPiP      Layout = "pip"
	LayoutMainSide Layout = "main-side"
	LayoutGrid     Layout = "grid"
)

var ErrUnknownLayout = errors.New("video: unknown layout")

// Capacity is the number of videos the layout shows.
func (l Layout) Capacity() (int, error) {
	switch l {
	case LayoutSingle:
		return 1, nil
	case LayoutDual, LayoutPiP:
		return 2, nil
	case LayoutMainSide:
		return 3, nil
	case LayoutGrid:
		return 4, nil
	default:
		return 0, ErrUnknownLayout
	}
}

var (
	ErrNotRegistered = errors.New("video: session has no registered video")
	ErrNotMounted    = errors.New("video: video is not mounted")
)

// Registry holds the registered videos, the ordered active set and the mounted players. Only the
// first Capacity() active videos are mounted. Exactly one mounted video has audio.
//
// Registry is not safe for concurrent use.
type Registry struct {
	factory  Factory
	listener Listener

	configs map[string]Config
	active  []string
	layout  Layout

	mounted    map[string]Surface
	audioOwner string
	swapArmed  string
	pinned     string
}

func NewRegistry(factory Factory, listener Listener) *Registry {
	return &Registry{
		factory:  factory,
		listener: listener,
		configs:  make(map[string]Config),
		layout:   LayoutDual,
		mounted:  make(map[string]Surface),
	}
}

// Register stores the video for a session and makes it active, evicting the oldest active video
// if the active set is full. It returns false, storing nothing, if no video id can be found in url.
func (r *Registry) Register(sessionID, url string, startTime float64, label string) bool {
	videoID, ok := ExtractID(url)

	if !ok {
		logrus.WithField("session_id", sessionID).Warnf("Could not find a video id in %q", url)
		return false
	}

	r.configs[sessionID] = Config{
		SessionID: sessionID,
		VideoID:   videoID,
		StartTime: startTime,
		Label:     label,
	}

	r.activate(sessionID)
	r.render()

	return true
}

func (r *Registry) activate(sessionID string) {
	if r.indexOf(sessionID) >= 0 {
		return
	}

	if len(r.active) >= MaxActive {
		oldest := 0

		if r.active[0] == r.pinned {
			oldest = 1
		}

		logrus.Debugf("Active videos full, evicting %s", r.active[oldest])
		r.active = append(r.active[:oldest:oldest], r.active[oldest+1:]...)
	}

	r.active = append(r.active, sessionID)
}

// Pin exempts a session's video from eviction when the active set is full. The next oldest video
// is evicted instead. An empty id unpins.
func (r *Registry) Pin(sessionID string) {
	r.pinned = sessionID
}

func (r *Registry) indexOf(sessionID string) int {
	for i, id := range r.active {
		if id == sessionID {
			return i
		}
	}

	return -1
}

// ToggleActive adds or removes a registered video from the active set.
func (r *Registry) ToggleActive(sessionID string, active bool) error {
	if _, ok := r.configs[sessionID]; !ok {
		return ErrNotRegistered
	}

	if active {
		r.activate(sessionID)
	} else if i := r.indexOf(sessionID); i >= 0 {
		r.active = append(r.active[:i:i], r.active[i+1:]...)

		if r.swapArmed == sessionID {
			r.swapArmed = ""
		}
	}

	r.render()

	return nil
}

// Swap exchanges the positions of two active videos.
func (r *Registry) Swap(a, b string) bool {
	i, j := r.indexOf(a), r.indexOf(b)

	if i < 0 || j < 0 || i == j {
		return false
	}

	r.active[i], r.active[j] = r.active[j], r.active[i]
	r.render()

	return true
}

// SelectForSwap implements the two step swap gesture: the first selection arms, a second
// selection of a different video swaps the two, and selecting the armed video again disarms.
func (r *Registry) SelectForSwap(sessionID string) (armed string, swapped bool) {
	switch {
	case r.swapArmed == "":
		if r.indexOf(sessionID) >= 0 {
			r.swapArmed = sessionID
		}
	case r.swapArmed == sessionID:
		r.swapArmed = ""
	default:
		swapped = r.Swap(r.swapArmed, sessionID)
		r.swapArmed = ""
	}

	return r.swapArmed, swapped
}

func (r *Registry) SetLayout(layout Layout) error {
	if _, err := layout.Capacity(); err != nil {
		return err
	}

	r.layout = layout
	r.render()

	return nil
}

// Remove forgets a session's video entirely.
func (r *Registry) Remove(sessionID string) {
	delete(r.configs, sessionID)

	if i := r.indexOf(sessionID); i >= 0 {
		r.active = append(r.active[:i:i], r.active[i+1:]...)
	}

	if r.swapArmed == sessionID {
		r.swapArmed = ""
	}

	r.render()
}

// SetAudio gives the audio to a mounted video, muting every other.
func (r *Registry) SetAudio(sessionID string) error {
	if _, ok := r.mounted[sessionID]; !ok {
		return ErrNotMounted
	}

	r.audioOwner = sessionID
	r.applyAudio()

	return nil
}

// HandleReady re-applies audio once a player has loaded, since mute calls made earlier are lost.
func (r *Registry) HandleReady(sessionID string) {
	if _, ok := r.mounted[sessionID]; ok {
		r.applyAudio()
	}
}

// window is the part of the active set which the layout shows.
func (r *Registry) window() []string {
	capacity, err := r.layout.Capacity()

	if err != nil {
		capacity = 1
	}

	if capacity > len(r.active) {
		capacity = len(r.active)
	}

	return r.active[:capacity]
}

// render reconciles the mounted players against the window: players which remain are kept,
// players which dropped out are destroyed and new ones are created.
func (r *Registry) render() {
	window := r.window()
	keep := make(map[string]bool, len(window))

	for _, id := range window {
		keep[id] = true
	}

	for id, surface := range r.mounted {
		if !keep[id] {
			logrus.Debugf("Unmounting video for session %s", id)
			surface.Destroy()
			delete(r.mounted, id)
		}
	}

	for _, id := range window {
		if _, ok := r.mounted[id]; ok {
			continue
		}

		surface, err := r.factory.Create(r.configs[id], r.listener)

		if err != nil {
			logrus.WithError(err).Errorf("Could not create video player for session %s", id)

			if r.listener != nil {
				r.listener(Event{SessionID: id, Type: EventError, Err: err})
			}

			continue
		}

		r.mounted[id] = surface
	}

	r.applyAudio()
}

func (r *Registry) applyAudio() {
	mounted := r.Mounted()

	if len(mounted) == 0 {
		r.audioOwner = ""
		return
	}

	if _, ok := r.mounted[r.audioOwner]; !ok {
		r.audioOwner = mounted[0]
	}

	for _, id := range mounted {
		var err error

		if id == r.audioOwner {
			err = r.mounted[id].Unmute()
		} else {
			err = r.mounted[id].Mute()
		}

		if err != nil && err != ErrNotReady {
			logrus.WithError(err).Debugf("Could not set audio for session %s", id)
		}
	}
}

// Mounted lists the mounted videos in display order.
func (r *Registry) Mounted() []string {
	var out []string

	for _, id := range r.window() {
		if _, ok := r.mounted[id]; ok {
			out = append(out, id)
		}
	}

	return out
}

func (r *Registry) Surface(sessionID string) (Surface, bool) {
	s, ok := r.mounted[sessionID]

	return s, ok
}

func (r *Registry) Config(sessionID string) (Config, bool) {
	c, ok := r.configs[sessionID]

	return c, ok
}

// Active lists the active videos, oldest first.
func (r *Registry) Active() []string {
	return append([]string(nil), r.active...)
}

func (r *Registry) Layout() Layout {
	return r.layout
}

func (r *Registry) AudioOwner() string {
	return r.audioOwner
}

func (r *Registry) SwapArmed() string {
	return r.swapArmed
}

// Close destroys every mounted player.
func (r *Registry) Close() {
	for id, surface := range r.mounted {
		surface.Destroy()
		delete(r.mounted, id)
	}

	r.audioOwner = ""
}
