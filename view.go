package sessionviewer

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hako/durafmt"
	"github.com/sirupsen/logrus"

	"github.com/JustaPenguin/kart-session-viewer/pkg/chart"
	"github.com/JustaPenguin/kart-session-viewer/pkg/laptime"
	"github.com/JustaPenguin/kart-session-viewer/pkg/playback"
	"github.com/JustaPenguin/kart-session-viewer/pkg/remote"
	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
	"github.com/JustaPenguin/kart-session-viewer/pkg/video"
	"github.com/JustaPenguin/kart-session-viewer/pkg/when"
)

type ViewMode string

const (
	ViewModePC ViewMode = "pc"
	ViewModeTV ViewMode = "tv"
)

func (m ViewMode) Valid() bool {
	return m == ViewModePC || m == ViewModeTV
}

const (
	// resizeWait is how long the page must stop resizing before the chart is redrawn.
	resizeWait = 250 * time.Millisecond

	// tvAutoPlayDelay is how long after the primary video loads that TV mode starts it playing.
	tvAutoPlayDelay = time.Second

	viewEventBuffer = 256
)

// ComparisonLoader fetches the sessions to compare against. Sessions which could not be loaded are
// returned in the error map rather than failing the whole load.
type ComparisonLoader func(ctx context.Context, ids []string) ([]*session.Session, map[string]error)

type ViewOptions struct {
	Scheduler     when.Scheduler
	PollInterval  time.Duration
	StatsInterval time.Duration
	ChartSize     chart.Size
	BaseURL       string
	Mode          ViewMode

	Page   PageChannel
	Loader ComparisonLoader
	Now    func() time.Time
}

// View is one open session detail view: a primary session, the sessions compared with it, their
// videos, the chart and any remote controllers. Every change to a View runs on its own event loop,
// so the components it owns are only ever used from one goroutine.
type View struct {
	ID      string
	Created time.Time

	mode    ViewMode
	baseURL string
	now     func() time.Time
	loader  ComparisonLoader

	scheduler  when.Scheduler
	page       PageChannel
	factory    *pageFactory
	registry   *video.Registry
	sync       *playback.Synchronizer
	remotes    *remote.Broadcaster
	resize     *when.Debouncer
	autoPlay   when.Timer
	hover      chart.Hover
	hoverSize  chart.Size
	fastestLap string

	primary        *session.Session
	comparisons    []*session.Session
	compareErrors  map[string]string
	videoErrors    map[string]string
	pendingCompare int

	size     chart.Size
	playhead playback.Playhead
	geometry chart.Geometry
	lastSVG  []byte

	pages        int
	lastActivity time.Time

	events    chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewView opens a view of primary and starts its event loop. primary must have at least one valid
// lap.
func NewView(primary *session.Session, comparisons []*session.Session, compareErrors map[string]error, opts ViewOptions) (*View, error) {
	validated, err := primary.Validated()

	if err != nil {
		return nil, err
	}

	if opts.Scheduler == nil {
		opts.Scheduler = when.Clock{}
	}

	if opts.Page == nil {
		opts.Page = NilPageChannel{}
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if !opts.Mode.Valid() {
		opts.Mode = ViewModePC
	}

	if opts.ChartSize.Width <= 0 || opts.ChartSize.Height <= 0 {
		opts.ChartSize = chart.Size{Width: defaultChartWidth, Height: defaultChartHeight}
	}

	v := &View{
		ID:            uuid.New().String(),
		Created:       opts.Now(),
		mode:          opts.Mode,
		baseURL:       strings.TrimSuffix(opts.BaseURL, "/"),
		now:           opts.Now,
		loader:        opts.Loader,
		scheduler:     opts.Scheduler,
		page:          opts.Page,
		primary:       validated,
		fastestLap:    validated.FastestLap,
		compareErrors: make(map[string]string),
		videoErrors:   make(map[string]string),
		size:          opts.ChartSize,
		hoverSize:     chart.Size{Width: chart.DefaultTooltipWidth, Height: chart.DefaultTooltipHeight},
		lastActivity:  opts.Now(),
		events:        make(chan func(), viewEventBuffer),
		done:          make(chan struct{}),
	}

	v.factory = newPageFactory(v.page, v.now)
	v.registry = video.NewRegistry(v.factory, v.handleVideoEvent)
	v.resize = &when.Debouncer{Scheduler: v.scheduler, Wait: resizeWait}

	v.sync = playback.NewSynchronizer(v.registry, v, playback.Options{
		Scheduler:    v.scheduler,
		PollInterval: opts.PollInterval,
		Post:         v.Post,
	})

	v.remotes = remote.NewBroadcaster(v.stats, remote.BroadcasterOptions{
		Scheduler: v.scheduler,
		Interval:  opts.StatsInterval,
		Post:      v.Post,
	})
	v.remotes.OnChange = v.remotesChanged

	v.sync.SetPrimary(validated.ID)
	v.sync.SetLaps(validated.ID, validated.Laps)

	// the primary drives playback, so comparisons never push it out of the active set
	v.registry.Pin(validated.ID)

	if validated.HasVideo() {
		v.registerVideo(validated, true)
	}

	v.applyComparisons(comparisons, compareErrors)
	v.redraw()

	go v.run()

	viewsActive.Inc()
	logrus.WithField("view_id", v.ID).Infof("Opened view of session %s with %d comparisons", validated.ID, len(v.comparisons))

	return v, nil
}

func videoLabel(s *session.Session, primary bool) string {
	if primary {
		return fmt.Sprintf("%s (primary)", s.Driver)
	}

	return s.Driver
}

func (v *View) run() {
	for {
		select {
		case fn := <-v.events:
			panicCapture(fn)
		case <-v.done:
			return
		}
	}
}

// Post queues fn to run on the view's event loop. Calls after Close are dropped.
func (v *View) Post(fn func()) {
	select {
	case v.events <- fn:
	case <-v.done:
	}
}

// Do runs fn on the event loop and waits for it to finish. It returns false if the view is closed.
func (v *View) Do(fn func()) bool {
	finished := make(chan struct{})

	select {
	case v.events <- func() {
		defer close(finished)
		fn()
	}:
	case <-v.done:
		return false
	}

	select {
	case <-finished:
		return true
	case <-v.done:
		return false
	}
}

func (v *View) Done() <-chan struct{} {
	return v.done
}

// Close stops every timer, destroys the players and disconnects remotes.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		closed := make(chan struct{})

		v.Post(func() {
			defer close(closed)

			v.resize.Cancel()
			v.cancelAutoPlay()
			v.sync.Close()
			v.remotes.Close()
			v.registry.Close()
		})

		select {
		case <-closed:
		case <-time.After(5 * time.Second):
			logrus.WithField("view_id", v.ID).Warnf("Timed out waiting for view to close cleanly")
		}

		close(v.done)
		viewsActive.Dec()

		logrus.WithField("view_id", v.ID).Infof("Closed view after %s", durafmt.ParseShort(v.now().Sub(v.Created)))
	})
}

// Controller is what remote commands act on.
func (v *View) Controller() remote.Controller {
	return v.sync
}

func (v *View) send(t PageMessageType, sessionID string, data interface{}) {
	if err := v.page.Send(PageMessage{Type: t, SessionID: sessionID, Data: data}); err != nil {
		logrus.WithError(err).WithField("view_id", v.ID).Debugf("Could not send %s to page", t)
	}
}

func (v *View) touch() {
	v.lastActivity = v.now()
}

// LapChanged implements playback.Observer.
func (v *View) LapChanged(lap, totalLaps int) {
	v.send(PageMessageLap, "", lapData{Lap: lap, TotalLaps: totalLaps})
}

// Redraw implements playback.Observer.
func (v *View) Redraw(playhead playback.Playhead) {
	v.playhead = playhead
	v.redraw()
}

func (v *View) chartInput() chart.Input {
	input := chart.Input{
		Primary:  datasetOf(v.primary),
		Timeline: v.sync.Timeline(),
		Playhead: chart.Playhead{
			VideoTime: v.playhead.VideoTime,
			HasTime:   v.playhead.HasTime,
			MarkerLap: v.sync.CurrentLap(),
		},
	}

	// TV mode shows the primary session alone
	if v.mode == ViewModePC {
		for _, c := range v.comparisons {
			input.Comparisons = append(input.Comparisons, datasetOf(c))
		}
	}

	return input
}

func datasetOf(s *session.Session) chart.Dataset {
	return chart.Dataset{
		SessionID:   s.ID,
		Driver:      s.Driver,
		SessionDate: s.SessionDate,
		Kart:        s.Kart,
		FastestLap:  s.FastestLap,
		Laps:        s.ValidLaps(),
	}
}

func (v *View) redraw() {
	started := time.Now()

	v.geometry = chart.Compute(v.chartInput(), v.size)

	buf := new(bytes.Buffer)

	if err := chart.RenderSVG(buf, v.geometry); err != nil {
		logrus.WithError(err).WithField("view_id", v.ID).Errorf("Could not render chart")
		return
	}

	chartRenderDuration.Observe(time.Since(started).Seconds())

	v.lastSVG = buf.Bytes()
	v.send(PageMessageChart, "", v.chartData())
}

func (v *View) chartData() chartData {
	return chartData{
		SVG:    string(v.lastSVG),
		Width:  v.size.Width,
		Height: v.size.Height,
		Legend: v.geometry.Legend(),
	}
}

// handleVideoEvent receives every player event. It runs on the event loop, since players only
// report through page events.
func (v *View) handleVideoEvent(e video.Event) {
	switch e.Type {
	case video.EventReady:
		v.registry.HandleReady(e.SessionID)
		v.sync.HandleReady(e.SessionID)

		if e.SessionID == v.sync.Primary() && v.mode == ViewModeTV {
			v.scheduleAutoPlay()
		}
	case video.EventStateChange:
		v.sync.HandleStateChange(e.SessionID, e.State)
	case video.EventError:
		message := video.ErrorMessage(e.ErrorCode)

		if e.Err != nil {
			message = e.Err.Error()
		}

		logrus.WithField("view_id", v.ID).WithField("session_id", e.SessionID).Warnf("Video error: %s", message)

		v.send(PageMessageVideoError, e.SessionID, errorData{Code: e.ErrorCode, Message: message})
	}
}

func (v *View) scheduleAutoPlay() {
	v.cancelAutoPlay()

	v.autoPlay = v.scheduler.After(tvAutoPlayDelay, func() {
		v.Post(func() {
			v.autoPlay = nil

			if surface, ok := v.registry.Surface(v.sync.Primary()); ok && !surface.State().Active() {
				v.sync.TogglePlayPause()
			}
		})
	})
}

func (v *View) cancelAutoPlay() {
	if v.autoPlay != nil {
		v.autoPlay.Stop()
		v.autoPlay = nil
	}
}

// HandlePageEvent applies a message from a hosting page. It must run on the event loop.
func (v *View) HandlePageEvent(e PageEvent) {
	v.touch()

	switch e.Type {
	case PageEventReady, PageEventStateChange, PageEventTime, PageEventPlayerError:
		if surface, ok := v.factory.surface(e.SessionID); ok {
			surface.report(e)
		}
	case PageEventPointerMove:
		v.pointerMove(e.X, e.Y)
	case PageEventPointerLeave:
		if v.hover.Leave() == chart.HoverHide {
			v.send(PageMessageTooltipHide, "", nil)
		}
	case PageEventClick:
		v.click(e.X)
	case PageEventResize:
		v.resizeTo(chart.Size{Width: e.Width, Height: e.Height})
	case PageEventTooltipSize:
		if e.Width > 0 && e.Height > 0 {
			v.hoverSize = chart.Size{Width: e.Width, Height: e.Height}
		}
	case PageEventCommand:
		v.dispatch(remote.Command{Type: e.Command, Value: e.Value})
	case PageEventToggleVideo:
		if err := v.registry.ToggleActive(e.SessionID, e.Active); err != nil {
			v.send(PageMessageVideoError, e.SessionID, errorData{Message: err.Error()})
		}

		v.sendState()
	case PageEventSelectSwap:
		v.registry.SelectForSwap(e.SessionID)
		v.sendState()
	case PageEventLayout:
		if err := v.registry.SetLayout(e.Layout); err != nil {
			v.send(PageMessageVideoError, "", errorData{Message: err.Error()})
		}

		v.sendState()
	case PageEventAudio:
		if err := v.registry.SetAudio(e.SessionID); err != nil {
			v.send(PageMessageVideoError, e.SessionID, errorData{Message: err.Error()})
		}

		v.sendState()
	case PageEventMode:
		v.SetMode(e.Mode)
	case PageEventCompare:
		v.compare(e.CompareIDs)
	default:
		logrus.WithField("view_id", v.ID).Debugf("Ignoring unknown page event %q", e.Type)
	}
}

func (v *View) pointerMove(x, y float64) {
	p, action := v.hover.Move(v.geometry, x, y, v.now())

	switch action {
	case chart.HoverShow:
		v.send(PageMessageTooltip, "", tooltipData{
			Tooltip:   v.geometry.Tooltip(p),
			Placement: chart.Place(p.X, p.Y, v.hoverSize.Width, v.hoverSize.Height, v.size.Width),
		})
	case chart.HoverHide:
		v.send(PageMessageTooltipHide, "", nil)
	}
}

// click seeks to the lap and position within it under x.
func (v *View) click(x float64) {
	index, fraction, ok := v.geometry.LapAt(x)

	if !ok {
		return
	}

	seeksTotal.WithLabelValues("chart").Inc()
	v.sync.SeekToLapFraction(index+1, fraction)
}

func (v *View) resizeTo(size chart.Size) {
	if size.Width <= 0 || size.Height <= 0 {
		return
	}

	v.resize.Trigger(func() {
		v.Post(func() {
			v.size = size
			v.redraw()
		})
	})
}

// dispatch runs a command from a page button or a remote controller.
func (v *View) dispatch(c remote.Command) {
	if remote.Dispatch(c, v.sync) {
		remoteCommandsTotal.WithLabelValues(string(c.Type)).Inc()

		if c.Type == remote.MessageSeek || c.Type == remote.MessageNextLap || c.Type == remote.MessagePrevLap {
			seeksTotal.WithLabelValues("command").Inc()
		}
	}
}

func (v *View) SetMode(mode ViewMode) {
	if !mode.Valid() || mode == v.mode {
		return
	}

	v.mode = mode

	if mode != ViewModeTV {
		v.cancelAutoPlay()
	}

	v.redraw()
	v.sendState()
}

// compare replaces the compared sessions. Loading happens off the event loop.
func (v *View) compare(ids []string) {
	if v.loader == nil {
		return
	}

	v.pendingCompare++
	generation := v.pendingCompare

	go func() {
		ctx, cfn := context.WithTimeout(context.Background(), 30*time.Second)
		defer cfn()

		sessions, errs := v.loader(ctx, ids)

		v.Post(func() {
			if generation != v.pendingCompare {
				// a newer comparison superseded this one
				return
			}

			v.applyComparisons(sessions, errs)
			v.redraw()
			v.sendState()
		})
	}()
}

// applyComparisons replaces the compared sessions. Videos of sessions still compared keep their
// players; only dropped sessions are removed and new ones registered. Sessions without a valid
// lap are reported in the compare errors instead.
func (v *View) applyComparisons(comparisons []*session.Session, errs map[string]error) {
	next := make(map[string]*session.Session)

	v.compareErrors = make(map[string]string)

	for id, err := range errs {
		v.compareErrors[id] = err.Error()
	}

	var valid []*session.Session

	for _, c := range comparisons {
		if c == nil || c.ID == v.primary.ID || next[c.ID] != nil {
			continue
		}

		validated, err := c.Validated()

		if err != nil {
			v.compareErrors[c.ID] = err.Error()
			continue
		}

		next[validated.ID] = validated
		valid = append(valid, validated)
	}

	for _, c := range v.comparisons {
		if next[c.ID] == nil {
			v.sync.RemoveLaps(c.ID)
			v.registry.Remove(c.ID)
			delete(v.videoErrors, c.ID)
		}
	}

	v.comparisons = valid

	for _, c := range valid {
		v.sync.SetLaps(c.ID, c.Laps)

		if _, registered := v.registry.Config(c.ID); !registered && c.HasVideo() {
			v.registerVideo(c, false)
		}
	}

	for id, message := range v.compareErrors {
		v.send(PageMessageCompareError, id, errorData{Message: message})
	}
}

// registerVideo adds a session's video to the registry, reporting a url with no video id inline.
func (v *View) registerVideo(s *session.Session, primary bool) {
	if v.registry.Register(s.ID, s.VideoURL, s.VideoStartTime.Seconds(), videoLabel(s, primary)) {
		delete(v.videoErrors, s.ID)
		return
	}

	message := "Could not find a video in " + s.VideoURL
	v.videoErrors[s.ID] = message
	v.send(PageMessageVideoError, s.ID, errorData{Message: message})
}

func (v *View) stats() remote.Stats {
	return remote.NewStats(v.sync.Snapshot(), v.fastestLap)
}

// ConnectRemote adds a remote controller. It must run on the event loop.
func (v *View) ConnectRemote(c remote.Channel) {
	v.touch()
	v.remotes.Connect(c)
	v.remotes.Broadcast()
}

// DisconnectRemote must run on the event loop.
func (v *View) DisconnectRemote(id string) {
	v.touch()
	v.remotes.Disconnect(id)
}

// HandleRemoteCommand must run on the event loop.
func (v *View) HandleRemoteCommand(c remote.Command) {
	v.touch()
	v.dispatch(c)
}

func (v *View) remotesChanged(connected int) {
	v.send(PageMessageRemote, "", remoteData{Connected: connected, URL: v.RemoteURL()})
}

// PageConnected and PageDisconnected count the pages hosting the view. They must run on the
// event loop.
func (v *View) PageConnected() {
	v.pages++
	v.touch()

	if v.pages == 1 {
		// a fresh page has to load every player again
		v.factory.unready()
		v.sync.HandleStateChange(v.sync.Primary(), video.StateUnstarted)
	}
}

func (v *View) PageDisconnected() {
	if v.pages > 0 {
		v.pages--
	}

	v.touch()
}

// Idle reports whether nothing has been connected to the view for at least d. It must run on the
// event loop.
func (v *View) Idle(d time.Duration) bool {
	return v.pages == 0 && v.remotes.Connected() == 0 && v.now().Sub(v.lastActivity) >= d
}

func (v *View) RemoteURL() string {
	return RemoteURL(v.baseURL, v.ID, v.mode)
}

func (v *View) URL() string {
	var ids []string

	for _, c := range v.comparisons {
		ids = append(ids, c.ID)
	}

	return SessionURL(v.baseURL, v.primary.ID, ids, v.mode)
}

// RemoteURL is the page a controller opens to control the view with the given rendezvous id.
func RemoteURL(base, rendezvousID string, mode ViewMode) string {
	return fmt.Sprintf("%s/remote?host=%s&mode=%s", base, url.QueryEscape(rendezvousID), url.QueryEscape(string(mode)))
}

// SessionURL is the canonical address of a session view.
func SessionURL(base, id string, compareIDs []string, mode ViewMode) string {
	out := fmt.Sprintf("%s/session?id=%s", base, url.QueryEscape(id))

	if len(compareIDs) > 0 {
		out += "&compare_id=" + url.QueryEscape(strings.Join(compareIDs, ","))
	}

	if mode == ViewModeTV {
		out += "&mode=" + string(mode)
	}

	return out
}

type VideoState struct {
	video.Config
	Mounted bool   `json:"mounted"`
	Active  bool   `json:"active"`
	Audio   bool   `json:"audio"`
	Error   string `json:"error,omitempty"`
}

type TVStats struct {
	FastestLap string  `json:"fastestLap"`
	CurrentLap int     `json:"currentLap"`
	Delta      float64 `json:"delta"`
}

// ViewState is everything a page needs to draw the view from scratch.
type ViewState struct {
	ID           string            `json:"id"`
	Mode         ViewMode          `json:"mode"`
	URL          string            `json:"url"`
	RemoteURL    string            `json:"remoteUrl"`
	Primary      session.Summary   `json:"primary"`
	Statistics   session.Stats     `json:"statistics"`
	Comparisons  []session.Summary `json:"comparisons"`
	Errors       map[string]string `json:"errors"`
	VideoErrors  map[string]string `json:"videoErrors"`
	Layout       video.Layout      `json:"layout"`
	Videos       []VideoState      `json:"videos"`
	SwapArmed    string            `json:"swapArmed,omitempty"`
	AudioOwner   string            `json:"audioOwner,omitempty"`
	VideoPending bool              `json:"videoPending"`
	Timeline     []timelineEntry   `json:"timeline"`
	Playback     remote.Stats      `json:"playback"`
	TV           *TVStats          `json:"tv,omitempty"`
	Remotes      int               `json:"remotes"`
	Chart        chartData         `json:"chart"`
}

type timelineEntry struct {
	LapNumber int     `json:"lapNumber"`
	VideoTime float64 `json:"videoTime"`
	Display   string  `json:"display"`
}

// State must run on the event loop.
func (v *View) State() ViewState {
	state := ViewState{
		ID:           v.ID,
		Mode:         v.mode,
		URL:          v.URL(),
		RemoteURL:    v.RemoteURL(),
		Primary:      session.Summarise(v.primary),
		Statistics:   v.primary.Statistics(),
		Comparisons:  []session.Summary{},
		Errors:       v.compareErrors,
		VideoErrors:  v.videoErrors,
		Layout:       v.registry.Layout(),
		SwapArmed:    v.registry.SwapArmed(),
		AudioOwner:   v.registry.AudioOwner(),
		VideoPending: v.primary.VideoPending(),
		Playback:     v.stats(),
		Remotes:      v.remotes.Connected(),
		Chart:        v.chartData(),
	}

	for _, c := range v.comparisons {
		state.Comparisons = append(state.Comparisons, session.Summarise(c))
	}

	mounted := make(map[string]bool)

	for _, id := range v.registry.Mounted() {
		mounted[id] = true
	}

	active := make(map[string]bool)

	for _, id := range v.registry.Active() {
		active[id] = true
	}

	for _, id := range append([]string{v.primary.ID}, comparisonIDs(v.comparisons)...) {
		config, ok := v.registry.Config(id)

		if !ok {
			continue
		}

		state.Videos = append(state.Videos, VideoState{
			Config:  config,
			Mounted: mounted[id],
			Active:  active[id],
			Audio:   id == v.registry.AudioOwner(),
			Error:   v.videoErrors[id],
		})
	}

	for _, entry := range v.sync.Timeline() {
		state.Timeline = append(state.Timeline, timelineEntry{
			LapNumber: entry.LapNumber,
			VideoTime: entry.VideoTime,
			Display:   laptime.Format(entry.VideoTime),
		})
	}

	if v.mode == ViewModeTV {
		state.TV = v.tvStats()
	}

	return state
}

func comparisonIDs(sessions []*session.Session) []string {
	var ids []string

	for _, s := range sessions {
		ids = append(ids, s.ID)
	}

	return ids
}

// tvStats compares the current lap with the fastest lap.
func (v *View) tvStats() *TVStats {
	stats := &TVStats{
		FastestLap: v.fastestLap,
		CurrentLap: v.sync.CurrentLap(),
	}

	if stats.FastestLap == "" {
		stats.FastestLap = remote.Unknown
	}

	laps := v.primary.Laps
	durations := session.Durations(laps)

	if lap := stats.CurrentLap; lap >= 1 && lap <= len(durations) {
		if best := session.BestIndex(laps); best >= 0 {
			stats.Delta = durations[lap-1] - durations[best]
		}
	}

	return stats
}

func (v *View) sendState() {
	v.send(PageMessageState, "", v.State())
}
