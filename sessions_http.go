package sessionviewer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dimchansky/utfbom"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/JustaPenguin/kart-session-viewer/pkg/chart"
	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
	"github.com/JustaPenguin/kart-session-viewer/pkg/timeline"
)

const (
	minChartDimension = 100
	maxChartDimension = 4000
	maxChartScale     = 4

	maxSessionDocumentSize = 4 << 20
)

type SessionsHandler struct {
	store     SessionStore
	chartSize chart.Size
	baseURL   string
	now       func() time.Time
}

func NewSessionsHandler(store SessionStore, chartSize chart.Size, baseURL string) *SessionsHandler {
	return &SessionsHandler{
		store:     store,
		chartSize: chartSize,
		baseURL:   baseURL,
		now:       time.Now,
	}
}

type sessionListEntry struct {
	session.Summary
	Highlights session.Highlights `json:"highlights"`
	Age        string             `json:"age,omitempty"`
	URL        string             `json:"url"`
}

type sessionListResponse struct {
	Sessions       []sessionListEntry  `json:"sessions"`
	Page           int                 `json:"page"`
	TotalPages     int                 `json:"total_pages"`
	Total          int                 `json:"total"`
	Tracks         []string            `json:"tracks"`
	Configurations map[string][]string `json:"configurations"`
}

// listFilterFromRequest reads the list filter from the query string. A from or to date without a
// range implies a custom range.
func listFilterFromRequest(r *http.Request) session.ListFilter {
	q := r.URL.Query()

	filter := session.ListFilter{
		Search:        q.Get("search"),
		Track:         q.Get("track"),
		Configuration: q.Get("config"),
		Range:         session.DateRange(q.Get("range")),
		Sort:          session.SortOrder(q.Get("sort")),
	}

	if from, ok := session.ParseDate(q.Get("from")); ok {
		filter.From = from
	}

	if to, ok := session.ParseDate(q.Get("to")); ok {
		filter.To = to
	}

	if filter.Range == session.DateRangeAll && (!filter.From.IsZero() || !filter.To.IsZero()) {
		filter.Range = session.DateRangeCustom
	}

	return filter
}

func (sh *SessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	summaries, err := sh.store.ListSummaries()

	if err != nil {
		logrus.WithError(err).Errorf("could not list sessions")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	now := sh.now()
	highlights := session.Highlight(summaries)
	filtered := session.Filter(summaries, listFilterFromRequest(r), now)

	page, err := strconv.Atoi(r.URL.Query().Get("page"))

	if err != nil || page < 1 {
		page = 1
	}

	paged, totalPages := session.Page(filtered, page)

	if page > totalPages {
		page = totalPages
	}

	resp := sessionListResponse{
		Sessions:       []sessionListEntry{},
		Page:           page,
		TotalPages:     totalPages,
		Total:          len(filtered),
		Configurations: make(map[string][]string),
	}

	for _, summary := range paged {
		entry := sessionListEntry{
			Summary:    summary,
			Highlights: highlights[summary.ID],
			URL:        SessionURL(sh.baseURL, summary.ID, nil, ViewModePC),
		}

		if date, ok := summary.Date(); ok {
			entry.Age = humanize.RelTime(date, now, "ago", "from now")
		}

		resp.Sessions = append(resp.Sessions, entry)
	}

	seen := make(map[string]bool)

	for _, summary := range summaries {
		track, configuration := summary.TrackName(), summary.TrackConfiguration()

		if !seen[track] {
			seen[track] = true
			resp.Tracks = append(resp.Tracks, track)
		}

		if !seen[track+"\x00"+configuration] {
			seen[track+"\x00"+configuration] = true
			resp.Configurations[track] = append(resp.Configurations[track], configuration)
		}
	}

	sort.Strings(resp.Tracks)

	for _, configurations := range resp.Configurations {
		sort.Strings(configurations)
	}

	writeJSON(w, http.StatusOK, resp)
}

type sessionDetailResponse struct {
	Session    *session.Session   `json:"session"`
	Summary    session.Summary    `json:"summary"`
	Statistics session.Stats      `json:"statistics"`
	Highlights session.Highlights `json:"highlights"`
	URL        string             `json:"url"`
}

func (sh *SessionsHandler) view(w http.ResponseWriter, r *http.Request) {
	s, err := sh.store.LoadSession(chi.URLParam(r, "id"))

	if err != nil {
		sh.sessionError(w, r, err)
		return
	}

	validated, err := s.Validated()

	if err != nil {
		sh.sessionError(w, r, err)
		return
	}

	resp := sessionDetailResponse{
		Session:    validated,
		Summary:    session.Summarise(s),
		Statistics: validated.Statistics(),
		URL:        SessionURL(sh.baseURL, validated.ID, nil, ViewModePC),
	}

	if summaries, err := sh.store.ListSummaries(); err == nil {
		resp.Highlights = session.Highlight(summaries)[validated.ID]
	} else {
		logrus.WithError(err).Warnf("could not list sessions for highlights")
	}

	writeJSON(w, http.StatusOK, resp)
}

func (sh *SessionsHandler) sessionError(w http.ResponseWriter, r *http.Request, err error) {
	status := sessionErrorStatus(err)

	if status == http.StatusInternalServerError {
		logrus.WithError(err).Errorf("could not load session: %s", chi.URLParam(r, "id"))
	}

	http.Error(w, http.StatusText(status), status)
}

type submitSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// submit stores a session document. Documents without an id are given one.
func (sh *SessionsHandler) submit(w http.ResponseWriter, r *http.Request) {
	var s *session.Session

	if err := json.NewDecoder(utfbom.SkipOnly(http.MaxBytesReader(w, r.Body, maxSessionDocumentSize))).Decode(&s); err != nil || s == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	s.Normalise(s.ID)

	if _, err := s.Validated(); err != nil {
		sh.sessionError(w, r, err)
		return
	}

	if err := sh.store.UpsertSession(s); err != nil {
		sh.sessionError(w, r, err)
		return
	}

	logrus.WithField("session_id", s.ID).Infof("Stored session for %s with %d laps", s.Driver, len(s.Laps))

	writeJSON(w, http.StatusCreated, submitSessionResponse{
		ID:  s.ID,
		URL: SessionURL(sh.baseURL, s.ID, nil, ViewModePC),
	})
}

func (sh *SessionsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := sh.store.DeleteSession(chi.URLParam(r, "id")); err != nil {
		sh.sessionError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func queryFloat(r *http.Request, key string) (float64, bool) {
	value := r.URL.Query().Get(key)

	if value == "" {
		return 0, false
	}

	f, err := strconv.ParseFloat(value, 64)

	if err != nil {
		return 0, false
	}

	return f, true
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	} else if value > max {
		return max
	}

	return value
}

// chartGeometry lays out a chart snapshot from the request: compare_id, the video time t, and
// the width and height.
func (sh *SessionsHandler) chartGeometry(r *http.Request) (chart.Geometry, error) {
	s, err := sh.store.LoadSession(chi.URLParam(r, "id"))

	if err != nil {
		return chart.Geometry{}, err
	}

	primary, err := s.Validated()

	if err != nil {
		return chart.Geometry{}, err
	}

	laps := primary.ValidLaps()
	table := timeline.Build(session.Durations(laps), primary.VideoStartTime.Seconds())

	input := chart.Input{
		Primary:  datasetOf(primary),
		Timeline: table,
	}

	if t, ok := queryFloat(r, "t"); ok {
		input.Playhead = chart.Playhead{VideoTime: t, HasTime: true, MarkerLap: table.CurrentLap(t)}
	}

	for _, id := range ParseCompareIDs(r.URL.Query()["compare_id"]...) {
		if id == primary.ID {
			continue
		}

		c, err := sh.store.LoadSession(id)

		if err != nil {
			logrus.WithError(err).Debugf("could not load comparison session: %s", id)
			continue
		}

		if validated, err := c.Validated(); err == nil {
			input.Comparisons = append(input.Comparisons, datasetOf(validated))
		}
	}

	size := sh.chartSize

	if width, ok := queryFloat(r, "width"); ok {
		size.Width = clamp(width, minChartDimension, maxChartDimension)
	}

	if height, ok := queryFloat(r, "height"); ok {
		size.Height = clamp(height, minChartDimension, maxChartDimension)
	}

	return chart.Compute(input, size), nil
}

func (sh *SessionsHandler) chartSVG(w http.ResponseWriter, r *http.Request) {
	geometry, err := sh.chartGeometry(r)

	if err != nil {
		sh.sessionError(w, r, err)
		return
	}

	started := time.Now()
	buf := new(bytes.Buffer)

	if err := chart.RenderSVG(buf, geometry); err != nil {
		logrus.WithError(err).Errorf("could not render chart")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	chartRenderDuration.Observe(time.Since(started).Seconds())

	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = buf.WriteTo(w)
}

func (sh *SessionsHandler) chartPNG(w http.ResponseWriter, r *http.Request) {
	geometry, err := sh.chartGeometry(r)

	if err != nil {
		sh.sessionError(w, r, err)
		return
	}

	scale := 1.0

	if s, ok := queryFloat(r, "scale"); ok {
		scale = clamp(s, 1, maxChartScale)
	}

	started := time.Now()
	buf := new(bytes.Buffer)

	if err := chart.RenderPNG(buf, geometry, scale); err != nil {
		logrus.WithError(err).Errorf("could not render chart")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	chartRenderDuration.Observe(time.Since(started).Seconds())

	w.Header().Set("Content-Type", "image/png")
	_, _ = buf.WriteTo(w)
}
