package session

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/JustaPenguin/kart-session-viewer/pkg/laptime"
)

// PageSize is the number of sessions shown per page of the session list.
const PageSize = 50

// Summary is one entry of the session index (sessions-list.json).
type Summary struct {
	ID          string  `json:"id"`
	Driver      string  `json:"driver"`
	Track       Track   `json:"track"`
	SessionDate string  `json:"session_date"`
	Kart        string  `json:"kart"`
	FastestLap  string  `json:"fastest_lap"`
	AverageLap  string  `json:"average_lap"`
	FastestLapS float64 `json:"fastest_lap_s"`
	AverageLapS float64 `json:"average_lap_s"`
	LapsCount   int     `json:"laps_count"`
}

// Index is the document stored as sessions-list.json.
type Index struct {
	Sessions []Summary `json:"sessions"`
}

// Summarise builds the index entry for a session. Only laps with a positive time count.
func Summarise(s *Session) Summary {
	summary := Summary{
		ID:          s.ID,
		Driver:      s.Driver,
		Track:       s.Track,
		SessionDate: s.SessionDate,
		Kart:        s.Kart,
	}

	var times []float64

	for _, lap := range s.Laps {
		if seconds := laptime.Decode(lap.Time); seconds > 0 {
			times = append(times, seconds)
		}
	}

	summary.LapsCount = len(times)

	if len(times) == 0 {
		return summary
	}

	fastest := math.Inf(1)
	var total float64

	for _, t := range times {
		fastest = math.Min(fastest, t)
		total += t
	}

	summary.FastestLapS = fastest
	summary.AverageLapS = total / float64(len(times))
	summary.FastestLap = laptime.FormatPadded(summary.FastestLapS)
	summary.AverageLap = laptime.FormatPadded(summary.AverageLapS)

	return summary
}

// Date parses the summary's session date, accepting RFC3339 or a plain date.
func (s Summary) Date() (time.Time, bool) {
	return ParseDate(s.SessionDate)
}

func ParseDate(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func (s Summary) TrackName() string {
	if s.Track.Name == "" {
		return "N/A"
	}

	return s.Track.Name
}

func (s Summary) TrackConfiguration() string {
	if s.Track.Configuration == "" {
		return "N/A"
	}

	return s.Track.Configuration
}

type DateRange string

const (
	DateRangeAll    DateRange = ""
	DateRangeToday  DateRange = "today"
	DateRangeWeek   DateRange = "week"
	DateRangeMonth  DateRange = "month"
	DateRangeCustom DateRange = "custom"
)

type SortOrder string

const (
	SortByDate    SortOrder = "date"
	SortByFastest SortOrder = "fastest"
	SortByDriver  SortOrder = "driver"
	SortByTrack   SortOrder = "track"
)

// ListFilter narrows the session list. Search matches driver, track name or kart, case insensitive.
type ListFilter struct {
	Search        string
	Track         string
	Configuration string
	Range         DateRange
	From, To      time.Time
	Sort          SortOrder
}

// Filter applies the filter and sort to the summaries. now is the reference for relative date
// ranges.
func Filter(summaries []Summary, filter ListFilter, now time.Time) []Summary {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var out []Summary

	for _, summary := range summaries {
		if search != "" &&
			!strings.Contains(strings.ToLower(summary.Driver), search) &&
			!strings.Contains(strings.ToLower(summary.TrackName()), search) &&
			!strings.Contains(strings.ToLower(summary.Kart), search) {
			continue
		}

		if filter.Track != "" && summary.TrackName() != filter.Track {
			continue
		}

		if filter.Configuration != "" && summary.TrackConfiguration() != filter.Configuration {
			continue
		}

		if filter.Range != DateRangeAll {
			date, ok := summary.Date()

			if !ok {
				continue
			}

			switch filter.Range {
			case DateRangeToday:
				d := date.In(now.Location())

				if d.Year() != today.Year() || d.YearDay() != today.YearDay() {
					continue
				}
			case DateRangeWeek:
				if date.Before(today.AddDate(0, 0, -7)) {
					continue
				}
			case DateRangeMonth:
				if date.Before(today.AddDate(0, 0, -30)) {
					continue
				}
			case DateRangeCustom:
				if !filter.From.IsZero() && date.Before(filter.From) {
					continue
				}

				if !filter.To.IsZero() && !date.Before(filter.To.AddDate(0, 0, 1)) {
					continue
				}
			}
		}

		out = append(out, summary)
	}

	Sort(out, filter.Sort)

	return out
}

// Sort orders summaries newest first, or by fastest lap, driver or track with the newest session
// breaking ties.
func Sort(summaries []Summary, order SortOrder) {
	sort.SliceStable(summaries, func(i, j int) bool {
		switch order {
		case SortByFastest:
			a, b := laptime.DecodeForList(summaries[i].FastestLap), laptime.DecodeForList(summaries[j].FastestLap)

			if a != b {
				return a < b
			}
		case SortByDriver:
			a, b := strings.ToLower(summaries[i].Driver), strings.ToLower(summaries[j].Driver)

			if a != b {
				return a < b
			}
		case SortByTrack:
			a, b := strings.ToLower(summaries[i].Track.Name), strings.ToLower(summaries[j].Track.Name)

			if a != b {
				return a < b
			}
		}

		di, _ := summaries[i].Date()
		dj, _ := summaries[j].Date()

		return di.After(dj)
	})
}

// Page returns the 1-indexed page of summaries and the total number of pages. Out of range pages
// are clamped.
func Page(summaries []Summary, page int) ([]Summary, int) {
	totalPages := (len(summaries) + PageSize - 1) / PageSize

	if totalPages == 0 {
		return nil, 0
	}

	if page < 1 {
		page = 1
	}

	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * PageSize
	end := start + PageSize

	if end > len(summaries) {
		end = len(summaries)
	}

	return summaries[start:end], totalPages
}

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Highlights are the badges shown against a session in the list.
type Highlights struct {
	PersonalBest bool    `json:"personal_best"`
	TrackBest    bool    `json:"track_best"`
	Trend        Trend   `json:"trend,omitempty"`
	TrendPercent float64 `json:"trend_percent,omitempty"`
}

// Highlight computes personal bests (per driver, track and configuration), track bests and the
// trend of each session's fastest lap against the driver's previous (up to three) sessions.
func Highlight(summaries []Summary) map[string]Highlights {
	out := make(map[string]Highlights, len(summaries))

	type best struct {
		time float64
		id   string
	}

	personalBests := make(map[string]best)
	trackBests := make(map[string]best)
	byDriver := make(map[string][]Summary)

	for _, summary := range summaries {
		trackKey := summary.TrackName() + "_" + summary.TrackConfiguration()
		driverKey := summary.Driver + "_" + trackKey
		lapTime := laptime.DecodeForList(summary.FastestLap)

		if b, ok := personalBests[driverKey]; !ok || lapTime < b.time {
			personalBests[driverKey] = best{lapTime, summary.ID}
		}

		if b, ok := trackBests[trackKey]; !ok || lapTime < b.time {
			trackBests[trackKey] = best{lapTime, summary.ID}
		}

		byDriver[driverKey] = append(byDriver[driverKey], summary)
	}

	for _, b := range personalBests {
		h := out[b.id]
		h.PersonalBest = true
		out[b.id] = h
	}

	for _, b := range trackBests {
		h := out[b.id]
		h.TrackBest = true
		out[b.id] = h
	}

	for _, sessions := range byDriver {
		sort.SliceStable(sessions, func(i, j int) bool {
			di, _ := sessions[i].Date()
			dj, _ := sessions[j].Date()

			return di.Before(dj)
		})

		for i := 2; i < len(sessions); i++ {
			start := i - 3

			if start < 0 {
				start = 0
			}

			var previous float64

			for _, s := range sessions[start:i] {
				previous += laptime.DecodeForList(s.FastestLap)
			}

			previous /= float64(i - start)
			current := laptime.DecodeForList(sessions[i].FastestLap)

			if math.IsInf(previous, 0) || math.IsInf(current, 0) || previous == 0 {
				continue
			}

			improvement := (previous - current) / previous * 100
			h := out[sessions[i].ID]

			switch {
			case improvement > 1:
				h.Trend, h.TrendPercent = TrendImproving, math.Round(improvement*10)/10
			case improvement < -1:
				h.Trend, h.TrendPercent = TrendDeclining, math.Round(-improvement*10)/10
			default:
				h.Trend = TrendStable
			}

			out[sessions[i].ID] = h
		}
	}

	return out
}
