package session

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

const sessionDocument = `{
	"session_id": "abc-123",
	"driver": "Sam",
	"session_date": "2024-05-01T18:30:00Z",
	"kart": "12",
	"track": {"name": "Buckmore Park", "configuration": "Full", "maps_link": "https://maps.example/bp"},
	"video_url": "https://youtu.be/dQw4w9WgXcQ",
	"video_start_time": "0:12",
	"fastest_lap": "45.100",
	"laps": [
		{"lap": 1, "time": "46.500"},
		{"lap": 2, "time": 45.1},
		{"lap": 0, "time": "44.000"},
		{"lap": 3, "time": "abc"},
		{"lap": 4, "time": "10:00.000"},
		{"lap": 5, "time": "1:02.250"}
	]
}`

func loadTestSession(t *testing.T) *Session {
	var s Session

	if err := json.Unmarshal([]byte(sessionDocument), &s); err != nil {
		t.Fatal(err)
	}

	s.Normalise("ignored")

	return &s
}

func TestSession_ValidLaps(t *testing.T) {
	s := loadTestSession(t)

	if s.ID != "abc-123" {
		t.Errorf("expected legacy id to be used, got %s", s.ID)
	}

	if s.VideoStartTime != 12 {
		t.Errorf("expected video start time 12, got %f", s.VideoStartTime)
	}

	laps := s.ValidLaps()

	if len(laps) != 3 {
		t.Fatalf("expected 3 valid laps, got %d (%v)", len(laps), laps)
	}

	// gaps are not renumbered
	for i, expected := range []int{1, 2, 5} {
		if laps[i].Lap != expected {
			t.Errorf("lap %d: expected number %d, got %d", i, expected, laps[i].Lap)
		}
	}

	if laps[1].Time != "45.1" {
		t.Errorf("numeric lap times should keep their raw form, got %s", laps[1].Time)
	}
}

func TestSession_Validated(t *testing.T) {
	t.Run("No valid laps", func(t *testing.T) {
		s := Session{Laps: []Lap{{Lap: 1, Time: "x"}, {Lap: -1, Time: "40"}}}

		if _, err := s.Validated(); err != ErrNoValidLaps {
			t.Errorf("expected ErrNoValidLaps, got %v", err)
		}
	})

	t.Run("Valid", func(t *testing.T) {
		s := loadTestSession(t)
		validated, err := s.Validated()

		if err != nil {
			t.Fatal(err)
		}

		if len(validated.Laps) != 3 || len(s.Laps) != 6 {
			t.Error("Validated should filter a copy of the laps")
		}
	})
}

func TestBestIndex(t *testing.T) {
	laps := []Lap{{1, "45"}, {2, "44"}, {3, "44"}, {4, "46"}}

	if BestIndex(laps) != 1 {
		t.Errorf("expected first minimum to be best, got %d", BestIndex(laps))
	}

	if BestIndex(nil) != -1 {
		t.Error("expected -1 for no laps")
	}

	s := Session{FastestLap: "44", Laps: laps}

	if s.FastestLapIndex() != 1 {
		t.Error("fastest lap should match the recorded fastest_lap")
	}
}

func TestHasVideo(t *testing.T) {
	for url, expected := range map[string]bool{"": false, "pending": false, "PENDING": false, "https://youtu.be/x": true} {
		s := Session{VideoURL: url}

		if s.HasVideo() != expected {
			t.Errorf("HasVideo(%q): expected %t", url, expected)
		}
	}
}

func TestConsistency(t *testing.T) {
	t.Run("Too few laps", func(t *testing.T) {
		if Consistency([]float64{40, 41}) != 0 {
			t.Error("expected 0 for fewer than 3 laps")
		}
	})

	t.Run("Outliers removed", func(t *testing.T) {
		// the 60s lap is well over 103% of the median and is ignored
		c := Consistency([]float64{40, 42, 40, 42, 60})

		if math.Abs(c-1) > 1e-9 {
			t.Errorf("expected consistency 1, got %f", c)
		}

		if Rate(c) != RatingFair {
			t.Errorf("expected Fair, got %s", Rate(c))
		}
	})

	t.Run("Ratings", func(t *testing.T) {
		for c, expected := range map[float64]ConsistencyRating{0.1: RatingExcellent, 0.5: RatingGood, 1.39: RatingFair, 2: RatingTrafficAffected} {
			if Rate(c) != expected {
				t.Errorf("Rate(%f): expected %s, got %s", c, expected, Rate(c))
			}
		}
	})
}

func TestSession_Statistics(t *testing.T) {
	s := loadTestSession(t)
	stats := s.Statistics()

	if stats.LapCount != 3 || stats.Fastest != 45.1 || stats.FastestLap != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if stats.FastestDisplay != "45.100s" {
		t.Errorf("unexpected fastest display: %s", stats.FastestDisplay)
	}
}

func TestFilter(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	summaries := []Summary{
		{ID: "a", Driver: "Sam", Track: Track{Name: "Buckmore", Configuration: "Full"}, SessionDate: "2024-05-10T09:00:00Z", FastestLap: "00:45.000", Kart: "7"},
		{ID: "b", Driver: "Alex", Track: Track{Name: "Daytona", Configuration: "National"}, SessionDate: "2024-05-05", FastestLap: "00:44.000"},
		{ID: "c", Driver: "Sam", Track: Track{Name: "Daytona", Configuration: "Full"}, SessionDate: "2024-03-01", FastestLap: ""},
	}

	t.Run("Search", func(t *testing.T) {
		out := Filter(summaries, ListFilter{Search: "dayt"}, now)

		if len(out) != 2 || out[0].ID != "b" {
			t.Errorf("unexpected search result: %v", out)
		}
	})

	t.Run("Week", func(t *testing.T) {
		out := Filter(summaries, ListFilter{Range: DateRangeWeek}, now)

		if len(out) != 2 {
			t.Errorf("expected 2 sessions in the last week, got %d", len(out))
		}
	})

	t.Run("Today", func(t *testing.T) {
		out := Filter(summaries, ListFilter{Range: DateRangeToday}, now)

		if len(out) != 1 || out[0].ID != "a" {
			t.Errorf("unexpected today result: %v", out)
		}
	})

	t.Run("Custom", func(t *testing.T) {
		from, _ := ParseDate("2024-03-01")
		to, _ := ParseDate("2024-05-05")
		out := Filter(summaries, ListFilter{Range: DateRangeCustom, From: from, To: to}, now)

		if len(out) != 2 {
			t.Errorf("expected custom range to include both end days, got %v", out)
		}
	})

	t.Run("Sort by fastest", func(t *testing.T) {
		out := Filter(summaries, ListFilter{Sort: SortByFastest}, now)

		if out[0].ID != "b" || out[2].ID != "c" {
			t.Errorf("unknown lap times should sort last: %v", out)
		}
	})
}

func TestPage(t *testing.T) {
	summaries := make([]Summary, 120)

	page, total := Page(summaries, 3)

	if total != 3 || len(page) != 20 {
		t.Errorf("expected last page of 20 from 3 pages, got %d of %d", len(page), total)
	}

	if page, _ := Page(summaries, 0); len(page) != PageSize {
		t.Error("page 0 should clamp to page 1")
	}

	if page, total := Page(nil, 1); page != nil || total != 0 {
		t.Error("expected empty page")
	}
}

func TestSummarise(t *testing.T) {
	s := loadTestSession(t)
	summary := Summarise(s)

	// the index only skips laps without a time: lap 0 and the 10 minute lap still count
	if summary.LapsCount != 5 {
		t.Errorf("expected 5 laps, got %d", summary.LapsCount)
	}

	if summary.FastestLap != "00:44.000" {
		t.Errorf("unexpected fastest lap: %s", summary.FastestLap)
	}
}

func TestHighlight(t *testing.T) {
	summaries := []Summary{
		{ID: "1", Driver: "Sam", Track: Track{Name: "T"}, SessionDate: "2024-01-01", FastestLap: "00:50.000"},
		{ID: "2", Driver: "Sam", Track: Track{Name: "T"}, SessionDate: "2024-01-02", FastestLap: "00:50.000"},
		{ID: "3", Driver: "Sam", Track: Track{Name: "T"}, SessionDate: "2024-01-03", FastestLap: "00:45.000"},
		{ID: "4", Driver: "Alex", Track: Track{Name: "T"}, SessionDate: "2024-01-03", FastestLap: "00:44.000"},
	}

	highlights := Highlight(summaries)

	if !highlights["3"].PersonalBest || highlights["3"].TrackBest {
		t.Errorf("session 3 should be a personal best only: %+v", highlights["3"])
	}

	if !highlights["4"].TrackBest {
		t.Error("session 4 should be the track best")
	}

	if highlights["3"].Trend != TrendImproving || highlights["3"].TrendPercent != 10 {
		t.Errorf("expected 10%% improvement, got %+v", highlights["3"])
	}
}
