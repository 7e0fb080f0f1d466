// Package timeline maps lap numbers onto a video's timeline.
package timeline

import "sort"

// LapStart is the video time, in seconds, at which a lap begins.
type LapStart struct {
	LapNumber int     `json:"lapNumber"`
	VideoTime float64 `json:"videoTime"`
}

// Table holds one LapStart per lap, ordered by lap number. Video times are strictly increasing as
// long as every duration is positive.
type Table []LapStart

// Build computes the start time of every lap from the lap durations and the video offset of lap 1.
// The table is always rebuilt in full.
func Build(durations []float64, offset float64) Table {
	if len(durations) == 0 {
		return Table{}
	}

	table := make(Table, len(durations))
	current := offset

	for i := range durations {
		table[i] = LapStart{
			LapNumber: i + 1,
			VideoTime: current,
		}

		current += durations[i]
	}

	return table
}

// CurrentLap returns the greatest lap whose start time is at or before t. Times before lap 1
// (or an empty table) resolve to lap 1.
func (t Table) CurrentLap(videoTime float64) int {
	// first index whose start is strictly after videoTime
	i := sort.Search(len(t), func(i int) bool {
		return t[i].VideoTime > videoTime
	})

	if i == 0 {
		return 1
	}

	return t[i-1].LapNumber
}

// Start returns the video time at which lap starts.
func (t Table) Start(lap int) (float64, bool) {
	if lap < 1 || lap > len(t) {
		return 0, false
	}

	return t[lap-1].VideoTime, true
}

// Progress returns the zero-based lap index containing videoTime and how far through that lap
// it is, clamped to [0, 1]. ok is false when videoTime is outside the timeline.
func (t Table) Progress(videoTime float64, durations []float64) (index int, fraction float64, ok bool) {
	if len(t) == 0 || len(durations) < len(t) || videoTime < t[0].VideoTime {
		return 0, 0, false
	}

	index = t.CurrentLap(videoTime) - 1
	end := t[len(t)-1].VideoTime + durations[len(t)-1]

	if videoTime > end {
		return 0, 0, false
	}

	if durations[index] <= 0 {
		return index, 0, true
	}

	fraction = (videoTime - t[index].VideoTime) / durations[index]

	if fraction < 0 {
		fraction = 0
	}

	if fraction > 1 {
		fraction = 1
	}

	return index, fraction, true
}

// End is the video time at which the final lap finishes.
func (t Table) End(durations []float64) float64 {
	if len(t) == 0 || len(durations) < len(t) {
		return 0
	}

	return t[len(t)-1].VideoTime + durations[len(t)-1]
}
