package session

import (
	"math"
	"sort"

	"github.com/JustaPenguin/kart-session-viewer/pkg/laptime"
)

type ConsistencyRating string

const (
	RatingExcellent       ConsistencyRating = "Excellent"
	RatingGood            ConsistencyRating = "Good"
	RatingFair            ConsistencyRating = "Fair"
	RatingTrafficAffected ConsistencyRating = "Traffic Affected"

	// laps slower than this are ignored when measuring consistency
	consistencyLapCeiling = 300
	// and so are laps more than 3% slower than the median
	consistencyMedianFactor = 1.03
)

type Stats struct {
	LapCount       int               `json:"lap_count"`
	Fastest        float64           `json:"fastest"`
	FastestLap     int               `json:"fastest_lap_number"`
	Average        float64           `json:"average"`
	Consistency    float64           `json:"consistency"`
	Rating         ConsistencyRating `json:"rating"`
	FastestDisplay string            `json:"fastest_display"`
	AverageDisplay string            `json:"average_display"`
}

// Statistics summarises the session's valid laps.
func (s *Session) Statistics() Stats {
	laps := s.ValidLaps()
	durations := Durations(laps)

	stats := Stats{
		LapCount: len(laps),
	}

	if len(laps) == 0 {
		stats.FastestDisplay = laptime.Format(math.NaN())
		stats.AverageDisplay = laptime.Format(math.NaN())
		stats.Rating = Rate(0)

		return stats
	}

	best := BestIndex(laps)
	stats.Fastest = durations[best]
	stats.FastestLap = laps[best].Lap

	var total float64

	for _, d := range durations {
		total += d
	}

	stats.Average = total / float64(len(durations))
	stats.Consistency = Consistency(durations)
	stats.Rating = Rate(stats.Consistency)
	stats.FastestDisplay = laptime.Format(stats.Fastest)
	stats.AverageDisplay = laptime.Format(stats.Average)

	return stats
}

// Consistency is the population standard deviation of the laps under 300s which are within 3% of
// the median lap. It is 0 when there are too few laps to say anything useful.
func Consistency(durations []float64) float64 {
	var times []float64

	for _, d := range durations {
		if d > 0 && d < consistencyLapCeiling {
			times = append(times, d)
		}
	}

	if len(times) < 3 {
		return 0
	}

	sorted := append([]float64(nil), times...)
	sort.Float64s(sorted)

	var median float64

	if mid := len(sorted) / 2; len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	var clean []float64

	for _, t := range times {
		if t <= median*consistencyMedianFactor {
			clean = append(clean, t)
		}
	}

	if len(clean) < 2 {
		return 0
	}

	var sum float64

	for _, t := range clean {
		sum += t
	}

	mean := sum / float64(len(clean))

	var variance float64

	for _, t := range clean {
		variance += (t - mean) * (t - mean)
	}

	return math.Sqrt(variance / float64(len(clean)))
}

func Rate(consistency float64) ConsistencyRating {
	switch {
	case consistency < 0.5:
		return RatingExcellent
	case consistency < 0.9:
		return RatingGood
	case consistency < 1.4:
		return RatingFair
	default:
		return RatingTrafficAffected
	}
}
