// Package chart lays out and draws the lap time chart.
//
// Compute is a pure function from laps and a playhead to Geometry. Geometry answers hit tests and
// click positions, and Render draws it onto any draw2d graphic context.
package chart

import (
	"fmt"
	"image/color"
	"math"
	"strconv"

	"github.com/JustaPenguin/kart-session-viewer/pkg/laptime"
	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
	"github.com/JustaPenguin/kart-session-viewer/pkg/timeline"
)

const (
	Padding     = 60
	HitRadius   = 15
	PointRadius = 5

	starOuterRadius  = 10
	starInnerRadius  = 5
	markerHalfWidth  = 20
	horizontalLines  = 5
	maxXLabels       = 10
	xLabelFromBottom = 25
)

// Colors is a line and point colour pair.
type Colors struct {
	Line  color.RGBA
	Point color.RGBA
}

var (
	PrimaryColors = Colors{Line: hex("#f44336"), Point: hex("#ff5252")}
	Gold          = hex("#ffd700")

	// ComparisonPalette colours comparisons by their position in the comparison list.
	ComparisonPalette = []Colors{
		{hex("#4caf50"), hex("#8bc34a")},
		{hex("#2196f3"), hex("#64b5f6")},
		{hex("#ff9800"), hex("#ffb74d")},
		{hex("#9c27b0"), hex("#ba68c8")},
		{hex("#00bcd4"), hex("#4dd0e1")},
		{hex("#ffeb3b"), hex("#fff176")},
		{hex("#795548"), hex("#a1887f")},
		{hex("#e91e63"), hex("#f06292")},
	}
)

func hex(s string) color.RGBA {
	v, err := strconv.ParseUint(s[1:], 16, 32)

	if err != nil {
		panic(err)
	}

	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

// HexString renders a colour as #rrggbb.
func HexString(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func ComparisonColors(index int) Colors {
	return ComparisonPalette[index%len(ComparisonPalette)]
}

// Dataset is one session's valid laps.
type Dataset struct {
	SessionID   string
	Driver      string
	SessionDate string
	Kart        string
	// FastestLap is the session's recorded fastest lap time, which marks the best lap when it
	// matches a lap exactly.
	FastestLap string
	Laps       []session.Lap
}

func (d Dataset) bestIndex() int {
	s := session.Session{FastestLap: d.FastestLap, Laps: d.Laps}

	return s.FastestLapIndex()
}

type Playhead struct {
	VideoTime float64
	HasTime   bool
	// MarkerLap is drawn instead when the video time is unknown.
	MarkerLap int
}

type Input struct {
	Primary     Dataset
	Comparisons []Dataset
	// Timeline is the primary video's lap start table.
	Timeline timeline.Table
	Playhead Playhead
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Point struct {
	X, Y         float64
	Lap          session.Lap
	LapNumber    int
	Seconds      float64
	Comparison   bool
	SessionIndex int
	Best         bool

	series int
}

// ID identifies a point across redraws.
func (p Point) ID() string {
	return fmt.Sprintf("%d-%t-%d", p.LapNumber, p.Comparison, p.SessionIndex)
}

type Series struct {
	Dataset    Dataset
	Colors     Colors
	Comparison bool
	// SessionIndex is the position in the comparison list, -1 for the primary.
	SessionIndex int
	Points       []Point
	BestIndex    int
	Fastest      float64
}

type Label struct {
	X, Y float64
	Text string
}

type PlayheadLine struct {
	Visible bool
	// Fractional lines come from the video time and move within a lap. Otherwise the line is the
	// coarse lap marker.
	Fractional bool
	X          float64
	Index      float64
}

// Geometry is everything needed to draw the chart and interpret pointer positions on it.
type Geometry struct {
	Size        Size
	ChartWidth  float64
	ChartHeight float64
	Empty       bool

	// Series holds the comparisons first and the primary last, in drawing order.
	Series  []Series
	MaxLaps int
	Step    float64

	Min, Max, Range float64
	BaselineY       float64

	Playhead PlayheadLine
	XLabels  []Label
	YLabels  []Label
}

// Compute lays out the chart for the given size.
func Compute(input Input, size Size) Geometry {
	g := Geometry{
		Size:        size,
		ChartWidth:  size.Width - Padding*2,
		ChartHeight: size.Height - Padding*2,
	}

	datasets := append(append([]Dataset(nil), input.Comparisons...), input.Primary)

	g.Min = math.Inf(1)
	g.Max = math.Inf(-1)

	for _, dataset := range datasets {
		for _, d := range session.Durations(dataset.Laps) {
			g.Min = math.Min(g.Min, d)
			g.Max = math.Max(g.Max, d)
		}

		if len(dataset.Laps) > g.MaxLaps {
			g.MaxLaps = len(dataset.Laps)
		}
	}

	if g.MaxLaps == 0 || math.IsInf(g.Min, 0) {
		g.Empty = true
		g.Min, g.Max = 0, 0
		return g
	}

	g.Range = g.Max - g.Min

	if g.Range == 0 {
		g.Range = 1
	}

	divisions := g.MaxLaps - 1

	if divisions == 0 {
		divisions = 1
	}

	g.Step = g.ChartWidth / float64(divisions)
	g.BaselineY = g.y(g.Min)

	for i, dataset := range datasets {
		series := Series{
			Dataset:      dataset,
			Comparison:   i < len(input.Comparisons),
			SessionIndex: -1,
			Colors:       PrimaryColors,
			BestIndex:    dataset.bestIndex(),
			Fastest:      math.Inf(1),
		}

		if series.Comparison {
			series.SessionIndex = i
			series.Colors = ComparisonColors(i)
		}

		for j, lap := range dataset.Laps {
			seconds := lap.Seconds()
			series.Fastest = math.Min(series.Fastest, seconds)

			series.Points = append(series.Points, Point{
				X:            g.x(float64(j)),
				Y:            g.y(seconds),
				Lap:          lap,
				LapNumber:    lap.Lap,
				Seconds:      seconds,
				Comparison:   series.Comparison,
				SessionIndex: series.SessionIndex,
				Best:         j == series.BestIndex,
				series:       i,
			})
		}

		g.Series = append(g.Series, series)
	}

	g.Playhead = g.playhead(input)

	for i := 0; i < g.MaxLaps; i++ {
		if i%int(math.Ceil(float64(g.MaxLaps)/maxXLabels)) == 0 || i == g.MaxLaps-1 {
			g.XLabels = append(g.XLabels, Label{X: g.x(float64(i)), Y: size.Height - xLabelFromBottom, Text: "L" + strconv.Itoa(i+1)})
		}
	}

	for i := 0; i <= horizontalLines; i++ {
		g.YLabels = append(g.YLabels, Label{
			X:    Padding - 10,
			Y:    Padding + g.ChartHeight/horizontalLines*float64(i),
			Text: laptime.Format(g.Max - g.Range/horizontalLines*float64(i)),
		})
	}

	return g
}

func (g Geometry) x(index float64) float64 {
	return Padding + g.Step*index
}

func (g Geometry) y(seconds float64) float64 {
	return Padding + g.ChartHeight - (seconds-g.Min)/g.Range*g.ChartHeight
}

func (g Geometry) playhead(input Input) PlayheadLine {
	primary := input.Primary.Laps

	if input.Playhead.HasTime && len(input.Timeline) > 0 {
		lap := input.Timeline.CurrentLap(input.Playhead.VideoTime)
		index := float64(lap - 1)

		if lap-1 < len(primary) {
			start, _ := input.Timeline.Start(lap)

			if duration := primary[lap-1].Seconds(); duration > 0 {
				progress := (input.Playhead.VideoTime - start) / duration
				index += math.Max(0, math.Min(1, progress))
			}
		}

		return PlayheadLine{Visible: true, Fractional: true, X: g.x(index), Index: index}
	}

	if lap := input.Playhead.MarkerLap; lap > 0 && lap <= len(primary) {
		return PlayheadLine{Visible: true, X: g.x(float64(lap - 1)), Index: float64(lap - 1)}
	}

	return PlayheadLine{}
}

// Primary is the primary session's series.
func (g Geometry) Primary() (Series, bool) {
	if len(g.Series) == 0 {
		return Series{}, false
	}

	return g.Series[len(g.Series)-1], true
}

// Nearest finds the closest point within HitRadius of (x, y).
func (g Geometry) Nearest(x, y float64) (Point, bool) {
	var closest Point
	found := false
	minDistance := math.Inf(1)

	for _, series := range g.Series {
		for _, p := range series.Points {
			distance := math.Hypot(x-p.X, y-p.Y)

			if distance < HitRadius && distance < minDistance {
				minDistance = distance
				closest = p
				found = true
			}
		}
	}

	return closest, found
}

// LapAt converts an x position into a lap index of the primary session and the fraction through
// that lap. ok is false outside the plot or beyond the primary's laps.
func (g Geometry) LapAt(x float64) (index int, fraction float64, ok bool) {
	if g.Empty || g.Step <= 0 {
		return 0, 0, false
	}

	relative := x - Padding

	if relative < 0 || relative > g.ChartWidth {
		return 0, 0, false
	}

	effective := relative / g.Step
	index = int(math.Floor(effective))
	fraction = effective - float64(index)

	primary, _ := g.Primary()

	if index < 0 || index >= len(primary.Dataset.Laps) {
		return 0, 0, false
	}

	return index, fraction, true
}

// Legend lists each dataset with its lap count, primary first.
func (g Geometry) Legend() []LegendEntry {
	var out []LegendEntry

	if primary, ok := g.Primary(); ok {
		out = append(out, legendEntry(primary))
	}

	for i := 0; i < len(g.Series)-1; i++ {
		out = append(out, legendEntry(g.Series[i]))
	}

	return out
}

type LegendEntry struct {
	Label string `json:"label"`
	Line  string `json:"line"`
	Point string `json:"point"`
}

func legendEntry(series Series) LegendEntry {
	return LegendEntry{
		Label: fmt.Sprintf("%s (%d laps)", series.Dataset.Driver, len(series.Dataset.Laps)),
		Line:  HexString(series.Colors.Line),
		Point: HexString(series.Colors.Point),
	}
}
