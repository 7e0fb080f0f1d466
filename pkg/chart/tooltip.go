package chart

import (
	"fmt"
	"time"

	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
)

const (
	// HoverInterval is the minimum time between two hover hit tests.
	HoverInterval = 50 * time.Millisecond

	tooltipMargin        = 20
	tooltipAboveGap      = 20
	tooltipBelowGap      = 30
	DefaultTooltipWidth  = 180
	DefaultTooltipHeight = 120
)

type Tooltip struct {
	ID          string `json:"id"`
	Driver      string `json:"driver"`
	Color       string `json:"color"`
	LapNumber   int    `json:"lapNumber"`
	LapTime     string `json:"lapTime"`
	Best        bool   `json:"best"`
	Delta       string `json:"delta"`
	SessionDate string `json:"sessionDate"`
	Kart        string `json:"kart"`
}

// Tooltip describes a point. The delta is against the fastest lap of the point's own session.
func (g Geometry) Tooltip(p Point) Tooltip {
	series := g.Series[p.series]
	color := Gold

	if series.Comparison {
		color = series.Colors.Line
	}

	return Tooltip{
		ID:          p.ID(),
		Driver:      series.Dataset.Driver,
		Color:       HexString(color),
		LapNumber:   p.LapNumber,
		LapTime:     p.Lap.Time,
		Best:        p.Best,
		Delta:       Delta(p.Seconds - series.Fastest),
		SessionDate: displayDate(series.Dataset.SessionDate),
		Kart:        series.Dataset.Kart,
	}
}

// Delta renders a lap's difference to the fastest lap.
func Delta(delta float64) string {
	switch {
	case delta == 0:
		return "Fastest"
	case delta > 0:
		return fmt.Sprintf("+%.3fs", delta)
	default:
		return fmt.Sprintf("%.3fs", delta)
	}
}

func displayDate(value string) string {
	if t, ok := session.ParseDate(value); ok {
		return t.Format("Jan 2, 2006")
	}

	return value
}

// Placement positions a tooltip relative to the viewport.
type Placement struct {
	Left  float64 `json:"left"`
	Top   float64 `json:"top"`
	Below bool    `json:"below"`
	// ArrowOffset is how far the arrow sits from the tooltip's centre to keep pointing at the point.
	ArrowOffset float64 `json:"arrowOffset"`
}

// Place centres a tooltip of width by height above the point at (x, y), keeping it 20px inside the
// viewport horizontally and showing it below the point when there is no room above.
func Place(x, y, width, height, viewportWidth float64) Placement {
	if width <= 0 {
		width = DefaultTooltipWidth
	}

	if height <= 0 {
		height = DefaultTooltipHeight
	}

	left := x - width/2
	top := y - height - tooltipAboveGap

	if left < tooltipMargin {
		left = tooltipMargin
	}

	if viewportWidth > 0 && left+width > viewportWidth-tooltipMargin {
		left = viewportWidth - width - tooltipMargin
	}

	below := false

	if top < tooltipMargin {
		top = y + tooltipBelowGap
		below = true
	}

	return Placement{
		Left:        left,
		Top:         top,
		Below:       below,
		ArrowOffset: x - (left + width/2),
	}
}

type HoverAction int

const (
	HoverNone HoverAction = iota
	HoverShow
	HoverHide
)

// Hover tracks which point the pointer is over. Moves arriving within Interval of the last one
// handled are dropped, and a point already shown is not shown again.
type Hover struct {
	Interval time.Duration

	last   time.Time
	active string
}

func (h *Hover) Move(g Geometry, x, y float64, now time.Time) (Point, HoverAction) {
	interval := h.Interval

	if interval == 0 {
		interval = HoverInterval
	}

	if !h.last.IsZero() && now.Sub(h.last) < interval {
		return Point{}, HoverNone
	}

	h.last = now

	p, ok := g.Nearest(x, y)

	if !ok {
		return Point{}, h.Leave()
	}

	if p.ID() == h.active {
		return p, HoverNone
	}

	h.active = p.ID()

	return p, HoverShow
}

// Leave hides the tooltip if one is shown.
func (h *Hover) Leave() HoverAction {
	if h.active == "" {
		return HoverNone
	}

	h.active = ""

	return HoverHide
}

func (h *Hover) Active() string {
	return h.active
}
