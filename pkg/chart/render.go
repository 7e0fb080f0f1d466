package chart

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync"

	"github.com/golang/freetype/truetype"
	"github.com/llgcode/draw2d"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
	"github.com/llgcode/draw2d/draw2dsvg"
	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/JustaPenguin/kart-session-viewer/pkg/laptime"
)

var (
	regularFont = draw2d.FontData{Name: "go", Family: draw2d.FontFamilySans, Style: draw2d.FontStyleNormal}
	boldFont    = draw2d.FontData{Name: "go", Family: draw2d.FontFamilySans, Style: draw2d.FontStyleBold}

	background = color.RGBA{R: 0x12, G: 0x12, B: 0x12, A: 0xff}
	white      = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	grey       = color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}

	// draw2d's font cache is global
	mu       = sync.Mutex{}
	fontOnce = sync.Once{}
)

func registerFonts() {
	fontOnce.Do(func() {
		for data, ttf := range map[draw2d.FontData][]byte{regularFont: goregular.TTF, boldFont: gobold.TTF} {
			font, err := truetype.Parse(ttf)

			if err != nil {
				logrus.WithError(err).Error("chart: could not parse embedded font")
				continue
			}

			draw2d.RegisterFont(data, font)
		}
	})
}

// SetFontFolder makes the chart load its fonts from folder instead of using the embedded Go
// fonts. The files follow draw2d's naming, gosr.ttf and gosb.ttf. It must be called before the
// first chart is drawn.
func SetFontFolder(folder string) {
	mu.Lock()
	defer mu.Unlock()

	draw2d.SetFontFolder(folder)
	fontOnce.Do(func() {})
}

func alpha(c color.RGBA, a float64) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(math.Round(a * 0xff))}
}

// Render draws the chart onto gc.
func Render(gc draw2d.GraphicContext, g Geometry) {
	registerFonts()

	gc.SetFillColor(background)
	gc.BeginPath()
	draw2dkit.Rectangle(gc, 0, 0, g.Size.Width, g.Size.Height)
	gc.Fill()

	if g.Empty {
		gc.SetFontData(regularFont)
		gc.SetFontSize(16)
		gc.SetFillColor(grey)
		fillText(gc, "No lap data available", g.Size.Width/2, g.Size.Height/2, alignCenter, false)

		return
	}

	drawGrid(gc, g)
	drawBaseline(gc, g)
	drawPlayhead(gc, g)

	for _, series := range g.Series {
		drawSeries(gc, series)
	}

	for _, series := range g.Series {
		if series.BestIndex >= 0 && series.BestIndex < len(series.Points) {
			p := series.Points[series.BestIndex]
			drawStar(gc, p.X, p.Y)
		}
	}

	drawLabels(gc, g)
}

func strokeLine(gc draw2d.GraphicContext, x1, y1, x2, y2 float64) {
	gc.BeginPath()
	gc.MoveTo(x1, y1)
	gc.LineTo(x2, y2)
	gc.Stroke()
}

func drawGrid(gc draw2d.GraphicContext, g Geometry) {
	gc.SetLineWidth(1)
	gc.SetStrokeColor(alpha(white, 0.05))

	for i := 0; i <= horizontalLines; i++ {
		y := Padding + g.ChartHeight/horizontalLines*float64(i)
		strokeLine(gc, Padding, y, g.Size.Width-Padding, y)
	}

	gc.SetStrokeColor(alpha(white, 0.03))

	for i := 0; i < g.MaxLaps; i++ {
		x := g.x(float64(i))
		strokeLine(gc, x, Padding, x, g.Size.Height-Padding)
	}
}

func drawBaseline(gc draw2d.GraphicContext, g Geometry) {
	gc.Save()
	defer gc.Restore()

	gc.SetStrokeColor(alpha(Gold, 0.4))
	gc.SetLineWidth(2)
	gc.SetLineDash([]float64{8, 4}, 0)
	strokeLine(gc, Padding, g.BaselineY, g.Size.Width-Padding, g.BaselineY)
	gc.SetLineDash(nil, 0)

	gc.SetFontData(boldFont)
	gc.SetFontSize(12)
	gc.SetFillColor(alpha(Gold, 0.9))
	fillText(gc, "Best: "+laptime.Format(g.Min), Padding+8, g.BaselineY-8, alignLeft, false)
}

func drawPlayhead(gc draw2d.GraphicContext, g Geometry) {
	if !g.Playhead.Visible {
		return
	}

	x := g.Playhead.X
	top, bottom := float64(Padding), g.Size.Height-Padding

	gc.Save()
	defer gc.Restore()

	if g.Playhead.Fractional {
		gc.SetStrokeColor(white)
		gc.SetLineWidth(2)
		strokeLine(gc, x, top, x, bottom)

		gc.SetFillColor(white)
		gc.BeginPath()
		draw2dkit.Circle(gc, x, top, 5)
		gc.Fill()
		gc.BeginPath()
		draw2dkit.Circle(gc, x, bottom, 4)
		gc.Fill()

		return
	}

	gc.SetFillColor(alpha(PrimaryColors.Line, 0.1))
	gc.BeginPath()
	draw2dkit.Rectangle(gc, x-markerHalfWidth, top, x+markerHalfWidth, bottom)
	gc.Fill()

	gc.SetStrokeColor(alpha(PrimaryColors.Line, 0.6))
	gc.SetLineWidth(2)
	gc.SetLineDash([]float64{4, 4}, 0)
	strokeLine(gc, x, top, x, bottom)
	gc.SetLineDash(nil, 0)
}

func drawSeries(gc draw2d.GraphicContext, series Series) {
	if len(series.Points) == 0 {
		return
	}

	gc.Save()
	defer gc.Restore()

	gc.SetStrokeColor(series.Colors.Line)
	gc.SetLineWidth(3)
	gc.SetLineCap(draw2d.RoundCap)
	gc.SetLineJoin(draw2d.RoundJoin)

	gc.BeginPath()

	for i, p := range series.Points {
		if i == 0 {
			gc.MoveTo(p.X, p.Y)
		} else {
			gc.LineTo(p.X, p.Y)
		}
	}

	gc.Stroke()

	gc.SetFillColor(series.Colors.Point)
	gc.SetStrokeColor(white)
	gc.SetLineWidth(2)

	for _, p := range series.Points {
		gc.BeginPath()
		draw2dkit.Circle(gc, p.X, p.Y, PointRadius)
		gc.FillStroke()
	}
}

func drawStar(gc draw2d.GraphicContext, x, y float64) {
	gc.Save()
	defer gc.Restore()

	gc.SetFillColor(Gold)
	gc.SetStrokeColor(white)
	gc.SetLineWidth(1.5)
	gc.BeginPath()

	for i := 0; i < 5; i++ {
		angle := float64(i)*4*math.Pi/5 - math.Pi/2
		radius := float64(starOuterRadius)

		if i%2 == 1 {
			radius = starInnerRadius
		}

		px, py := x+math.Cos(angle)*radius, y+math.Sin(angle)*radius

		if i == 0 {
			gc.MoveTo(px, py)
		} else {
			gc.LineTo(px, py)
		}
	}

	gc.Close()
	gc.FillStroke()
}

func drawLabels(gc draw2d.GraphicContext, g Geometry) {
	gc.SetFontData(regularFont)
	gc.SetFontSize(11)
	gc.SetFillColor(alpha(white, 0.6))

	for _, label := range g.XLabels {
		fillText(gc, label.Text, label.X, label.Y, alignCenter, false)
	}

	for _, label := range g.YLabels {
		fillText(gc, label.Text, label.X, label.Y, alignRight, true)
	}
}

type align int

const (
	alignLeft align = iota
	alignCenter
	alignRight
)

func fillText(gc draw2d.GraphicContext, text string, x, y float64, a align, middle bool) {
	left, top, right, bottom := gc.GetStringBounds(text)
	width := right - left

	switch a {
	case alignCenter:
		x -= width / 2
	case alignRight:
		x -= width
	}

	if middle {
		y -= (top + bottom) / 2
	}

	gc.FillStringAt(text, x, y)
}

// RenderSVG writes the chart as an SVG document.
func RenderSVG(w io.Writer, g Geometry) error {
	mu.Lock()
	defer mu.Unlock()

	svg := draw2dsvg.NewSvg()
	gc := draw2dsvg.NewGraphicContext(svg)

	Render(gc, g)

	buf := new(bytes.Buffer)
	buf.WriteString(xml.Header)

	encoder := xml.NewEncoder(buf)
	encoder.Indent("", "\t")

	if err := encoder.Encode(svg); err != nil {
		return err
	}

	// the encoded root element has no dimensions of its own
	out := bytes.Replace(buf.Bytes(), []byte("<svg "), []byte(fmt.Sprintf(`<svg width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f" `, g.Size.Width, g.Size.Height, g.Size.Width, g.Size.Height)), 1)

	_, err := w.Write(out)

	return err
}

// supersample is how much larger than the output a PNG is drawn before being scaled down.
const supersample = 2

// RenderPNG writes the chart as a PNG at the given pixel ratio.
func RenderPNG(w io.Writer, g Geometry, pixelRatio float64) error {
	img := RenderImage(g, pixelRatio)

	return png.Encode(w, img)
}

// RenderImage draws the chart at pixelRatio times its size. It is drawn larger still and
// downsampled, which gives smoother lines than draw2d's own antialiasing.
func RenderImage(g Geometry, pixelRatio float64) image.Image {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}

	mu.Lock()
	defer mu.Unlock()

	scale := pixelRatio * supersample
	width := uint(math.Ceil(g.Size.Width * pixelRatio))
	height := uint(math.Ceil(g.Size.Height * pixelRatio))

	dest := image.NewRGBA(image.Rect(0, 0, int(width)*supersample, int(height)*supersample))
	gc := draw2dimg.NewGraphicContext(dest)
	gc.Scale(scale, scale)

	Render(gc, g)

	return resize.Resize(width, height, dest, resize.Lanczos3)
}
