// Package chart renders a window of telemetry readings as a line chart.
package chart

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/raster"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

// ErrNoReadings is returned when there is nothing to plot.
var ErrNoReadings = errors.New("no readings to plot")

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkLength = 5
	markerSize     = 2
	lineWidth      = 2

	pixelsPerTimeLabel  = 120
	pixelsPerValueLabel = 40

	defaultWidth  = 800
	defaultHeight = 300

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 70
	defaultBottomBorder = 50
	defaultRightBorder  = 30

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

var (
	defaultLineColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	gridColor        = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Space for the value scale
	Bottom int // Space for the time scale and information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options of the chart
type RenderConfig struct {
	Width  int // Plot area width in pixels
	Height int // Plot area height in pixels

	TimeFormat     string         // Format string for time labels (e.g. "15:04:05")
	DatetimeFormat string         // Format string for date/time in the info bar
	Location       *time.Location // Timezone for time display

	FontSize  float64
	LineColor color.Color

	BorderConfig BorderConfig
}

// Renderer draws line charts of a single reading field over time
type Renderer struct {
	config RenderConfig
	font   *truetype.Font
}

// NewRenderer creates a new chart renderer with the given configuration
func NewRenderer(config RenderConfig) (*Renderer, error) {
	if config.Width <= 0 {
		config.Width = defaultWidth
	}
	if config.Height <= 0 {
		config.Height = defaultHeight
	}
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.LineColor == nil {
		config.LineColor = defaultLineColor
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &Renderer{config: config, font: parsedFont}, nil
}

// Render creates an image of field over the readings time span. Readings are
// plotted in the order given, callers pass them ascending by timestamp.
func (r *Renderer) Render(readings []telemetry.Reading, field Field) (*image.RGBA, error) {
	if len(readings) == 0 {
		return nil, ErrNoReadings
	}

	s := newSeries(readings, field)

	fullWidth := r.config.Width + r.config.BorderConfig.Left + r.config.BorderConfig.Right
	fullHeight := r.config.Height + r.config.BorderConfig.Top + r.config.BorderConfig.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	plotArea := image.Rect(
		r.config.BorderConfig.Left,
		r.config.BorderConfig.Top,
		r.config.BorderConfig.Left+r.config.Width,
		r.config.BorderConfig.Top+r.config.Height,
	)

	ann := newAnnotator(r.font, annotatorConfig{
		TimeFormat:     r.config.TimeFormat,
		DatetimeFormat: r.config.DatetimeFormat,
		Location:       r.config.Location,
		FontSize:       r.config.FontSize,
		Borders:        r.config.BorderConfig,
	})
	defer ann.Close()

	// grid and labels first, the line goes on top
	if err := ann.annotate(img, plotArea, s); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	r.drawAxes(img, plotArea)
	r.drawLine(img, plotArea, s)

	return img, nil
}

func (r *Renderer) drawAxes(img *image.RGBA, area image.Rectangle) {
	for x := area.Min.X; x <= area.Max.X; x++ {
		img.Set(x, area.Max.Y, color.Black)
	}
	for y := area.Min.Y; y <= area.Max.Y; y++ {
		img.Set(area.Min.X, y, color.Black)
	}
}

// drawLine strokes the polyline through all points and marks every point.
func (r *Renderer) drawLine(img *image.RGBA, area image.Rectangle, s *series) {
	var path raster.Path
	for i := range s.values {
		x, y := s.point(i, area)
		p := fixed.Point26_6{X: toFixed(x), Y: toFixed(y)}
		if i == 0 {
			path.Start(p)
			continue
		}
		path.Add1(p)
	}

	if len(s.values) > 1 {
		rasterizer := raster.NewRasterizer(img.Bounds().Dx(), img.Bounds().Dy())
		rasterizer.UseNonZeroWinding = true
		rasterizer.AddStroke(path, fixed.I(lineWidth), nil, nil)

		painter := raster.NewRGBAPainter(img)
		painter.SetColor(r.config.LineColor)
		rasterizer.Rasterize(painter)
	}

	src := image.NewUniform(r.config.LineColor)
	for i := range s.values {
		x, y := s.point(i, area)
		cx, cy := int(math.Round(x)), int(math.Round(y))
		marker := image.Rect(cx-markerSize, cy-markerSize, cx+markerSize+1, cy+markerSize+1)
		draw.Draw(img, marker.Intersect(img.Bounds()), src, image.Point{}, draw.Over)
	}
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}

// series holds the plotted values and their scales.
type series struct {
	field      Field
	timestamps []time.Time
	values     []float64

	start, end time.Time
	min, max   float64 // data range
	low, high  float64 // scale range
}

func newSeries(readings []telemetry.Reading, field Field) *series {
	s := series{
		field:      field,
		timestamps: make([]time.Time, len(readings)),
		values:     make([]float64, len(readings)),
		start:      readings[0].Timestamp,
		end:        readings[0].Timestamp,
		min:        math.Inf(1),
		max:        math.Inf(-1),
	}

	for i, rd := range readings {
		v := field.Value(rd)

		s.timestamps[i] = rd.Timestamp
		s.values[i] = v
		s.min = min(s.min, v)
		s.max = max(s.max, v)

		if rd.Timestamp.Before(s.start) {
			s.start = rd.Timestamp
		}
		if rd.Timestamp.After(s.end) {
			s.end = rd.Timestamp
		}
	}

	// flat line sits in the middle of the plot
	span := s.max - s.min
	if span == 0 {
		span = math.Max(math.Abs(s.max)*0.1, 1)
		s.low, s.high = s.min-span/2, s.max+span/2
	} else {
		s.low, s.high = s.min-span*0.05, s.max+span*0.05
	}

	return &s
}

func (s *series) last() float64 {
	return s.values[len(s.values)-1]
}

// point maps the i-th value onto the plot area. Readings sharing a single
// timestamp are spread evenly instead.
func (s *series) point(i int, area image.Rectangle) (float64, float64) {
	var xRatio float64
	switch duration := s.end.Sub(s.start); {
	case duration > 0:
		xRatio = float64(s.timestamps[i].Sub(s.start)) / float64(duration)
	case len(s.values) > 1:
		xRatio = float64(i) / float64(len(s.values)-1)
	default:
		xRatio = 0.5
	}

	yRatio := (s.values[i] - s.low) / (s.high - s.low)

	x := float64(area.Min.X) + xRatio*float64(area.Dx())
	y := float64(area.Max.Y) - yRatio*float64(area.Dy())
	return x, y
}

// y maps a value to the plot area row.
func (s *series) y(v float64, area image.Rectangle) int {
	yRatio := (v - s.low) / (s.high - s.low)
	return area.Max.Y - int(math.Round(yRatio*float64(area.Dy())))
}
