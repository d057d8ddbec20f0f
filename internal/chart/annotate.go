package chart

import (
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
)

type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(f *truetype.Font, config annotatorConfig) *annotator {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(f)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(f, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, area image.Rectangle, s *series) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawTitle(s); err != nil {
		return fmt.Errorf("drawing title: %w", err)
	}
	if err := a.drawValueScale(img, area, s); err != nil {
		return fmt.Errorf("drawing value scale: %w", err)
	}
	if err := a.drawTimeScale(img, area, s); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, s); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawTitle(s *series) error {
	title := s.field.Title()
	if unit := s.field.Unit(); unit != "" {
		title += " (" + unit + ")"
	}

	textY := (a.config.Borders.Top + a.fontHeight()) / 2
	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(title, pt); err != nil {
		return fmt.Errorf("drawing title text: %w", err)
	}
	return nil
}

func (a *annotator) drawValueScale(img *image.RGBA, area image.Rectangle, s *series) error {
	step := calculateNiceStep(s.high-s.low, area.Dy()/pixelsPerValueLabel)
	metrics := a.fontFace.Metrics()

	for v := math.Ceil(s.low/step) * step; v <= s.high; v += step {
		y := s.y(v, area)

		// grid line across the plot, tick mark into the border
		for x := area.Min.X - tickMarkLength; x < area.Max.X; x++ {
			if x < area.Min.X {
				img.Set(x, y, image.Black)
				continue
			}
			img.Set(x, y, gridColor)
		}

		label := humanize.FtoaWithDigits(v, 3)
		width := font.MeasureString(a.fontFace, label).Round()
		textY := y + a.fontHeight()/2 - metrics.Descent.Round()
		pt := freetype.Pt(area.Min.X-tickMarkLength-3-width, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing value label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, area image.Rectangle, s *series) error {
	duration := s.end.Sub(s.start)

	count := max(area.Dx()/pixelsPerTimeLabel, 1)
	if duration == 0 {
		count = 0 // a single label in the middle
	}

	textY := area.Max.Y + tickMarkLength + a.fontHeight()
	for i := 0; i <= count; i++ {
		var ratio float64
		if count == 0 {
			ratio = 0.5
		} else {
			ratio = float64(i) / float64(count)
		}

		x := area.Min.X + int(math.Round(ratio*float64(area.Dx())))
		for y := area.Max.Y; y < area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, image.Black)
		}

		at := s.start.Add(time.Duration(ratio * float64(duration)))
		label := at.In(a.config.Location).Format(a.config.TimeFormat)
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(x-width/2, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, s *series) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Min: %s; Max: %s; Last: %s",
		formatValue(s.field, s.min),
		formatValue(s.field, s.max),
		formatValue(s.field, s.last())))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("%s readings", humanize.Comma(int64(len(s.values)))))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		s.start.In(a.config.Location).Format(a.config.DatetimeFormat),
		s.end.In(a.config.Location).Format(a.config.DatetimeFormat)))

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - metrics.Descent.Round() - 3

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

// formatValue renders v with the field unit. Current is reported in mA and
// rescaled to the closest SI prefix.
func formatValue(f Field, v float64) string {
	if f == FieldCurrent {
		return humanize.SIWithDigits(v/1000, 2, "A")
	}
	return humanize.FtoaWithDigits(v, 3) + " " + f.Unit()
}

// calculateNiceStep returns a 1, 2 or 5 times power of ten step dividing
// span into about n intervals.
func calculateNiceStep(span float64, n int) float64 {
	if n < 1 {
		n = 1
	}
	if span <= 0 {
		return 1
	}

	rough := span / float64(n)
	magnitude := math.Pow(10, math.Floor(math.Log10(rough)))

	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= rough {
			return step
		}
	}
	return 10 * magnitude
}
