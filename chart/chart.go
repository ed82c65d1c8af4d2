// Package chart renders a forecast as a PNG line chart.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/devskill-org/pvyield/yield"
)

// ErrNoPoints is returned when there is nothing to draw.
var ErrNoPoints = errors.New("chart: no forecast points")

var (
	powerColor = color.RGBA{R: 230, G: 140, B: 0, A: 255}
	rawColor   = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	tempColor  = color.RGBA{R: 200, G: 40, B: 40, A: 255}
)

// Options control the chart layout.
type Options struct {
	Title    string
	Width    vg.Length
	Height   vg.Length
	Location *time.Location
}

// DefaultOptions returns a 24x14 cm chart in local time.
func DefaultOptions() Options {
	return Options{
		Title:    "PV forecast",
		Width:    24 * vg.Centimeter,
		Height:   14 * vg.Centimeter,
		Location: time.Local,
	}
}

// Render draws power (kW) and module temperature (°C) over time as two
// stacked panels sharing the time axis and writes the PNG to w.
func Render(w io.Writer, points []yield.Point, opts Options) error {
	if len(points) == 0 {
		return ErrNoPoints
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		def := DefaultOptions()
		opts.Width, opts.Height = def.Width, def.Height
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	power := make(plotter.XYs, len(points))
	raw := make(plotter.XYs, len(points))
	temp := make(plotter.XYs, len(points))
	for i, p := range points {
		x := float64(p.Time.Unix())
		power[i] = plotter.XY{X: x, Y: p.PowerKW}
		raw[i] = plotter.XY{X: x, Y: p.RawPowerKW}
		temp[i] = plotter.XY{X: x, Y: p.TempModule}
	}

	powerPlot := newPanel(opts, opts.Title, "Power (kW)")
	if err := addLine(powerPlot, raw, rawColor, "uncorrected", true); err != nil {
		return err
	}
	if err := addLine(powerPlot, power, powerColor, "forecast", false); err != nil {
		return err
	}
	powerPlot.Y.Min = 0

	tempPlot := newPanel(opts, "", "Module temperature (°C)")
	if err := addLine(tempPlot, temp, tempColor, "module", false); err != nil {
		return err
	}

	img := vgimg.New(opts.Width, opts.Height)
	dc := draw.New(img)
	plots := [][]*plot.Plot{{powerPlot}, {tempPlot}}
	canvases := plot.Align(plots, draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Millimeter * 2}, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	return nil
}

func newPanel(opts Options, title, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = yLabel
	p.X.Tick.Marker = plot.TimeTicks{
		Format: "Jan 02\n15:04",
		Time:   plot.UnixTimeIn(opts.Location),
	}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

func addLine(p *plot.Plot, xys plotter.XYs, c color.Color, name string, dashed bool) error {
	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("build %s line: %w", name, err)
	}
	line.Color = c
	line.Width = vg.Points(1.5)
	if dashed {
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	}
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}
