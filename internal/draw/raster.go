package draw

import (
	"bytes"
	"fmt"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"go-fraud-visuals-ui/internal/viz"
)

// pointsPerPixel converts scene units to go-chart font points at its default 96 DPI.
const pointsPerPixel = 72.0 / 96.0

// Canvas replays scene primitives onto a go-chart renderer, scaled and offset so a scene
// can be placed anywhere on a larger image.
type Canvas struct {
	R      chart.Renderer
	Theme  Theme
	Scale  float64
	OffX   float64
	OffY   float64
	fontOK bool
}

// NewCanvas wraps a renderer. A missing default font only disables text primitives.
func NewCanvas(r chart.Renderer, theme Theme, scale, offX, offY float64) *Canvas {
	c := &Canvas{R: r, Theme: theme, Scale: scale, OffX: offX, OffY: offY}
	if f, err := chart.GetDefaultFont(); err == nil {
		r.SetFont(f)
		c.fontOK = true
	}
	return c
}

// PNG rasterises a scene at the given scale on the theme background.
func PNG(scene viz.Scene, theme Theme, scale float64) ([]byte, error) {
	if scale <= 0 {
		scale = 1
	}
	w := int(math.Ceil(scene.Width * scale))
	h := int(math.Ceil(scene.Height * scale))
	r, err := chart.PNG(w, h)
	if err != nil {
		return nil, fmt.Errorf("create png renderer: %w", err)
	}
	c := NewCanvas(r, theme, scale, 0, 0)
	c.FillRect(0, 0, scene.Width, scene.Height, 0, themeColor(theme.Background))
	c.Draw(scene)

	var buf bytes.Buffer
	if err := r.Save(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Draw replays every primitive of the scene in order.
func (c *Canvas) Draw(scene viz.Scene) {
	for _, el := range scene.Elements {
		switch e := el.(type) {
		case viz.Line:
			c.R.ResetStyle()
			c.R.SetStrokeColor(c.Theme.Color(e.Stroke))
			c.R.SetStrokeWidth(e.Width * c.Scale)
			if len(e.Dash) > 0 {
				dash := make([]float64, len(e.Dash))
				for i, d := range e.Dash {
					dash[i] = d * c.Scale
				}
				c.R.SetStrokeDashArray(dash)
			}
			c.R.MoveTo(c.x(e.X1), c.y(e.Y1))
			c.R.LineTo(c.x(e.X2), c.y(e.Y2))
			c.R.Stroke()
		case viz.Polyline:
			if len(e.Points) == 0 {
				continue
			}
			c.R.ResetStyle()
			c.R.SetStrokeColor(c.Theme.Color(e.Stroke))
			c.R.SetStrokeWidth(e.Width * c.Scale)
			c.R.MoveTo(c.x(e.Points[0].X), c.y(e.Points[0].Y))
			for _, p := range e.Points[1:] {
				c.R.LineTo(c.x(p.X), c.y(p.Y))
			}
			c.R.Stroke()
		case viz.Rect:
			if e.Height <= 0 || e.Width <= 0 {
				continue
			}
			c.FillRect(e.X, e.Y, e.Width, e.Height, e.Radius, c.Theme.Color(e.Fill))
		case viz.Wedge:
			if e.Sweep <= 0 {
				continue
			}
			col := c.Theme.Color(e.Fill)
			c.R.ResetStyle()
			c.R.SetFillColor(col)
			c.R.SetStrokeColor(col)
			c.R.SetStrokeWidth(0.5)
			cx, cy := c.x(e.CX), c.y(e.CY)
			rad := e.R * c.Scale
			c.R.MoveTo(cx, cy)
			c.R.ArcTo(cx, cy, rad, rad, e.Start, e.Sweep)
			c.R.LineTo(cx, cy)
			c.R.Close()
			c.R.FillStroke()
		case viz.Circle:
			col := c.Theme.Color(e.Fill)
			c.R.ResetStyle()
			c.R.SetFillColor(col)
			c.R.SetStrokeColor(col)
			c.R.SetStrokeWidth(0.5)
			c.R.Circle(e.R*c.Scale, c.x(e.CX), c.y(e.CY))
			c.R.FillStroke()
		case viz.Text:
			c.Text(e.Body, e.X, e.Y, e.Size, e.Anchor, c.Theme.Color(e.Fill))
		}
	}
}

// FillRect fills a rectangle given in scene units, rounding the corners when radius > 0.
func (c *Canvas) FillRect(x, y, w, h, radius float64, col drawing.Color) {
	c.R.ResetStyle()
	c.R.SetFillColor(col)
	c.path(x, y, w, h, radius)
	c.R.Fill()
}

// StrokeRect outlines a rectangle given in scene units.
func (c *Canvas) StrokeRect(x, y, w, h, radius, width float64, col drawing.Color) {
	c.R.ResetStyle()
	c.R.SetStrokeColor(col)
	c.R.SetStrokeWidth(width)
	c.path(x, y, w, h, radius)
	c.R.Stroke()
}

// Text draws a single line of text with its baseline at y.
func (c *Canvas) Text(body string, x, y, size float64, anchor string, col drawing.Color) {
	if !c.fontOK || body == "" {
		return
	}
	c.R.ResetStyle()
	c.R.SetFontColor(col)
	c.R.SetFontSize(size * c.Scale * pointsPerPixel)
	px := c.x(x)
	switch anchor {
	case "end":
		px -= c.R.MeasureText(body).Width()
	case "middle":
		px -= c.R.MeasureText(body).Width() / 2
	}
	c.R.Text(body, px, c.y(y))
}

func (c *Canvas) path(x, y, w, h, radius float64) {
	radius = math.Min(radius, math.Min(w, h)/2)
	x0, y0 := c.x(x), c.y(y)
	x1, y1 := c.x(x+w), c.y(y+h)
	if radius <= 0 {
		c.R.MoveTo(x0, y0)
		c.R.LineTo(x1, y0)
		c.R.LineTo(x1, y1)
		c.R.LineTo(x0, y1)
		c.R.Close()
		return
	}
	r := int(math.Round(radius * c.Scale))
	c.R.MoveTo(x0+r, y0)
	c.R.LineTo(x1-r, y0)
	c.R.QuadCurveTo(x1, y0, x1, y0+r)
	c.R.LineTo(x1, y1-r)
	c.R.QuadCurveTo(x1, y1, x1-r, y1)
	c.R.LineTo(x0+r, y1)
	c.R.QuadCurveTo(x0, y1, x0, y1-r)
	c.R.LineTo(x0, y0+r)
	c.R.QuadCurveTo(x0, y0, x0+r, y0)
	c.R.Close()
}

func (c *Canvas) x(v float64) int { return int(math.Round(c.OffX + v*c.Scale)) }
func (c *Canvas) y(v float64) int { return int(math.Round(c.OffY + v*c.Scale)) }

func themeColor(s string) drawing.Color {
	col, err := ParseColor(s)
	if err != nil {
		return drawing.ColorBlack
	}
	return col
}
