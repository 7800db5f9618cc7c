package draw

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"go-fraud-visuals-ui/internal/viz"
)

// SVGOptions controls how scene paints are written.
type SVGOptions struct {
	// Inline resolves theme variables to literal colours. Otherwise paints are
	// written as var(--viz-*) so the page stylesheet decides.
	Inline bool
	Theme  Theme
	ID     string
	Class  string
}

// SVG renders a scene as a standalone <svg> element.
func SVG(scene viz.Scene, opts SVGOptions) string {
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg"`)
	if opts.ID != "" {
		fmt.Fprintf(&b, ` id="%s"`, html.EscapeString(opts.ID))
	}
	if opts.Class != "" {
		fmt.Fprintf(&b, ` class="%s"`, html.EscapeString(opts.Class))
	}
	fmt.Fprintf(&b, ` viewBox="0 0 %s %s" role="img" aria-label="%s">`,
		num(scene.Width), num(scene.Height), html.EscapeString(scene.Title))
	b.WriteString(SVGBody(scene, opts))
	b.WriteString(`</svg>`)
	return b.String()
}

// SVGBody renders only the child elements of a scene, one per primitive.
func SVGBody(scene viz.Scene, opts SVGOptions) string {
	var b strings.Builder
	paint := func(p viz.Paint) string {
		if opts.Inline || !p.IsVar() {
			if opts.Theme.Colors == nil {
				return html.EscapeString(DefaultTheme().Resolve(p))
			}
			return html.EscapeString(opts.Theme.Resolve(p))
		}
		return "var(" + string(p) + ")"
	}
	for _, el := range scene.Elements {
		switch e := el.(type) {
		case viz.Line:
			fmt.Fprintf(&b, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="%s"%s/>`,
				num(e.X1), num(e.Y1), num(e.X2), num(e.Y2), paint(e.Stroke), num(e.Width), dashAttr(e.Dash))
		case viz.Polyline:
			pts := make([]string, len(e.Points))
			for i, p := range e.Points {
				pts[i] = num(p.X) + "," + num(p.Y)
			}
			round := ""
			if e.Round {
				round = ` stroke-linecap="round" stroke-linejoin="round"`
			}
			fmt.Fprintf(&b, `<polyline points="%s" fill="none" stroke="%s" stroke-width="%s"%s/>`,
				strings.Join(pts, " "), paint(e.Stroke), num(e.Width), round)
		case viz.Rect:
			rx := ""
			if e.Radius > 0 {
				rx = ` rx="` + num(e.Radius) + `"`
			}
			fmt.Fprintf(&b, `<rect x="%s" y="%s" width="%s" height="%s"%s fill="%s"/>`,
				num(e.X), num(e.Y), num(e.Width), num(e.Height), rx, paint(e.Fill))
		case viz.Wedge:
			fmt.Fprintf(&b, `<path d="%s" fill="%s"/>`, WedgePath(e), paint(e.Fill))
		case viz.Circle:
			fmt.Fprintf(&b, `<circle cx="%s" cy="%s" r="%s" fill="%s"/>`,
				num(e.CX), num(e.CY), num(e.R), paint(e.Fill))
		case viz.Text:
			anchor := ""
			if e.Anchor != "" {
				anchor = ` text-anchor="` + html.EscapeString(e.Anchor) + `"`
			}
			fmt.Fprintf(&b, `<text x="%s" y="%s"%s font-size="%s" fill="%s">%s</text>`,
				num(e.X), num(e.Y), anchor, num(e.Size), paint(e.Fill), html.EscapeString(e.Body))
		}
	}
	return b.String()
}

// WedgePath builds the path data of a pie slice. A slice covering the whole circle is
// drawn as two half arcs, since an SVG arc whose endpoints coincide renders nothing.
func WedgePath(w viz.Wedge) string {
	x1 := w.CX + w.R*math.Cos(w.Start)
	y1 := w.CY + w.R*math.Sin(w.Start)
	if w.Sweep >= 2*math.Pi-1e-9 {
		mx := w.CX + w.R*math.Cos(w.Start+math.Pi)
		my := w.CY + w.R*math.Sin(w.Start+math.Pi)
		return fmt.Sprintf("M %s %s A %s %s 0 1 1 %s %s A %s %s 0 1 1 %s %s Z",
			num(x1), num(y1),
			num(w.R), num(w.R), num(mx), num(my),
			num(w.R), num(w.R), num(x1), num(y1))
	}
	end := w.Start + w.Sweep
	x2 := w.CX + w.R*math.Cos(end)
	y2 := w.CY + w.R*math.Sin(end)
	largeArc := 0
	if w.Sweep > math.Pi {
		largeArc = 1
	}
	return fmt.Sprintf("M %s %s L %s %s A %s %s 0 %d 1 %s %s Z",
		num(w.CX), num(w.CY), num(x1), num(y1),
		num(w.R), num(w.R), largeArc, num(x2), num(y2))
}

// LegendHTML renders the legend entries as coloured spans.
func LegendHTML(items []viz.LegendItem) string {
	var b strings.Builder
	for _, item := range items {
		color := string(item.Paint)
		if item.Paint.IsVar() {
			color = "var(" + color + ")"
		}
		fmt.Fprintf(&b, `<span style="color: %s;">%s</span>`, html.EscapeString(color), html.EscapeString(item.Label))
	}
	return b.String()
}

func dashAttr(dash []float64) string {
	if len(dash) == 0 {
		return ""
	}
	parts := make([]string, len(dash))
	for i, d := range dash {
		parts[i] = num(d)
	}
	return ` stroke-dasharray="` + strings.Join(parts, " ") + `"`
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
