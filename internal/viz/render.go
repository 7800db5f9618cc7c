package viz

import "math"

// Surface geometry and fixed product thresholds.
const (
	Width          = 200.0
	Height         = 120.0
	Padding        = 10.0
	FraudThreshold = 70
	MaxSamples     = 8

	gridIntervals  = 4
	histogramBins  = 5
	binWidth       = 20
	histogramInset = 6.0
	histogramTop   = 20.0
	pieCX          = 100.0
	pieCY          = 60.0
	pieRadius      = 42.0
	holeRadius     = 20.0
	markerRadius   = 2.5
)

// FallbackValues keeps the chart drawable when no samples exist.
var FallbackValues = []int{42, 58, 36, 64, 51, 72, 45, 60}

// FallbackSlices are the pie magnitudes used without a summary.
var FallbackSlices = [3]float64{55, 25, 20}

var (
	lineLegend = []LegendItem{
		{Label: "Risk", Paint: PaintLine},
		{Label: "Fraud threshold", Paint: PaintAlert},
	}
	histogramLegend = []LegendItem{
		{Label: "Volume", Paint: PaintLine},
		{Label: "Fraud threshold", Paint: PaintAlert},
	}
	pieLegend = []LegendItem{
		{Label: "Scored", Paint: PaintSafe},
		{Label: "Errors", Paint: PaintAlert},
		{Label: "Unscored", Paint: PaintMuted},
	}
	pieColors = [3]Paint{PaintSafe, PaintAlert, PaintMuted}
)

// Values returns the plotted percentages: the first MaxSamples probabilities scaled to
// whole percents, or FallbackValues when there are none.
func Values(state ViewState) []int {
	n := len(state.Samples)
	if n > MaxSamples {
		n = MaxSamples
	}
	if n == 0 {
		out := make([]int, len(FallbackValues))
		copy(out, FallbackValues)
		return out
	}
	out := make([]int, 0, n)
	for _, s := range state.Samples[:n] {
		p := s.Probability
		if math.IsNaN(p) || math.IsInf(p, 0) {
			p = 0
		}
		out = append(out, int(math.Round(p*100)))
	}
	return out
}

// Render draws the full scene for a chart type. The state is only read.
func Render(t ChartType, state ViewState) Scene {
	t = ParseChartType(string(t))
	scene := Scene{Type: t, Title: t.Title(), Width: Width, Height: Height}
	values := Values(state)
	switch t {
	case ChartPie:
		scene.Legend = cloneLegend(pieLegend)
		scene.Elements = drawPie(PieSlices(state.Summary))
	case ChartHistogram:
		scene.Legend = cloneLegend(histogramLegend)
		scene.Elements = drawHistogram(values)
	default:
		scene.Legend = cloneLegend(lineLegend)
		scene.Elements = drawLine(values)
	}
	return scene
}

// LineRange returns the normalisation floor and ceiling, pinned to include 0 and 100.
func LineRange(values []int) (float64, float64) {
	lo, hi := 0, 100
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return float64(lo), float64(hi)
}

// LinePoints maps values onto the interior of the surface.
func LinePoints(values []int) []Point {
	lo, hi := LineRange(values)
	span := hi - lo
	if span == 0 {
		span = 1
	}
	steps := float64(len(values) - 1)
	if steps <= 0 {
		steps = 1
	}
	inner := Height - Padding*2
	points := make([]Point, 0, len(values))
	for i, v := range values {
		x := Padding + (float64(i)/steps)*(Width-Padding*2)
		y := Height - Padding - ((float64(v)-lo)/span)*inner
		points = append(points, Point{X: x, Y: y})
	}
	return points
}

func drawLine(values []int) []Primitive {
	out := make([]Primitive, 0, gridIntervals+4+len(values))
	for i := 0; i <= gridIntervals; i++ {
		y := Padding + (float64(i)/gridIntervals)*(Height-Padding*2)
		out = append(out, Line{X1: Padding, Y1: y, X2: Width - Padding, Y2: y, Stroke: PaintGrid, Width: 1})
	}

	lo, hi := LineRange(values)
	span := hi - lo
	if span == 0 {
		span = 1
	}
	fraudY := Height - Padding - ((FraudThreshold-lo)/span)*(Height-Padding*2)
	out = append(out,
		Line{X1: Padding, Y1: fraudY, X2: Width - Padding, Y2: fraudY, Stroke: PaintAlert, Width: 2, Dash: []float64{4, 4}},
		Text{X: Width - Padding, Y: fraudY - 2, Body: "70%", Anchor: "end", Size: 7, Fill: PaintAlert},
	)

	points := LinePoints(values)
	glow := make([]Point, len(points))
	copy(glow, points)
	out = append(out,
		Polyline{Points: glow, Stroke: PaintLineGlow, Width: 6, Round: true},
		Polyline{Points: points, Stroke: PaintLine, Width: 2.8, Round: true},
	)
	for _, p := range points {
		out = append(out, Circle{CX: p.X, CY: p.Y, R: markerRadius, Fill: PaintMarker})
	}
	return out
}

// HistogramCounts buckets values into five 20-point bins over [0,100]. Out-of-range
// values land in the nearest edge bin.
func HistogramCounts(values []int) [histogramBins]int {
	var counts [histogramBins]int
	for _, v := range values {
		idx := v / binWidth
		if v < 0 {
			idx = 0
		}
		if idx > histogramBins-1 {
			idx = histogramBins - 1
		}
		counts[idx]++
	}
	return counts
}

func drawHistogram(values []int) []Primitive {
	counts := HistogramCounts(values)
	maxCount := 1
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	barWidth := Width/histogramBins - histogramInset
	fraudY := Height - histogramInset - (FraudThreshold/100.0)*(Height-histogramTop)

	out := make([]Primitive, 0, histogramBins+1)
	out = append(out, Line{
		X1: histogramInset, Y1: fraudY, X2: Width - histogramInset, Y2: fraudY,
		Stroke: PaintAlert, Width: 2, Dash: []float64{4, 4},
	})
	for i, c := range counts {
		h := (float64(c) / float64(maxCount)) * (Height - histogramTop)
		fill := PaintLine
		if i >= 3 {
			fill = PaintAlert
		}
		out = append(out, Rect{
			X:      float64(i)*(barWidth+histogramInset) + 4,
			Y:      Height - h - histogramInset,
			Width:  barWidth,
			Height: h,
			Radius: 6,
			Fill:   fill,
		})
	}
	return out
}

// PieSlices derives the scored/errors/unscored magnitudes from a summary, each clamped at
// zero. Without a summary, or with an empty one, FallbackSlices is returned.
func PieSlices(summary *Summary) [3]float64 {
	if summary == nil || summary.Total == 0 {
		return FallbackSlices
	}
	return [3]float64{
		float64(max(summary.Scored-summary.Errors, 0)),
		float64(max(summary.Errors, 0)),
		float64(max(summary.Total-summary.Scored, 0)),
	}
}

func drawPie(slices [3]float64) []Primitive {
	total := slices[0] + slices[1] + slices[2]
	if total == 0 {
		total = 1
	}
	out := make([]Primitive, 0, len(slices)+1)
	start := -math.Pi / 2
	for i, v := range slices {
		sweep := (v / total) * math.Pi * 2
		out = append(out, Wedge{CX: pieCX, CY: pieCY, R: pieRadius, Start: start, Sweep: sweep, Value: v, Fill: pieColors[i]})
		start += sweep
	}
	out = append(out, Circle{CX: pieCX, CY: pieCY, R: holeRadius, Fill: PaintHole})
	return out
}

func cloneLegend(in []LegendItem) []LegendItem {
	out := make([]LegendItem, len(in))
	copy(out, in)
	return out
}
