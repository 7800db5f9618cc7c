package viz

import "encoding/json"

// Paint names a colour. Values starting with "--" are theme variables resolved by the
// drawing adapter; anything else is a literal CSS colour.
type Paint string

const (
	PaintGrid     Paint = "--viz-grid"
	PaintLine     Paint = "--viz-line"
	PaintLineGlow Paint = "--viz-line-glow"
	PaintAlert    Paint = "--viz-alert"
	PaintSafe     Paint = "--viz-safe"
	PaintMuted    Paint = "--viz-muted"
	PaintWarn     Paint = "--viz-warn"
	PaintMarker   Paint = "#eef6ff"
	PaintHole     Paint = "rgba(10, 15, 24, 0.9)"
)

// IsVar reports whether the paint is a theme variable.
func (p Paint) IsVar() bool {
	return len(p) > 2 && p[0] == '-' && p[1] == '-'
}

// Point is a position on the drawing surface.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Primitive is one drawing instruction of a Scene.
type Primitive interface {
	Kind() string
}

// Line is a straight stroke.
type Line struct {
	X1     float64   `json:"x1"`
	Y1     float64   `json:"y1"`
	X2     float64   `json:"x2"`
	Y2     float64   `json:"y2"`
	Stroke Paint     `json:"stroke"`
	Width  float64   `json:"width"`
	Dash   []float64 `json:"dash,omitempty"`
}

// Polyline is an open stroked path through Points.
type Polyline struct {
	Points []Point `json:"points"`
	Stroke Paint   `json:"stroke"`
	Width  float64 `json:"width"`
	Round  bool    `json:"round,omitempty"`
}

// Rect is a filled rectangle with optional corner radius.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Radius float64 `json:"radius,omitempty"`
	Fill   Paint   `json:"fill"`
}

// Wedge is a filled pie slice. Start and Sweep are radians, clockwise on screen, with 0
// pointing at 3 o'clock.
type Wedge struct {
	CX    float64 `json:"cx"`
	CY    float64 `json:"cy"`
	R     float64 `json:"r"`
	Start float64 `json:"start"`
	Sweep float64 `json:"sweep"`
	Value float64 `json:"value"`
	Fill  Paint   `json:"fill"`
}

// Circle is a filled disc.
type Circle struct {
	CX   float64 `json:"cx"`
	CY   float64 `json:"cy"`
	R    float64 `json:"r"`
	Fill Paint   `json:"fill"`
}

// Text is a single-line label. Anchor follows SVG text-anchor values.
type Text struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Body   string  `json:"body"`
	Anchor string  `json:"anchor,omitempty"`
	Size   float64 `json:"size"`
	Fill   Paint   `json:"fill"`
}

func (Line) Kind() string     { return "line" }
func (Polyline) Kind() string { return "polyline" }
func (Rect) Kind() string     { return "rect" }
func (Wedge) Kind() string    { return "path" }
func (Circle) Kind() string   { return "circle" }
func (Text) Kind() string     { return "text" }

// LegendItem is one coloured entry of the chart legend.
type LegendItem struct {
	Label string `json:"label"`
	Paint Paint  `json:"paint"`
}

// Scene is a full description of one chart render.
type Scene struct {
	Type     ChartType
	Title    string
	Legend   []LegendItem
	Width    float64
	Height   float64
	Elements []Primitive
}

// Wedges returns the pie slices of the scene in drawing order.
func (s Scene) Wedges() []Wedge {
	var out []Wedge
	for _, el := range s.Elements {
		if w, ok := el.(Wedge); ok {
			out = append(out, w)
		}
	}
	return out
}

// CountKind returns how many primitives of the given kind the scene holds.
func (s Scene) CountKind(kind string) int {
	n := 0
	for _, el := range s.Elements {
		if el.Kind() == kind {
			n++
		}
	}
	return n
}

// MarshalJSON encodes elements as {"kind": ..., "attrs": {...}} objects.
func (s Scene) MarshalJSON() ([]byte, error) {
	type element struct {
		Kind  string    `json:"kind"`
		Attrs Primitive `json:"attrs"`
	}
	elements := make([]element, 0, len(s.Elements))
	for _, el := range s.Elements {
		elements = append(elements, element{Kind: el.Kind(), Attrs: el})
	}
	legend := s.Legend
	if legend == nil {
		legend = []LegendItem{}
	}
	return json.Marshal(struct {
		Type     ChartType    `json:"type"`
		Title    string       `json:"title"`
		Legend   []LegendItem `json:"legend"`
		Width    float64      `json:"width"`
		Height   float64      `json:"height"`
		Elements []element    `json:"elements"`
	}{s.Type, s.Title, legend, s.Width, s.Height, elements})
}
