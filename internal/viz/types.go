// Package viz turns scored upload results into chart scenes for the fraud dashboard.
//
// Rendering is pure: Render reads an immutable ViewState and returns a fresh Scene of
// drawing primitives. Adapters in internal/draw turn a Scene into SVG or PNG.
package viz

import "strings"

// ChartType selects the visual encoding of the risk scores.
type ChartType string

const (
	ChartLine      ChartType = "line"
	ChartHistogram ChartType = "histogram"
	ChartPie       ChartType = "pie"
)

// ChartTypes lists the supported chart types in selector order.
var ChartTypes = []ChartType{ChartLine, ChartHistogram, ChartPie}

// ParseChartType maps a selector value to a chart type. Unknown values render as a line.
func ParseChartType(raw string) ChartType {
	switch ChartType(strings.ToLower(strings.TrimSpace(raw))) {
	case ChartPie:
		return ChartPie
	case ChartHistogram:
		return ChartHistogram
	default:
		return ChartLine
	}
}

// Title is the heading shown above the chart surface.
func (t ChartType) Title() string {
	switch t {
	case ChartPie:
		return "Risk mix"
	case ChartHistogram:
		return "Risk histogram"
	default:
		return "Risk trend"
	}
}

// Summary holds aggregate counts for one batch of scored rows.
type Summary struct {
	Total       int            `json:"total"`
	Scored      int            `json:"scored"`
	Errors      int            `json:"errors"`
	LabelCounts map[string]int `json:"label_counts,omitempty"`
}

// Sample is one scored transaction row.
type Sample struct {
	Row         int     `json:"row"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// ViewState is the snapshot the dashboard renders from. It is replaced wholesale on every
// upload or hydration and never edited in place.
type ViewState struct {
	Summary *Summary `json:"summary"`
	Samples []Sample `json:"samples"`
	Fields  []string `json:"fields"`
}

// NewViewState builds a snapshot that shares no memory with its arguments.
func NewViewState(summary *Summary, samples []Sample, fields []string) ViewState {
	return ViewState{Summary: summary, Samples: samples, Fields: fields}.Clone()
}

// Clone returns a deep copy of the state.
func (s ViewState) Clone() ViewState {
	out := ViewState{
		Samples: make([]Sample, len(s.Samples)),
		Fields:  make([]string, len(s.Fields)),
	}
	copy(out.Samples, s.Samples)
	copy(out.Fields, s.Fields)
	if s.Summary != nil {
		sum := *s.Summary
		if s.Summary.LabelCounts != nil {
			sum.LabelCounts = make(map[string]int, len(s.Summary.LabelCounts))
			for k, v := range s.Summary.LabelCounts {
				sum.LabelCounts[k] = v
			}
		}
		out.Summary = &sum
	}
	return out
}

// Empty reports whether the state carries neither a summary nor samples.
func (s ViewState) Empty() bool {
	return s.Summary == nil && len(s.Samples) == 0 && len(s.Fields) == 0
}

// HistoryItem is one upload record returned by the backend history endpoint.
type HistoryItem struct {
	ID        int64    `json:"id"`
	Filename  string   `json:"filename"`
	Summary   *Summary `json:"summary"`
	CreatedAt string   `json:"created_at"`
}
