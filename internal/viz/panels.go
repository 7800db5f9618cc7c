package viz

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"
)

// MaxFieldsShown caps the field names listed in captions and insights.
const MaxFieldsShown = 6

// InsightPlaceholder is shown until a summary exists.
const InsightPlaceholder = "Upload a CSV to see a summary insight here."

const createdAtLayout = "2006-01-02 15:04:05"

// Percent returns part/whole as a rounded percentage, or 0 when whole is 0.
func Percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

// StatBar is one of the four summary bars beside the chart.
type StatBar struct {
	Label  string `json:"label"`
	Value  int    `json:"value"`
	Height int    `json:"height"`
	Paint  Paint  `json:"paint"`
}

// StatBars returns the Scored, Unscored, Errors and Alerts bars. Heights are clamped to
// [20,100]; without a summary the rates default to 60% scored and 35% errors.
func StatBars(summary *Summary) []StatBar {
	errorRate, scoredRate := 35, 60
	if summary != nil && summary.Total != 0 {
		errorRate = Percent(summary.Errors, summary.Total)
		scoredRate = Percent(summary.Scored, summary.Total)
	}
	values := []int{scoredRate, 100 - scoredRate, errorRate, max(15, errorRate+20)}
	labels := []string{"Scored", "Unscored", "Errors", "Alerts"}
	paints := []Paint{PaintSafe, PaintLine, PaintAlert, PaintWarn}

	bars := make([]StatBar, len(values))
	for i, v := range values {
		bars[i] = StatBar{Label: labels[i], Value: v, Height: min(100, max(20, v)), Paint: paints[i]}
	}
	return bars
}

// FieldsCaption is the short field list shown under the chart.
func FieldsCaption(fields []string) string {
	if len(fields) == 0 {
		return "Fields: --"
	}
	return "Fields: " + strings.Join(firstFields(fields), ", ")
}

func firstFields(fields []string) []string {
	if len(fields) > MaxFieldsShown {
		return fields[:MaxFieldsShown]
	}
	return fields
}

// Insight is the narrative summary of one scored batch.
type Insight struct {
	Ready       bool     `json:"ready"`
	ScoredRate  int      `json:"scored_rate"`
	ErrorRate   int      `json:"error_rate"`
	FraudRate   int      `json:"fraud_rate"`
	FraudCount  int      `json:"fraud_count"`
	ReviewCount int      `json:"review_count"`
	NormalCount int      `json:"normal_count"`
	Fields      []string `json:"fields"`
}

// BuildInsight derives the insight from a view state. The fraud rate is measured over
// scored rows, not all rows.
func BuildInsight(state ViewState) Insight {
	s := state.Summary
	if s == nil {
		return Insight{Fields: []string{}}
	}
	in := Insight{
		Ready:       true,
		ScoredRate:  Percent(s.Scored, s.Total),
		ErrorRate:   Percent(s.Errors, s.Total),
		FraudCount:  s.LabelCounts["Fraud"],
		ReviewCount: s.LabelCounts["Review"],
		NormalCount: s.LabelCounts["Normal"],
	}
	in.FraudRate = Percent(in.FraudCount, s.Scored)
	in.Fields = append([]string{}, firstFields(state.Fields)...)
	return in
}

// HTML renders the insight as the dashboard fragment.
func (in Insight) HTML() string {
	if !in.Ready {
		return html.EscapeString(InsightPlaceholder)
	}
	fields := "—"
	if len(in.Fields) > 0 {
		fields = strings.Join(in.Fields, ", ")
	}
	var b strings.Builder
	b.WriteString("<strong>Insight summary</strong><br />\n")
	fmt.Fprintf(&b, "Scored <strong>%d%%</strong> of rows with an error rate of <strong>%d%%</strong>.<br />\n", in.ScoredRate, in.ErrorRate)
	fmt.Fprintf(&b, "Fraud rate: <strong>%d%%</strong> (Fraud %d, Review %d, Normal %d).<br />\n",
		in.FraudRate, in.FraudCount, in.ReviewCount, in.NormalCount)
	fmt.Fprintf(&b, "Fields used: %s.", html.EscapeString(fields))
	return b.String()
}

// HistoryCard is the "latest upload" panel built from the newest history item.
type HistoryCard struct {
	Summary   string     `json:"summary"`
	Total     int        `json:"total"`
	Scored    int        `json:"scored"`
	Errors    int        `json:"errors"`
	ErrorRate string     `json:"error_rate"`
	Filename  string     `json:"filename"`
	Updated   string     `json:"updated"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// LatestCard builds the card for the first (newest) history item. ok is false when the
// history is empty.
func LatestCard(items []HistoryItem) (HistoryCard, bool) {
	if len(items) == 0 {
		return HistoryCard{}, false
	}
	return NewHistoryCard(items[0]), true
}

// NewHistoryCard formats one history item. CreatedAt is a UTC timestamp without a zone;
// an unparseable value renders as "Updated: --".
func NewHistoryCard(item HistoryItem) HistoryCard {
	card := HistoryCard{Filename: item.Filename, Updated: "Updated: --"}
	if s := item.Summary; s != nil {
		card.Total, card.Scored, card.Errors = s.Total, s.Scored, s.Errors
		card.Summary = fmt.Sprintf("Rows: %d | Scored: %d | Errors: %d", s.Total, s.Scored, s.Errors)
		card.ErrorRate = fmt.Sprintf("%d%%", Percent(s.Errors, s.Total))
	}
	if item.CreatedAt != "" {
		if ts, err := time.ParseInLocation(createdAtLayout, item.CreatedAt, time.UTC); err == nil {
			card.CreatedAt = &ts
			card.Updated = "Updated: " + ts.Format("2006-01-02 15:04:05 UTC")
		}
	}
	return card
}
