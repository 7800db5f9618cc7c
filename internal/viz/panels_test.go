package viz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatBars(t *testing.T) {
	tests := []struct {
		name        string
		summary     *Summary
		wantValues  []int
		wantHeights []int
	}{
		{
			name:        "defaults without summary",
			summary:     nil,
			wantValues:  []int{60, 40, 35, 55},
			wantHeights: []int{60, 40, 35, 55},
		},
		{
			name:        "rates from summary",
			summary:     &Summary{Total: 100, Scored: 70, Errors: 10},
			wantValues:  []int{70, 30, 10, 30},
			wantHeights: []int{70, 30, 20, 30},
		},
		{
			name:        "heights clamp to the minimum",
			summary:     &Summary{Total: 10, Scored: 10, Errors: 0},
			wantValues:  []int{100, 0, 0, 20},
			wantHeights: []int{100, 20, 20, 20},
		},
		{
			name:        "alerts never drop below 15",
			summary:     &Summary{Total: 1000, Scored: 1000, Errors: 0},
			wantValues:  []int{100, 0, 0, 20},
			wantHeights: []int{100, 20, 20, 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := StatBars(tt.summary)
			require.Len(t, bars, 4)
			var values, heights []int
			for _, b := range bars {
				values = append(values, b.Value)
				heights = append(heights, b.Height)
			}
			assert.Equal(t, tt.wantValues, values)
			assert.Equal(t, tt.wantHeights, heights)
			assert.Equal(t, "Alerts", bars[3].Label)
		})
	}
}

func TestFieldsCaption(t *testing.T) {
	assert.Equal(t, "Fields: --", FieldsCaption(nil))
	assert.Equal(t, "Fields: amount, merchant", FieldsCaption([]string{"amount", "merchant"}))
	assert.Equal(t, "Fields: a, b, c, d, e, f", FieldsCaption([]string{"a", "b", "c", "d", "e", "f", "g", "h"}))
}

func TestBuildInsight(t *testing.T) {
	state := NewViewState(
		&Summary{
			Total:       200,
			Scored:      180,
			Errors:      20,
			LabelCounts: map[string]int{"Fraud": 18, "Review": 30, "Normal": 132},
		},
		nil,
		[]string{"a", "b", "c", "d", "e", "f", "g", "h"},
	)

	in := BuildInsight(state)

	assert.True(t, in.Ready)
	assert.Equal(t, 90, in.ScoredRate)
	assert.Equal(t, 10, in.ErrorRate)
	assert.Equal(t, 10, in.FraudRate)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, in.Fields)

	html := in.HTML()
	assert.Contains(t, html, "<strong>Insight summary</strong>")
	assert.Contains(t, html, "Scored <strong>90%</strong> of rows with an error rate of <strong>10%</strong>.")
	assert.Contains(t, html, "Fraud rate: <strong>10%</strong> (Fraud 18, Review 30, Normal 132).")
	assert.Contains(t, html, "Fields used: a, b, c, d, e, f.")
}

func TestBuildInsight_CountsAreNotGrouped(t *testing.T) {
	state := NewViewState(
		&Summary{
			Total:       20000,
			Scored:      20000,
			LabelCounts: map[string]int{"Fraud": 1500, "Review": 2500, "Normal": 16000},
		},
		nil,
		nil,
	)

	html := BuildInsight(state).HTML()
	assert.Contains(t, html, "(Fraud 1500, Review 2500, Normal 16000)")
}

func TestBuildInsight_Placeholder(t *testing.T) {
	in := BuildInsight(ViewState{})
	assert.False(t, in.Ready)
	assert.Equal(t, InsightPlaceholder, in.HTML())
}

func TestBuildInsight_NoFieldsAndNoScored(t *testing.T) {
	in := BuildInsight(ViewState{Summary: &Summary{Total: 0}})
	assert.Equal(t, 0, in.ScoredRate)
	assert.Equal(t, 0, in.FraudRate)
	assert.Contains(t, in.HTML(), "Fields used: —.")
}

func TestBuildInsight_EscapesFields(t *testing.T) {
	in := BuildInsight(ViewState{Summary: &Summary{Total: 1, Scored: 1}, Fields: []string{"<b>x</b>"}})
	assert.Contains(t, in.HTML(), "&lt;b&gt;x&lt;/b&gt;")
}

func TestLatestCard(t *testing.T) {
	_, ok := LatestCard(nil)
	assert.False(t, ok)

	card, ok := LatestCard([]HistoryItem{
		{ID: 9, Filename: "march.csv", Summary: &Summary{Total: 1200, Scored: 1100, Errors: 60}, CreatedAt: "2024-05-01 12:30:00"},
		{ID: 8, Filename: "feb.csv"},
	})
	require.True(t, ok)
	assert.Equal(t, "Rows: 1200 | Scored: 1100 | Errors: 60", card.Summary)
	assert.Equal(t, "5%", card.ErrorRate)
	assert.Equal(t, "march.csv", card.Filename)
	assert.Equal(t, "Updated: 2024-05-01 12:30:00 UTC", card.Updated)
	require.NotNil(t, card.CreatedAt)
	assert.Equal(t, 12, card.CreatedAt.Hour())
}

func TestNewHistoryCard_BadTimestamp(t *testing.T) {
	card := NewHistoryCard(HistoryItem{Filename: "x.csv", CreatedAt: "yesterday"})
	assert.Equal(t, "Updated: --", card.Updated)
	assert.Nil(t, card.CreatedAt)
	assert.Empty(t, card.Summary)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(5, 0))
	assert.Equal(t, 33, Percent(1, 3))
	assert.Equal(t, 67, Percent(2, 3))
}
