package http

import (
	"fmt"
	"html"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"go-fraud-visuals-ui/internal/draw"
	"go-fraud-visuals-ui/internal/viz"
)

// Element ids patched by the visuals handlers.
const (
	chartElementID   = "viz-chart"
	titleElementID   = "viz-title"
	legendElementID  = "viz-legend"
	insightElementID = "viz-insight"
	fieldsElementID  = "viz-fields"
	statsElementID   = "viz-stats"
)

// visualSignals are the datastar signals the dashboard sends with each request.
type visualSignals struct {
	VizType string `json:"vizType"`
}

// chartFragments renders the chart surface, its title and its legend.
func chartFragments(state viz.ViewState, t viz.ChartType) []string {
	scene := viz.Render(t, state)
	recordRender(string(scene.Type), "fragment")
	return []string{
		draw.SVG(scene, draw.SVGOptions{ID: chartElementID, Class: "viz-chart"}),
		fmt.Sprintf(`<h3 id="%s" class="viz-title">%s</h3>`, titleElementID, html.EscapeString(scene.Title)),
		fmt.Sprintf(`<div id="%s" class="viz-legend">%s</div>`, legendElementID, draw.LegendHTML(scene.Legend)),
	}
}

// panelFragments renders the insight text, the field caption and the stat bars.
func panelFragments(state viz.ViewState) []string {
	var bars strings.Builder
	for _, bar := range viz.StatBars(state.Summary) {
		fmt.Fprintf(&bars,
			`<div class="viz-bar" title="%s %d%%"><span class="viz-bar-fill" style="height: %d%%; background: var(%s);"></span><span class="viz-bar-label">%s</span></div>`,
			html.EscapeString(bar.Label), bar.Value, bar.Height, bar.Paint, html.EscapeString(bar.Label))
	}
	return []string{
		fmt.Sprintf(`<div id="%s" class="viz-insight">%s</div>`, insightElementID, viz.BuildInsight(state).HTML()),
		fmt.Sprintf(`<p id="%s" class="viz-fields">%s</p>`, fieldsElementID, html.EscapeString(viz.FieldsCaption(state.Fields))),
		fmt.Sprintf(`<div id="%s" class="viz-stats">%s</div>`, statsElementID, bars.String()),
	}
}

// chartFragmentHandler re-renders the chart for the selected type.
func (s *Server) chartFragmentHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	// Signals must be read before the SSE writer takes over the response.
	var signals visualSignals
	readErr := datastar.ReadSignals(r, &signals)
	viewer := s.viewerID(w, r)

	sse := datastar.NewSSE(w, r)
	if readErr != nil {
		_ = sse.ConsoleError(fmt.Errorf("read signals: %w", readErr))
	}

	res := s.hydrator.Load(r.Context(), viewer)
	for _, fragment := range chartFragments(res.State, viz.ParseChartType(signals.VizType)) {
		if err := sse.PatchElements(fragment); err != nil {
			_ = sse.ConsoleError(err)
			return
		}
	}
}

// updatesHandler pushes fresh chart and panel fragments whenever the viewer's state is
// replaced. The page is server-rendered, so nothing is sent until the first update.
func (s *Server) updatesHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	var signals visualSignals
	_ = datastar.ReadSignals(r, &signals)
	viewer := s.viewerID(w, r)

	// Streams outlive the server write timeout.
	_ = nethttp.NewResponseController(w).SetWriteDeadline(time.Time{})

	sse := datastar.NewSSE(w, r)
	updates := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(updates)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-updates:
			if !ok {
				return
			}
			if id != viewer {
				continue
			}
			res := s.hydrator.Stored(ctx, viewer)
			fragments := append(chartFragments(res.State, viz.ParseChartType(signals.VizType)), panelFragments(res.State)...)
			for _, fragment := range fragments {
				if err := sse.PatchElements(fragment); err != nil {
					_ = sse.ConsoleError(err)
					break
				}
			}
		}
	}
}
