package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"go-fraud-visuals-ui/internal/draw"
	"go-fraud-visuals-ui/internal/hydrate"
	"go-fraud-visuals-ui/internal/ingest"
	"go-fraud-visuals-ui/internal/viz"
)

const (
	defaultPNGScale = 2.0
	maxPNGScale     = 8.0
	maxUploadMemory = 32 << 20
)

func (s *Server) loadState(r *nethttp.Request, viewer string) hydrate.Result {
	start := time.Now()
	res := s.hydrator.Load(r.Context(), viewer)
	recordHydration(res.Origin, time.Since(start).Seconds())
	return res
}

func (s *Server) chartSceneHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	t := viz.ParseChartType(chi.URLParam(r, "type"))
	res := s.loadState(r, s.viewerID(w, r))

	scene := viz.Render(t, res.State)
	recordRender(string(t), "scene")
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"meta": map[string]any{
			"chart_type": t,
			"origin":     res.Origin,
		},
		"data": scene,
	})
}

func (s *Server) chartSVGHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	t := viz.ParseChartType(chi.URLParam(r, "type"))
	res := s.loadState(r, s.viewerID(w, r))

	// Standalone SVG has no page stylesheet, so colours are inlined unless asked not to.
	inline := r.URL.Query().Get("inline") != "false"
	scene := viz.Render(t, res.State)
	recordRender(string(t), "svg")

	w.Header().Set("Content-Type", "image/svg+xml; charset=utf-8")
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write([]byte(draw.SVG(scene, draw.SVGOptions{Inline: inline, Theme: s.theme})))
}

func (s *Server) chartPNGHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	t := viz.ParseChartType(chi.URLParam(r, "type"))
	scale, err := parseScale(r.URL.Query().Get("scale"))
	if err != nil {
		writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	res := s.loadState(r, s.viewerID(w, r))

	blob, err := draw.PNG(viz.Render(t, res.State), s.theme, scale)
	recordRender(string(t), "png")
	if err != nil {
		s.logger.Error("render chart png", "chart", t, "error", err)
		writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to render chart"})
		return
	}
	writePNG(w, blob, "")
}

func (s *Server) getStateHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	res := s.loadState(r, s.viewerID(w, r))
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ok",
		"data":   res,
	})
}

func (s *Server) postStateHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	viewer := s.viewerID(w, r)

	var body viz.ViewState
	dec := json.NewDecoder(nethttp.MaxBytesReader(w, r.Body, maxStateBody))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid view state payload"})
		return
	}
	state := viz.NewViewState(body.Summary, body.Samples, body.Fields)

	out, err := s.hydrator.Persist(r.Context(), viewer, state)
	if err != nil {
		s.logger.Error("persist view state", "viewer", viewer, "error", err)
		writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to store view state"})
		return
	}
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ok",
		"data":   out,
	})
}

func (s *Server) insightHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	res := s.loadState(r, s.viewerID(w, r))
	insight := viz.BuildInsight(res.State)
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"meta": map[string]any{"origin": res.Origin},
		"data": map[string]any{
			"insight":        insight,
			"html":           insight.HTML(),
			"stat_bars":      viz.StatBars(res.State.Summary),
			"fields_caption": viz.FieldsCaption(res.State.Fields),
		},
	})
}

func (s *Server) fetchHistory(ctx context.Context) ([]viz.HistoryItem, error) {
	start := time.Now()
	items, err := s.viewers.FetchHistory(ctx)
	recordExternalProbe("backend", "FetchHistory", time.Since(start).Seconds(), err)
	return items, err
}

func (s *Server) historyHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	items, err := s.fetchHistory(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"meta": map[string]any{"count": len(items)},
		"data": items,
	})
}

func (s *Server) latestHistoryHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	items, err := s.fetchHistory(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	card, ok := viz.LatestCard(items)
	if !ok {
		writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "no uploads recorded yet"})
		return
	}
	writeJSON(w, nethttp.StatusOK, map[string]any{"data": card})
}

func (s *Server) snapshotHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	res := s.loadState(r, s.viewerID(w, r))

	blob, err := draw.Snapshot(res.State, s.snapshotCaption(r.Context(), res.State), s.theme)
	recordRender("snapshot", "png")
	if err != nil {
		s.logger.Error("render snapshot", "error", err)
		writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to render snapshot"})
		return
	}
	writePNG(w, blob, draw.SnapshotFilename)
}

// snapshotCaption prefers the latest upload summary from the backend and falls back to
// the summary of the rendered state.
func (s *Server) snapshotCaption(ctx context.Context, state viz.ViewState) string {
	if s.viewers.Available(ctx) {
		if items, err := s.fetchHistory(ctx); err == nil {
			if card, ok := viz.LatestCard(items); ok && card.Summary != "" {
				return card.Summary
			}
		}
	}
	return viz.NewHistoryCard(viz.HistoryItem{Summary: state.Summary}).Summary
}

func uploadDescribeHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "expected a multipart form with a file field"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "missing file field"})
		return
	}
	defer file.Close()

	status := ingest.DescribeFile(header.Filename, header.Size)
	fields := []string{}
	if status.Kind == ingest.KindCSV {
		fields = ingest.HeaderFields(file)
	}
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"data": map[string]any{
			"file":           status,
			"fields":         fields,
			"fields_caption": viz.FieldsCaption(fields),
		},
	})
}

func parseScale(raw string) (float64, error) {
	if raw == "" {
		return defaultPNGScale, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || v > maxPNGScale {
		return 0, errors.New("scale must be a number in (0, 8]")
	}
	return v, nil
}

func writePNG(w nethttp.ResponseWriter, blob []byte, attachment string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	if attachment != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+attachment+`"`)
	}
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write(blob)
}
