package http

import (
	"context"
	nethttp "net/http"
	"time"
)

func (s *Server) servicesStatusHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	payload := map[string]any{
		"generated_at": time.Now().UTC(),
		"services":     map[string]any{},
		"subscribers":  s.notifier.Subscribers(),
	}
	services := payload["services"].(map[string]any)

	services["backend"] = s.backendStatus(ctx)
	services["snapshot_store"] = s.snapshotStatus(ctx)

	writeJSON(w, nethttp.StatusOK, payload)
}

func (s *Server) backendStatus(ctx context.Context) map[string]any {
	if !s.backend.Enabled() {
		return map[string]any{"enabled": false, "ok": false, "error": "scoring backend integration disabled"}
	}

	start := time.Now()
	stats, err := s.backend.ServiceStats(ctx)
	recordExternalProbe("backend", "ServiceStats", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true, "stats": stats}
}

func (s *Server) snapshotStatus(ctx context.Context) map[string]any {
	if s.store == nil {
		return map[string]any{"enabled": false, "ok": true, "mode": "memory"}
	}

	start := time.Now()
	stats, err := s.store.ServiceStats(ctx)
	recordDBQuery(s.store.Driver(), "ServiceStats", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true, "stats": stats}
}
