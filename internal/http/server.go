package http

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	nethttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"go-fraud-visuals-ui/internal/config"
	"go-fraud-visuals-ui/internal/connectors/backend"
	"go-fraud-visuals-ui/internal/connectors/snapshot"
	"go-fraud-visuals-ui/internal/draw"
	"go-fraud-visuals-ui/internal/hydrate"
	"go-fraud-visuals-ui/internal/notifier"
)

const maxStateBody = 1 << 20

// Deps are the collaborators a Server routes to. Backend and Store may be nil. Backend
// keeps its configured cookie for health probes only; per-viewer calls carry the
// viewer's own backend session.
type Deps struct {
	Backend *backend.Client
	Store   *snapshot.Store
	Theme   draw.Theme
	Logger  *slog.Logger
}

// Server wraps the HTTP server, its routes and background pollers.
type Server struct {
	cfg        config.Config
	httpServer *nethttp.Server
	router     chi.Router
	backend    *backend.Client
	viewers    *backend.Client
	store      *snapshot.Store
	hydrator   *hydrate.Hydrator
	notifier   *notifier.Notifier
	sessions   *sessions.CookieStore
	theme      draw.Theme
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server with v1 endpoints.
func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	secret := []byte(cfg.Session.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		logger.Warn("session.secret not set, viewer ids reset on restart")
	}
	sessionStore := sessions.NewCookieStore(secret)
	sessionStore.MaxAge(86400 * 30)
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.Secure = cfg.Session.Secure
	sessionStore.Options.SameSite = nethttp.SameSiteLaxMode

	var (
		source hydrate.StateSource
		store  hydrate.SnapshotStore
	)
	viewers := deps.Backend.PerViewer()
	if viewers != nil {
		source = viewers
	}
	if deps.Store != nil {
		store = deps.Store
	}
	notify := notifier.New()
	hydrator := hydrate.New(source, store, notify, logger)
	if deps.Store != nil {
		driver := deps.Store.Driver()
		hydrator.ObserveStore(func(op string, elapsed time.Duration, err error) {
			recordDBQuery(driver, op, elapsed.Seconds(), err)
		})
	}

	s := &Server{
		cfg:      cfg,
		backend:  deps.Backend,
		viewers:  viewers,
		store:    deps.Store,
		hydrator: hydrator,
		notifier: notify,
		sessions: sessionStore,
		theme:    deps.Theme,
		logger:   logger,
	}
	if s.theme.Name == "" {
		s.theme = draw.DefaultTheme()
	}
	s.router = s.routes()

	s.httpServer = &nethttp.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           s.router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewMux()
	r.Use(
		middleware.Recoverer,
		loggingMiddleware(s.logger),
		observabilityMiddleware,
		s.backendSession,
	)

	r.Get("/", s.dashboardHandler)
	r.Get("/favicon.ico", faviconHandler)
	r.Handle("/metrics", metricsHandler())
	r.Get("/api/v1/metrics/app", appMetricsSummaryHandler())
	r.Get("/health", healthHandler)
	r.Get("/ready", s.readyHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/api/v1/charts/{type}", s.chartSceneHandler)
		r.Get("/api/v1/charts/{type}/svg", s.chartSVGHandler)
		r.Get("/api/v1/visuals/state", s.getStateHandler)
		r.Post("/api/v1/visuals/state", s.postStateHandler)
		r.Get("/api/v1/insight", s.insightHandler)
		r.Get("/api/v1/history", s.historyHandler)
		r.Get("/api/v1/history/latest", s.latestHistoryHandler)
		r.Get("/api/v1/settings/chart", chartSettingsHandler)
		r.Get("/api/v1/status/services", s.servicesStatusHandler)
		r.Post("/api/v1/upload/describe", uploadDescribeHandler)
		r.Post("/visuals/chart", s.chartFragmentHandler)
	})

	// PNG bodies are already compressed and SSE must not be buffered.
	r.Get("/api/v1/charts/{type}/png", s.chartPNGHandler)
	r.Get("/api/v1/snapshot.png", s.snapshotHandler)
	r.Get("/visuals/updates", s.updatesHandler)
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() nethttp.Handler {
	return s.router
}

// Notifier returns the broadcaster used for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// Serve runs the HTTP server and the pollers until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)
	s.httpServer.BaseContext = func(_ net.Listener) context.Context {
		return egctx
	}

	s.logger.Info("starting visuals server", "addr", s.cfg.HTTP.ListenAddr,
		"backend", s.backend.BaseURL(), "snapshot_driver", s.cfg.Snapshot.Driver)

	if s.backend.Enabled() {
		eg.Go(func() error {
			s.startBackendPoller(egctx)
			return nil
		})
	}
	if s.store != nil && s.cfg.Snapshot.Retention > 0 {
		eg.Go(func() error {
			s.startRetentionPoller(egctx)
			return nil
		})
	}

	eg.Go(func() error {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		timeout := s.cfg.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.logger.Debug("shutting down visuals server")
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// startBackendPoller probes the scoring backend so /metrics and the status endpoint
// reflect its health between requests.
func (s *Server) startBackendPoller(ctx context.Context) {
	interval := s.cfg.Backend.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.probeBackend(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeBackend(ctx)
		}
	}
}

func (s *Server) probeBackend(ctx context.Context) {
	start := time.Now()
	_, err := s.backend.ServiceStats(ctx)
	recordExternalProbe("backend", "ServiceStats", time.Since(start).Seconds(), err)
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("backend probe failed", "error", err)
	}
}

func (s *Server) startRetentionPoller(ctx context.Context) {
	interval := s.cfg.Snapshot.Retention / 24
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.purgeSnapshots(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeSnapshots(ctx)
		}
	}
}

func (s *Server) purgeSnapshots(ctx context.Context) {
	start := time.Now()
	n, err := s.store.PurgeOlderThan(ctx, time.Now().Add(-s.cfg.Snapshot.Retention))
	recordDBQuery(s.store.Driver(), "PurgeOlderThan", time.Since(start).Seconds(), err)
	switch {
	case err != nil && ctx.Err() == nil:
		s.logger.Warn("snapshot purge failed", "error", err)
	case n > 0:
		s.logger.Info("purged stale snapshots", "count", n)
	}
}

func healthHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) readyHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := s.store.ServiceStats(ctx); err != nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ready",
	})
}

func loggingMiddleware(logger *slog.Logger) func(nethttp.Handler) nethttp.Handler {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = nethttp.StatusOK
			}
			logger.Info("request", "method", r.Method, "path", r.URL.Path,
				"status", status, "duration", time.Since(start))
		})
	}
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeBackendError maps backend client failures onto response codes.
func writeBackendError(w nethttp.ResponseWriter, err error) {
	status := nethttp.StatusBadGateway
	msg := "scoring backend request failed"
	switch {
	case errors.Is(err, backend.ErrDisabled):
		status = nethttp.StatusServiceUnavailable
		msg = "scoring backend integration disabled (set APP_BACKEND_ENABLED=true)"
	case errors.Is(err, backend.ErrUnauthorized):
		status = nethttp.StatusUnauthorized
		msg = "scoring backend rejected the session"
	case errors.Is(err, context.DeadlineExceeded):
		status = nethttp.StatusGatewayTimeout
		msg = "scoring backend timed out"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}
