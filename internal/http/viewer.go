package http

import (
	nethttp "net/http"
	"strings"

	"github.com/google/uuid"

	"go-fraud-visuals-ui/internal/connectors/backend"
)

const (
	viewerSessionKey = "viewer_id"
	viewerHeader     = "X-Viewer-ID"
)

func (s *Server) sessionName() string {
	if name := strings.TrimSpace(s.cfg.Session.Name); name != "" {
		return name
	}
	return "fraudviz"
}

// viewerID identifies the browser whose state is being rendered. API clients may name
// a viewer with the X-Viewer-ID header; browsers get a random id kept in the session
// cookie. Must run before the response is written.
func (s *Server) viewerID(w nethttp.ResponseWriter, r *nethttp.Request) string {
	if id := strings.TrimSpace(r.Header.Get(viewerHeader)); id != "" {
		return id
	}

	// A cookie that fails to decode still yields a usable fresh session.
	sess, _ := s.sessions.Get(r, s.sessionName())
	if id, ok := sess.Values[viewerSessionKey].(string); ok && id != "" {
		return id
	}

	id := uuid.NewString()
	sess.Values[viewerSessionKey] = id
	if err := sess.Save(r, w); err != nil {
		s.logger.Warn("save viewer session", "error", err)
	}
	return id
}

// backendSession attaches the viewer's own scoring-backend session cookie to the request
// context. Backend calls made without one are not authenticated.
func (s *Server) backendSession(next nethttp.Handler) nethttp.Handler {
	name := strings.TrimSpace(s.cfg.Backend.SessionCookie)
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if name != "" {
			if c, err := r.Cookie(name); err == nil && c.Value != "" {
				forwarded := &nethttp.Cookie{Name: c.Name, Value: c.Value}
				r = r.WithContext(backend.WithSession(r.Context(), forwarded.String()))
			}
		}
		next.ServeHTTP(w, r)
	})
}
