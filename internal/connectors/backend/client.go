// Package backend talks to the scoring API that owns uploads, history and the
// server-side copy of each viewer's visuals state.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-fraud-visuals-ui/internal/viz"
)

var (
	// ErrDisabled is returned when no backend base URL is configured.
	ErrDisabled = errors.New("scoring backend is disabled")
	// ErrUnauthorized is returned when the backend rejects the session cookie.
	ErrUnauthorized = errors.New("scoring backend rejected the session")
)

// CSRFHeader carries the token the backend expects on state-changing requests.
const CSRFHeader = "X-CSRF-Token"

// ServiceStats holds backend reachability data.
type ServiceStats struct {
	PingMS       int64  `json:"ping_ms"`
	BaseURL      string `json:"base_url"`
	StatePresent bool   `json:"state_present"`
	HistoryItems int    `json:"history_items"`
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status=%d body=%s", e.Status, e.Body)
}

// Client performs short, sequential requests against the scoring API. It never retries.
type Client struct {
	endpoint  string
	cookie    string
	perViewer bool
	http      *http.Client
}

// RemoteState is the backend's copy of a viewer's state. UpdatedAt is zero when the
// backend did not report when it was written.
type RemoteState struct {
	State     viz.ViewState
	UpdatedAt time.Time
}

type sessionKey struct{}

// WithSession returns a context whose backend requests carry cookie as the Cookie
// header instead of the configured one.
func WithSession(ctx context.Context, cookie string) context.Context {
	return context.WithValue(ctx, sessionKey{}, strings.TrimSpace(cookie))
}

func sessionFrom(ctx context.Context) string {
	cookie, _ := ctx.Value(sessionKey{}).(string)
	return cookie
}

// NewClient builds a client. cookie is sent verbatim as the Cookie header so the service
// can act on behalf of an authenticated backend session.
func NewClient(endpoint string, timeout time.Duration, cookie string) *Client {
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		cookie:   strings.TrimSpace(cookie),
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// PerViewer returns a copy of c that only authenticates with sessions attached through
// WithSession. The configured cookie is never sent on its behalf.
func (c *Client) PerViewer() *Client {
	if c == nil {
		return nil
	}
	cp := *c
	cp.perViewer = true
	return &cp
}

// Available reports whether a request made with ctx would carry a backend session.
func (c *Client) Available(ctx context.Context) bool {
	return c.Enabled() && c.cookieFor(ctx) != ""
}

func (c *Client) cookieFor(ctx context.Context) string {
	if cookie := sessionFrom(ctx); cookie != "" {
		return cookie
	}
	if c.perViewer {
		return ""
	}
	return c.cookie
}

// BaseURL returns the normalized endpoint.
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.endpoint
}

// updatedLayout is how the backend stamps state rows, always in UTC.
const updatedLayout = "2006-01-02 15:04:05"

type stateEnvelope struct {
	Status string `json:"status"`
	State  *struct {
		viz.ViewState
		UpdatedAt string `json:"updated_at"`
	} `json:"state"`
}

// FetchState returns the viewer's stored state, or nil when the backend has none.
func (c *Client) FetchState(ctx context.Context) (*RemoteState, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	var raw stateEnvelope
	if err := c.getJSON(ctx, "/api/visuals/state", &raw); err != nil {
		return nil, err
	}
	if raw.State == nil {
		return nil, nil
	}
	out := &RemoteState{State: raw.State.ViewState.Clone()}
	if ts, err := time.ParseInLocation(updatedLayout, raw.State.UpdatedAt, time.UTC); err == nil {
		out.UpdatedAt = ts
	} else if ts, err := time.Parse(time.RFC3339, raw.State.UpdatedAt); err == nil {
		out.UpdatedAt = ts.UTC()
	}
	return out, nil
}

// FetchHistory returns the most recent uploads, newest first.
func (c *Client) FetchHistory(ctx context.Context) ([]viz.HistoryItem, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	var raw struct {
		Status string            `json:"status"`
		Items  []viz.HistoryItem `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/history", &raw); err != nil {
		return nil, err
	}
	if raw.Items == nil {
		raw.Items = []viz.HistoryItem{}
	}
	return raw.Items, nil
}

// CSRFToken fetches a token for the current backend session.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	var raw struct {
		Status string `json:"status"`
		Token  string `json:"token"`
	}
	if err := c.getJSON(ctx, "/api/csrf", &raw); err != nil {
		return "", err
	}
	if raw.Token == "" {
		return "", errors.New("backend returned an empty csrf token")
	}
	return raw.Token, nil
}

// SaveState stores state on the backend, replacing whatever was there.
func (c *Client) SaveState(ctx context.Context, state viz.ViewState) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	token, err := c.CSRFToken(ctx)
	if err != nil {
		return fmt.Errorf("csrf token: %w", err)
	}

	body, err := json.Marshal(state)
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/visuals/state", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(CSRFHeader, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ServiceStats probes the backend with a state read and a history read.
func (c *Client) ServiceStats(ctx context.Context) (*ServiceStats, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	start := time.Now()
	state, err := c.FetchState(ctx)
	if err != nil {
		return nil, err
	}
	pingMS := time.Since(start).Milliseconds()

	items, err := c.FetchHistory(ctx)
	if err != nil {
		return nil, err
	}

	return &ServiceStats{
		PingMS:       pingMS,
		BaseURL:      c.endpoint,
		StatePresent: state != nil,
		HistoryItems: len(items),
	}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(c.endpoint + path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if cookie := c.cookieFor(ctx); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		blob, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(blob))}
	}
	return nil
}
