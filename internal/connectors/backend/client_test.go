package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fraud-visuals-ui/internal/viz"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second, "session=abc")
}

func TestClient_Disabled(t *testing.T) {
	c := NewClient("  ", time.Second, "")
	assert.False(t, c.Enabled())

	_, err := c.FetchState(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = c.FetchHistory(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, c.SaveState(context.Background(), viz.ViewState{}), ErrDisabled)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
}

func TestClient_FetchState(t *testing.T) {
	var gotCookie string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		assert.Equal(t, "/api/visuals/state", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","state":{"summary":{"total":4,"scored":3,"errors":1},
			"samples":[{"row":1,"label":"Fraud","probability":0.91}],"fields":["amount"],"updated_at":"2026-01-01 10:30:00"}}`))
	}))

	remote, err := c.FetchState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, remote)
	assert.Equal(t, "session=abc", gotCookie)
	assert.Equal(t, 3, remote.State.Summary.Scored)
	assert.Equal(t, []viz.Sample{{Row: 1, Label: "Fraud", Probability: 0.91}}, remote.State.Samples)
	assert.Equal(t, []string{"amount"}, remote.State.Fields)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC), remote.UpdatedAt)
}

func TestClient_FetchStateUnparseableTimestamp(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","state":{"summary":null,"samples":[],"fields":[],"updated_at":"yesterday"}}`))
	}))

	remote, err := c.FetchState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, remote)
	assert.True(t, remote.UpdatedAt.IsZero())
}

func TestClient_SessionFromContext(t *testing.T) {
	var cookies []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookies = append(cookies, r.Header.Get("Cookie"))
		_, _ = w.Write([]byte(`{"status":"ok","state":null}`))
	}))
	viewers := c.PerViewer()

	_, err := c.FetchState(WithSession(context.Background(), "session=viewer-a"))
	require.NoError(t, err)
	_, err = viewers.FetchState(WithSession(context.Background(), "session=viewer-b"))
	require.NoError(t, err)
	_, err = viewers.FetchState(context.Background())
	require.NoError(t, err)
	_, err = c.FetchState(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"session=viewer-a", "session=viewer-b", "", "session=abc"}, cookies)
	assert.True(t, c.Available(context.Background()))
	assert.False(t, viewers.Available(context.Background()))
	assert.True(t, viewers.Available(WithSession(context.Background(), "session=viewer-b")))

	var nilClient *Client
	assert.Nil(t, nilClient.PerViewer())
	assert.False(t, nilClient.Available(context.Background()))
}

func TestClient_FetchStateNull(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","state":null}`))
	}))

	remote, err := c.FetchState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, remote)
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", http.StatusUnauthorized, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrUnauthorized)
		}},
		{"server error", http.StatusInternalServerError, func(t *testing.T, err error) {
			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, http.StatusInternalServerError, se.Status)
			assert.Equal(t, "boom", se.Body)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.status)
			}))
			_, err := c.FetchHistory(context.Background())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_FetchHistory(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","items":[
			{"id":7,"filename":"march.csv","summary":{"total":10,"scored":9,"errors":1},"created_at":"2026-03-01 10:00:00"},
			{"id":6,"filename":"feb.csv","summary":null,"created_at":"2026-02-01 10:00:00"}]}`))
	}))

	items, err := c.FetchHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(7), items[0].ID)
	assert.Equal(t, "march.csv", items[0].Filename)
	assert.Nil(t, items[1].Summary)
}

func TestClient_FetchHistoryMissingItems(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))

	items, err := c.FetchHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []viz.HistoryItem{}, items)
}

func TestClient_SaveStateSendsCSRFToken(t *testing.T) {
	var posted viz.ViewState
	var token string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/csrf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","token":"tok-1"}`))
	})
	mux.HandleFunc("/api/visuals/state", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		token = r.Header.Get(CSRFHeader)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	c := newTestClient(t, mux)

	state := viz.NewViewState(&viz.Summary{Total: 2, Scored: 2}, []viz.Sample{{Row: 1, Label: "Normal", Probability: 0.2}}, []string{"a"})
	require.NoError(t, c.SaveState(context.Background(), state))
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, state, posted)
}

func TestClient_SaveStateForbidden(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/csrf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","token":"stale"}`))
	})
	mux.HandleFunc("/api/visuals/state", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":"error","message":"Invalid CSRF token"}`))
	})
	c := newTestClient(t, mux)

	err := c.SaveState(context.Background(), viz.ViewState{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Status)
}

func TestClient_ServiceStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/visuals/state", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","state":null}`))
	})
	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","items":[{"id":1,"filename":"a.csv","created_at":"2026-01-01 00:00:00"}]}`))
	})
	c := newTestClient(t, mux)

	stats, err := c.ServiceStats(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.StatePresent)
	assert.Equal(t, 1, stats.HistoryItems)
	assert.Equal(t, c.BaseURL(), stats.BaseURL)
}
