// Package hydrate decides which view state a viewer sees: the scoring backend's copy
// first, then the local snapshot, then an empty state.
package hydrate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go-fraud-visuals-ui/internal/connectors/backend"
	"go-fraud-visuals-ui/internal/connectors/snapshot"
	"go-fraud-visuals-ui/internal/viz"
)

// Origins of a hydrated state.
const (
	OriginBackend  = "backend"
	OriginSnapshot = "snapshot"
	OriginEmpty    = "empty"
)

// StateSource is the remote owner of view state. Available reports whether ctx carries
// an identity the source can act for; a source is never consulted without one.
type StateSource interface {
	Available(ctx context.Context) bool
	FetchState(ctx context.Context) (*backend.RemoteState, error)
	SaveState(ctx context.Context, state viz.ViewState) error
}

// SnapshotStore keeps the local per-viewer fallback copy.
type SnapshotStore interface {
	Get(ctx context.Context, viewerID string) (snapshot.Record, error)
	Save(ctx context.Context, viewerID string, state viz.ViewState, origin string) (snapshot.Record, error)
}

// Broadcaster is told which viewer's state changed.
type Broadcaster interface {
	Broadcast(viewerID string)
}

// Result is a hydrated state and where it came from.
type Result struct {
	State     viz.ViewState `json:"state"`
	Origin    string        `json:"origin"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}

// PersistResult reports which copies a Persist call updated.
type PersistResult struct {
	Stored       bool   `json:"stored"`
	Forwarded    bool   `json:"forwarded"`
	ForwardError string `json:"forward_error,omitempty"`
}

// Hydrator loads and persists view state for viewers.
type Hydrator struct {
	source  StateSource
	store   SnapshotStore
	notify  Broadcaster
	logger  *slog.Logger
	observe func(op string, elapsed time.Duration, err error)
}

// New builds a Hydrator. A nil source means no backend; a nil store falls back to an
// in-process MemoryStore.
func New(source StateSource, store SnapshotStore, notify Broadcaster, logger *slog.Logger) *Hydrator {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hydrator{source: source, store: store, notify: notify, logger: logger}
}

// ObserveStore registers fn to be called with the duration of every snapshot store call.
func (h *Hydrator) ObserveStore(fn func(op string, elapsed time.Duration, err error)) {
	h.observe = fn
}

func (h *Hydrator) backendAvailable(ctx context.Context) bool {
	return h.source != nil && h.source.Available(ctx)
}

func (h *Hydrator) get(ctx context.Context, viewerID string) (snapshot.Record, error) {
	start := time.Now()
	rec, err := h.store.Get(ctx, viewerID)
	if h.observe != nil {
		h.observe("Get", time.Since(start), ignoreNotFound(err))
	}
	return rec, err
}

func (h *Hydrator) save(ctx context.Context, viewerID string, state viz.ViewState, origin string) (snapshot.Record, error) {
	start := time.Now()
	rec, err := h.store.Save(ctx, viewerID, state, origin)
	if h.observe != nil {
		h.observe("Save", time.Since(start), err)
	}
	return rec, err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, snapshot.ErrNotFound) {
		return nil
	}
	return err
}

// Load returns the state to render for viewerID. It never fails: every error degrades
// to the next source and finally to an empty state. A local upload at least as new as
// the backend's copy is served instead of it and left in place.
func (h *Hydrator) Load(ctx context.Context, viewerID string) Result {
	if h.backendAvailable(ctx) {
		remote, err := h.source.FetchState(ctx)
		switch {
		case err != nil:
			h.logger.Warn("backend state fetch failed", "viewer", viewerID, "error", err)
		case remote != nil:
			if rec, err := h.get(ctx, viewerID); err == nil && newerUpload(rec, remote.UpdatedAt) {
				h.logger.Debug("keeping local upload newer than backend state", "viewer", viewerID,
					"local", rec.UpdatedAt, "backend", remote.UpdatedAt)
				return snapshotResult(rec)
			}
			state := remote.State.Clone()
			rec, err := h.save(ctx, viewerID, state, snapshot.OriginBackend)
			if err != nil {
				h.logger.Warn("snapshot refresh failed", "viewer", viewerID, "error", err)
				return Result{State: state, Origin: OriginBackend}
			}
			return Result{State: state, Origin: OriginBackend, UpdatedAt: &rec.UpdatedAt}
		}
	}
	return h.Stored(ctx, viewerID)
}

// Stored returns the viewer's local snapshot, or an empty state, without asking the
// backend.
func (h *Hydrator) Stored(ctx context.Context, viewerID string) Result {
	rec, err := h.get(ctx, viewerID)
	if err == nil {
		return snapshotResult(rec)
	}
	if !errors.Is(err, snapshot.ErrNotFound) {
		h.logger.Warn("snapshot read failed", "viewer", viewerID, "error", err)
	}
	return Result{State: viz.NewViewState(nil, nil, nil), Origin: OriginEmpty}
}

// newerUpload reports whether rec is an upload not older than the backend's copy. The
// backend stamps whole seconds.
func newerUpload(rec snapshot.Record, remoteAt time.Time) bool {
	if rec.Origin != snapshot.OriginUpload {
		return false
	}
	return remoteAt.IsZero() || !rec.UpdatedAt.Before(remoteAt)
}

func snapshotResult(rec snapshot.Record) Result {
	updated := rec.UpdatedAt
	return Result{State: rec.State.Clone(), Origin: OriginSnapshot, UpdatedAt: &updated}
}

// Persist replaces the viewer's state: the local snapshot first, then the backend copy.
// Subscribers are notified once the local copy is written. A backend failure is reported
// in the result, not as an error.
func (h *Hydrator) Persist(ctx context.Context, viewerID string, state viz.ViewState) (PersistResult, error) {
	state = state.Clone()
	var out PersistResult

	if _, err := h.save(ctx, viewerID, state, snapshot.OriginUpload); err != nil {
		return out, err
	}
	out.Stored = true

	if h.backendAvailable(ctx) {
		if err := h.source.SaveState(ctx, state); err != nil {
			h.logger.Warn("backend state save failed", "viewer", viewerID, "error", err)
			out.ForwardError = err.Error()
		} else {
			out.Forwarded = true
		}
	}

	if h.notify != nil {
		h.notify.Broadcast(viewerID)
	}
	return out, nil
}

// MemoryStore is an in-process SnapshotStore used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]snapshot.Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]snapshot.Record), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, viewerID string) (snapshot.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[viewerID]
	if !ok {
		return snapshot.Record{}, snapshot.ErrNotFound
	}
	rec.State = rec.State.Clone()
	return rec, nil
}

func (m *MemoryStore) Save(_ context.Context, viewerID string, state viz.ViewState, origin string) (snapshot.Record, error) {
	rec := snapshot.Record{
		ViewerID:  viewerID,
		State:     state.Clone(),
		Origin:    origin,
		UpdatedAt: m.now().UTC(),
	}
	m.mu.Lock()
	m.records[viewerID] = rec
	m.mu.Unlock()
	return rec, nil
}
