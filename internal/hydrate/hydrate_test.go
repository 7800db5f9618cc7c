package hydrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fraud-visuals-ui/internal/connectors/backend"
	"go-fraud-visuals-ui/internal/connectors/snapshot"
	"go-fraud-visuals-ui/internal/testutil"
	"go-fraud-visuals-ui/internal/viz"
)

type fakeSource struct {
	enabled   bool
	state     *viz.ViewState
	updatedAt time.Time
	fetchErr  error
	saveErr   error
	saved     []viz.ViewState
}

func (f *fakeSource) Available(context.Context) bool { return f.enabled }

func (f *fakeSource) FetchState(context.Context) (*backend.RemoteState, error) {
	if f.fetchErr != nil || f.state == nil {
		return nil, f.fetchErr
	}
	return &backend.RemoteState{State: f.state.Clone(), UpdatedAt: f.updatedAt}, nil
}

func (f *fakeSource) SaveState(_ context.Context, st viz.ViewState) error {
	f.saved = append(f.saved, st)
	if f.saveErr != nil {
		return f.saveErr
	}
	f.state = &st
	f.updatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

type brokenStore struct{ err error }

func (b brokenStore) Get(context.Context, string) (snapshot.Record, error) {
	return snapshot.Record{}, b.err
}

func (b brokenStore) Save(context.Context, string, viz.ViewState, string) (snapshot.Record, error) {
	return snapshot.Record{}, b.err
}

type recorder struct{ ids []string }

func (r *recorder) Broadcast(id string) { r.ids = append(r.ids, id) }

func scored() viz.ViewState {
	return viz.NewViewState(
		&viz.Summary{Total: 5, Scored: 4, Errors: 1},
		[]viz.Sample{{Row: 1, Label: "Fraud", Probability: 0.8}},
		[]string{"amount"},
	)
}

func TestLoad_BackendWinsAndRefreshesSnapshot(t *testing.T) {
	st := scored()
	store := NewMemoryStore()
	h := New(&fakeSource{enabled: true, state: &st}, store, nil, testutil.NewTestLogger(t))

	res := h.Load(context.Background(), "v1")
	assert.Equal(t, OriginBackend, res.Origin)
	assert.Equal(t, st, res.State)
	require.NotNil(t, res.UpdatedAt)

	rec, err := store.Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, snapshot.OriginBackend, rec.Origin)
	assert.Equal(t, st, rec.State)
}

func totals(total int) viz.ViewState {
	return viz.NewViewState(&viz.Summary{Total: total, Scored: total}, []viz.Sample{}, []string{})
}

func TestLoad_KeepsUploadTheBackendNeverReceived(t *testing.T) {
	old := totals(1)
	src := &fakeSource{
		enabled:   true,
		state:     &old,
		updatedAt: time.Now().UTC().Add(-time.Hour),
		saveErr:   errors.New("backend status=503"),
	}
	store := NewMemoryStore()
	h := New(src, store, nil, testutil.NewTestLogger(t))

	out, err := h.Persist(context.Background(), "v1", totals(5))
	require.NoError(t, err)
	assert.False(t, out.Forwarded)

	res := h.Load(context.Background(), "v1")
	assert.Equal(t, OriginSnapshot, res.Origin)
	assert.Equal(t, 5, res.State.Summary.Total)

	rec, err := store.Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, snapshot.OriginUpload, rec.Origin)
	assert.Equal(t, 5, rec.State.Summary.Total)
}

func TestLoad_UploadVersusBackendTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		backendAt  time.Time
		wantOrigin string
		wantTotal  int
	}{
		{"backend written later", now.Add(time.Minute), OriginBackend, 9},
		{"backend written earlier", now.Add(-time.Minute), OriginSnapshot, 5},
		{"same second", now, OriginSnapshot, 5},
		{"backend timestamp unknown", time.Time{}, OriginSnapshot, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := totals(9)
			store := NewMemoryStore()
			store.now = func() time.Time { return now.Add(300 * time.Millisecond) }
			_, err := store.Save(context.Background(), "v1", totals(5), snapshot.OriginUpload)
			require.NoError(t, err)

			src := &fakeSource{enabled: true, state: &remote, updatedAt: tt.backendAt}
			res := New(src, store, nil, testutil.NewTestLogger(t)).Load(context.Background(), "v1")
			assert.Equal(t, tt.wantOrigin, res.Origin)
			assert.Equal(t, tt.wantTotal, res.State.Summary.Total)
		})
	}
}

func TestLoad_BackendReplacesEarlierBackendCopy(t *testing.T) {
	remote := totals(9)
	store := NewMemoryStore()
	_, err := store.Save(context.Background(), "v1", totals(5), snapshot.OriginBackend)
	require.NoError(t, err)

	src := &fakeSource{enabled: true, state: &remote, updatedAt: time.Now().UTC().Add(-time.Hour)}
	res := New(src, store, nil, testutil.NewTestLogger(t)).Load(context.Background(), "v1")
	assert.Equal(t, OriginBackend, res.Origin)
	assert.Equal(t, 9, res.State.Summary.Total)
}

func TestStored_NeverAsksBackend(t *testing.T) {
	remote := totals(9)
	src := &fakeSource{enabled: true, state: &remote, updatedAt: time.Now().UTC().Add(time.Hour)}
	store := NewMemoryStore()
	h := New(src, store, nil, testutil.NewTestLogger(t))

	assert.Equal(t, OriginEmpty, h.Stored(context.Background(), "v1").Origin)

	_, err := store.Save(context.Background(), "v1", totals(5), snapshot.OriginUpload)
	require.NoError(t, err)
	res := h.Stored(context.Background(), "v1")
	assert.Equal(t, OriginSnapshot, res.Origin)
	assert.Equal(t, 5, res.State.Summary.Total)
}

func TestObserveStore_TimesStoreCallsOnly(t *testing.T) {
	src := &fakeSource{enabled: true}
	h := New(src, nil, nil, testutil.NewTestLogger(t))
	var ops []string
	var errs []error
	h.ObserveStore(func(op string, _ time.Duration, err error) {
		ops = append(ops, op)
		errs = append(errs, err)
	})

	_, err := h.Persist(context.Background(), "v1", scored())
	require.NoError(t, err)
	h.Stored(context.Background(), "v2")

	assert.Equal(t, []string{"Save", "Get"}, ops)
	assert.Equal(t, []error{nil, nil}, errs)
}

func TestLoad_FallsBackToSnapshot(t *testing.T) {
	tests := []struct {
		name   string
		source *fakeSource
	}{
		{"backend disabled", &fakeSource{}},
		{"backend error", &fakeSource{enabled: true, fetchErr: errors.New("connection refused")}},
		{"backend has no state", &fakeSource{enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			_, err := store.Save(context.Background(), "v1", scored(), snapshot.OriginUpload)
			require.NoError(t, err)

			res := New(tt.source, store, nil, testutil.NewTestLogger(t)).Load(context.Background(), "v1")
			assert.Equal(t, OriginSnapshot, res.Origin)
			assert.Equal(t, scored(), res.State)
		})
	}
}

func TestLoad_EmptyWhenNothingStored(t *testing.T) {
	h := New(nil, nil, nil, testutil.NewTestLogger(t))
	res := h.Load(context.Background(), "v1")
	assert.Equal(t, OriginEmpty, res.Origin)
	assert.Nil(t, res.State.Summary)
	assert.Equal(t, []viz.Sample{}, res.State.Samples)
	assert.Nil(t, res.UpdatedAt)
}

func TestLoad_BrokenStoreDegradesToEmpty(t *testing.T) {
	h := New(&fakeSource{}, brokenStore{err: errors.New("disk full")}, nil, testutil.NewTestLogger(t))
	res := h.Load(context.Background(), "v1")
	assert.Equal(t, OriginEmpty, res.Origin)
}

func TestPersist_StoresForwardsAndBroadcasts(t *testing.T) {
	src := &fakeSource{enabled: true}
	store := NewMemoryStore()
	rec := &recorder{}
	h := New(src, store, rec, testutil.NewTestLogger(t))

	out, err := h.Persist(context.Background(), "v1", scored())
	require.NoError(t, err)
	assert.True(t, out.Stored)
	assert.True(t, out.Forwarded)
	assert.Equal(t, []viz.ViewState{scored()}, src.saved)
	assert.Equal(t, []string{"v1"}, rec.ids)

	got, err := store.Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, snapshot.OriginUpload, got.Origin)
}

func TestPersist_BackendFailureIsReported(t *testing.T) {
	src := &fakeSource{enabled: true, saveErr: errors.New("csrf token: denied")}
	rec := &recorder{}
	h := New(src, nil, rec, testutil.NewTestLogger(t))

	out, err := h.Persist(context.Background(), "v1", scored())
	require.NoError(t, err)
	assert.True(t, out.Stored)
	assert.False(t, out.Forwarded)
	assert.Equal(t, "csrf token: denied", out.ForwardError)
	assert.Equal(t, []string{"v1"}, rec.ids)
}

func TestPersist_StoreFailure(t *testing.T) {
	rec := &recorder{}
	h := New(nil, brokenStore{err: errors.New("locked")}, rec, testutil.NewTestLogger(t))

	_, err := h.Persist(context.Background(), "v1", scored())
	assert.Error(t, err)
	assert.Empty(t, rec.ids)
}

func TestPersist_DoesNotAliasCallerState(t *testing.T) {
	h := New(nil, nil, nil, testutil.NewTestLogger(t))
	st := scored()
	_, err := h.Persist(context.Background(), "v1", st)
	require.NoError(t, err)

	st.Samples[0].Probability = 0.01
	st.Summary.Total = 99

	res := h.Load(context.Background(), "v1")
	assert.Equal(t, 0.8, res.State.Samples[0].Probability)
	assert.Equal(t, 5, res.State.Summary.Total)
}
