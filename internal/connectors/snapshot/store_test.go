package snapshot

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fraud-visuals-ui/internal/config"
	"go-fraud-visuals-ui/internal/viz"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.SnapshotConfig{
		Driver:       config.DriverSQLite,
		SQLitePath:   ":memory:",
		QueryTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleState() viz.ViewState {
	return viz.NewViewState(
		&viz.Summary{Total: 10, Scored: 8, Errors: 2, LabelCounts: map[string]int{"Fraud": 3}},
		[]viz.Sample{{Row: 1, Label: "Fraud", Probability: 0.9}, {Row: 2, Label: "Normal", Probability: 0.1}},
		[]string{"amount", "merchant"},
	)
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	s := newMemoryStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	_, err := s.Get(ctx, "viewer-1")
	assert.ErrorIs(t, err, ErrNotFound)

	saved, err := s.Save(ctx, "viewer-1", sampleState(), OriginUpload)
	require.NoError(t, err)
	assert.Equal(t, fixed, saved.UpdatedAt)

	got, err := s.Get(ctx, "viewer-1")
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got.State)
	assert.Equal(t, OriginUpload, got.Origin)
	assert.Equal(t, fixed, got.UpdatedAt)
}

func TestSQLiteStore_SaveReplacesWholesale(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "viewer-1", sampleState(), OriginUpload)
	require.NoError(t, err)

	_, err = s.Save(ctx, "viewer-1", viz.ViewState{Fields: []string{"only"}}, OriginBackend)
	require.NoError(t, err)

	got, err := s.Get(ctx, "viewer-1")
	require.NoError(t, err)
	assert.Nil(t, got.State.Summary)
	assert.Empty(t, got.State.Samples)
	assert.Equal(t, []string{"only"}, got.State.Fields)
	assert.Equal(t, OriginBackend, got.Origin)
}

func TestSQLiteStore_DeleteAndPurge(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return old }
	_, err := s.Save(ctx, "stale", sampleState(), OriginUpload)
	require.NoError(t, err)
	s.now = time.Now
	_, err = s.Save(ctx, "fresh", sampleState(), OriginUpload)
	require.NoError(t, err)
	_, err = s.Save(ctx, "gone", sampleState(), OriginUpload)
	require.NoError(t, err)

	n, err := s.Delete(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.PurgeOlderThan(ctx, old.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := s.ServiceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", stats.Driver)
	assert.Equal(t, int64(1), stats.Snapshots)
	require.NotNil(t, stats.OldestUpdate)
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	s := newMemoryStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLiteStore_CorruptRowsDegradeToEmpty(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO view_snapshots (viewer_id, summary, samples, fields, origin, updated_unix_ms)
VALUES ('broken', '{not json', '[]', '[]', 'upload', 0);`)
	require.NoError(t, err)

	got, err := s.Get(ctx, "broken")
	require.NoError(t, err)
	assert.Nil(t, got.State.Summary)
	assert.Equal(t, []viz.Sample{}, got.State.Samples)
	assert.Equal(t, []string{}, got.State.Fields)
}

func TestStore_ViewerIDValidation(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "  ")
	assert.Error(t, err)
	_, err = s.Save(ctx, strings.Repeat("x", 65), viz.ViewState{}, OriginUpload)
	assert.Error(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.SnapshotConfig{Driver: "postgres"})
	assert.Error(t, err)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return newStore(db, "mysql", time.Second), mock
}

func TestMySQLStore_SaveUsesDuplicateKeyUpsert(t *testing.T) {
	s, mock := newMockStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO view_snapshots") + "(.|\n)*" + regexp.QuoteMeta("ON DUPLICATE KEY UPDATE")).
		WithArgs(
			"viewer-1",
			sql.NullString{String: `{"total":10,"scored":8,"errors":2,"label_counts":{"Fraud":3}}`, Valid: true},
			`[{"row":1,"label":"Fraud","probability":0.9},{"row":2,"label":"Normal","probability":0.1}]`,
			`["amount","merchant"]`,
			OriginUpload,
			fixed.UnixMilli(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := s.Save(context.Background(), "viewer-1", sampleState(), "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_Get(t *testing.T) {
	s, mock := newMockStore(t)
	ms := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()

	rows := sqlmock.NewRows([]string{"summary", "samples", "fields", "origin", "updated_unix_ms"}).
		AddRow(nil, `[{"row":4,"label":"Review","probability":0.5}]`, `["a"]`, OriginBackend, ms)
	mock.ExpectQuery(regexp.QuoteMeta("FROM view_snapshots")).WithArgs("viewer-1").WillReturnRows(rows)

	got, err := s.Get(context.Background(), "viewer-1")
	require.NoError(t, err)
	assert.Nil(t, got.State.Summary)
	assert.Equal(t, []viz.Sample{{Row: 4, Label: "Review", Probability: 0.5}}, got.State.Samples)
	assert.Equal(t, OriginBackend, got.Origin)
	assert.Equal(t, ms, got.UpdatedAt.UnixMilli())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_GetNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM view_snapshots")).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"summary", "samples", "fields", "origin", "updated_unix_ms"}))

	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMySQLStore_ServiceStats(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	s := newStore(db, "mysql", time.Second)

	mock.ExpectPing()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*), MIN(updated_unix_ms), MAX(updated_unix_ms)")).
		WillReturnRows(sqlmock.NewRows([]string{"count", "min", "max"}).AddRow(0, nil, nil))

	stats, err := s.ServiceStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mysql", stats.Driver)
	assert.Equal(t, int64(0), stats.Snapshots)
	assert.Nil(t, stats.OldestUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
