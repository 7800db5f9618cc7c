// Package snapshot persists the last rendered view state per viewer so the dashboard can
// rehydrate when the scoring backend is unavailable.
package snapshot

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"go-fraud-visuals-ui/internal/config"
	"go-fraud-visuals-ui/internal/viz"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrations embed.FS

// ErrNotFound is returned when a viewer has no stored snapshot.
var ErrNotFound = errors.New("snapshot not found")

// Origins record where a stored state came from.
const (
	OriginUpload  = "upload"
	OriginBackend = "backend"
)

const maxViewerIDLen = 64

// Record is one viewer's stored state.
type Record struct {
	ViewerID  string        `json:"viewer_id"`
	State     viz.ViewState `json:"state"`
	Origin    string        `json:"origin"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ServiceStats reports basic store health and counters.
type ServiceStats struct {
	Driver       string     `json:"driver"`
	PingMS       int64      `json:"ping_ms"`
	Snapshots    int64      `json:"snapshots"`
	OldestUpdate *time.Time `json:"oldest_update,omitempty"`
	NewestUpdate *time.Time `json:"newest_update,omitempty"`
}

// Store wraps the snapshot table in SQLite or MySQL.
type Store struct {
	db           *sql.DB
	dialect      string
	queryTimeout time.Duration
	now          func() time.Time
}

// Open connects to the configured driver and applies migrations.
func Open(ctx context.Context, cfg config.SnapshotConfig) (*Store, error) {
	var (
		s   *Store
		err error
	)
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err = NewSQLiteStore(cfg.SQLitePath, cfg.QueryTimeout)
	case config.DriverMySQL:
		s, err = NewMySQLStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported snapshot driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore opens a single-connection SQLite database. ":memory:" is accepted.
func NewSQLiteStore(path string, queryTimeout time.Duration) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newStore(db, "sqlite3", queryTimeout), nil
}

// NewMySQLStore opens a pooled MySQL connection.
func NewMySQLStore(cfg config.SnapshotConfig) (*Store, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	connTimeout := cfg.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newStore(db, "mysql", cfg.QueryTimeout), nil
}

func newStore(db *sql.DB, dialect string, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &Store{db: db, dialect: dialect, queryTimeout: queryTimeout, now: time.Now}
}

// Driver names the SQL dialect in use.
func (s *Store) Driver() string {
	if s.dialect == "sqlite3" {
		return config.DriverSQLite
	}
	return s.dialect
}

// Migrate applies the embedded migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("database not opened")
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(s.dialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations/"+s.Driver()); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the viewer's snapshot or ErrNotFound. Columns that fail to decode degrade
// to an empty state rather than an error.
func (s *Store) Get(ctx context.Context, viewerID string) (Record, error) {
	viewerID, err := normalizeViewerID(viewerID)
	if err != nil {
		return Record{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var (
		summary   sql.NullString
		samples   string
		fields    string
		origin    string
		updatedMS int64
	)
	err = s.db.QueryRowContext(ctx, `
SELECT summary, samples, fields, origin, updated_unix_ms
FROM view_snapshots
WHERE viewer_id = ?;
`, viewerID).Scan(&summary, &samples, &fields, &origin, &updatedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("query snapshot: %w", err)
	}

	return Record{
		ViewerID:  viewerID,
		State:     decodeState(summary, samples, fields),
		Origin:    origin,
		UpdatedAt: time.UnixMilli(updatedMS).UTC(),
	}, nil
}

// Save replaces the viewer's snapshot wholesale.
func (s *Store) Save(ctx context.Context, viewerID string, state viz.ViewState, origin string) (Record, error) {
	viewerID, err := normalizeViewerID(viewerID)
	if err != nil {
		return Record{}, err
	}
	if origin != OriginBackend {
		origin = OriginUpload
	}
	summary, samples, fields, err := encodeState(state)
	if err != nil {
		return Record{}, err
	}
	now := s.now().UTC().Truncate(time.Millisecond)

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, s.upsertSQL(), viewerID, summary, samples, fields, origin, now.UnixMilli()); err != nil {
		return Record{}, fmt.Errorf("save snapshot: %w", err)
	}
	return Record{ViewerID: viewerID, State: state.Clone(), Origin: origin, UpdatedAt: now}, nil
}

func (s *Store) upsertSQL() string {
	if s.dialect == "mysql" {
		return `
INSERT INTO view_snapshots (viewer_id, summary, samples, fields, origin, updated_unix_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  summary = VALUES(summary),
  samples = VALUES(samples),
  fields = VALUES(fields),
  origin = VALUES(origin),
  updated_unix_ms = VALUES(updated_unix_ms);
`
	}
	return `
INSERT INTO view_snapshots (viewer_id, summary, samples, fields, origin, updated_unix_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(viewer_id) DO UPDATE SET
  summary = excluded.summary,
  samples = excluded.samples,
  fields = excluded.fields,
  origin = excluded.origin,
  updated_unix_ms = excluded.updated_unix_ms;
`
}

// Delete removes the viewer's snapshot.
func (s *Store) Delete(ctx context.Context, viewerID string) (int64, error) {
	viewerID, err := normalizeViewerID(viewerID)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM view_snapshots WHERE viewer_id = ?`, viewerID)
	if err != nil {
		return 0, fmt.Errorf("delete snapshot: %w", err)
	}
	return res.RowsAffected()
}

// PurgeOlderThan deletes snapshots last written before cutoff.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM view_snapshots WHERE updated_unix_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge snapshots: %w", err)
	}
	return res.RowsAffected()
}

// ServiceStats pings the database and counts stored snapshots.
func (s *Store) ServiceStats(ctx context.Context) (*ServiceStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return nil, err
	}
	out := &ServiceStats{Driver: s.Driver(), PingMS: time.Since(start).Milliseconds()}

	var oldest, newest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), MIN(updated_unix_ms), MAX(updated_unix_ms)
FROM view_snapshots;
`).Scan(&out.Snapshots, &oldest, &newest); err != nil {
		return nil, err
	}
	if oldest.Valid {
		t := time.UnixMilli(oldest.Int64).UTC()
		out.OldestUpdate = &t
	}
	if newest.Valid {
		t := time.UnixMilli(newest.Int64).UTC()
		out.NewestUpdate = &t
	}
	return out, nil
}

func normalizeViewerID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("viewer id required")
	}
	if len(id) > maxViewerIDLen {
		return "", fmt.Errorf("viewer id longer than %d bytes", maxViewerIDLen)
	}
	return id, nil
}

func encodeState(state viz.ViewState) (sql.NullString, string, string, error) {
	var summary sql.NullString
	if state.Summary != nil {
		raw, err := json.Marshal(state.Summary)
		if err != nil {
			return summary, "", "", fmt.Errorf("encode summary: %w", err)
		}
		summary = sql.NullString{String: string(raw), Valid: true}
	}
	samples := state.Samples
	if samples == nil {
		samples = []viz.Sample{}
	}
	rawSamples, err := json.Marshal(samples)
	if err != nil {
		return summary, "", "", fmt.Errorf("encode samples: %w", err)
	}
	fields := state.Fields
	if fields == nil {
		fields = []string{}
	}
	rawFields, err := json.Marshal(fields)
	if err != nil {
		return summary, "", "", fmt.Errorf("encode fields: %w", err)
	}
	return summary, string(rawSamples), string(rawFields), nil
}

func decodeState(summary sql.NullString, samples, fields string) viz.ViewState {
	state := viz.ViewState{Samples: []viz.Sample{}, Fields: []string{}}
	if summary.Valid && summary.String != "" && summary.String != "null" {
		var sum viz.Summary
		if err := json.Unmarshal([]byte(summary.String), &sum); err != nil {
			return viz.ViewState{Samples: []viz.Sample{}, Fields: []string{}}
		}
		state.Summary = &sum
	}
	if samples != "" {
		if err := json.Unmarshal([]byte(samples), &state.Samples); err != nil {
			return viz.ViewState{Samples: []viz.Sample{}, Fields: []string{}}
		}
	}
	if fields != "" {
		if err := json.Unmarshal([]byte(fields), &state.Fields); err != nil {
			return viz.ViewState{Samples: []viz.Sample{}, Fields: []string{}}
		}
	}
	if state.Samples == nil {
		state.Samples = []viz.Sample{}
	}
	if state.Fields == nil {
		state.Fields = []string{}
	}
	return state
}
