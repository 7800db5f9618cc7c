package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"go-fraud-visuals-ui/internal/config"
	"go-fraud-visuals-ui/internal/connectors/backend"
	"go-fraud-visuals-ui/internal/connectors/snapshot"
	"go-fraud-visuals-ui/internal/hydrate"
	"go-fraud-visuals-ui/internal/viz"
)

const originFile = "file"

// stateFlags selects the view state a command renders.
type stateFlags struct {
	file   string
	viewer string
}

func (f *stateFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.file, "state", "", "view state JSON file (default: backend, then the viewer's snapshot)")
	fs.StringVar(&f.viewer, "viewer", "", "viewer id whose stored snapshot is used")
}

// load reads the state file when one is given. Otherwise it hydrates the same way the
// server does: backend first, then the viewer's snapshot, then an empty state.
func (f *stateFlags) load(ctx context.Context, cfg config.Config) (hydrate.Result, error) {
	if f.file != "" {
		state, err := readStateFile(f.file)
		if err != nil {
			return hydrate.Result{}, err
		}
		return hydrate.Result{State: state, Origin: originFile}, nil
	}

	var source hydrate.StateSource
	if cfg.Backend.Enabled {
		source = backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, cfg.Backend.Cookie)
	}
	var store hydrate.SnapshotStore
	if f.viewer != "" && cfg.SnapshotEnabled() {
		s, err := snapshot.Open(ctx, cfg.Snapshot)
		if err != nil {
			return hydrate.Result{}, fmt.Errorf("open snapshot store: %w", err)
		}
		defer s.Close()
		store = s
	}
	return hydrate.New(source, store, nil, loggerFrom(ctx)).Load(ctx, f.viewer), nil
}

// readStateFile accepts a bare view state or the backend's {"status","state"} envelope.
func readStateFile(path string) (viz.ViewState, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return viz.ViewState{}, fmt.Errorf("read state: %w", err)
	}
	var doc struct {
		viz.ViewState
		State *viz.ViewState `json:"state"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return viz.ViewState{}, fmt.Errorf("parse state %s: %w", path, err)
	}
	st := doc.ViewState
	if doc.State != nil {
		st = *doc.State
	}
	return viz.NewViewState(st.Summary, st.Samples, st.Fields), nil
}

// writeOutput writes to path, or to stdout when path is empty or "-".
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 -- rendered images are not secret
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
