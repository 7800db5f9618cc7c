package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go-fraud-visuals-ui/internal/connectors/backend"
	"go-fraud-visuals-ui/internal/connectors/snapshot"
	"go-fraud-visuals-ui/internal/draw"
	httpapi "go-fraud-visuals-ui/internal/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the visuals web server",
		Example: `  # Serve with the local SQLite snapshot store
  fraudviz serve --listen :8080

  # Read and write view state through the backend
  fraudviz serve --backend-enabled --backend-url http://127.0.0.1:5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := configFrom(ctx)
			logger := loggerFrom(ctx)

			theme, err := draw.LoadTheme(cfg.Theme.File)
			if err != nil {
				return err
			}

			deps := httpapi.Deps{Theme: theme, Logger: logger}
			if cfg.SnapshotEnabled() {
				store, err := snapshot.Open(ctx, cfg.Snapshot)
				if err != nil {
					return fmt.Errorf("open snapshot store: %w", err)
				}
				defer store.Close()
				deps.Store = store
				logger.Info("snapshot store ready", "driver", store.Driver())
			}
			if cfg.Backend.Enabled {
				deps.Backend = backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, cfg.Backend.Cookie)
			}

			srv, err := httpapi.NewServer(cfg, deps)
			if err != nil {
				return fmt.Errorf("initialize server: %w", err)
			}
			return srv.Serve(ctx)
		},
	}
}
