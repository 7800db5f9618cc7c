package cli

import (
	"context"

	"github.com/spf13/cobra"

	"go-fraud-visuals-ui/internal/config"
	"go-fraud-visuals-ui/internal/connectors/backend"
	"go-fraud-visuals-ui/internal/draw"
	"go-fraud-visuals-ui/internal/viz"
)

func newSnapshotCmd() *cobra.Command {
	var (
		out     string
		caption string
		state   stateFlags
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export the dashboard snapshot PNG",
		Long: `Export the downloadable dashboard image: title, the latest upload summary,
all three charts and the insight text.`,
		Example: `  fraudviz snapshot --state state.json
  fraudviz snapshot --viewer 7c0e... -o viewer.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := configFrom(ctx)

			theme, err := draw.LoadTheme(cfg.Theme.File)
			if err != nil {
				return err
			}
			res, err := state.load(ctx, cfg)
			if err != nil {
				return err
			}
			if caption == "" {
				caption = defaultCaption(ctx, cfg, res.State)
			}

			blob, err := draw.Snapshot(res.State, caption, theme)
			if err != nil {
				return err
			}
			if err := writeOutput(cmd.OutOrStdout(), out, blob); err != nil {
				return err
			}
			if out != "-" {
				loggerFrom(ctx).Info("snapshot written", "file", out, "origin", res.Origin)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", draw.SnapshotFilename, `output file ("-" for stdout)`)
	f.StringVar(&caption, "caption", "", "summary line under the title (default: latest upload)")
	state.register(f)
	return cmd
}

// defaultCaption uses the newest backend upload when the backend is reachable and the
// rendered state's own summary otherwise.
func defaultCaption(ctx context.Context, cfg config.Config, state viz.ViewState) string {
	if cfg.Backend.Enabled {
		client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, cfg.Backend.Cookie)
		items, err := client.FetchHistory(ctx)
		if err != nil {
			loggerFrom(ctx).Warn("history fetch failed", "error", err)
		} else if card, ok := viz.LatestCard(items); ok && card.Summary != "" {
			return card.Summary
		}
	}
	return viz.NewHistoryCard(viz.HistoryItem{Summary: state.Summary}).Summary
}
