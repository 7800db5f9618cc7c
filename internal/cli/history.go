package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"go-fraud-visuals-ui/internal/connectors/backend"
	"go-fraud-visuals-ui/internal/viz"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent uploads recorded by the backend",
		Example: `  fraudviz history --backend-enabled --backend-cookie "session=..."
  fraudviz history --limit 3 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := configFrom(ctx)
			if !cfg.Backend.Enabled {
				return errors.New("history is kept by the backend; pass --backend-enabled")
			}

			client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, cfg.Backend.Cookie)
			items, err := client.FetchHistory(ctx)
			if err != nil {
				return fmt.Errorf("fetch history: %w", err)
			}
			if limit > 0 && len(items) > limit {
				items = items[:limit]
			}

			cards := make([]viz.HistoryCard, len(items))
			for i, item := range items {
				cards[i] = viz.NewHistoryCard(item)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cards)
			}
			renderHistory(cmd.OutOrStdout(), items, cards)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum uploads to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print history cards as JSON")
	return cmd
}

func renderHistory(w io.Writer, items []viz.HistoryItem, cards []viz.HistoryCard) {
	if len(cards) == 0 {
		_, _ = fmt.Fprintln(w, "No uploads recorded yet.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "File", "Rows", "Scored", "Errors", "Error rate", "Uploaded"})
	for i, card := range cards {
		uploaded := "--"
		if card.CreatedAt != nil {
			uploaded = humanize.Time(*card.CreatedAt)
		}
		rate := card.ErrorRate
		if rate == "" {
			rate = "--"
		}
		t.AppendRow(table.Row{
			items[i].ID,
			card.Filename,
			humanize.Comma(int64(card.Total)),
			humanize.Comma(int64(card.Scored)),
			humanize.Comma(int64(card.Errors)),
			rate,
			uploaded,
		})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d uploads)\n", len(cards))
}
