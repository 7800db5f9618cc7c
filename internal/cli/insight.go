package cli

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/spf13/cobra"

	"go-fraud-visuals-ui/internal/viz"
)

func newInsightCmd() *cobra.Command {
	var (
		asHTML bool
		state  stateFlags
	)
	cmd := &cobra.Command{
		Use:   "insight",
		Short: "Print the insight summary for a view state",
		Long: `Print the narrative insight shown beside the charts, followed by the stat bars
and the fields caption. Output is Markdown unless --html is given.`,
		Example: `  fraudviz insight --state state.json
  fraudviz insight --viewer 7c0e... --html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			res, err := state.load(ctx, configFrom(ctx))
			if err != nil {
				return err
			}
			out, err := formatInsight(res.State, asHTML)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&asHTML, "html", false, "print the HTML fragment instead of Markdown")
	state.register(cmd.Flags())
	return cmd
}

func formatInsight(state viz.ViewState, asHTML bool) (string, error) {
	body := viz.BuildInsight(state).HTML()
	if !asHTML {
		converted, err := md.ConvertString(body)
		if err != nil {
			return "", fmt.Errorf("convert insight: %w", err)
		}
		body = converted
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n\n")
	for _, bar := range viz.StatBars(state.Summary) {
		fmt.Fprintf(&b, "- %s: %d%%\n", bar.Label, bar.Value)
	}
	b.WriteString("\n")
	b.WriteString(viz.FieldsCaption(state.Fields))
	b.WriteString("\n")
	return b.String(), nil
}
