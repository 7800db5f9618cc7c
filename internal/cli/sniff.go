package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"go-fraud-visuals-ui/internal/ingest"
	"go-fraud-visuals-ui/internal/viz"
)

func newSniffCmd() *cobra.Command {
	var stateFile string
	cmd := &cobra.Command{
		Use:   "sniff <file>...",
		Short: "Check upload files the way the dashboard does",
		Long: `Print the one-line upload status for each file and, for CSV files, the header
fields read from the first line. The final caption is what the dashboard would show:
fields from --state win over sniffed ones.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var scored []string
			if stateFile != "" {
				st, err := readStateFile(stateFile)
				if err != nil {
					return err
				}
				scored = st.Fields
			}
			sniffed, err := sniffFiles(cmd.OutOrStdout(), args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), viz.FieldsCaption(ingest.MergeFields(scored, sniffed)))
			return err
		},
	}
	cmd.Flags().StringVar(&stateFile, "state", "", "view state JSON whose fields take precedence")
	return cmd
}

// sniffFiles prints a status line per file and returns the header of the first CSV.
func sniffFiles(w io.Writer, paths []string) ([]string, error) {
	var sniffed []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		status := ingest.DescribeFile(filepath.Base(path), info.Size())
		_, _ = fmt.Fprintln(w, status.Message)

		if status.Kind != ingest.KindCSV {
			continue
		}
		f, err := os.Open(path) // #nosec G304 -- operator supplied path
		if err != nil {
			return nil, err
		}
		fields := ingest.HeaderFields(f)
		_ = f.Close()
		_, _ = fmt.Fprintf(w, "  columns: %s\n", strings.Join(fields, ", "))
		if sniffed == nil {
			sniffed = fields
		}
	}
	return sniffed, nil
}
