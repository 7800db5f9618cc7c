// Package cli provides the fraudviz command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go-fraud-visuals-ui/internal/config"
)

// Version is set at build time.
var Version = "dev"

type configKey struct{}

type loggerKey struct{}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "fraudviz",
		Short: "Fraud dashboard visuals",
		Long: `fraudviz renders the fraud dashboard charts (risk trend, risk histogram and
risk mix) from a scored batch, serves them to browsers, and keeps the last view
state per viewer so a page reload shows the same picture.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = context.WithValue(ctx, configKey{}, cfg)
			ctx = context.WithValue(ctx, loggerKey{}, newLogger(cmd.ErrOrStderr(), cfg.Log))
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./"+config.DefaultConfigFile+")")
	pf.String("listen", "", "HTTP listen address")
	pf.String("backend-url", "", "base URL of the fraud detection backend")
	pf.Bool("backend-enabled", false, "read and write view state through the backend")
	pf.String("backend-cookie", "", "Cookie header sent to the backend")
	pf.Duration("poll-interval", 0, "backend health probe interval")
	pf.String("snapshot-driver", "", "snapshot store driver (sqlite|mysql|none)")
	pf.String("snapshot-db", "", "SQLite snapshot database path")
	pf.String("theme", "", "TOML palette file")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("snapshot-driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.DriverSQLite, config.DriverMySQL, config.DriverNone}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newInsightCmd())
	rootCmd.AddCommand(newSniffCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func configFrom(ctx context.Context) config.Config {
	if cfg, ok := ctx.Value(configKey{}).(config.Config); ok {
		return cfg
	}
	cfg, _ := config.Load("", nil)
	return cfg
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
