package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jchantrell/nartool/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string

	logLevel   string
	logFormat  string
	workers    int
	catalogDB  string
	noProgress bool
)

var rootCmd = &cobra.Command{
	Use:   "nartool",
	Short: "Read, verify, extract and build NAR archives",
	Long: `nartool works with NAR game archives: a container of files that may be
XOR-encoded with a key derived from each file's path and LZ-compressed.

It lists and extracts archive contents, verifies stored checksums, packs
directories into new archives, and records archive directories in a
SQLite catalog for querying.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if cmd.Flags().Changed("workers") {
			cfg.Workers = workers
		}
		if cmd.Flags().Changed("catalog") {
			cfg.Catalog = catalogDB
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var handler slog.Handler
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: cfg.SlogLevel(),
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: cfg.SlogLevel(),
			})
		}
		slog.SetDefault(slog.New(handler))

		slog.Debug("Configuration",
			"store_type", cfg.StoreType,
			"level", cfg.Level,
			"workers", cfg.Workers,
			"auto_decrypt", cfg.AutoDecrypt,
			"verify_on_extract", cfg.VerifyOnExtract,
			"catalog", cfg.Catalog,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
}

// progressEnabled reports whether a progress bar should be drawn instead
// of per-entry log lines.
func progressEnabled() bool {
	return !(noProgress || cfg.LogFormat == "json" || cfg.LogLevel == "debug")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is nartool.yaml in $HOME or pwd)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "number of concurrent workers")
	rootCmd.PersistentFlags().StringVar(&catalogDB, "catalog", "", "catalog database file path")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
