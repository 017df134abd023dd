package main

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/nartool/internal/batch"
	"github.com/jchantrell/nartool/internal/export"
	"github.com/jchantrell/nartool/internal/model"
	"github.com/jchantrell/nartool/internal/nar"
	"github.com/jchantrell/nartool/internal/utils"
)

var (
	outputDir   string
	verifyFirst bool
	autoDecrypt bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <archive> [patterns...]",
	Short: "Extract archive entries to a directory",
	Long: `Extract decodes archive entries and writes them under the output directory,
restoring each file's modification time.

Patterns select entries by path using shell glob syntax, for example
"maps/*.bsp". With no patterns every entry is extracted. Model files are
decrypted after extraction when auto_decrypt is enabled and a decryptor
is available.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("verify") {
			cfg.VerifyOnExtract = verifyFirst
		}
		if cmd.Flags().Changed("auto-decrypt") {
			cfg.AutoDecrypt = autoDecrypt
		}

		a, err := nar.Open(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := selectEntries(a.Entries(), args[1:])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			slog.Info("No entries matched", "patterns", args[1:])
			return nil
		}

		opts := export.Options{Verify: cfg.VerifyOnExtract}
		if cfg.AutoDecrypt {
			opts.Decryptor = model.Registered()
			if opts.Decryptor == nil {
				slog.Warn("Automatic model decryption requested but no decryptor is available")
			}
		}

		slog.Info("Extracting", "archive", args[0], "entries", len(entries), "output", outputDir, "workers", cfg.Workers)

		var total int64
		for _, e := range entries {
			total += e.OriginalSize
		}

		start := time.Now()
		progress := utils.NewProgress(len(entries), "Extracting", progressEnabled())
		out := batch.Extract(cmd.Context(), entries, export.NewFileSink(outputDir, opts), batch.ExtractOptions{
			Workers:  cfg.Workers,
			Progress: progress.Callback(),
		})
		progress.Finish()
		elapsed := time.Since(start)

		switch out.Status {
		case batch.Cancelled:
			return fmt.Errorf("extraction cancelled after %d of %d entries", out.Processed, len(entries))
		case batch.Failed:
			return fmt.Errorf("extraction failed after %d of %d entries: %w", out.Processed, len(entries), out.Err)
		}

		fmt.Printf("Entries extracted: %s\n", utils.Number(int64(out.Processed)))
		fmt.Printf("Bytes written: %s\n", utils.Bytes(total))
		fmt.Printf("Duration: %s\n", utils.Duration(elapsed))
		if s := elapsed.Seconds(); s > 0 {
			fmt.Printf("Rate: %s entries/sec\n", utils.Rate(float64(out.Processed)/s))
		}
		return nil
	},
}

// selectEntries keeps the entries whose path matches any pattern. A leading
// "/" on a pattern is ignored, matching how entry paths are normalised.
func selectEntries(entries []*nar.Entry, patterns []string) ([]*nar.Entry, error) {
	if len(patterns) == 0 {
		return entries, nil
	}
	for i, p := range patterns {
		p = strings.TrimLeft(p, "/")
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", patterns[i], err)
		}
		patterns[i] = p
	}

	var selected []*nar.Entry
	for _, e := range entries {
		for _, p := range patterns {
			if ok, _ := path.Match(p, e.Path); ok {
				selected = append(selected, e)
				break
			}
		}
	}
	return selected, nil
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "output directory")
	extractCmd.Flags().BoolVar(&verifyFirst, "verify", false, "verify each entry's checksum before extracting it")
	extractCmd.Flags().BoolVar(&autoDecrypt, "auto-decrypt", false, "decrypt model files after extraction")
}
