package main

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jchantrell/nartool/internal/batch"
	"github.com/jchantrell/nartool/internal/nar"
	"github.com/jchantrell/nartool/internal/utils"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <archive>",
	Short: "Check the stored checksum of every entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := nar.Open(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		entries := a.Entries()

		var (
			mu  sync.Mutex
			bad []string
		)
		progress := utils.NewProgress(len(entries), "Verifying", progressEnabled())
		out := batch.Verify(cmd.Context(), entries, batch.VerifyOptions{
			Workers:  cfg.Workers,
			Progress: progress.Callback(),
			OnMismatch: func(e *nar.Entry) {
				mu.Lock()
				bad = append(bad, e.Path)
				mu.Unlock()
			},
		})
		progress.Finish()

		switch out.Status {
		case batch.Cancelled:
			return fmt.Errorf("verification cancelled after %d of %d entries", out.Processed, len(entries))
		case batch.Failed:
			return fmt.Errorf("verification failed: %w", out.Err)
		}

		sort.Strings(bad)
		for _, p := range bad {
			slog.Error("Checksum mismatch", "path", p)
		}

		fmt.Printf("Entries verified: %s\n", utils.Number(int64(out.Processed)))
		fmt.Printf("Mismatches: %d\n", len(bad))
		if len(bad) > 0 {
			return fmt.Errorf("%d of %d entries failed verification", len(bad), len(entries))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
