package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jchantrell/nartool/internal/catalog"
	"github.com/jchantrell/nartool/internal/nar"
	"github.com/jchantrell/nartool/internal/utils"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog <archive...>",
	Short: "Record archive directories in the SQLite catalog",
	Long: `Catalog loads each archive's directory and stores one row per archive and
one row per entry in the catalog database. Re-cataloguing an archive
replaces its previous rows. Use "nartool query" to search the result.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		c, err := catalog.Open(ctx, catalog.DefaultOptions(cfg.Catalog))
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer c.Close()

		progress := utils.NewProgress(len(args), "Cataloguing", progressEnabled())
		defer progress.Finish()

		var entries int
		for i, p := range args {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("catalog cancelled after %d of %d archives", i, len(args))
			}

			n, err := recordArchive(cmd, c, p)
			if err != nil {
				return err
			}
			entries += n
			progress.Update(i+1, p)
		}

		slog.Info("Catalog updated", "catalog", c.Path(), "archives", len(args), "entries", entries)
		fmt.Printf("Archives recorded: %d\n", len(args))
		fmt.Printf("Entries recorded: %s\n", utils.Number(int64(entries)))
		fmt.Println("Try running: nartool query --tables")
		return nil
	},
}

func recordArchive(cmd *cobra.Command, c *catalog.Catalog, path string) (int, error) {
	a, err := nar.Open(path)
	if err != nil {
		return 0, err
	}
	defer a.Close()

	if _, err := c.Record(cmd.Context(), path, a); err != nil {
		return 0, fmt.Errorf("recording %s: %w", path, err)
	}
	return a.Len(), nil
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
