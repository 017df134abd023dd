package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/nartool/internal/lz"
	"github.com/jchantrell/nartool/internal/nar"
	"github.com/jchantrell/nartool/internal/utils"
)

var (
	packOutput    string
	packStoreType string
	packLevel     string
)

var packCmd = &cobra.Command{
	Use:   "pack <dir>",
	Short: "Build an archive from a directory",
	Long: `Pack stores every regular file under a directory in a new archive. Entry
paths start with the directory's own name, so packing "game/cstrike"
produces entries such as "cstrike/liblist.gam".

The archive is written to a temporary file and only moved into place
once it is complete.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := filepath.Clean(args[0])

		if cmd.Flags().Changed("store-type") {
			cfg.StoreType = packStoreType
		}
		if cmd.Flags().Changed("level") {
			cfg.Level = packLevel
		}
		st, err := nar.ParseStoreType(cfg.StoreType)
		if err != nil {
			return err
		}
		level, err := lz.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}

		dest := packOutput
		if dest == "" {
			base := filepath.Base(root)
			if base == "." || base == string(filepath.Separator) {
				base = "archive"
			}
			dest = base + ".nar"
		}

		count, err := countFiles(root)
		if err != nil {
			return err
		}

		b, err := nar.Create(dest)
		if err != nil {
			return err
		}
		defer b.Close()

		slog.Info("Packing", "dir", root, "files", count, "output", dest, "store_type", st, "level", level)

		start := time.Now()
		progress := utils.NewProgress(count, "Packing", progressEnabled())
		added, err := nar.PackDir(cmd.Context(), b, root, nar.PackOptions{
			StoreType: st,
			Level:     level,
			Progress: func(current int, name string) {
				progress.Update(current, name)
			},
		})
		progress.Finish()
		if err != nil {
			return err
		}

		if err := b.Save(); err != nil {
			return err
		}

		var raw, stored int64
		for _, e := range b.Entries() {
			raw += e.OriginalSize
			stored += e.StoredSize
		}

		fmt.Printf("Files packed: %s\n", utils.Number(int64(added)))
		fmt.Printf("Original size: %s\n", utils.Bytes(raw))
		fmt.Printf("Stored size: %s\n", utils.Bytes(stored))
		if raw > 0 {
			fmt.Printf("Ratio: %.1f%%\n", float64(stored)/float64(raw)*100)
		}
		fmt.Printf("Duration: %s\n", utils.Duration(time.Since(start)))
		return nil
	},
}

func countFiles(root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning %s: %w", root, err)
	}
	return n, nil
}

func init() {
	rootCmd.AddCommand(packCmd)
	packCmd.Flags().StringVarP(&packOutput, "output", "o", "", "archive to create (default <dir>.nar)")
	packCmd.Flags().StringVar(&packStoreType, "store-type", "", "store type (raw, encoded, compressed)")
	packCmd.Flags().StringVar(&packLevel, "level", "", "compression level (fastest, fast, normal, slow, slowest)")
}
