package main

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/nartool/internal/nar"
	"github.com/jchantrell/nartool/internal/utils"
)

var (
	listLong bool
	listTree bool
)

var listCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List the entries of an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := nar.Open(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if listTree {
			return printTree(a)
		}

		if listLong {
			fmt.Printf("%-10s %12s %12s  %-19s  %-8s  %s\n", "Store", "Size", "Stored", "Modified", "CRC", "Path")
			fmt.Println(strings.Repeat("-", 80))
		}

		var total int64
		for _, e := range a.Entries() {
			total += e.OriginalSize
			if !listLong {
				fmt.Println(e.Path)
				continue
			}
			fmt.Printf("%-10s %12s %12s  %-19s  %08X  %s\n",
				e.StoreType,
				utils.Number(e.OriginalSize),
				utils.Number(e.StoredSize),
				e.LastModified.Local().Format("2006-01-02 15:04:05"),
				e.Checksum,
				e.Path)
		}

		if listLong {
			fmt.Printf("\n%d entries, %s, directory version %d\n", a.Len(), utils.Bytes(total), a.Version())
		}
		return nil
	},
}

func printTree(a *nar.Archive) error {
	return fs.WalkDir(a.FS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		depth := strings.Count(p, "/")
		name := d.Name()
		if d.IsDir() {
			name += "/"
		} else if info, err := d.Info(); err == nil {
			name = fmt.Sprintf("%s (%s)", name, utils.Bytes(info.Size()))
		}
		fmt.Printf("%s%s\n", strings.Repeat("  ", depth), name)
		return nil
	})
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "show store type, sizes, times and checksums")
	listCmd.Flags().BoolVarP(&listTree, "tree", "t", false, "show entries as a directory tree")
}
