package nar

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/jchantrell/nartool/internal/lz"
)

// PackOptions controls how PackDir stores files.
type PackOptions struct {
	StoreType StoreType
	Level     lz.Level

	// Progress, if set, is called after each file is added.
	Progress func(current int, name string)
}

// PackDir adds every regular file under root to b. Entry paths are
// relative to root's parent, so packing "data/models" yields entries like
// "models/player.mdl". The archive being built is never packed into
// itself. Cancellation is checked between files.
func PackDir(ctx context.Context, b *Builder, root string, opts PackOptions) (int, error) {
	root = filepath.Clean(root)
	base := filepath.Base(root)
	own := b.ownFiles()

	added := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if abs, err := filepath.Abs(p); err == nil && own[abs] {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := path.Join(base, filepath.ToSlash(rel))

		if _, err := b.AddFile(p, name, opts.StoreType, opts.Level); err != nil {
			return err
		}
		added++
		if opts.Progress != nil {
			opts.Progress(added, name)
		}
		return nil
	})
	if err != nil {
		return added, fmt.Errorf("packing %s: %w", root, err)
	}
	return added, nil
}

// ownFiles returns the absolute paths of the builder's temp file and
// destination.
func (b *Builder) ownFiles() map[string]bool {
	own := make(map[string]bool, 2)
	for _, p := range []string{b.tmp.Name(), b.dest} {
		if abs, err := filepath.Abs(p); err == nil {
			own[abs] = true
		}
	}
	return own
}
