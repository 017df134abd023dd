package nar

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/nartool/internal/lz"
)

func TestArchiveFS(t *testing.T) {
	t.Parallel()

	files := sampleFiles()
	a := openArchive(t, buildArchive(t, files, lz.Normal))
	fsys := a.FS()

	var names []string
	for _, f := range files {
		names = append(names, f.path)
	}
	require.NoError(t, fstest.TestFS(fsys, names...))

	data, err := fs.ReadFile(fsys, "maps/de_dust2.bsp")
	require.NoError(t, err)
	assert.Equal(t, files[1].data, data)

	info, err := fs.Stat(fsys, "models/player/leet.mdl")
	require.NoError(t, err)
	assert.Equal(t, "leet.mdl", info.Name())
	assert.Equal(t, int64(len(files[2].data)), info.Size())
	assert.True(t, files[2].modTime.Equal(info.ModTime()))

	root, err := fs.ReadDir(fsys, ".")
	require.NoError(t, err)
	var rootNames []string
	for _, d := range root {
		rootNames = append(rootNames, d.Name())
	}
	assert.Equal(t, []string{"empty.cfg", "maps", "models", "readme.txt", "sound"}, rootNames)

	_, err = fsys.Open("missing/file")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestPackDir(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "cstrike")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "maps"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sound", "weapons"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "liblist.gam"), []byte("game \"Counter-Strike\""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "maps", "de_aztec.bsp"), make([]byte, 5000), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sound", "weapons", "ak47-1.wav"), []byte("RIFF"), 0o644))

	dest := filepath.Join(t.TempDir(), "cstrike.nar")
	b, err := Create(dest)
	require.NoError(t, err)
	defer b.Close()

	var seen []string
	n, err := PackDir(context.Background(), b, src, PackOptions{
		StoreType: EncodedAndCompressed,
		Level:     lz.Fast,
		Progress:  func(_ int, name string) { seen = append(seen, name) },
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, b.Save())

	assert.Equal(t, []string{
		"cstrike/liblist.gam",
		"cstrike/maps/de_aztec.bsp",
		"cstrike/sound/weapons/ak47-1.wav",
	}, seen)

	a := openArchive(t, dest)
	data, err := fs.ReadFile(a.FS(), "cstrike/maps/de_aztec.bsp")
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 5000), data)
}

func TestPackDirCancelled(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644))

	b, err := Create(filepath.Join(t.TempDir(), "out.nar"))
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = PackDir(ctx, b, src, PackOptions{StoreType: Raw})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.Len())
}

func TestPackDirSkipsOwnArchive(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "game")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	// left over from an earlier pack into the same place
	require.NoError(t, os.WriteFile(filepath.Join(root, "archive.nar"), []byte("stale"), 0o644))

	dest := filepath.Join(root, "archive.nar")
	b, err := Create(dest)
	require.NoError(t, err)
	defer b.Close()

	n, err := PackDir(context.Background(), b, root, PackOptions{StoreType: Raw})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var names []string
	for _, e := range b.Entries() {
		names = append(names, e.Path)
	}
	assert.Equal(t, []string{"game/a.txt"}, names)

	require.NoError(t, b.Save())
	a := openArchive(t, dest)
	assert.Equal(t, 1, a.Len())
}
