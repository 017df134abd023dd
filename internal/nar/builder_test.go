package nar

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/nartool/internal/lz"
)

func TestBuilderCloseLeavesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b, err := Create(filepath.Join(dir, "abandoned.nar"))
	require.NoError(t, err)

	_, err = b.Add(strings.NewReader("data"), "a.txt", Encoded, time.Time{}, lz.Normal)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, left)

	assert.Error(t, b.Save())
}

func TestBuilderRejectsBadEntries(t *testing.T) {
	t.Parallel()

	b, err := Create(filepath.Join(t.TempDir(), "bad.nar"))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Add(strings.NewReader("1"), "dup.txt", Raw, baseTime, lz.Normal)
	require.NoError(t, err)

	_, err = b.Add(strings.NewReader("2"), "/dup.txt", Raw, baseTime, lz.Normal)
	assert.Error(t, err, "duplicate after normalization")

	_, err = b.Add(strings.NewReader("3"), "", Raw, baseTime, lz.Normal)
	assert.Error(t, err)

	_, err = b.Add(strings.NewReader("4"), "x.txt", StoreType(9), baseTime, lz.Normal)
	assert.Error(t, err)

	_, err = b.Add(strings.NewReader("5"), "emoji/😀.txt", Raw, baseTime, lz.Normal)
	assert.Error(t, err)

	assert.Equal(t, 1, b.Len())
}

type failingReader struct {
	n int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n <= 0 {
		return 0, errors.New("disk on fire")
	}
	n := min(len(p), r.n)
	r.n -= n
	return n, nil
}

func TestBuilderRewindsFailedAdd(t *testing.T) {
	t.Parallel()

	// failures both before and after the write buffer first flushes
	for _, failAfter := range []int{0, 100, 300000} {
		t.Run(fmt.Sprint(failAfter), func(t *testing.T) {
			t.Parallel()

			dest := filepath.Join(t.TempDir(), "rewind.nar")
			b, err := Create(dest)
			require.NoError(t, err)
			defer b.Close()

			_, err = b.Add(&failingReader{n: failAfter}, "broken.bin", Encoded, baseTime, lz.Normal)
			require.Error(t, err)

			_, err = b.Add(strings.NewReader("survivor"), "ok.txt", Encoded, baseTime, lz.Normal)
			require.NoError(t, err)
			require.NoError(t, b.Save())

			a := openArchive(t, dest)
			require.Equal(t, 1, a.Len())
			e := a.Entries()[0]
			assert.Equal(t, int64(8), e.Offset)

			var out bytes.Buffer
			_, err = e.Extract(&out)
			require.NoError(t, err)
			assert.Equal(t, "survivor", out.String())
		})
	}
}

func TestSaveOverwritesDestination(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "out.nar")
	require.NoError(t, os.WriteFile(dest, []byte("old contents"), 0o644))

	b, err := Create(dest)
	require.NoError(t, err)

	_, err = b.Add(strings.NewReader("new"), "n.txt", Raw, baseTime, lz.Normal)
	require.NoError(t, err)

	// the destination is untouched until Save
	old, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "old contents", string(old))

	require.NoError(t, b.Save())
	a := openArchive(t, dest)
	assert.Equal(t, 1, a.Len())
}
