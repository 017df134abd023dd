package nar

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/nartool/internal/errdefs"
	"github.com/jchantrell/nartool/internal/keystream"
	"github.com/jchantrell/nartool/internal/lz"
)

type testFile struct {
	path      string
	data      []byte
	storeType StoreType
	modTime   time.Time
}

var baseTime = time.Date(2008, 7, 1, 12, 30, 45, 0, time.UTC)

func sampleFiles() []testFile {
	return []testFile{
		{"readme.txt", []byte("plain stored text"), Raw, baseTime},
		{"maps/de_dust2.bsp", bytes.Repeat([]byte("BSP30 lump data "), 512), EncodedAndCompressed, baseTime.Add(time.Hour)},
		{"models/player/leet.mdl", []byte("IDST\x0a\x00\x00\x00 model header"), Encoded, baseTime.Add(2 * time.Hour)},
		{"sound/한국어/시작.wav", bytes.Repeat([]byte{0x52, 0x49, 0x46, 0x46}, 300), EncodedAndCompressed, baseTime},
		{"empty.cfg", nil, Encoded, baseTime},
		{"maps/empty.res", nil, EncodedAndCompressed, baseTime},
	}
}

func buildArchive(t *testing.T, files []testFile, level lz.Level) string {
	t.Helper()

	dest := filepath.Join(t.TempDir(), "test.nar")
	b, err := Create(dest)
	require.NoError(t, err)
	defer b.Close()

	for _, f := range files {
		_, err := b.Add(bytes.NewReader(f.data), f.path, f.storeType, f.modTime, level)
		require.NoError(t, err, f.path)
	}
	require.NoError(t, b.Save())
	return dest
}

func openArchive(t *testing.T, path string) *Archive {
	t.Helper()
	a, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestContainerRoundTrip(t *testing.T) {
	t.Parallel()

	for _, level := range []lz.Level{lz.Fastest, lz.Normal, lz.Slowest} {
		t.Run(level.String(), func(t *testing.T) {
			t.Parallel()

			files := sampleFiles()
			a := openArchive(t, buildArchive(t, files, level))

			entries := a.Entries()
			require.Len(t, entries, len(files))
			assert.Equal(t, int32(1), a.Version())

			for i, f := range files {
				e := entries[i]
				assert.Equal(t, f.path, e.Path)
				assert.Equal(t, f.storeType, e.StoreType)
				assert.Equal(t, int64(len(f.data)), e.OriginalSize)
				assert.True(t, f.modTime.Equal(e.LastModified), "%s: %s != %s", f.path, f.modTime, e.LastModified)

				var out bytes.Buffer
				n, err := e.Extract(&out)
				require.NoError(t, err, f.path)
				assert.Equal(t, int64(len(f.data)), n)
				assert.Equal(t, f.data, out.Bytes(), f.path)

				ok, err := e.Verify()
				require.NoError(t, err)
				assert.True(t, ok, f.path)
				assert.NoError(t, e.Check())
			}
		})
	}
}

func TestBuilderEntriesMatchLoaded(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "match.nar")
	b, err := Create(dest)
	require.NoError(t, err)

	var built []Entry
	for _, f := range sampleFiles() {
		e, err := b.Add(bytes.NewReader(f.data), f.path, f.storeType, f.modTime, lz.Normal)
		require.NoError(t, err)
		built = append(built, *e)
	}
	require.NoError(t, b.Save())

	a := openArchive(t, dest)
	for i, e := range a.Entries() {
		want := built[i]
		assert.Equal(t, want.Path, e.Path)
		assert.Equal(t, want.Offset, e.Offset)
		assert.Equal(t, want.StoredSize, e.StoredSize)
		assert.Equal(t, want.OriginalSize, e.OriginalSize)
		assert.Equal(t, want.Checksum, e.Checksum)
		assert.Equal(t, want.LastModified.Unix(), e.LastModified.Unix())
	}
}

func TestCompressedEntryIsCompressedThenEncoded(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("abcdefgh"), 200)
	a := openArchive(t, buildArchive(t, []testFile{
		{"data/blob.bin", data, EncodedAndCompressed, baseTime},
	}, lz.Normal))

	e, ok := a.Lookup("data/blob.bin")
	require.True(t, ok)
	assert.Less(t, e.StoredSize, e.OriginalSize)

	var stored bytes.Buffer
	_, err := e.ReadStored(&stored)
	require.NoError(t, err)

	key, err := keystream.KeyForPath("data/blob.bin")
	require.NoError(t, err)
	compressed := stored.Bytes()
	keystream.XORAt(compressed, key, 0)

	var plain bytes.Buffer
	_, err = lz.Decompress(&plain, bytes.NewReader(compressed))
	require.NoError(t, err)
	assert.Equal(t, data, plain.Bytes())
}

func TestContainerLayout(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, sampleFiles()[:2], lz.Normal)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(0x0052414E), binary.LittleEndian.Uint32(raw[0:]))
	assert.Equal(t, uint32(0x01000000), binary.LittleEndian.Uint32(raw[4:]))
	assert.Equal(t, uint32(0x0052414E), binary.LittleEndian.Uint32(raw[len(raw)-4:]))

	a := openArchive(t, path)
	entries := a.Entries()
	last := entries[len(entries)-1]
	payloadEnd := last.Offset + last.StoredSize
	assert.Equal(t, int64(8), entries[0].Offset)
	assert.Equal(t, entries[0].Offset+entries[0].StoredSize, entries[1].Offset)

	headerSize := binary.LittleEndian.Uint32(raw[len(raw)-8:]) ^ 0x4076551F
	assert.Equal(t, int64(len(raw))-8-payloadEnd, int64(headerSize))
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Parallel()

	good, err := os.ReadFile(buildArchive(t, sampleFiles(), lz.Normal))
	require.NoError(t, err)

	corrupt := func(f func(b []byte) []byte) []byte {
		return f(bytes.Clone(good))
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad signature", corrupt(func(b []byte) []byte { b[0] ^= 0xff; return b })},
		{"bad version", corrupt(func(b []byte) []byte { b[7] = 0x02; return b })},
		{"bad footer signature", corrupt(func(b []byte) []byte { b[len(b)-1] ^= 0x01; return b })},
		{"too short", corrupt(func(b []byte) []byte { return b[:12] })},
		{"header size too large", corrupt(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[len(b)-8:], uint32(len(b))^0x4076551F)
			return b
		})},
		{"header block garbage", corrupt(func(b []byte) []byte { b[len(b)-12] ^= 0x55; b[len(b)-20] ^= 0x55; return b })},
		{"truncated payload", corrupt(func(b []byte) []byte { return append(b[:8], b[len(b)-200:]...) })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, err := Load(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, errdefs.ErrFormat)
			assert.Nil(t, a)
		})
	}
}

func TestVerifyDetectsFlippedByte(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, sampleFiles(), lz.Normal)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	a, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)

	for _, e := range a.Entries() {
		if e.StoredSize == 0 {
			continue
		}
		for _, off := range []int64{0, e.StoredSize / 2, e.StoredSize - 1} {
			mutated := bytes.Clone(raw)
			mutated[e.Offset+off] ^= 0x01

			m, err := Load(bytes.NewReader(mutated))
			require.NoError(t, err)
			me, ok := m.Lookup(e.Path)
			require.True(t, ok)

			ok, err = me.Verify()
			require.NoError(t, err)
			assert.False(t, ok, "%s byte %d", e.Path, off)
			assert.ErrorIs(t, me.Check(), errdefs.ErrChecksumMismatch)
		}
	}
}

func TestDirectoryVersions(t *testing.T) {
	t.Parallel()

	patch := make([]byte, 30)
	binary.LittleEndian.PutUint32(patch[0:], 1)
	binary.LittleEndian.PutUint32(patch[4:], 18)
	binary.LittleEndian.PutUint32(patch[20:], 1)
	copy(patch[24:], "extra!")

	dest := filepath.Join(t.TempDir(), "patched.nar")
	b, err := Create(dest)
	require.NoError(t, err)
	require.NoError(t, b.SetPatch(patch))
	_, err = b.Add(strings.NewReader("x"), "a.txt", Raw, baseTime, lz.Normal)
	require.NoError(t, err)
	require.NoError(t, b.Save())

	a := openArchive(t, dest)
	assert.Equal(t, int32(2), a.Version())
	assert.Equal(t, patch, a.Patch())
	require.Equal(t, 1, a.Len())

	t.Run("inconsistent patch size", func(t *testing.T) {
		bad := bytes.Clone(patch)
		binary.LittleEndian.PutUint32(bad[4:], 40)
		d := Directory{Patch: bad}
		_, err := d.MarshalBinary()
		assert.ErrorIs(t, err, errdefs.ErrFormat)
	})

	t.Run("unknown version", func(t *testing.T) {
		d := Directory{Entries: a.Entries()}
		raw, err := d.MarshalBinary()
		require.NoError(t, err)
		binary.LittleEndian.PutUint32(raw, 3)

		var out Directory
		assert.ErrorIs(t, out.UnmarshalBinary(raw), errdefs.ErrFormat)
	})

	t.Run("truncated entry", func(t *testing.T) {
		d := Directory{Entries: a.Entries()}
		raw, err := d.MarshalBinary()
		require.NoError(t, err)

		var out Directory
		assert.ErrorIs(t, out.UnmarshalBinary(raw[:len(raw)-3]), errdefs.ErrFormat)
	})
}

func TestLookup(t *testing.T) {
	t.Parallel()

	a := openArchive(t, buildArchive(t, sampleFiles(), lz.Fast))

	e, ok := a.Lookup("/maps/de_dust2.bsp")
	require.True(t, ok)
	assert.Equal(t, "maps/de_dust2.bsp", e.Path)

	_, ok = a.Lookup("maps/DE_DUST2.bsp")
	assert.False(t, ok)
	_, ok = a.Lookup("maps")
	assert.False(t, ok)
}

func TestConcurrentExtraction(t *testing.T) {
	t.Parallel()

	files := sampleFiles()
	a := openArchive(t, buildArchive(t, files, lz.Normal))
	entries := a.Entries()

	var wg sync.WaitGroup
	errs := make([]error, len(entries)*4)
	for round := 0; round < 4; round++ {
		for i, e := range entries {
			wg.Add(1)
			go func() {
				defer wg.Done()
				var out bytes.Buffer
				if _, err := e.Extract(&out); err != nil {
					errs[round*len(entries)+i] = err
					return
				}
				if !bytes.Equal(files[i].data, out.Bytes()) {
					errs[round*len(entries)+i] = io.ErrShortWrite
				}
			}()
		}
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestExtractDetectsCorruptPayload(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, []testFile{
		{"data/blob.bin", bytes.Repeat([]byte("xyz"), 400), EncodedAndCompressed, baseTime},
	}, lz.Normal)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// turn the first token into a back-reference with no history behind it
	a, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)
	e := a.Entries()[0]
	key, err := keystream.KeyForPath(e.Path)
	require.NoError(t, err)
	raw[e.Offset] = 0x3f ^ key[0]

	m, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)
	_, err = m.Entries()[0].Extract(io.Discard)
	assert.ErrorIs(t, err, errdefs.ErrCorruptStream)
}

func TestClosedArchive(t *testing.T) {
	t.Parallel()

	a, err := Open(buildArchive(t, sampleFiles(), lz.Normal))
	require.NoError(t, err)
	e := a.Entries()[0]
	require.NoError(t, a.Close())

	_, err = e.Extract(io.Discard)
	assert.Error(t, err)
}
