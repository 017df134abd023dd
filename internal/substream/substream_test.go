package substream

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/nartool/internal/errdefs"
)

func TestReadClampedToWindow(t *testing.T) {
	t.Parallel()

	backing := strings.NewReader("0123456789abcdef")
	s, err := New(backing, 4, 6)
	require.NoError(t, err)

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(data))

	n, err := s.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err)
}

func TestSeek(t *testing.T) {
	t.Parallel()

	s, err := New(strings.NewReader("0123456789abcdef"), 10, 6)
	require.NoError(t, err)

	pos, err := s.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)

	buf := make([]byte, 8)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(buf[:n]))

	pos, err = s.Seek(100, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos, "clamped to length")

	_, err = s.Seek(-7, io.SeekCurrent)
	assert.ErrorIs(t, err, errdefs.ErrRange)
}

func TestIndependentWindowsShareBacking(t *testing.T) {
	t.Parallel()

	backing := bytes.NewReader([]byte("aaaabbbbcccc"))
	a, err := New(backing, 0, 4)
	require.NoError(t, err)
	c, err := New(backing, 8, 4)
	require.NoError(t, err)

	one := make([]byte, 2)
	_, err = c.Read(one)
	require.NoError(t, err)
	_, err = a.Read(one)
	require.NoError(t, err)
	assert.Equal(t, "aa", string(one))

	rest, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, "cc", string(rest))
}

func TestWriteWithinWindow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "backing.bin")
	require.NoError(t, os.WriteFile(path, []byte("................"), 0o644))

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	s, err := New(f, 4, 4)
	require.NoError(t, err)

	_, err = s.Write([]byte("ab"))
	require.NoError(t, err)
	_, err = s.Write([]byte("cde"))
	assert.ErrorIs(t, err, errdefs.ErrRange)
	_, err = s.Write([]byte("cd"))
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "....abcd........", string(got))
}

func TestNewRejectsNegative(t *testing.T) {
	t.Parallel()

	_, err := New(strings.NewReader(""), -1, 2)
	assert.ErrorIs(t, err, errdefs.ErrRange)
	_, err = New(strings.NewReader(""), 0, -2)
	assert.ErrorIs(t, err, errdefs.ErrRange)
}

func TestWriteRequiresWritableBacking(t *testing.T) {
	t.Parallel()

	s, err := New(strings.NewReader("xxxx"), 0, 4)
	require.NoError(t, err)
	_, err = s.Write([]byte("y"))
	assert.Error(t, err)
}
