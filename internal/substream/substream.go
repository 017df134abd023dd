// Package substream exposes a byte range of a larger seekable stream as an
// independent stream.
package substream

import (
	"errors"
	"fmt"
	"io"

	"github.com/jchantrell/nartool/internal/errdefs"
)

// Stream maps positions [0, Len()) onto [off, off+Len()) of a backing
// stream. Every operation seeks the backing stream first, so callers
// sharing one backing stream between several Streams must serialize access.
type Stream struct {
	rs  io.ReadSeeker
	off int64
	n   int64
	pos int64
}

// New returns a Stream over n bytes of rs starting at off.
func New(rs io.ReadSeeker, off, n int64) (*Stream, error) {
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("%w: window offset %d length %d", errdefs.ErrRange, off, n)
	}
	return &Stream{rs: rs, off: off, n: n}, nil
}

// Len returns the window length.
func (s *Stream) Len() int64 { return s.n }

// Offset returns the window start in the backing stream.
func (s *Stream) Offset() int64 { return s.off }

func (s *Stream) sync() error {
	if _, err := s.rs.Seek(s.off+s.pos, io.SeekStart); err != nil {
		return fmt.Errorf("positioning backing stream: %w", err)
	}
	return nil
}

// Read reads up to len(p) bytes, never past the end of the window.
func (s *Stream) Read(p []byte) (int, error) {
	if s.pos >= s.n {
		return 0, io.EOF
	}
	if remaining := s.n - s.pos; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	if err := s.sync(); err != nil {
		return 0, err
	}
	n, err := s.rs.Read(p)
	s.pos += int64(n)
	return n, err
}

// Write writes p at the current position. A write that would extend past
// the window is rejected whole.
func (s *Stream) Write(p []byte) (int, error) {
	w, ok := s.rs.(io.Writer)
	if !ok {
		return 0, errors.New("substream: backing stream is not writable")
	}
	if s.pos+int64(len(p)) > s.n {
		return 0, fmt.Errorf("%w: write of %d bytes at %d exceeds window of %d", errdefs.ErrRange, len(p), s.pos, s.n)
	}
	if err := s.sync(); err != nil {
		return 0, err
	}
	n, err := w.Write(p)
	s.pos += int64(n)
	return n, err
}

// Seek sets the position. Positions past the end are clamped to Len();
// negative positions are an error.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		abs = s.n + offset
	default:
		return s.pos, fmt.Errorf("substream: invalid whence %d", whence)
	}
	if abs < 0 {
		return s.pos, fmt.Errorf("%w: negative position %d", errdefs.ErrRange, abs)
	}
	if abs > s.n {
		abs = s.n
	}
	s.pos = abs
	if err := s.sync(); err != nil {
		return s.pos, err
	}
	return abs, nil
}
