package lz

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/jchantrell/nartool/internal/errdefs"
)

// byteReader is what the decoder pulls tokens from.
type byteReader interface {
	io.Reader
	io.ByteReader
}

// Reader decompresses an opcode stream. Decoding ends cleanly only when
// the input runs out on a token boundary.
type Reader struct {
	r       byteReader
	window  *Window
	pending []byte
	off     int
	err     error
	scratch [maxLiteralRun]byte
}

// NewReader returns a Reader decoding from r. If r does not implement
// io.ByteReader it is wrapped in a bufio.Reader.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{
		r:       br,
		window:  NewWindow(MaxWindowSize, 0),
		pending: make([]byte, 0, 264),
	}
}

func (z *Reader) Read(p []byte) (int, error) {
	for z.off == len(z.pending) {
		if z.err != nil {
			return 0, z.err
		}
		z.pending = z.pending[:0]
		z.off = 0
		z.err = z.decodeToken()
	}
	n := copy(p, z.pending[z.off:])
	z.off += n
	return n, nil
}

func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated %s", errdefs.ErrCorruptStream, what)
	}
	return err
}

// decodeToken decodes one token into pending.
func (z *Reader) decodeToken() error {
	header, err := z.r.ReadByte()
	if err != nil {
		return err
	}

	op := int(header >> 5)
	low := int(header & 0x1f)

	if op == 0 {
		lit := z.scratch[:low+1]
		if _, err := io.ReadFull(z.r, lit); err != nil {
			return truncated("literal run", err)
		}
		z.window.AppendBytes(lit)
		z.pending = append(z.pending, lit...)
		return nil
	}

	if op == 7 {
		ext, err := z.r.ReadByte()
		if err != nil {
			return truncated("back-reference length", err)
		}
		op += int(ext)
	}
	length := op + 2

	lo, err := z.r.ReadByte()
	if err != nil {
		return truncated("back-reference distance", err)
	}
	distance := (low<<8 | int(lo)) + 1

	if distance > z.window.Len() {
		return fmt.Errorf("%w: back-reference distance %d exceeds %d bytes of history",
			errdefs.ErrCorruptStream, distance, z.window.Len())
	}

	z.pending, err = z.window.CopyAndAdvance(z.pending, distance, length)
	return err
}

// Decompress decodes src to EOF into dst and returns the number of
// decompressed bytes written.
func Decompress(dst io.Writer, src io.Reader) (int64, error) {
	n, err := io.Copy(dst, NewReader(src))
	if err != nil {
		return n, fmt.Errorf("decompressing: %w", err)
	}
	return n, nil
}
