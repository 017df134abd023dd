package lz

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const maxLiteralRun = 32

// errWriterClosed is returned by Write after Close.
var errWriterClosed = errors.New("lz: write to closed writer")

// Writer compresses everything written to it into the opcode stream.
// Input is consumed only when the lookahead buffer is full or the Writer is
// closed, so the output does not depend on how writes are split.
type Writer struct {
	bw     *bufio.Writer
	window *Window

	lookahead []byte
	nlook     int

	literals [maxLiteralRun]byte
	nlit     int

	closed bool
	err    error
}

// NewWriter returns a Writer compressing to w at the given level. Close
// must be called to flush the final tokens; it does not close w.
func NewWriter(w io.Writer, level Level) (*Writer, error) {
	if !level.valid() {
		return nil, fmt.Errorf("lz: invalid compression level %d", int(level))
	}
	p := level.params()
	return &Writer{
		bw:        bufio.NewWriter(w),
		window:    NewWindow(p.dictSize, p.hashSize),
		lookahead: make([]byte, p.lookahead),
	}, nil
}

// Write buffers p into the lookahead and compresses whenever it fills.
func (z *Writer) Write(p []byte) (int, error) {
	if z.closed {
		return 0, errWriterClosed
	}
	if z.err != nil {
		return 0, z.err
	}

	written := 0
	for len(p) > 0 {
		n := copy(z.lookahead[z.nlook:], p)
		z.nlook += n
		written += n
		p = p[n:]

		if z.nlook == len(z.lookahead) {
			if err := z.step(); err != nil {
				z.err = err
				return written, err
			}
		}
	}
	return written, nil
}

// Close drains the lookahead, flushes pending literals and buffered
// output.
func (z *Writer) Close() error {
	if z.closed {
		return z.err
	}
	z.closed = true
	if z.err != nil {
		return z.err
	}

	for z.nlook > 0 {
		if err := z.step(); err != nil {
			z.err = err
			return err
		}
	}
	if err := z.flushLiterals(); err != nil {
		z.err = err
		return err
	}
	if err := z.bw.Flush(); err != nil {
		z.err = err
		return err
	}
	return nil
}

// step consumes either one match or one literal from the lookahead.
func (z *Writer) step() error {
	pending := z.lookahead[:z.nlook]

	length, distance := z.window.FindLongestMatch(pending)
	if length >= MinMatch {
		if err := z.flushLiterals(); err != nil {
			return err
		}
		z.window.AppendBytes(pending[:length])
		z.consume(length)
		return z.writeMatch(length, distance)
	}

	b := pending[0]
	z.literals[z.nlit] = b
	z.nlit++
	z.window.Append(b)
	z.consume(1)

	if z.nlit == maxLiteralRun {
		return z.flushLiterals()
	}
	return nil
}

// consume drops n bytes from the front of the lookahead.
func (z *Writer) consume(n int) {
	copy(z.lookahead, z.lookahead[n:z.nlook])
	z.nlook -= n
}

// flushLiterals emits the pending literals as a single run.
func (z *Writer) flushLiterals() error {
	if z.nlit == 0 {
		return nil
	}
	if err := z.bw.WriteByte(byte(z.nlit - 1)); err != nil {
		return err
	}
	if _, err := z.bw.Write(z.literals[:z.nlit]); err != nil {
		return err
	}
	z.nlit = 0
	return nil
}

// writeMatch encodes a back-reference. The top three bits of the header
// are never zero, which is what separates it from a literal run.
func (z *Writer) writeMatch(length, distance int) error {
	d := distance - 1
	n := length - 2

	var token [3]byte
	var size int
	if n >= 7 {
		token[0] = byte(7<<5 | d>>8)
		token[1] = byte(n - 7)
		token[2] = byte(d)
		size = 3
	} else {
		token[0] = byte(n<<5 | d>>8)
		token[1] = byte(d)
		size = 2
	}
	_, err := z.bw.Write(token[:size])
	return err
}

// Compress reads src to EOF and writes its compressed form to dst,
// returning the number of uncompressed bytes consumed.
func Compress(dst io.Writer, src io.Reader, level Level) (int64, error) {
	z, err := NewWriter(dst, level)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(z, src)
	if err != nil {
		return n, fmt.Errorf("compressing: %w", err)
	}
	if err := z.Close(); err != nil {
		return n, fmt.Errorf("flushing compressor: %w", err)
	}
	return n, nil
}
