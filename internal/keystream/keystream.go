// Package keystream implements the path-keyed XOR layer applied to encoded
// entries. The key is derived from the entry path alone, so it obscures
// content but provides no secrecy.
package keystream

import (
	"errors"
	"io"

	"github.com/jchantrell/nartool/internal/textcodec"
)

// KeySize is the length of the repeating key.
const KeySize = 16

// Key is the repeating XOR mask for one entry.
type Key [KeySize]byte

// pathHash is a string hash over the encoded path bytes.
func pathHash(data []byte) uint32 {
	var hash uint32
	for _, b := range data {
		hash = hash*1000003 ^ uint32(b)
	}
	return hash ^ uint32(len(data))
}

// GenerateKey derives the key for an encoded path by seeding a linear
// congruential generator with the path hash.
func GenerateKey(path []byte) Key {
	var key Key
	seed := pathHash(path)
	for i := range key {
		seed = seed*1103515245 + 12345
		key[i] = byte(seed)
	}
	return key
}

// KeyForPath encodes path with the archive text codec and derives its key.
func KeyForPath(path string) (Key, error) {
	b, err := textcodec.Encode(path)
	if err != nil {
		return Key{}, err
	}
	return GenerateKey(b), nil
}

// XORAt applies the key to buf in place as if buf started at stream
// position pos.
func XORAt(buf []byte, key Key, pos int64) {
	k := int(pos & (KeySize - 1))
	for i := range buf {
		buf[i] ^= key[k]
		k = (k + 1) & (KeySize - 1)
	}
}

// Reader removes the keystream from an underlying reader. Seeking is
// passed through when the underlying reader supports it.
type Reader struct {
	r   io.Reader
	key Key
	pos int64
}

// NewReader returns a Reader decoding r, which must be positioned at the
// start of the entry.
func NewReader(r io.Reader, key Key) *Reader {
	return &Reader{r: r, key: key}
}

func (kr *Reader) Read(p []byte) (int, error) {
	n, err := kr.r.Read(p)
	XORAt(p[:n], kr.key, kr.pos)
	kr.pos += int64(n)
	return n, err
}

// Seek moves the underlying reader and realigns the key schedule.
func (kr *Reader) Seek(offset int64, whence int) (int64, error) {
	s, ok := kr.r.(io.Seeker)
	if !ok {
		return kr.pos, errors.New("keystream: underlying reader does not support seeking")
	}
	pos, err := s.Seek(offset, whence)
	if err != nil {
		return kr.pos, err
	}
	kr.pos = pos
	return pos, nil
}

// Writer applies the keystream to bytes before passing them on.
type Writer struct {
	w   io.Writer
	key Key
	pos int64
	buf []byte
}

// NewWriter returns a Writer encoding into w from position zero.
func NewWriter(w io.Writer, key Key) *Writer {
	return &Writer{w: w, key: key}
}

// Write encodes p into a scratch buffer; p itself is left untouched.
func (kw *Writer) Write(p []byte) (int, error) {
	if cap(kw.buf) < len(p) {
		kw.buf = make([]byte, len(p))
	}
	buf := kw.buf[:len(p)]
	copy(buf, p)
	XORAt(buf, kw.key, kw.pos)

	n, err := kw.w.Write(buf)
	kw.pos += int64(n)
	return n, err
}
