package nar

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/jchantrell/nartool/internal/errdefs"
	"github.com/jchantrell/nartool/internal/keystream"
	"github.com/jchantrell/nartool/internal/lz"
	"github.com/jchantrell/nartool/internal/substream"
)

// Entry is one file packaged in an archive. Entries are immutable once
// created by a Builder or parsed from a directory.
type Entry struct {
	Path         string
	StoreType    StoreType
	Offset       int64 // absolute position of the stored bytes in the container
	StoredSize   int64
	OriginalSize int64
	LastModified time.Time
	Checksum     uint32 // CRC-32 of the stored bytes

	rawPath []byte
	archive *Archive
}

func (e *Entry) record() (entryRecord, error) {
	if e.Offset < 0 || e.Offset > math.MaxUint32 {
		return entryRecord{}, fmt.Errorf("%w: offset %d", errdefs.ErrRange, e.Offset)
	}
	if e.StoredSize < 0 || e.StoredSize > math.MaxInt32 || e.OriginalSize < 0 || e.OriginalSize > math.MaxInt32 {
		return entryRecord{}, fmt.Errorf("%w: sizes %d/%d", errdefs.ErrRange, e.StoredSize, e.OriginalSize)
	}
	var ts int64
	if !e.LastModified.IsZero() {
		ts = e.LastModified.Unix()
	}
	if ts < math.MinInt32 || ts > math.MaxInt32 {
		return entryRecord{}, fmt.Errorf("%w: timestamp %s", errdefs.ErrRange, e.LastModified)
	}
	return entryRecord{
		StoreType:    int32(e.StoreType),
		Offset:       uint32(e.Offset),
		StoredSize:   int32(e.StoredSize),
		OriginalSize: int32(e.OriginalSize),
		Timestamp:    int32(ts),
		Checksum:     e.Checksum,
	}, nil
}

func (e *Entry) key() keystream.Key {
	return keystream.GenerateKey(e.rawPath)
}

// ReadStored copies the entry's stored bytes, exactly as they sit in the
// container, to w. The archive lock is held for the whole copy.
func (e *Entry) ReadStored(w io.Writer) (int64, error) {
	if e.archive == nil {
		return 0, fmt.Errorf("entry %s is not attached to an archive", e.Path)
	}
	a := e.archive

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rs == nil {
		return 0, errArchiveClosed
	}
	section, err := substream.New(a.rs, e.Offset, e.StoredSize)
	if err != nil {
		return 0, err
	}
	n, err := io.CopyN(w, section, e.StoredSize)
	if err != nil {
		return n, fmt.Errorf("reading stored bytes of %s: %w", e.Path, err)
	}
	return n, nil
}

// storedBytes reads the stored bytes into memory so the archive lock is
// released before any decoding or output happens.
func (e *Entry) storedBytes() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, e.StoredSize))
	if _, err := e.ReadStored(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decoder wraps stored bytes with the transforms for the entry's store
// type: the keystream is removed first, then the payload decompressed.
func (e *Entry) decoder(stored io.Reader) io.Reader {
	switch e.StoreType {
	case Encoded:
		return keystream.NewReader(stored, e.key())
	case EncodedAndCompressed:
		return lz.NewReader(keystream.NewReader(stored, e.key()))
	default:
		return stored
	}
}

// Open returns a reader over the entry's decoded contents.
func (e *Entry) Open() (io.ReadCloser, error) {
	if e.OriginalSize == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	stored, err := e.storedBytes()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(e.decoder(bytes.NewReader(stored))), nil
}

// Extract writes the decoded contents to w. The decoded length must match
// the directory or the stream is reported corrupt.
func (e *Entry) Extract(w io.Writer) (int64, error) {
	if e.OriginalSize == 0 {
		return 0, nil
	}
	stored, err := e.storedBytes()
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, e.decoder(bytes.NewReader(stored)))
	if err != nil {
		return n, fmt.Errorf("decoding %s: %w", e.Path, err)
	}
	if n != e.OriginalSize {
		return n, fmt.Errorf("%w: %s decoded to %d bytes, directory records %d",
			errdefs.ErrCorruptStream, e.Path, n, e.OriginalSize)
	}

	slog.Debug("Extracted entry", "path", e.Path, "store_type", e.StoreType, "size", n)
	return n, nil
}

func (e *Entry) computeChecksum() (uint32, error) {
	h := crc32.NewIEEE()
	if _, err := e.ReadStored(h); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

// Verify recomputes the CRC-32 of the stored bytes and compares it with
// the directory. The error is non-nil only when the bytes cannot be read.
func (e *Entry) Verify() (bool, error) {
	sum, err := e.computeChecksum()
	if err != nil {
		return false, err
	}
	return sum == e.Checksum, nil
}

// Check is Verify returning an error wrapping ErrChecksumMismatch on a
// mismatch.
func (e *Entry) Check() error {
	sum, err := e.computeChecksum()
	if err != nil {
		return err
	}
	if sum != e.Checksum {
		return fmt.Errorf("%w: %s stored 0x%08X, computed 0x%08X",
			errdefs.ErrChecksumMismatch, e.Path, e.Checksum, sum)
	}
	return nil
}
