package nar

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"

	"github.com/jchantrell/nartool/internal/errdefs"
	"github.com/jchantrell/nartool/internal/textcodec"
)

const (
	signature      = 0x0052414E // "NAR\x00"
	formatVersion  = 0x01000000
	headerSizeMask = 0x4076551F

	prologueSize = 8
	footerSize   = 8
	minimumSize  = prologueSize + footerSize

	directoryV1 = 1
	directoryV2 = 2

	// value written into the directory_size field; readers ignore it
	directorySizeField = 4

	// fixed part of a version 2 patch block: kind, size, reserved,
	// old checksum, new checksum, more-data flag
	patchHeaderSize = 24
)

// headerKey masks the compressed directory block.
var headerKey = [16]byte{
	0x19, 0x5B, 0x7B, 0x2C, 0x65, 0x5E, 0x79, 0x25,
	0x6E, 0x4B, 0x07, 0x21, 0x62, 0x7F, 0x00, 0x29,
}

// StoreType describes how an entry's bytes were transformed before storage.
type StoreType int32

const (
	Raw StoreType = iota
	Encoded
	EncodedAndCompressed
)

var storeTypeNames = map[StoreType]string{
	Raw:                  "raw",
	Encoded:              "encoded",
	EncodedAndCompressed: "compressed",
}

func (t StoreType) String() string {
	if name, ok := storeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("StoreType(%d)", int32(t))
}

// Valid reports whether t is a known store type.
func (t StoreType) Valid() bool {
	_, ok := storeTypeNames[t]
	return ok
}

// ParseStoreType accepts "raw", "encoded" or "compressed".
func ParseStoreType(s string) (StoreType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range storeTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown store type %q (valid: raw, encoded, compressed)", s)
}

type prologue struct {
	Signature int32
	Version   int32
}

type footer struct {
	MaskedHeaderSize int32
	Signature        int32
}

type directoryHeader struct {
	Version       int32
	Reserved0     int32
	DirectorySize int32
	Reserved1     int32
	EntryCount    int32
}

type entryRecord struct {
	StoreType    int32
	Offset       uint32
	StoredSize   int32
	OriginalSize int32
	Timestamp    int32
	Checksum     uint32
}

// Directory is the decoded directory block.
type Directory struct {
	Version int32
	Entries []*Entry

	// Patch is the opaque trailing block of a version 2 directory.
	Patch []byte
}

func maskHeader(buf []byte) {
	for i := range buf {
		buf[i] ^= headerKey[i&15]
	}
}

func formatErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errdefs.ErrFormat}, args...)...)
}

func checkPatch(patch []byte) error {
	if len(patch) < patchHeaderSize {
		return formatErr("patch block of %d bytes is shorter than %d", len(patch), patchHeaderSize)
	}
	declared := int64(int32(binary.LittleEndian.Uint32(patch[4:8])))
	if declared+12 != int64(len(patch)) {
		return formatErr("patch block declares %d bytes but holds %d", declared+12, len(patch))
	}
	return nil
}

// MarshalBinary encodes the directory block. The version is 2 when a
// patch block is present and 1 otherwise.
func (d *Directory) MarshalBinary() ([]byte, error) {
	version := int32(directoryV1)
	if len(d.Patch) > 0 {
		if err := checkPatch(d.Patch); err != nil {
			return nil, err
		}
		version = directoryV2
	}
	if len(d.Entries) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d entries", errdefs.ErrRange, len(d.Entries))
	}

	var buf bytes.Buffer
	hdr := directoryHeader{
		Version:       version,
		DirectorySize: directorySizeField,
		Reserved1:     1,
		EntryCount:    int32(len(d.Entries)),
	}
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}

	for _, e := range d.Entries {
		rec, err := e.record()
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.Path, err)
		}
		raw := e.rawPath
		if raw == nil {
			if raw, err = textcodec.Encode(e.Path); err != nil {
				return nil, fmt.Errorf("entry %s: %w", e.Path, err)
			}
		}
		if len(raw) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: path of %d bytes", errdefs.ErrRange, len(raw))
		}
		binary.Write(&buf, binary.LittleEndian, uint16(len(raw)))
		buf.Write(raw)
		binary.Write(&buf, binary.LittleEndian, &rec)
	}

	buf.Write(d.Patch)
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a directory block. Entries are not attached to
// an archive.
func (d *Directory) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	var hdr directoryHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return formatErr("directory header: %v", err)
	}
	if hdr.Version != directoryV1 && hdr.Version != directoryV2 {
		return formatErr("unsupported directory version %d", hdr.Version)
	}
	if hdr.EntryCount < 0 {
		return formatErr("negative entry count %d", hdr.EntryCount)
	}

	entries := make([]*Entry, 0, min(int(hdr.EntryCount), len(data)/26))
	for i := 0; i < int(hdr.EntryCount); i++ {
		e, err := readEntry(r)
		if err != nil {
			return formatErr("entry %d: %v", i, err)
		}
		entries = append(entries, e)
	}

	rest := data[len(data)-r.Len():]
	var patch []byte
	switch hdr.Version {
	case directoryV2:
		if err := checkPatch(rest); err != nil {
			return err
		}
		patch = bytes.Clone(rest)
	default:
		if len(rest) > 0 {
			slog.Warn("Ignoring trailing directory bytes", "count", len(rest))
		}
	}

	d.Version = hdr.Version
	d.Entries = entries
	d.Patch = patch
	return nil
}

func readEntry(r io.Reader) (*Entry, error) {
	var pathLen uint16
	if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
		return nil, errors.New("truncated path length")
	}
	raw := make([]byte, pathLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.New("truncated path")
	}
	var rec entryRecord
	if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
		return nil, errors.New("truncated record")
	}

	decoded, err := textcodec.Decode(raw)
	if err != nil {
		return nil, err
	}
	// raw keeps the stored spelling, leading slash included, since the
	// keystream key is derived from it
	name := normalizePath(decoded)
	if name == "" {
		return nil, fmt.Errorf("empty path %q", decoded)
	}
	st := StoreType(rec.StoreType)
	if !st.Valid() {
		return nil, fmt.Errorf("%s: unknown store type %d", name, rec.StoreType)
	}
	if rec.StoredSize < 0 || rec.OriginalSize < 0 {
		return nil, fmt.Errorf("%s: negative size", name)
	}

	return &Entry{
		Path:         name,
		StoreType:    st,
		Offset:       int64(rec.Offset),
		StoredSize:   int64(rec.StoredSize),
		OriginalSize: int64(rec.OriginalSize),
		LastModified: time.Unix(int64(rec.Timestamp), 0).UTC(),
		Checksum:     rec.Checksum,
		rawPath:      raw,
	}, nil
}

// encodeHeaderBlock marshals, compresses and masks the directory.
func encodeHeaderBlock(d *Directory) ([]byte, error) {
	raw, err := d.MarshalBinary()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return nil, fmt.Errorf("creating bzip2 writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compressing directory: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing directory: %w", err)
	}

	block := buf.Bytes()
	maskHeader(block)
	return block, nil
}

// decodeHeaderBlock reverses encodeHeaderBlock. block is modified.
func decodeHeaderBlock(block []byte) (*Directory, error) {
	maskHeader(block)

	zr, err := bzip2.NewReader(bytes.NewReader(block), nil)
	if err != nil {
		return nil, formatErr("opening directory stream: %v", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, formatErr("decompressing directory: %v", err)
	}

	var d Directory
	if err := d.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return &d, nil
}
