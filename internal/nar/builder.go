package nar

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/jchantrell/nartool/internal/errdefs"
	"github.com/jchantrell/nartool/internal/keystream"
	"github.com/jchantrell/nartool/internal/lz"
	"github.com/jchantrell/nartool/internal/textcodec"
)

var errBuilderDone = errors.New("nar: builder already saved or closed")

// Builder writes a new container. The body is written to a temporary file
// next to the destination, which only appears once Save succeeds.
type Builder struct {
	dest string
	tmp  *os.File
	bw   *bufio.Writer
	end  int64

	entries []*Entry
	paths   map[string]struct{}
	patch   []byte

	done bool
}

// Create starts a new archive that Save will write to dest.
func Create(dest string) (*Builder, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}

	b := &Builder{
		dest:  dest,
		tmp:   tmp,
		bw:    bufio.NewWriterSize(tmp, 256<<10),
		paths: make(map[string]struct{}),
	}

	pro := prologue{Signature: signature, Version: formatVersion}
	// flushed so that rewinding a failed first Add keeps it
	err = binary.Write(b.bw, binary.LittleEndian, &pro)
	if err == nil {
		err = b.bw.Flush()
	}
	if err != nil {
		b.discard()
		return nil, fmt.Errorf("writing signature: %w", err)
	}
	b.end = prologueSize
	return b, nil
}

// SetPatch attaches an opaque version 2 patch block, typically one taken
// from Archive.Patch.
func (b *Builder) SetPatch(patch []byte) error {
	if len(patch) > 0 {
		if err := checkPatch(patch); err != nil {
			return err
		}
	}
	b.patch = append([]byte(nil), patch...)
	return nil
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int { return len(b.entries) }

// storedWriter counts and checksums the bytes that reach the container.
type storedWriter struct {
	w   io.Writer
	crc hash.Hash32
	n   int64
}

func (sw *storedWriter) Write(p []byte) (int, error) {
	n, err := sw.w.Write(p)
	sw.crc.Write(p[:n])
	sw.n += int64(n)
	return n, err
}

// Add stores the contents of src under name. Compressed entries are
// LZ-compressed and then keystream-encoded; level is ignored for other
// store types. A zero modTime records the current time.
func (b *Builder) Add(src io.Reader, name string, st StoreType, modTime time.Time, level lz.Level) (*Entry, error) {
	if b.done {
		return nil, errBuilderDone
	}
	if !st.Valid() {
		return nil, fmt.Errorf("%w: store type %d", errdefs.ErrRange, int32(st))
	}

	name = normalizePath(name)
	if name == "" {
		return nil, errors.New("nar: empty entry path")
	}
	if _, dup := b.paths[name]; dup {
		return nil, fmt.Errorf("nar: duplicate entry %s", name)
	}
	raw, err := textcodec.Encode(name)
	if err != nil {
		return nil, err
	}
	if len(raw) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: path of %d bytes", errdefs.ErrRange, len(raw))
	}
	if b.end > math.MaxUint32 {
		return nil, fmt.Errorf("%w: container body exceeds 4 GiB", errdefs.ErrRange)
	}
	if modTime.IsZero() {
		modTime = time.Now()
	}

	entry := &Entry{
		Path:         name,
		StoreType:    st,
		Offset:       b.end,
		LastModified: modTime.Truncate(time.Second).UTC(),
		rawPath:      raw,
	}

	sw := &storedWriter{w: b.bw, crc: crc32.NewIEEE()}
	original, err := b.write(sw, src, entry, level)
	if err == nil {
		err = b.bw.Flush()
	}
	if err == nil && (sw.n > math.MaxInt32 || original > math.MaxInt32) {
		err = fmt.Errorf("%w: entry larger than 2 GiB", errdefs.ErrRange)
	}
	if err != nil {
		if rerr := b.rewind(); rerr != nil {
			return nil, fmt.Errorf("adding %s: %w (rewind failed: %v)", name, err, rerr)
		}
		return nil, fmt.Errorf("adding %s: %w", name, err)
	}

	entry.StoredSize = sw.n
	entry.OriginalSize = original
	entry.Checksum = sw.crc.Sum32()

	b.end += sw.n
	b.entries = append(b.entries, entry)
	b.paths[name] = struct{}{}

	slog.Debug("Added entry", "path", name, "store_type", st, "size", original, "stored", sw.n)
	return entry, nil
}

func (b *Builder) write(sw *storedWriter, src io.Reader, e *Entry, level lz.Level) (int64, error) {
	switch e.StoreType {
	case Encoded:
		return io.Copy(keystream.NewWriter(sw, e.key()), src)
	case EncodedAndCompressed:
		return lz.Compress(keystream.NewWriter(sw, e.key()), src, level)
	default:
		return io.Copy(sw, src)
	}
}

// rewind drops anything written after the last complete entry.
func (b *Builder) rewind() error {
	b.bw.Reset(b.tmp)
	if err := b.tmp.Truncate(b.end); err != nil {
		return err
	}
	_, err := b.tmp.Seek(b.end, io.SeekStart)
	return err
}

// AddFile adds the file at src, recording its modification time.
func (b *Builder) AddFile(src, name string, st StoreType, level lz.Level) (*Entry, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", src, err)
	}
	return b.Add(f, name, st, info.ModTime(), level)
}

// Entries returns the entries added so far.
func (b *Builder) Entries() []*Entry {
	out := make([]*Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Save writes the directory block and footer and renames the finished
// file to its destination.
func (b *Builder) Save() error {
	if b.done {
		return errBuilderDone
	}
	b.done = true

	if err := b.finish(); err != nil {
		b.discard()
		return err
	}
	if err := os.Rename(b.tmp.Name(), b.dest); err != nil {
		os.Remove(b.tmp.Name())
		return fmt.Errorf("renaming archive into place: %w", err)
	}

	slog.Debug("Saved archive", "path", b.dest, "entries", len(b.entries))
	return nil
}

func (b *Builder) finish() error {
	block, err := encodeHeaderBlock(&Directory{Entries: b.entries, Patch: b.patch})
	if err != nil {
		return fmt.Errorf("encoding directory: %w", err)
	}
	if int64(len(block)) > math.MaxInt32 {
		return fmt.Errorf("%w: directory block of %d bytes", errdefs.ErrRange, len(block))
	}
	if _, err := b.bw.Write(block); err != nil {
		return fmt.Errorf("writing directory: %w", err)
	}

	foot := footer{
		MaskedHeaderSize: int32(len(block)) ^ headerSizeMask,
		Signature:        signature,
	}
	if err := binary.Write(b.bw, binary.LittleEndian, &foot); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	if err := b.bw.Flush(); err != nil {
		return fmt.Errorf("flushing archive: %w", err)
	}
	if err := b.tmp.Sync(); err != nil {
		return fmt.Errorf("syncing archive: %w", err)
	}
	if err := b.tmp.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	return nil
}

func (b *Builder) discard() {
	b.tmp.Close()
	os.Remove(b.tmp.Name())
}

// Close abandons an unsaved builder and removes its temporary file. It is
// a no-op after Save.
func (b *Builder) Close() error {
	if b.done {
		return nil
	}
	b.done = true
	b.discard()
	return nil
}
