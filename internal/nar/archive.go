// Package nar reads and writes NAR archive containers.
//
// A container is a signature and version, the entry payloads back to back,
// and a trailing directory block that is BZip2-compressed and XOR-masked.
// The directory is found from the end of the file: the final eight bytes
// hold the masked size of the block followed by the signature again.
package nar

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

var errArchiveClosed = errors.New("nar: archive is closed")

// Archive is a loaded, read-only container. Entries may be read from
// multiple goroutines; access to the backing stream is serialized.
type Archive struct {
	mu     sync.Mutex
	rs     io.ReadSeeker
	closer io.Closer
	size   int64

	dir    *Directory
	sorted []*Entry
}

// Open opens and loads the archive at path.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	a, err := Load(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	a.closer = f
	return a, nil
}

// Load reads the directory of the container in rs. Nothing is retained on
// failure. The caller keeps ownership of rs.
func Load(rs io.ReadSeeker) (*Archive, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to start: %w", err)
	}

	var pro prologue
	if err := binary.Read(rs, binary.LittleEndian, &pro); err != nil {
		return nil, formatErr("reading signature: %v", err)
	}
	if pro.Signature != signature {
		return nil, formatErr("signature 0x%08X", uint32(pro.Signature))
	}
	if pro.Version != formatVersion {
		return nil, formatErr("version 0x%08X", uint32(pro.Version))
	}

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seeking to end: %w", err)
	}
	if size < minimumSize {
		return nil, formatErr("file of %d bytes is too short", size)
	}

	if _, err := rs.Seek(size-footerSize, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to footer: %w", err)
	}
	var foot footer
	if err := binary.Read(rs, binary.LittleEndian, &foot); err != nil {
		return nil, formatErr("reading footer: %v", err)
	}
	if foot.Signature != signature {
		return nil, formatErr("footer signature 0x%08X", uint32(foot.Signature))
	}

	headerSize := int64(foot.MaskedHeaderSize ^ headerSizeMask)
	if headerSize < 0 || size < headerSize+minimumSize {
		return nil, formatErr("header block of %d bytes does not fit in %d byte file", headerSize, size)
	}

	headerStart := size - footerSize - headerSize
	if _, err := rs.Seek(headerStart, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to header block: %w", err)
	}
	block := make([]byte, headerSize)
	if _, err := io.ReadFull(rs, block); err != nil {
		return nil, formatErr("reading header block: %v", err)
	}

	dir, err := decodeHeaderBlock(block)
	if err != nil {
		return nil, err
	}

	a := &Archive{rs: rs, size: size, dir: dir}
	for _, e := range dir.Entries {
		if e.Offset < prologueSize || e.Offset+e.StoredSize > headerStart {
			return nil, formatErr("entry %s spans [%d, %d) outside the payload area",
				e.Path, e.Offset, e.Offset+e.StoredSize)
		}
		e.archive = a
	}
	a.index()

	slog.Debug("Loaded archive", "entries", len(dir.Entries), "directory_version", dir.Version, "size", size)
	return a, nil
}

func (a *Archive) index() {
	a.sorted = make([]*Entry, len(a.dir.Entries))
	copy(a.sorted, a.dir.Entries)
	sort.SliceStable(a.sorted, func(i, j int) bool {
		return a.sorted[i].Path < a.sorted[j].Path
	})
}

// Entries returns the entries in directory order.
func (a *Archive) Entries() []*Entry {
	out := make([]*Entry, len(a.dir.Entries))
	copy(out, a.dir.Entries)
	return out
}

// Len returns the number of entries.
func (a *Archive) Len() int { return len(a.dir.Entries) }

// Size returns the container size in bytes.
func (a *Archive) Size() int64 { return a.size }

// Version returns the directory block version, 1 or 2.
func (a *Archive) Version() int32 { return a.dir.Version }

// Patch returns the opaque patch block of a version 2 directory.
func (a *Archive) Patch() []byte { return a.dir.Patch }

func normalizePath(name string) string {
	return strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/")
}

// Lookup finds an entry by exact path. A leading slash is ignored.
func (a *Archive) Lookup(name string) (*Entry, bool) {
	name = normalizePath(name)
	i := sort.Search(len(a.sorted), func(i int) bool {
		return a.sorted[i].Path >= name
	})
	if i < len(a.sorted) && a.sorted[i].Path == name {
		return a.sorted[i], true
	}
	return nil, false
}

// Close releases the backing file when the archive was opened by Open.
// Entries cannot be read afterwards.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rs = nil
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}
