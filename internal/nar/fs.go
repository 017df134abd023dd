package nar

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// FS returns a read-only file system view of the archive. Directories are
// implied by entry paths; files read their decoded contents.
func (a *Archive) FS() fs.FS {
	return &archiveFS{a: a}
}

// archiveFS implements fs.FS over the sorted entry list
type archiveFS struct {
	a *Archive
}

func (afs *archiveFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	files := afs.a.sorted

	if name == "." {
		return &archiveDir{fs: afs, prefix: "", offset: 0}, nil
	}

	idx := sort.Search(len(files), func(i int) bool {
		return files[i].Path >= name
	})
	if idx < len(files) && files[idx].Path == name {
		return &archiveFile{entry: files[idx]}, nil
	}

	// check for a directory separately
	dirName := name + "/"
	idx += sort.Search(len(files)-idx, func(i int) bool {
		return files[idx+i].Path >= dirName
	})
	if idx < len(files) && strings.HasPrefix(files[idx].Path, dirName) {
		return &archiveDir{fs: afs, prefix: dirName, offset: idx}, nil
	}

	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// archiveFile implements fs.File for an entry
type archiveFile struct {
	entry  *Entry
	reader io.ReadCloser
	closed bool
}

func (f *archiveFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	if f.reader == nil {
		r, err := f.entry.Open()
		if err != nil {
			return 0, &fs.PathError{Op: "read", Path: f.entry.Path, Err: err}
		}
		f.reader = r
	}
	return f.reader.Read(p)
}

func (f *archiveFile) Close() error {
	f.closed = true
	if f.reader != nil {
		return f.reader.Close()
	}
	return nil
}

func (f *archiveFile) Stat() (fs.FileInfo, error) {
	return fileInfo{f.entry}, nil
}

// fileInfo implements fs.FileInfo and fs.DirEntry for an entry
type fileInfo struct {
	entry *Entry
}

func (fi fileInfo) Name() string               { return path.Base(fi.entry.Path) }
func (fi fileInfo) Size() int64                { return fi.entry.OriginalSize }
func (fi fileInfo) Mode() fs.FileMode          { return 0o444 }
func (fi fileInfo) ModTime() time.Time         { return fi.entry.LastModified }
func (fi fileInfo) IsDir() bool                { return false }
func (fi fileInfo) Sys() any                   { return fi.entry }
func (fi fileInfo) Type() fs.FileMode          { return 0 }
func (fi fileInfo) Info() (fs.FileInfo, error) { return fi, nil }

// archiveDir implements fs.ReadDirFile for an implied directory
type archiveDir struct {
	fs     *archiveFS
	prefix string
	offset int
}

func (d *archiveDir) Read(p []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name(), Err: errors.New("is a directory")}
}

func (d *archiveDir) Close() error { return nil }

func (d *archiveDir) Stat() (fs.FileInfo, error) {
	return dirInfo{name: d.name()}, nil
}

func (d *archiveDir) name() string {
	if d.prefix == "" {
		return "."
	}
	return strings.TrimSuffix(d.prefix, "/")
}

func (d *archiveDir) ReadDir(n int) ([]fs.DirEntry, error) {
	files := d.fs.a.sorted
	prefixLen := len(d.prefix)

	var dirents []fs.DirEntry
	for d.offset < len(files) && (n <= 0 || len(dirents) < n) {
		e := files[d.offset]
		if !strings.HasPrefix(e.Path, d.prefix) {
			d.offset = len(files)
			break
		}

		slashIdx := strings.IndexByte(e.Path[prefixLen:], '/')
		if slashIdx == -1 {
			dirents = append(dirents, fileInfo{e})
			d.offset++
			continue
		}

		// skip every entry under the subdirectory
		sub := e.Path[:prefixLen+slashIdx+1]
		dirents = append(dirents, dirInfo{name: path.Base(sub)})
		d.offset += sort.Search(len(files)-d.offset, func(i int) bool {
			p := files[d.offset+i].Path
			return p > sub && !strings.HasPrefix(p, sub)
		})
	}

	if n > 0 && len(dirents) == 0 {
		return nil, io.EOF
	}
	return dirents, nil
}

// dirInfo implements fs.FileInfo and fs.DirEntry for a directory
type dirInfo struct {
	name string
}

func (di dirInfo) Name() string               { return path.Base(di.name) }
func (di dirInfo) Size() int64                { return 0 }
func (di dirInfo) Mode() fs.FileMode          { return fs.ModeDir | 0o555 }
func (di dirInfo) ModTime() time.Time         { return time.Time{} }
func (di dirInfo) IsDir() bool                { return true }
func (di dirInfo) Sys() any                   { return nil }
func (di dirInfo) Type() fs.FileMode          { return fs.ModeDir }
func (di dirInfo) Info() (fs.FileInfo, error) { return di, nil }
