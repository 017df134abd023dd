package export

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jchantrell/nartool/internal/model"
	"github.com/jchantrell/nartool/internal/nar"
)

// Options configures a FileSink.
type Options struct {
	// Verify checks each entry's stored checksum before extracting it.
	Verify bool

	// Decryptor, when set, is run on extracted model files.
	Decryptor model.Decryptor
}

// FileSink writes archive entries to files under an output directory.
// Each file is written to a temporary name and renamed into place, then
// given the entry's modification time.
type FileSink struct {
	outputDir string
	opts      Options

	// guards directory creation and renames into the output tree
	mu sync.Mutex
}

// NewFileSink creates a sink rooted at outputDir.
func NewFileSink(outputDir string, opts Options) *FileSink {
	return &FileSink{
		outputDir: outputDir,
		opts:      opts,
	}
}

// OutputPath returns where an entry is written.
func (s *FileSink) OutputPath(e *nar.Entry) (string, error) {
	rel, err := sanitizePath(e.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.outputDir, filepath.FromSlash(rel)), nil
}

// Export extracts e and returns the path written.
func (s *FileSink) Export(e *nar.Entry) (string, error) {
	dest, err := s.OutputPath(e)
	if err != nil {
		return "", err
	}

	if s.opts.Verify {
		if err := e.Check(); err != nil {
			return "", err
		}
	}

	dir := filepath.Dir(dest)
	s.mu.Lock()
	err = os.MkdirAll(dir, 0o755)
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := e.Extract(tmp); err != nil {
		return "", err
	}

	if s.opts.Decryptor != nil && model.IsModelPath(e.Path) {
		if err := s.decrypt(tmp, e.Path); err != nil {
			return "", err
		}
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}

	s.mu.Lock()
	err = os.Rename(tmp.Name(), dest)
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("renaming into place: %w", err)
	}
	committed = true

	if !e.LastModified.IsZero() {
		if err := os.Chtimes(dest, e.LastModified, e.LastModified); err != nil {
			slog.Warn("Failed to set file time", "path", dest, "error", err)
		}
	}

	slog.Debug("Exported file", "path", e.Path, "output", dest)
	return dest, nil
}

func (s *FileSink) decrypt(f *os.File, name string) error {
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	result, err := s.opts.Decryptor.Decrypt(f)
	if err != nil {
		return fmt.Errorf("decrypting %s: %w", name, err)
	}
	switch result {
	case model.Success:
		slog.Debug("Decrypted model", "path", name)
	case model.InvalidModel:
		slog.Warn("Model file is not valid, left as extracted", "path", name)
	}
	return nil
}

var errUnsafePath = errors.New("entry path escapes the output directory")

// sanitizePath turns an entry path into a clean relative path, refusing
// anything that would land outside the output directory.
func sanitizePath(p string) (string, error) {
	p = strings.TrimLeft(strings.ReplaceAll(p, "\\", "/"), "/")
	p = path.Clean(p)
	if p == "." || !filepath.IsLocal(filepath.FromSlash(p)) {
		return "", fmt.Errorf("%q: %w", p, errUnsafePath)
	}
	return p, nil
}
