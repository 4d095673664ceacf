package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/nao1215/websaver/internal/model"
)

// ErrUnsafePath is returned for artifact paths that would escape the output root.
var ErrUnsafePath = errors.New("artifact path escapes output root")

const (
	dirPerm  os.FileMode = 0o750
	filePerm os.FileMode = 0o644
)

// maxCollisions bounds the numeric suffixes tried for one path.
const maxCollisions = 1000

// FileWriter writes artifacts below Root. It is safe for concurrent use.
type FileWriter struct {
	root string

	mu sync.Mutex
	// claims maps a case-folded relative path to the URL that owns it, so
	// that /About and /about do not overwrite each other on
	// case-insensitive filesystems.
	claims map[string]string
}

// NewFileWriter creates a FileWriter rooted at root.
func NewFileWriter(root string) *FileWriter {
	return &FileWriter{
		root:   root,
		claims: make(map[string]string),
	}
}

// Root returns the output root.
func (w *FileWriter) Root() string {
	return w.root
}

// Write stores the artifact and returns the slash separated path it was
// written to, relative to the root.
func (w *FileWriter) Write(ctx context.Context, a *model.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !filepath.IsLocal(filepath.FromSlash(a.Path)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, a.Path)
	}

	rel, err := w.claim(a.URL, a.Path)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(w.root, filepath.FromSlash(rel))
	if err := writeFileAtomic(dest, a.Content); err != nil {
		w.release(a.URL, rel)
		return "", err
	}
	return rel, nil
}

// claim reserves rel for url, appending -2, -3... before the extension
// while the path belongs to another URL.
func (w *FileWriter) claim(url, rel string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ext := path.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)
	candidate := rel
	for n := 2; n <= maxCollisions+1; n++ {
		key := strings.ToLower(candidate)
		owner, taken := w.claims[key]
		if !taken || owner == url {
			w.claims[key] = url
			return candidate, nil
		}
		candidate = stem + "-" + strconv.Itoa(n) + ext
	}
	return "", fmt.Errorf("too many artifacts map to %q", rel)
}

func (w *FileWriter) release(url, rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := strings.ToLower(rel)
	if w.claims[key] == url {
		delete(w.claims, key)
	}
}

// writeFileAtomic writes content to dest through a temporary file in the
// same directory.
func writeFileAtomic(dest string, content []byte) (err error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", dest, err)
	}
	if err = tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", dest, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}
	if err = os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dest, err)
	}
	return nil
}
