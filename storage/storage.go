package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Provider abstracts where originals and renditions live. The streaming path
// needs a seekable reader so byte-range requests don't buffer whole files;
// both backends provide one.
//
// Writes are atomic at the object level: a partially written object is never
// observable under its final path.
type Provider interface {
	// Save stores the object, replacing any previous content atomically.
	Save(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) error
	// Open returns a seekable reader for the object along with its size.
	Open(ctx context.Context, objectPath string) (io.ReadSeekCloser, int64, error)
	// Exists reports whether the object is present.
	Exists(ctx context.Context, objectPath string) (bool, error)
	// Remove deletes the object. Removing a missing object is not an error.
	Remove(ctx context.Context, objectPath string) error
}

// LocalProvider stores objects as plain files under a root directory.
type LocalProvider struct {
	root string
}

// NewLocalProvider creates the root directory if needed.
func NewLocalProvider(root string) (*LocalProvider, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}
	return &LocalProvider{root: root}, nil
}

// fullPath resolves an object path under the root and rejects traversal.
func (p *LocalProvider) fullPath(objectPath string) (string, error) {
	clean := filepath.Clean("/" + objectPath) // forces the path to be rooted
	full := filepath.Join(p.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(p.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid object path: %s", objectPath)
	}
	return full, nil
}

// Save writes to a temp file in the destination directory and renames it into
// place, so concurrent readers of the old file keep a valid handle and never
// observe a half-written object.
func (p *LocalProvider) Save(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) error {
	full, err := p.fullPath(objectPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", objectPath, err)
	}

	tmp := full + ".tmp-" + uuid.NewString()
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", objectPath, err)
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", objectPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file for %s: %w", objectPath, err)
	}

	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", objectPath, err)
	}
	return nil
}

// Open returns the file and its size.
func (p *LocalProvider) Open(ctx context.Context, objectPath string) (io.ReadSeekCloser, int64, error) {
	full, err := p.fullPath(objectPath)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", objectPath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat %s: %w", objectPath, err)
	}

	return f, info.Size(), nil
}

// Exists reports whether the file is present.
func (p *LocalProvider) Exists(ctx context.Context, objectPath string) (bool, error) {
	full, err := p.fullPath(objectPath)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", objectPath, err)
	}
	return true, nil
}

// Remove deletes the file.
func (p *LocalProvider) Remove(ctx context.Context, objectPath string) error {
	full, err := p.fullPath(objectPath)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", objectPath, err)
	}
	return nil
}
