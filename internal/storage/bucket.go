package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrInvalidObjectPath = errors.New("invalid object path")

// Bucket is an object store on the local filesystem. Objects are served from
// publicBaseURL by a static file handler.
type Bucket struct {
	root          string
	publicBaseURL string
}

func NewBucket(root, publicBaseURL string) (*Bucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create bucket root: %w", err)
	}
	return &Bucket{root: root, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Root is the directory objects are written under.
func (b *Bucket) Root() string { return b.root }

func (b *Bucket) resolve(objectPath string) (string, error) {
	clean := path.Clean("/" + objectPath)
	if clean == "/" || strings.Contains(objectPath, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectPath, objectPath)
	}
	return filepath.Join(b.root, filepath.FromSlash(clean[1:])), nil
}

// Put writes body to objectPath. A short write removes the partial object.
func (b *Bucket) Put(ctx context.Context, objectPath string, body io.Reader, size int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := b.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create object: %w", err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("short write: %d of %d bytes", n, size)
	}
	if err != nil {
		_ = os.Remove(full)
		return fmt.Errorf("write object %s: %w", objectPath, err)
	}
	return nil
}

// Delete removes every object it can and reports the failures together.
// Missing objects are not an error.
func (b *Bucket) Delete(_ context.Context, objectPaths ...string) error {
	var errs []error
	for _, p := range objectPaths {
		full, err := b.resolve(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bucket) PublicURL(objectPath string) string {
	return b.publicBaseURL + "/" + strings.TrimLeft(objectPath, "/")
}

// Exists reports whether objectPath is stored.
func (b *Bucket) Exists(objectPath string) bool {
	full, err := b.resolve(objectPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}
