// Package blob is the disk-backed binding of the remote blob-store contract.
// Blobs land under a root directory, one subdirectory per bucket, and are
// served back under a public base URL.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"oakvoices/internal/models"
	"oakvoices/internal/remote"

	"github.com/google/uuid"
)

// MaxBlobSize caps a single upload at 50MB.
const MaxBlobSize = 50 * 1024 * 1024

// Disk implements remote.BlobStore on the local filesystem.
type Disk struct {
	root    string
	baseURL string
}

var _ remote.BlobStore = (*Disk)(nil)

// New returns a Disk store rooted at root, serving blobs under
// baseURL/storage/<bucket>/<name>.
func New(root, baseURL string) *Disk {
	return &Disk{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

// Root returns the storage root directory for static file serving.
func (d *Disk) Root() string { return d.root }

// EnsureBucket checks that the bucket directory exists, creating it if needed.
func (d *Disk) EnsureBucket(_ context.Context, bucket string) error {
	if err := validBucket(bucket); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(d.root, bucket), 0o755); err != nil {
		return models.NewRemoteError("failed to create bucket", err)
	}
	return nil
}

// Upload stores the blob under a collision-free name derived from filename
// and returns its publicly resolvable URL.
func (d *Disk) Upload(ctx context.Context, bucket, filename, contentType string, r io.Reader) (string, error) {
	if err := d.EnsureBucket(ctx, bucket); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	name := uuid.NewString() + ext
	dst := filepath.Join(d.root, bucket, name)

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", models.NewRemoteError("failed to create blob", err)
	}

	written, err := io.Copy(f, io.LimitReader(r, MaxBlobSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", models.NewRemoteError("failed to write blob", err)
	}
	if written > MaxBlobSize {
		_ = os.Remove(dst)
		return "", models.NewValidationError("File size must be less than 50MB")
	}
	_ = contentType // recorded by the HTTP layer; the disk binding keys on extension

	return fmt.Sprintf("%s/storage/%s/%s", d.baseURL, bucket, name), nil
}

func validBucket(bucket string) error {
	if bucket == "" || bucket != path.Clean(bucket) || strings.ContainsAny(bucket, "/\\.") {
		return models.NewValidationError("invalid bucket name")
	}
	return nil
}
