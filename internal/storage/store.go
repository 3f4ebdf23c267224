// Package storage persists run archives in a blob bucket.
//
// The bucket is addressed by a gocloud URL, so the same code writes to a
// local directory (file:///var/lib/rosterbatch), Google Cloud Storage
// (gs://bucket) or S3 (s3://bucket?region=...). mem:// is useful in tests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
	"gocloud.dev/gcerrors"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
)

// Store writes and reads archives under an optional key prefix.
type Store struct {
	bucket *blob.Bucket
	url    string
	prefix string
}

// Open opens the bucket at url.
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{bucket: bucket, url: url, prefix: prefix}, nil
}

// Put writes data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	path := s.prefix + key

	w, err := s.bucket.NewWriter(ctx, path, &blob.WriterOptions{ContentType: "application/zip"})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", path, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write archive to %s: %w", path, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", path, err)
	}

	return nil
}

// Get reads the archive stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	path := s.prefix + key

	r, err := s.bucket.NewReader(ctx, path, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", batch.ErrArchiveNotFound, key)
		}
		return nil, fmt.Errorf("open reader for %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}
	return data, nil
}

// URI returns the canonical URI for key.
func (s *Store) URI(key string) string {
	base := s.url
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}
	return strings.TrimSuffix(base, "/") + "/" + s.prefix + key
}

// Close releases the bucket.
func (s *Store) Close() error {
	if s.bucket == nil {
		return errors.New("store already closed")
	}
	err := s.bucket.Close()
	s.bucket = nil
	return err
}
