// Package storage handles uploaded source videos and finished output
// delivery. It defines the Storage interface (port) for hexagonal
// architecture and implementations for local disk and S3 storage.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for source uploads and output delivery.
// Implementations must keep uploaded videos on local disk for the
// pipeline to read and optionally publish finished videos to S3.
type Storage interface {
	// SaveUpload writes an uploaded source video to disk and returns
	// the file path. The name parameter is used as a hint for the
	// filename and its extension is preserved.
	SaveUpload(ctx context.Context, name string, data io.Reader) (path string, err error)

	// Open reads a stored file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Remove deletes the specified files.
	// It continues even if some files fail to delete.
	Remove(ctx context.Context, paths ...string) error

	// Publish uploads a finished video to the object store and returns
	// a download URL. Returns ErrS3NotConfigured if S3 is not configured.
	Publish(ctx context.Context, localPath, key string) (url string, err error)
}
