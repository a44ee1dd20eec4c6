// Package core defines core abstractions for the blob backends that hold
// catalog files.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (default)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3" // S3 / MinIO compatible
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
)

// Info describes a stored blob.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Changed reports whether other describes different content than i.
func (i Info) Changed(other Info) bool {
	if i.ETag != "" && other.ETag != "" {
		return i.ETag != other.ETag
	}
	return i.Size != other.Size || !i.LastModified.Equal(other.LastModified)
}

// Store is a read-only, S3-like view over catalog files.
// Catalog files are edited out-of-band, so the service never writes through it.
type Store interface {
	// Get retrieves the blob contents and metadata. Returns an error wrapping
	// ErrNotFound if missing.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Info, error)
	// Locate returns a human readable address for key (file path or s3:// URL).
	Locate(key string) string
	// Driver returns the configured backend driver string.
	Driver() Driver
}

var (
	// ErrNotFound is returned when a key does not exist in the backend.
	ErrNotFound = errors.New("blobstore: not found")
	// ErrUnsupported is returned when an optional capability is not available.
	ErrUnsupported = errors.New("blobstore: unsupported operation")
)
