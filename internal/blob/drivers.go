package blob

import (
	"context"

	"catalogbrowser/internal/infra/blob/fs"
	memorystore "catalogbrowser/internal/infra/blob/memory"
	infraS3 "catalogbrowser/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// Memory is the concrete in-memory store; tests use Put/Remove to simulate edits.
type Memory = memorystore.Store

// NewFilesystem constructs a filesystem-backed blob.Store rooted at the provided path.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an in-memory store suitable for tests.
func NewMemory() *Memory { return memorystore.New() }

// NewS3 constructs an S3-backed blob.Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// MockBucket re-exports the fake S3 bucket used by cross-package tests.
type MockBucket = infraS3.MockBucket

// NewMockS3ForTests exposes the fake S3 store for cross-package tests.
func NewMockS3ForTests() (Store, *MockBucket) { return infraS3.NewMockForTests() }
