package docstore

import (
	"context"
	"fmt"
	"os"

	"labdoc/internal/infra/docstore/fs"
	memorystore "labdoc/internal/infra/docstore/memory"
	infraS3 "labdoc/internal/infra/docstore/s3"
)

// Open selects a Store implementation using environment variables.
//
//	LABDOC_STORE_DRIVER: fs|s3|memory (default fs)
//	LABDOC_STORE_FS_ROOT: directory root when driver=fs (default ./labdata)
//	(S3 specific variables are documented in the s3 backend)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("LABDOC_STORE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("LABDOC_STORE_FS_ROOT"))
	case DriverS3:
		return infraS3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown document store driver %s", driver)
	}
}

// NewFilesystem returns a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// S3Config configures the S3 backend.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 Store over an in-memory fake bucket so
// other packages can exercise the S3 code path without a network.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
