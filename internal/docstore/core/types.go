// Package core defines the byte-store contract that document backends
// implement. Higher layers import the docstore facade instead.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete document store backend.
type Driver string

const (
	// DriverFilesystem stores documents as files under a root directory.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverS3 stores documents as objects in one S3 / MinIO bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps documents in process memory.
	DriverMemory Driver = "memory" // tests
)

// PutOptions configures a write.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	// IfMatch makes the write conditional on the stored ETag.
	IfMatch string
	// IfNoneMatch makes the write create-only: it fails when the key exists.
	IfNoneMatch bool
}

// Info describes a stored document.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a flat key to bytes store with optimistic concurrency.
type Store interface {
	// Put writes r at key, replacing any existing document unless a
	// precondition in opts fails.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns the document bytes. Missing keys match ErrNotFound.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// Delete reports (false, nil) for a missing key.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns documents under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	// ErrNotFound is returned for a key with no document.
	ErrNotFound = errors.New("docstore: not found")
	// ErrPreconditionFailed is returned when IfMatch or IfNoneMatch rejects a write.
	ErrPreconditionFailed = errors.New("docstore: precondition failed")
	// ErrInvalidKey is returned for keys a backend cannot store.
	ErrInvalidKey = errors.New("docstore: invalid key")
)
