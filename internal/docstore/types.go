// Package docstore is the entry point for document byte storage. It
// re-exports the contract from docstore/core and selects a backend.
package docstore

import (
	"labdoc/internal/docstore/core"
)

type (
	// Driver identifies a document store backend.
	Driver = core.Driver
	// PutOptions configures a write, including its preconditions.
	PutOptions = core.PutOptions
	// Info describes stored document metadata.
	Info = core.Info
	// Store is the interface for document storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrNotFound matches reads of missing keys.
	ErrNotFound = core.ErrNotFound
	// ErrPreconditionFailed matches writes rejected by IfMatch or IfNoneMatch.
	ErrPreconditionFailed = core.ErrPreconditionFailed
	// ErrInvalidKey matches keys a backend refuses.
	ErrInvalidKey = core.ErrInvalidKey
)
