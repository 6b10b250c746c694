// Package storage provides the document storage backends the catalog and
// intent files are read from.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read for a missing path.
var ErrNotFound = errors.New("storage: not found")

// Storage defines the storage adapter interface.
type Storage interface {
	// Read reads contents from a path.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write writes contents to a path, creating parents as needed.
	Write(ctx context.Context, path string, content []byte) error

	// Delete deletes a path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error

	// Exists checks if a path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List lists the entries directly under dir, sorted.
	List(ctx context.Context, dir string) ([]string, error)
}

// Config holds storage configuration.
type Config struct {
	// Type is the storage type (filesystem, memory, s3).
	Type string

	// BasePath is the base path for filesystem storage.
	BasePath string

	S3 S3Config
}

// S3Config configures the s3 backend.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint overrides the service endpoint, e.g. for MinIO.
	Endpoint  string
	PathStyle bool
	// Prefix is prepended to every key.
	Prefix string
	// AccessKeyID and SecretAccessKey replace the default credential chain when set.
	AccessKeyID     string
	SecretAccessKey string
}
