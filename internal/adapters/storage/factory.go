package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownBackend is returned for a storage type no backend implements.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Backend names a storage implementation.
type Backend string

const (
	BackendFilesystem Backend = "filesystem"
	BackendMemory     Backend = "memory"
	BackendS3         Backend = "s3"
)

// Watchable reports whether files in the backend can be watched for changes.
func (b Backend) Watchable() bool {
	return b == BackendFilesystem || b == ""
}

// NewStorage opens the backend config names, defaulting to the filesystem
// rooted at the working directory.
func NewStorage(ctx context.Context, config *Config) (Storage, error) {
	if config == nil {
		config = &Config{}
	}
	switch Backend(config.Type) {
	case BackendFilesystem, "":
		base := config.BasePath
		if base == "" {
			base = "."
		}
		return NewFilesystemStorage(base), nil
	case BackendMemory:
		return NewMemoryStorage(), nil
	case BackendS3:
		return NewS3Storage(ctx, config.S3)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, config.Type)
}
