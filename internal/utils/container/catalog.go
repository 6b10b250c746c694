package container

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/satishbabariya/cohortsql/internal/adapters/storage"
	"github.com/satishbabariya/cohortsql/internal/config"
	"github.com/satishbabariya/cohortsql/internal/core/catalog"
)

// loadCatalog reads the configured catalog document, or returns the
// built-in catalog when no path is set.
func loadCatalog(ctx context.Context, cfg config.CatalogConfig) (*catalog.Catalog, error) {
	if cfg.Path == "" {
		return catalog.Default(), nil
	}
	store, err := storage.NewStorage(ctx, storageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog storage: %w", err)
	}
	cat, err := catalog.Load(ctx, store, cfg.Path)
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// CatalogStorage returns the storage the catalog document lives in.
func CatalogStorage(ctx context.Context, cfg config.CatalogConfig) (storage.Storage, error) {
	return storage.NewStorage(ctx, storageConfig(cfg))
}

func storageConfig(cfg config.CatalogConfig) *storage.Config {
	return &storage.Config{
		Type:     cfg.Storage,
		BasePath: cfg.BasePath,
		S3: storage.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
			Prefix:    cfg.S3.Prefix,
		},
	}
}

// catalogFile is the local path of a filesystem catalog.
func catalogFile(cfg config.CatalogConfig) string {
	if filepath.IsAbs(cfg.Path) {
		return cfg.Path
	}
	return filepath.Join(cfg.BasePath, cfg.Path)
}
