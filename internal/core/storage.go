package core

import (
	"context"
	"fmt"
	"labcore/internal/blob"
	"labcore/internal/config"
	"labcore/internal/infra/persistence/memory"
	"labcore/internal/infra/persistence/mongo"
	"labcore/internal/infra/persistence/postgres"
	"labcore/internal/infra/persistence/sqlite"
	"labcore/pkg/domain"
)

// OpenDocumentStore opens the document store selected by cfg.Driver.
func OpenDocumentStore(ctx context.Context, cfg config.StorageConfig) (domain.DocumentStore, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		if cfg.MemoryPath == "" {
			return memory.NewStore(), nil
		}
		return opened(memory.Open(cfg.MemoryPath))
	case config.StorageSQLite:
		return opened(sqlite.Open(ctx, cfg.SQLitePath))
	case config.StoragePostgres:
		return opened(postgres.Open(ctx, cfg.PostgresDSN))
	case config.StorageMongo:
		return opened(mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// opened keeps a failed open from yielding a non-nil interface around a nil
// pointer.
func opened[S domain.DocumentStore](store S, err error) (domain.DocumentStore, error) {
	if err != nil {
		return nil, err
	}
	return store, nil
}

// OpenBlobStore opens the attachment store described by cfg.
func OpenBlobStore(ctx context.Context, cfg blob.Config) (blob.Store, error) {
	store, err := blob.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return store, nil
}
