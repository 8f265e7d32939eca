package core

import (
	"context"
	"labcore/internal/blob"
	"labcore/internal/config"
	"labcore/pkg/domain"
	"path/filepath"
	"testing"
)

func TestOpenDocumentStoreDrivers(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{name: "memory", cfg: config.StorageConfig{Driver: config.StorageMemory}},
		{name: "memory snapshot", cfg: config.StorageConfig{Driver: config.StorageMemory, MemoryPath: filepath.Join(dir, "state.json")}},
		{name: "sqlite", cfg: config.StorageConfig{Driver: config.StorageSQLite, SQLitePath: filepath.Join(dir, "labcore.db")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store, err := OpenDocumentStore(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer func() { _ = store.Close(ctx) }()

			svc := NewService(store)
			a, err := svc.CreateEntity(ctx, domain.NewEntity{Name: "A"})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			b, err := svc.CreateEntity(ctx, domain.NewEntity{Name: "B", Associations: domain.Associations{Origins: []domain.Reference{a.Reference()}}})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			got, err := svc.GetEntity(ctx, a.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !sameIDs(ids(got.Associations.Products), []string{b.ID}) {
				t.Fatalf("expected product link through %s store, got %v", tc.name, got.Associations.Products)
			}
		})
	}
}

func TestOpenDocumentStoreUnknownDriver(t *testing.T) {
	store, err := OpenDocumentStore(context.Background(), config.StorageConfig{Driver: "cassandra"})
	if err == nil || store != nil {
		t.Fatalf("expected error and nil store, got %v %v", store, err)
	}
}

func TestOpenBlobStore(t *testing.T) {
	store, err := OpenBlobStore(context.Background(), blob.Config{Driver: blob.DriverMemory})
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	if store.Driver() != blob.DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	fs, err := OpenBlobStore(context.Background(), blob.Config{Driver: blob.DriverFilesystem, FSRoot: t.TempDir()})
	if err != nil || fs.Driver() != blob.DriverFilesystem {
		t.Fatalf("open fs store: %v", err)
	}
}
